package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mr-karan/slawatch/pkg/models"
)

const (
	insertAlertHistoryQuery = `INSERT INTO alert_history (
    id,
    ticket_id,
    kind,
    severity,
    risk_score,
    minutes_remaining,
    message,
    recommendations,
    channels,
    escalation_level,
    created_at,
    sent_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectAlertHistoryBase = `SELECT
    id,
    ticket_id,
    kind,
    severity,
    risk_score,
    minutes_remaining,
    message,
    recommendations,
    channels,
    escalation_level,
    created_at,
    sent_at
FROM alert_history`

	upsertDeliveryQuery = `INSERT INTO deliveries (
    id,
    alert_id,
    channel_id,
    channel_type,
    status,
    attempts,
    last_attempt,
    next_attempt,
    error,
    updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    status = excluded.status,
    attempts = excluded.attempts,
    last_attempt = excluded.last_attempt,
    next_attempt = excluded.next_attempt,
    error = excluded.error,
    updated_at = excluded.updated_at`

	listDeliveriesQuery = `SELECT
    id,
    alert_id,
    channel_id,
    channel_type,
    status,
    attempts,
    last_attempt,
    next_attempt,
    COALESCE(error, '')
FROM deliveries
WHERE alert_id = ?
ORDER BY channel_id`

	pruneDeliveriesQuery = `DELETE FROM deliveries
WHERE alert_id IN (SELECT id FROM alert_history WHERE created_at < ?)`

	pruneAlertHistoryQuery = `DELETE FROM alert_history WHERE created_at < ?`
)

// AppendAlert records a sent alert.
func (db *DB) AppendAlert(ctx context.Context, alert models.Alert) error {
	recsJSON, err := json.Marshal(nonNil(alert.Recommendations))
	if err != nil {
		return fmt.Errorf("failed to marshal recommendations: %w", err)
	}
	channelsJSON, err := json.Marshal(alert.Channels)
	if err != nil {
		return fmt.Errorf("failed to marshal alert channels: %w", err)
	}
	if alert.Channels == nil {
		channelsJSON = []byte("[]")
	}

	_, err = db.writeDB.ExecContext(ctx, insertAlertHistoryQuery,
		alert.ID,
		alert.TicketID,
		string(alert.Kind),
		string(alert.Severity),
		alert.RiskScore,
		alert.MinutesRemaining,
		alert.Message,
		string(recsJSON),
		string(channelsJSON),
		alert.EscalationLevel,
		alert.CreatedAt.UnixNano(),
		nullableTime(alert.SentAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert history: %w", err)
	}
	return nil
}

// ListAlerts returns alerts matching f, newest first.
func (db *DB) ListAlerts(ctx context.Context, f models.AlertFilter) ([]models.Alert, error) {
	var (
		where []string
		args  []any
	)
	if f.TicketID != "" {
		where = append(where, "ticket_id = ?")
		args = append(args, f.TicketID)
	}
	if f.Severity != "" {
		where = append(where, "severity = ?")
		args = append(args, string(f.Severity))
	}
	if !f.From.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.From.UnixNano())
	}
	if !f.To.IsZero() {
		where = append(where, "created_at <= ?")
		args = append(args, f.To.UnixNano())
	}
	limit := f.Limit
	if limit <= 0 {
		limit = models.DefaultAlertHistoryLimit
	}

	query := selectAlertHistoryBase
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alert history: %w", err)
	}
	defer rows.Close()

	out := make([]models.Alert, 0)
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alert history: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (models.Alert, error) {
	var (
		a            models.Alert
		kind         string
		severity     string
		recsJSON     string
		channelsJSON string
		createdAt    int64
		sentAt       sql.NullInt64
	)
	err := row.Scan(
		&a.ID,
		&a.TicketID,
		&kind,
		&severity,
		&a.RiskScore,
		&a.MinutesRemaining,
		&a.Message,
		&recsJSON,
		&channelsJSON,
		&a.EscalationLevel,
		&createdAt,
		&sentAt,
	)
	if err != nil {
		return models.Alert{}, fmt.Errorf("failed to scan alert history: %w", err)
	}
	a.Kind = models.AlertKind(kind)
	a.Severity = models.AlertSeverity(severity)
	a.CreatedAt = time.Unix(0, createdAt).UTC()
	if sentAt.Valid {
		t := time.Unix(0, sentAt.Int64).UTC()
		a.SentAt = &t
	}
	if err := json.Unmarshal([]byte(recsJSON), &a.Recommendations); err != nil {
		return models.Alert{}, fmt.Errorf("failed to decode recommendations: %w", err)
	}
	if err := json.Unmarshal([]byte(channelsJSON), &a.Channels); err != nil {
		return models.Alert{}, fmt.Errorf("failed to decode alert channels: %w", err)
	}
	return a, nil
}

// UpsertDelivery stores the latest state of a delivery.
func (db *DB) UpsertDelivery(ctx context.Context, d models.Delivery) error {
	var last any
	if !d.LastAttempt.IsZero() {
		last = d.LastAttempt.UnixNano()
	}
	_, err := db.writeDB.ExecContext(ctx, upsertDeliveryQuery,
		d.ID,
		d.AlertID,
		d.ChannelID,
		string(d.ChannelType),
		string(d.Status),
		d.Attempts,
		last,
		nullableTime(d.NextAttempt),
		nullableString(d.Error),
		time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert delivery %s: %w", d.ID, err)
	}
	return nil
}

// ListDeliveries returns the deliveries of alertID ordered by channel.
func (db *DB) ListDeliveries(ctx context.Context, alertID string) ([]models.Delivery, error) {
	rows, err := db.readDB.QueryContext(ctx, listDeliveriesQuery, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	defer rows.Close()

	var out []models.Delivery
	for rows.Next() {
		var (
			d           models.Delivery
			channelType string
			status      string
			last        sql.NullInt64
			next        sql.NullInt64
		)
		if err := rows.Scan(&d.ID, &d.AlertID, &d.ChannelID, &channelType, &status, &d.Attempts, &last, &next, &d.Error); err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		d.ChannelType = models.ChannelType(channelType)
		d.Status = models.DeliveryStatus(status)
		if last.Valid {
			d.LastAttempt = time.Unix(0, last.Int64).UTC()
		}
		if next.Valid {
			t := time.Unix(0, next.Int64).UTC()
			d.NextAttempt = &t
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deliveries: %w", err)
	}
	return out, nil
}

// Prune deletes alerts created before cutoff together with their deliveries.
func (db *DB) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	tx, err := db.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ts := cutoff.UnixNano()
	if _, err := tx.ExecContext(ctx, pruneDeliveriesQuery, ts); err != nil {
		return 0, fmt.Errorf("failed to prune deliveries: %w", err)
	}
	res, err := tx.ExecContext(ctx, pruneAlertHistoryQuery, ts)
	if err != nil {
		return 0, fmt.Errorf("failed to prune alert history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit prune: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		db.log.Info("pruned alert history", "removed", n, "cutoff", cutoff)
	}
	return int(n), nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
