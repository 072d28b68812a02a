package tickets

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mr-karan/slawatch/pkg/models"
)

// Pool is the subset of *pgxpool.Pool the source uses.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// PostgresSource reads tickets straight from the helpdesk database.
type PostgresSource struct {
	pool Pool
}

const listActiveTicketsQuery = `
	SELECT id, customer_id, COALESCE(customer_tier, ''), COALESCE(title, ''), COALESCE(category, ''),
		priority, status, created_at, sla_deadline, COALESCE(escalation_level, 0),
		COALESCE(assigned_to, ''), COALESCE(time_spent_minutes, 0), technician_workload
	FROM tickets
	WHERE status = ANY($1)
	ORDER BY sla_deadline ASC`

const setEscalationLevelQuery = `UPDATE tickets SET escalation_level = $2, updated_at = NOW() WHERE id = $1`

// NewPostgresSource connects to dsn and verifies the connection.
func NewPostgresSource(ctx context.Context, dsn string) (*PostgresSource, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return NewPostgresSourceWithPool(pool), nil
}

// NewPostgresSourceWithPool wraps an existing pool.
func NewPostgresSourceWithPool(pool Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

// Close releases the pool.
func (s *PostgresSource) Close() {
	s.pool.Close()
}

// ListActiveItems implements Source.
func (s *PostgresSource) ListActiveItems(ctx context.Context, statuses []models.TicketStatus) ([]models.Ticket, error) {
	rows, err := s.pool.Query(ctx, listActiveTicketsQuery, statusStrings(statuses))
	if err != nil {
		return nil, fmt.Errorf("querying tickets: %w", err)
	}
	return pgx.CollectRows(rows, scanTicket)
}

func scanTicket(row pgx.CollectableRow) (models.Ticket, error) {
	var t models.Ticket
	err := row.Scan(
		&t.ID,
		&t.CustomerID,
		&t.CustomerTier,
		&t.Title,
		&t.Category,
		&t.Priority,
		&t.Status,
		&t.CreatedAt,
		&t.SLADeadline,
		&t.EscalationLevel,
		&t.AssignedTo,
		&t.TimeSpentMinutes,
		&t.TechnicianWorkload,
	)
	return t, err
}

// SetEscalationLevel implements Source.
func (s *PostgresSource) SetEscalationLevel(ctx context.Context, ticketID string, level int, _ string) error {
	tag, err := s.pool.Exec(ctx, setEscalationLevelQuery, ticketID, level)
	if err != nil {
		return fmt.Errorf("updating escalation for ticket %s: %w", ticketID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
