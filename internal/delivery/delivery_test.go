package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr-karan/slawatch/pkg/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type fakeChannel struct {
	id    string
	typ   models.ChannelType
	clock *fakeClock
	err   error

	mu    sync.Mutex
	calls []time.Time
}

func (f *fakeChannel) ID() string               { return f.id }
func (f *fakeChannel) Type() models.ChannelType { return f.typ }

func (f *fakeChannel) Send(_ context.Context, _ Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clock != nil {
		f.calls = append(f.calls, f.clock.Now())
	} else {
		f.calls = append(f.calls, time.Time{})
	}
	return f.err
}

func (f *fakeChannel) Calls() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.calls...)
}

type recorder struct {
	mu   sync.Mutex
	last map[string]models.Delivery
}

func (r *recorder) UpsertDelivery(_ context.Context, d models.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		r.last = make(map[string]models.Delivery)
	}
	r.last[d.ID] = d
	return nil
}

func testAlert(sev models.AlertSeverity) models.Alert {
	return models.Alert{
		ID:        "alert-1",
		TicketID:  "T-1",
		Kind:      models.AlertKindRiskDetected,
		Severity:  sev,
		RiskScore: 0.85,
		Message:   "High risk of SLA breach for ticket T-1.",
		CreatedAt: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestRetryBoundAndSchedule(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: t0}
	ch := &fakeChannel{id: "chat", typ: models.ChannelChat, clock: clock, err: errors.New("connection refused")}
	rec := &recorder{}

	d := NewDispatcher(DispatcherOptions{
		Channels: []Channel{ch},
		Policy:   DefaultPolicy(),
		Recorder: rec,
		Now:      clock.Now,
	})

	dels := d.Dispatch(context.Background(), testAlert(models.AlertSeverityWarning))
	require.Len(t, dels, 1)
	assert.Equal(t, models.DeliveryRetrying, dels[0].Status)
	assert.Equal(t, 1, dels[0].Attempts)
	id := dels[0].ID

	// Keep failing well past the bound; the queue must drain after the fifth attempt.
	for i := 0; i < 10 && d.Queue().Len() > 0; i++ {
		snap := d.Queue().Snapshot()
		require.Len(t, snap, 1)
		clock.Set(*snap[0].NextAttempt)
		assert.Equal(t, 1, d.RetryDue(context.Background()))
	}

	calls := ch.Calls()
	require.Len(t, calls, 5)
	assert.Equal(t, 0, d.Queue().Len())
	assert.False(t, d.Queue().Contains(id))

	final := rec.last[id]
	assert.Equal(t, models.DeliveryFailed, final.Status)
	assert.Equal(t, 5, final.Attempts)
	assert.Nil(t, final.NextAttempt)

	want := []time.Duration{time.Second, 5 * time.Second, 15 * time.Second, time.Minute}
	for i := 1; i < len(calls); i++ {
		assert.Equal(t, want[i-1], calls[i].Sub(calls[i-1]), "gap before attempt %d", i+1)
	}

	st := d.Stats()
	assert.EqualValues(t, 1, st.Total)
	assert.EqualValues(t, 1, st.PermanentlyFailed)
	assert.EqualValues(t, 4, st.Retried)
	assert.Equal(t, 0.0, st.SuccessRate)
	assert.Equal(t, 5.0, st.AverageAttempts)
}

func TestRetryNotDueIsNotAttempted(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: t0}
	ch := &fakeChannel{id: "chat", typ: models.ChannelChat, clock: clock, err: errors.New("boom")}
	d := NewDispatcher(DispatcherOptions{Channels: []Channel{ch}, Now: clock.Now})

	d.Dispatch(context.Background(), testAlert(models.AlertSeverityInfo))
	clock.Set(t0.Add(999 * time.Millisecond))
	assert.Equal(t, 0, d.RetryDue(context.Background()))
	assert.Len(t, ch.Calls(), 1)
	assert.Equal(t, 1, d.Queue().Len())
}

func TestRetrySucceedsEventually(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: t0}
	ch := &fakeChannel{id: "chat", typ: models.ChannelChat, clock: clock, err: errors.New("timeout")}
	rec := &recorder{}
	d := NewDispatcher(DispatcherOptions{Channels: []Channel{ch}, Recorder: rec, Now: clock.Now})

	dels := d.Dispatch(context.Background(), testAlert(models.AlertSeverityWarning))
	ch.mu.Lock()
	ch.err = nil
	ch.mu.Unlock()

	clock.Set(t0.Add(time.Second))
	d.RetryDue(context.Background())

	final := rec.last[dels[0].ID]
	assert.Equal(t, models.DeliverySent, final.Status)
	assert.Equal(t, 2, final.Attempts)
	assert.Empty(t, final.Error)
	assert.Equal(t, 0, d.Queue().Len())
	assert.Equal(t, 1.0, d.Stats().SuccessRate)
}

func TestPermanentErrorSkipsQueue(t *testing.T) {
	ch := &fakeChannel{id: "chat", typ: models.ChannelChat, err: Permanent(errors.New("bad request"))}
	d := NewDispatcher(DispatcherOptions{Channels: []Channel{ch}})

	dels := d.Dispatch(context.Background(), testAlert(models.AlertSeverityWarning))
	require.Len(t, dels, 1)
	assert.Equal(t, models.DeliveryFailed, dels[0].Status)
	assert.Equal(t, 0, d.Queue().Len())
}

func TestChannelsAreIndependent(t *testing.T) {
	ok := &fakeChannel{id: "chat", typ: models.ChannelChat}
	bad := &fakeChannel{id: "bot", typ: models.ChannelBot, err: errors.New("down")}
	email := &fakeChannel{id: "email", typ: models.ChannelEmail}
	d := NewDispatcher(DispatcherOptions{Channels: []Channel{ok, bad, email}})

	dels := d.Dispatch(context.Background(), testAlert(models.AlertSeverityCritical))
	require.Len(t, dels, 3)

	byChannel := map[string]models.Delivery{}
	for _, del := range dels {
		byChannel[del.ChannelID] = del
	}
	assert.Equal(t, models.DeliverySent, byChannel["chat"].Status)
	assert.Equal(t, models.DeliveryRetrying, byChannel["bot"].Status)
	assert.Equal(t, models.DeliverySent, byChannel["email"].Status)
	assert.Equal(t, 1, d.Queue().Len())
}

func TestRouting(t *testing.T) {
	slack := &fakeChannel{id: "slack", typ: models.ChannelChat}
	hook := &fakeChannel{id: "webhook", typ: models.ChannelChat}
	bot := &fakeChannel{id: "telegram", typ: models.ChannelBot}
	email := &fakeChannel{id: "email", typ: models.ChannelEmail}
	d := NewDispatcher(DispatcherOptions{Channels: []Channel{slack, hook, bot, email}, PrimaryChat: "webhook"})

	ids := func(sev models.AlertSeverity) []string {
		var out []string
		for _, ch := range d.ChannelsFor(sev) {
			out = append(out, ch.ID())
		}
		return out
	}
	assert.Equal(t, []string{"slack", "webhook", "telegram", "email"}, ids(models.AlertSeverityCritical))
	assert.Equal(t, []string{"slack", "webhook"}, ids(models.AlertSeverityError), "error goes to chat channels only")
	assert.Equal(t, []string{"webhook"}, ids(models.AlertSeverityWarning), "warning goes to the primary chat channel only")
	assert.Equal(t, []string{"webhook"}, ids(models.AlertSeverityInfo))

	// An unknown primary falls back to the first chat channel.
	d.SetRouting(nil, "missing")
	assert.Equal(t, []string{"slack"}, ids(models.AlertSeverityWarning))

	// Targets may name a channel ID.
	d.SetRouting(map[models.AlertSeverity][]string{
		models.AlertSeverityError: {"telegram", RoutePrimaryChat},
	}, "slack")
	assert.Equal(t, []string{"slack", "telegram"}, ids(models.AlertSeverityError))
	assert.Empty(t, ids(models.AlertSeverityWarning))

	d.SetRouting(nil, "")
	d.SetEnabled(map[models.ChannelType]bool{models.ChannelChat: true})
	assert.Equal(t, []string{"slack", "webhook"}, ids(models.AlertSeverityCritical))

	d.SetEnabled(map[models.ChannelType]bool{})
	assert.Empty(t, ids(models.AlertSeverityWarning))
	assert.Empty(t, d.Dispatch(context.Background(), testAlert(models.AlertSeverityCritical)))
}

func TestRetryQueueOrdersByNextAttempt(t *testing.T) {
	q := NewRetryQueue()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, off := range []time.Duration{30 * time.Second, 5 * time.Second, 15 * time.Second} {
		next := base.Add(off)
		q.Push(models.Delivery{ID: string(rune('a' + i)), NextAttempt: &next}, Message{})
	}
	q.Push(models.Delivery{ID: "no-next"}, Message{})
	assert.Equal(t, 3, q.Len())

	var order []string
	for _, d := range q.Snapshot() {
		order = append(order, d.ID)
	}
	assert.Equal(t, []string{"b", "c", "a"}, order)

	due := q.PopDue(base.Add(15 * time.Second))
	require.Len(t, due, 2)
	assert.Equal(t, "b", due[0].delivery.ID)
	assert.Equal(t, "c", due[1].delivery.ID)
	assert.Equal(t, 1, q.Len())
}

func TestSlackChannel(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := NewSlackChannel("chat", srv.URL, "#support")
	require.NoError(t, ch.Send(context.Background(), MessageFromAlert(testAlert(models.AlertSeverityError))))
	assert.Equal(t, "#support", got["channel"])
	assert.Contains(t, got["text"], "T-1")
	assert.Contains(t, got["text"], "[ERROR]")
}

func TestMessageCarriesRiskFactors(t *testing.T) {
	a := testAlert(models.AlertSeverityCritical)
	a.RiskFactors = []string{"Very little time remaining", "Ticket not yet assigned to technician"}
	a.Recommendations = []string{"Focus all available resources on this ticket"}
	msg := MessageFromAlert(a)

	text := msg.Text()
	assert.Contains(t, text, "Risk factors: Very little time remaining; Ticket not yet assigned to technician\n")
	assert.Contains(t, text, "- Focus all available resources on this ticket\n")

	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	require.NoError(t, NewWebhookChannel("hook", srv.URL, nil).Send(context.Background(), msg))
	assert.Equal(t, a.RiskFactors, got.RiskFactors)
}

func TestTelegramChannel(t *testing.T) {
	var path string
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	ch := NewTelegramChannel("bot", srv.URL, "secret-token", "42")
	require.NoError(t, ch.Send(context.Background(), MessageFromAlert(testAlert(models.AlertSeverityCritical))))
	assert.Equal(t, "/botsecret-token/sendMessage", path)
	assert.Equal(t, "42", got["chat_id"])
}

func TestTelegramChannelHidesToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, r.URL.Path)
	}))
	defer srv.Close()

	ch := NewTelegramChannel("bot", srv.URL, "secret-token", "42")
	err := ch.Send(context.Background(), MessageFromAlert(testAlert(models.AlertSeverityCritical)))
	require.Error(t, err)
	assert.False(t, strings.Contains(err.Error(), "secret-token"))
}

func TestTelegramChannelStatusClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"bad chat id", http.StatusBadRequest, false},
		{"revoked token", http.StatusForbidden, false},
		{"too many requests", http.StatusTooManyRequests, true},
		{"bad gateway", http.StatusBadGateway, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"ok":false,"description":"chat not found"}`)
			}))
			defer srv.Close()

			ch := NewTelegramChannel("bot", srv.URL, "secret-token", "42")
			err := ch.Send(context.Background(), MessageFromAlert(testAlert(models.AlertSeverityCritical)))
			require.Error(t, err)
			assert.Equal(t, tt.retryable, IsRetryable(err))
			assert.NotContains(t, err.Error(), "secret-token")
		})
	}
}

func TestWebhookChannelStatusClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantErr   bool
		retryable bool
	}{
		{"ok", http.StatusOK, false, false},
		{"accepted", http.StatusAccepted, false, false},
		{"bad request", http.StatusBadRequest, true, false},
		{"too many requests", http.StatusTooManyRequests, true, true},
		{"server error", http.StatusInternalServerError, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "token", r.Header.Get("X-Auth"))
				var p webhookPayload
				require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
				assert.Equal(t, "T-1", p.TicketID)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			ch := NewWebhookChannel("hook", srv.URL, map[string]string{"X-Auth": "token"})
			err := ch.Send(context.Background(), MessageFromAlert(testAlert(models.AlertSeverityWarning)))
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.retryable, IsRetryable(err))
		})
	}
}

func TestEmailChannelRequiresConfig(t *testing.T) {
	ch := NewEmailChannel(EmailChannelOptions{Host: "smtp.example.com", Port: 587, From: "sla@example.com"})
	err := ch.Send(context.Background(), MessageFromAlert(testAlert(models.AlertSeverityCritical)))
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, uniqueEmails([]string{" a@example.com", "", "b@example.com", "a@example.com"}))
}

func TestEmailMessageHeaders(t *testing.T) {
	ch := NewEmailChannel(EmailChannelOptions{Host: "smtp.example.com", Port: 587, From: "sla@example.com", To: []string{"ops@example.com"}})
	raw := string(ch.buildMessage(MessageFromAlert(testAlert(models.AlertSeverityCritical)), "ops@example.com"))
	assert.Contains(t, raw, "To: ops@example.com\r\n")
	assert.Contains(t, raw, "Subject: [SLA CRITICAL] risk detected: ticket T-1")
	assert.Contains(t, raw, "High risk of SLA breach")
}

type smtpScript struct {
	mu    sync.Mutex
	fail  map[string][]error
	calls []string
}

func (s *smtpScript) send(_ context.Context, recipient string, _ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, recipient)
	if errs := s.fail[recipient]; len(errs) > 0 {
		s.fail[recipient] = errs[1:]
		return errs[0]
	}
	return nil
}

func newScriptedEmail(script *smtpScript, to ...string) *EmailChannel {
	ch := NewEmailChannel(EmailChannelOptions{Host: "smtp.example.com", Port: 587, From: "sla@example.com", To: to})
	ch.send = script.send
	return ch
}

func TestEmailRetryOnlyResendsToFailedRecipients(t *testing.T) {
	script := &smtpScript{fail: map[string][]error{
		"b@example.com": {errors.New("connection reset")},
	}}
	ch := newScriptedEmail(script, "a@example.com", "b@example.com")
	msg := MessageFromAlert(testAlert(models.AlertSeverityCritical))

	err := ch.Send(context.Background(), msg)
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.Contains(t, err.Error(), "b@example.com")

	require.NoError(t, ch.Send(context.Background(), msg))
	assert.Equal(t, []string{"a@example.com", "b@example.com", "b@example.com"}, script.calls)
	assert.Empty(t, ch.done, "progress is dropped once every recipient is handled")
}

func TestEmailPermanentRecipientErrors(t *testing.T) {
	script := &smtpScript{fail: map[string][]error{
		"a@example.com": {Permanent(errors.New("smtp server does not support STARTTLS"))},
		"b@example.com": {&textproto.Error{Code: 550, Msg: "mailbox unavailable"}},
	}}
	ch := newScriptedEmail(script, "a@example.com", "b@example.com")

	err := ch.Send(context.Background(), MessageFromAlert(testAlert(models.AlertSeverityCritical)))
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
	assert.Contains(t, err.Error(), "STARTTLS")
	assert.Contains(t, err.Error(), "mailbox unavailable")
}

func TestEmailMixedFailureStaysRetryable(t *testing.T) {
	script := &smtpScript{fail: map[string][]error{
		"a@example.com": {&textproto.Error{Code: 550, Msg: "mailbox unavailable"}},
		"b@example.com": {errors.New("i/o timeout")},
	}}
	ch := newScriptedEmail(script, "a@example.com", "b@example.com")
	msg := MessageFromAlert(testAlert(models.AlertSeverityCritical))

	err := ch.Send(context.Background(), msg)
	require.Error(t, err)
	assert.True(t, IsRetryable(err))

	// The rejected mailbox is not tried again.
	require.NoError(t, ch.Send(context.Background(), msg))
	assert.Equal(t, []string{"a@example.com", "b@example.com", "b@example.com"}, script.calls)
}
