package delivery

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/mr-karan/slawatch/pkg/models"
)

const (
	smtpSecurityNone     = "none"
	smtpSecurityStartTLS = "starttls"
	smtpSecurityTLS      = "tls"
)

// EmailChannelOptions configures an EmailChannel.
type EmailChannelOptions struct {
	ID            string
	Host          string
	Port          int
	Username      string
	Password      string
	From          string
	To            []string
	Security      string
	Timeout       time.Duration
	SkipTLSVerify bool
	Logger        *slog.Logger
}

// EmailChannel sends alerts over SMTP.
type EmailChannel struct {
	id            string
	host          string
	port          int
	username      string
	password      string
	from          string
	to            []string
	security      string
	timeout       time.Duration
	skipTLSVerify bool
	logger        *slog.Logger
	send          func(ctx context.Context, recipient string, message []byte) error

	mu sync.Mutex
	// done holds, per alert, the recipients already handled so a retry only
	// goes to the rest.
	done map[string]*recipientProgress
}

type recipientProgress struct {
	recipients map[string]struct{}
	updated    time.Time
}

// progressTTL bounds how long per-alert progress is kept after the last attempt.
const progressTTL = 24 * time.Hour

// NewEmailChannel constructs an EmailChannel. Unknown security modes fall back to STARTTLS.
func NewEmailChannel(opts EmailChannelOptions) *EmailChannel {
	security := strings.ToLower(strings.TrimSpace(opts.Security))
	switch security {
	case smtpSecurityNone, smtpSecurityStartTLS, smtpSecurityTLS:
	default:
		security = smtpSecurityStartTLS
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := opts.ID
	if id == "" {
		id = "email"
	}
	ch := &EmailChannel{
		id:            id,
		host:          strings.TrimSpace(opts.Host),
		port:          opts.Port,
		username:      strings.TrimSpace(opts.Username),
		password:      opts.Password,
		from:          strings.TrimSpace(opts.From),
		to:            uniqueEmails(opts.To),
		security:      security,
		timeout:       timeout,
		skipTLSVerify: opts.SkipTLSVerify,
		logger:        logger.With("component", "email_channel"),
		done:          make(map[string]*recipientProgress),
	}
	ch.send = ch.sendEmail
	return ch
}

func (s *EmailChannel) ID() string               { return s.id }
func (s *EmailChannel) Type() models.ChannelType { return models.ChannelEmail }

// Send delivers msg to every configured recipient. Recipients that succeeded, or
// failed permanently, on an earlier attempt for the same alert are skipped.
func (s *EmailChannel) Send(ctx context.Context, msg Message) error {
	if s.host == "" || s.port == 0 || s.from == "" {
		return Permanent(fmt.Errorf("smtp is not configured"))
	}
	if len(s.to) == 0 {
		return Permanent(fmt.Errorf("no email recipients configured"))
	}

	handled := s.progress(msg.AlertID)
	var retryable, permanent []error
	for _, recipient := range s.to {
		if _, ok := handled[recipient]; ok {
			continue
		}
		err := s.send(ctx, recipient, s.buildMessage(msg, recipient))
		switch {
		case err == nil:
			s.markDone(msg.AlertID, recipient)
		case isPermanentSMTP(err):
			s.markDone(msg.AlertID, recipient)
			permanent = append(permanent, fmt.Errorf("%s: %w", recipient, err))
		default:
			retryable = append(retryable, fmt.Errorf("%s: %w", recipient, err))
		}
	}

	if len(retryable) > 0 {
		for _, err := range permanent {
			s.logger.Error("email recipient rejected", "alert_id", msg.AlertID, "error", err)
		}
		return fmt.Errorf("email delivery failed: %w", errors.Join(retryable...))
	}
	s.forget(msg.AlertID)
	if len(permanent) > 0 {
		return Permanent(fmt.Errorf("email delivery failed: %w", errors.Join(permanent...)))
	}
	s.logger.Debug("email sent", "alert_id", msg.AlertID, "recipients", len(s.to))
	return nil
}

func (s *EmailChannel) progress(alertID string) map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, p := range s.done {
		if now.Sub(p.updated) > progressTTL {
			delete(s.done, id)
		}
	}
	out := make(map[string]struct{})
	if p, ok := s.done[alertID]; ok {
		for r := range p.recipients {
			out[r] = struct{}{}
		}
	}
	return out
}

func (s *EmailChannel) markDone(alertID, recipient string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.done[alertID]
	if !ok {
		p = &recipientProgress{recipients: make(map[string]struct{})}
		s.done[alertID] = p
	}
	p.recipients[recipient] = struct{}{}
	p.updated = time.Now()
}

func (s *EmailChannel) forget(alertID string) {
	s.mu.Lock()
	delete(s.done, alertID)
	s.mu.Unlock()
}

// isPermanentSMTP reports whether err cannot be fixed by retrying: an explicit
// permanent error or a 5xx SMTP reply.
func isPermanentSMTP(err error) bool {
	if !IsRetryable(err) {
		return true
	}
	var tpErr *textproto.Error
	return errors.As(err, &tpErr) && tpErr.Code >= 500
}

func (s *EmailChannel) buildMessage(msg Message, recipient string) []byte {
	subject := fmt.Sprintf("[SLA %s] %s", strings.ToUpper(string(msg.Severity)), msg.Title)
	headers := []string{
		fmt.Sprintf("From: %s", s.from),
		fmt.Sprintf("To: %s", recipient),
		fmt.Sprintf("Subject: %s", subject),
		fmt.Sprintf("Date: %s", msg.Timestamp.Format(time.RFC1123Z)),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
	}
	return []byte(strings.Join(headers, "\r\n") + "\r\n\r\n" + msg.Text())
}

func (s *EmailChannel) sendEmail(ctx context.Context, recipient string, message []byte) error {
	client, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Mail(s.from); err != nil {
		return err
	}
	if err := client.Rcpt(recipient); err != nil {
		return err
	}
	writer, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := writer.Write(message); err != nil {
		_ = writer.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func (s *EmailChannel) connect(ctx context.Context) (*smtp.Client, error) {
	address := net.JoinHostPort(s.host, fmt.Sprint(s.port))
	dialer := &net.Dialer{Timeout: s.timeout}
	tlsConfig := &tls.Config{ServerName: s.host, InsecureSkipVerify: s.skipTLSVerify} // #nosec G402

	var (
		conn net.Conn
		err  error
	)
	if s.security == smtpSecurityTLS {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", address)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", address)
	}
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if s.security == smtpSecurityStartTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			_ = client.Close()
			return nil, Permanent(fmt.Errorf("smtp server does not support STARTTLS"))
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	if s.username != "" {
		auth := smtp.PlainAuth("", s.username, s.password, s.host)
		if err := client.Auth(auth); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	return client, nil
}

func uniqueEmails(emails []string) []string {
	seen := make(map[string]struct{}, len(emails))
	out := make([]string, 0, len(emails))
	for _, email := range emails {
		normalized := strings.TrimSpace(email)
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}
