package notifications

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"sitemigrate/internal/config"
	"sitemigrate/internal/logging"
)

const userAgent = "sitemigrate/1.0"

// Message is one notification request.
type Message struct {
	Template   string
	Recipients []string
	StartedBy  string
	Values     map[string]any
}

// Sender delivers rendered messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// NewSender builds the sender selected by notifications.backend.
func NewSender(cfg *config.Config, logger *slog.Logger) Sender {
	if cfg == nil {
		return noopSender{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	n := cfg.Notifications
	switch n.Backend {
	case "smtp":
		return &smtpSender{
			addr:     n.SMTPHost + ":" + strconv.Itoa(n.SMTPPort),
			host:     n.SMTPHost,
			from:     n.From,
			username: n.SMTPUsername,
			password: n.SMTPPassword,
			defaults: n.DefaultRecipients,
			send:     smtp.SendMail,
			logger:   logger,
		}
	case "ntfy":
		timeout := time.Duration(n.RequestTimeout) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		return &ntfySender{
			endpoint: strings.TrimSpace(n.NtfyTopic),
			client:   &http.Client{Timeout: timeout},
			defaults: n.DefaultRecipients,
		}
	default:
		return noopSender{}
	}
}

// Recipients returns the de-duplicated recipient list for msg, with the
// initiating user appended and defaults used when nothing else is set.
func Recipients(msg Message, defaults []string) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(addr string) {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			return
		}
		key := strings.ToLower(addr)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, addr)
	}
	for _, r := range msg.Recipients {
		add(r)
	}
	if len(out) == 0 {
		for _, r := range defaults {
			add(r)
		}
	}
	add(msg.StartedBy)
	return out
}

type smtpSender struct {
	addr     string
	host     string
	from     string
	username string
	password string
	defaults []string
	send     func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	logger   *slog.Logger
}

func (s *smtpSender) Send(_ context.Context, msg Message) error {
	subject, body, err := Render(msg.Template, msg.Values)
	if err != nil {
		return err
	}
	to := Recipients(msg, s.defaults)
	if len(to) == 0 {
		s.logger.Debug("notification skipped: no recipients", logging.String("template", msg.Template))
		return nil
	}
	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}
	if err := s.send(s.addr, auth, s.from, to, buildMail(s.from, to, subject, body)); err != nil {
		return fmt.Errorf("send mail %s: %w", msg.Template, err)
	}
	return nil
}

func buildMail(from string, to []string, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

type ntfySender struct {
	endpoint string
	client   *http.Client
	defaults []string
}

func (n *ntfySender) Send(ctx context.Context, msg Message) error {
	subject, body, err := Render(msg.Template, msg.Values)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Title", subject)
	req.Header.Set("Tags", "sitemigrate,"+msg.Template)
	if strings.HasSuffix(msg.Template, "failed") {
		req.Header.Set("Priority", "high")
	}
	if to := Recipients(msg, n.defaults); len(to) > 0 {
		req.Header.Set("Email", to[0])
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopSender struct{}

func (noopSender) Send(context.Context, Message) error { return nil }

// Recorder is a Sender that keeps messages in memory.
type Recorder struct {
	Messages []Message
	Err      error
}

// Send implements Sender.
func (r *Recorder) Send(_ context.Context, msg Message) error {
	r.Messages = append(r.Messages, msg)
	return r.Err
}
