package channels

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/smtp"
	"strings"

	"leoactivation/pkg/api"

	jsoniter "github.com/json-iterator/go"
)

// EmailConfig 郵件通道設定。provider 決定走 SMTP 還是 SendGrid。
type EmailConfig struct {
	Provider string `json:"provider"` // "smtp" (default) | "sendgrid"
	From     string `json:"from"`

	// SMTP
	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `json:"smtp_port"`
	SMTPUsername string `json:"smtp_username"`
	SMTPPassword string `json:"smtp_password"`

	// SendGrid
	SendGridAPIKey  string `json:"sendgrid_api_key"`
	SendGridBaseURL string `json:"sendgrid_base_url"`
}

// EmailChannel delivers a campaign message to every profile in the
// segment that carries an email address.
type EmailChannel struct {
	config     EmailConfig
	store      api.Store
	httpClient *http.Client
}

// NewEmailChannel validates provider credentials up front.
func NewEmailChannel(cfg EmailConfig, deps Deps) (*EmailChannel, error) {
	if cfg.Provider == "" {
		cfg.Provider = "smtp"
	}
	switch cfg.Provider {
	case "smtp":
		if cfg.SMTPHost == "" {
			cfg.SMTPHost = "smtp.gmail.com"
		}
		if cfg.SMTPPort == 0 {
			cfg.SMTPPort = 587
		}
	case "sendgrid":
		if cfg.SendGridAPIKey == "" {
			return nil, fmt.Errorf("email: sendgrid api key is required")
		}
		if cfg.SendGridBaseURL == "" {
			cfg.SendGridBaseURL = "https://api.sendgrid.com"
		}
	default:
		return nil, fmt.Errorf("email: unknown provider %q", cfg.Provider)
	}
	if cfg.From == "" {
		cfg.From = cfg.SMTPUsername
	}

	return &EmailChannel{
		config:     cfg,
		store:      deps.Store,
		httpClient: &http.Client{Timeout: deps.HTTPTimeout},
	}, nil
}

// Key implements api.ActivationChannel
func (c *EmailChannel) Key() string {
	return "email"
}

// Send implements api.ActivationChannel
func (c *EmailChannel) Send(ctx context.Context, segment, message string, opts map[string]any) (map[string]any, error) {
	profiles, err := c.store.ProfilesBySegment(ctx, segment)
	if err != nil {
		return nil, fmt.Errorf("email: load recipients: %w", err)
	}

	var recipients []string
	for _, p := range profiles {
		if p.Email != "" {
			recipients = append(recipients, p.Email)
		}
	}
	if len(recipients) == 0 {
		return map[string]any{
			"status":  "warning",
			"channel": "email",
			"message": fmt.Sprintf("No email recipients found in '%s'", segment),
		}, nil
	}

	subject := "Notification"
	if t, ok := opts["title"].(string); ok && t != "" {
		subject = t
	}

	sent, failed := 0, 0
	for _, to := range recipients {
		var err error
		if c.config.Provider == "sendgrid" {
			err = c.sendViaSendGrid(ctx, to, subject, message)
		} else {
			err = c.sendViaSMTP(to, subject, message)
		}
		if err != nil {
			slog.Error("[Email] Delivery failed", "to", to, "error", err)
			failed++
			continue
		}
		sent++
	}

	slog.Info("[Email] Segment delivered", "segment", segment, "sent", sent, "failed", failed)
	return map[string]any{
		"status":  "success",
		"channel": "email",
		"stats":   map[string]any{"sent": sent, "failed": failed},
	}, nil
}

// sendViaSMTP 走標準 SMTP (STARTTLS 由 smtp.SendMail 自動協商)
func (c *EmailChannel) sendViaSMTP(to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", c.config.SMTPHost, c.config.SMTPPort)

	var auth smtp.Auth
	if c.config.SMTPUsername != "" {
		auth = smtp.PlainAuth("", c.config.SMTPUsername, c.config.SMTPPassword, c.config.SMTPHost)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", c.config.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	msg.WriteString(body)

	return smtp.SendMail(addr, auth, c.config.From, []string{to}, msg.Bytes())
}

// sendViaSendGrid 走 SendGrid v3 Mail Send API
func (c *EmailChannel) sendViaSendGrid(ctx context.Context, to, subject, body string) error {
	payload := map[string]any{
		"personalizations": []map[string]any{
			{"to": []map[string]string{{"email": to}}},
		},
		"from":    map[string]string{"email": c.config.From},
		"subject": subject,
		"content": []map[string]string{
			{"type": "text/plain", "value": body},
		},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := strings.TrimRight(c.config.SendGridBaseURL, "/") + "/v3/mail/send"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.config.SendGridAPIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid returned status %d", resp.StatusCode)
	}
	return nil
}

//----------------------------------------------------------------

type emailFactory struct{}

func (f *emailFactory) Create(rawConfig jsoniter.RawMessage, deps Deps) (api.ActivationChannel, error) {
	var cfg EmailConfig
	if err := json.Unmarshal(rawConfig, &cfg); err != nil {
		return nil, fmt.Errorf("email: invalid config: %w", err)
	}
	return NewEmailChannel(cfg, deps)
}

func init() {
	RegisterChannel("email", &emailFactory{})
}
