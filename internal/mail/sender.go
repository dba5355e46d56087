// Package mail renders notification templates and submits them to the
// transactional mail API. The outbox service owns retries and spam gating;
// this package only performs one delivery attempt per call.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/config"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
)

// maxErrorBodyBytes bounds how much of a mail API error response is kept.
const maxErrorBodyBytes = 4 << 10

// Options groups dependencies for the Sender.
type Options struct {
	Config config.MailConfig // API endpoint, credentials, sender address
	Client *http.Client      // Optional: HTTP client override
	Logger *slog.Logger      // Optional: structured logger
}

// Sender delivers rendered notifications through the mail API.
type Sender struct {
	cfg    config.MailConfig
	client *http.Client
	logger *slog.Logger
}

// NewSender builds a mail API sender. The API URL is required; an empty API
// key is allowed for dev setups that run an unauthenticated capture server.
func NewSender(opts Options) (*Sender, error) {
	cfg := opts.Config
	cfg.Sanitize()

	if cfg.APIURL == "" {
		return nil, errors.New("mail api url is required")
	}

	hc := opts.Client
	if hc == nil {
		hc = &http.Client{Timeout: cfg.RequestTimeout}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "mail_sender")
	}

	return &Sender{cfg: cfg, client: hc, logger: logger}, nil
}

// submission is the mail API request body.
type submission struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	TextBody string `json:"text_body"`
}

// Send renders the entry's template for its locale and submits the message.
// The entry's own subject wins over the template subject when it is set.
func (s *Sender) Send(ctx context.Context, entry *model.MailOutboxEntry) error {
	if entry == nil || entry.Recipient == "" {
		return errors.New("outbox entry with recipient is required")
	}

	subject, body, err := s.render(entry)
	if err != nil {
		return err
	}

	msg := submission{
		From:     s.cfg.From,
		To:       entry.Recipient,
		Subject:  subject,
		TextBody: body,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode mail submission: %w", err)
	}

	if err := s.post(ctx, payload); err != nil {
		return err
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "mail submitted",
			"recipient", entry.Recipient,
			"template_id", entry.TemplateID,
			"locale", entry.Locale,
		)
	}
	return nil
}

func (s *Sender) render(entry *model.MailOutboxEntry) (subject, body string, err error) {
	set, err := lookupTemplate(entry.TemplateID, entry.Locale, s.cfg.DefaultLocale)
	if err != nil {
		return "", "", err
	}

	data := map[string]any{}
	if len(entry.Payload) > 0 {
		if err := json.Unmarshal(entry.Payload, &data); err != nil {
			return "", "", fmt.Errorf("decode notification payload: %w", err)
		}
	}

	subject = strings.TrimSpace(entry.Subject)
	if subject == "" {
		var buf bytes.Buffer
		if err := set.subject.Execute(&buf, data); err != nil {
			return "", "", fmt.Errorf("render subject template: %w", err)
		}
		subject = strings.TrimSpace(buf.String())
	}

	var buf bytes.Buffer
	if err := set.body.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render body template: %w", err)
	}

	return subject, buf.String(), nil
}

func (s *Sender) post(ctx context.Context, payload []byte) error {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, s.cfg.APIURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("mail request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return fmt.Errorf("mail api %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
