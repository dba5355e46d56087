package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/core"
	domainjob "github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/job"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
	obserrors "github.com/PrinzMichiDE/tourismusgpt-sub000/internal/observability/errors"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/observability/metrics"
)

// DefaultSpamWindow is how long an identical notification to the same
// recipient is suppressed.
const DefaultSpamWindow = 30 * 24 * time.Hour

// DefaultDeliveryAttempts is the per-dispatch mail API retry budget.
const DefaultDeliveryAttempts = 3

// MailSender delivers a composed outbox entry through the mail API. The
// implementation renders the template for the entry's locale.
type MailSender interface {
	Send(ctx context.Context, entry *model.MailOutboxEntry) error
}

// OutboxServiceOptions groups dependencies for OutboxService.
type OutboxServiceOptions struct {
	Repo             core.OutboxRepository    // Required: outbox repository
	Sender           MailSender               // Required: mail delivery sink
	Cache            core.CacheRepository     // Optional: redis fast path for the spam gate
	SpamWindow       time.Duration            // Optional: defaults to DefaultSpamWindow
	DeliveryAttempts int                      // Optional: defaults to DefaultDeliveryAttempts
	Backoff          *domainjob.BackoffPolicy // Optional: delay between delivery attempts
	Logger           *slog.Logger             // Optional: structured logger
	Now              func() time.Time         // Optional: clock override for tests
}

// DispatchOutcome classifies what happened to a dispatch request.
type DispatchOutcome string

const (
	// DispatchSent indicates the mail was delivered.
	DispatchSent DispatchOutcome = "sent"
	// DispatchSkipped indicates the spam gate suppressed the mail; no
	// delivery attempt was made.
	DispatchSkipped DispatchOutcome = "skipped"
	// DispatchFailed indicates every delivery attempt failed.
	DispatchFailed DispatchOutcome = "failed"
	// DispatchNoRecipient indicates the request carried no recipient; this
	// is a quiet no-op, not an error.
	DispatchNoRecipient DispatchOutcome = "no_recipient"
)

// DispatchRequest describes one notification to send.
type DispatchRequest struct {
	Recipient  string
	Subject    string
	TemplateID string
	Payload    json.RawMessage
	Locale     string
	POIID      *string
}

// OutboxService composes, deduplicates, and delivers notifications. Every
// request leaves a durable outbox row; the spam gate turns repeats within the
// window into SKIPPED rows with zero delivery attempts.
type OutboxService struct {
	repo       core.OutboxRepository
	sender     MailSender
	cache      core.CacheRepository
	spamWindow time.Duration
	attempts   int
	backoff    *domainjob.BackoffPolicy
	logger     *slog.Logger
	now        func() time.Time
}

// NewOutboxService constructs a new OutboxService.
func NewOutboxService(opts OutboxServiceOptions) (*OutboxService, error) {
	if opts.Repo == nil {
		return nil, errors.New("OutboxRepository is required")
	}
	if opts.Sender == nil {
		return nil, errors.New("MailSender is required")
	}

	window := opts.SpamWindow
	if window <= 0 {
		window = DefaultSpamWindow
	}

	attempts := opts.DeliveryAttempts
	if attempts <= 0 {
		attempts = DefaultDeliveryAttempts
	}

	backoff := opts.Backoff
	if backoff == nil {
		var err error
		backoff, err = domainjob.NewBackoffPolicy(time.Second)
		if err != nil {
			return nil, fmt.Errorf("create delivery backoff policy: %w", err)
		}
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "outbox_service")
	}

	return &OutboxService{
		repo:       opts.Repo,
		sender:     opts.Sender,
		cache:      opts.Cache,
		spamWindow: window,
		attempts:   attempts,
		backoff:    backoff,
		logger:     logger,
		now:        now,
	}, nil
}

// Dispatch runs one notification through the spam gate and, when it passes,
// through the mail API with retries. A delivery failure returns a transient
// error so the enclosing job spends its retry budget.
func (s *OutboxService) Dispatch(
	ctx context.Context,
	req DispatchRequest,
) (*model.MailOutboxEntry, DispatchOutcome, error) {
	if req.Recipient == "" {
		if s.logger != nil {
			s.logger.InfoContext(ctx, "no recipient on notification, skipping dispatch",
				"template_id", req.TemplateID,
				"poi_id", derefString(req.POIID),
			)
		}
		return nil, DispatchNoRecipient, nil
	}

	hash := model.ContentHash(req.Recipient, req.TemplateID, req.Payload)

	gated, err := s.spamGateArmed(ctx, req.Recipient, hash)
	if err != nil {
		return nil, "", fmt.Errorf("check spam gate: %w", err)
	}

	entry := &model.MailOutboxEntry{
		Recipient:   req.Recipient,
		Subject:     req.Subject,
		TemplateID:  req.TemplateID,
		Payload:     req.Payload,
		Locale:      req.Locale,
		ContentHash: hash,
		POIID:       req.POIID,
		Status:      model.OutboxStatusPending,
	}
	if gated {
		entry.Status = model.OutboxStatusSkipped
	}

	created, err := s.repo.Create(ctx, entry)
	if err != nil {
		return nil, "", fmt.Errorf("persist outbox entry: %w", err)
	}

	if gated {
		metrics.ObserveMailOutcome(string(DispatchSkipped))
		if s.logger != nil {
			s.logger.InfoContext(ctx, "notification suppressed by spam gate",
				"recipient", req.Recipient,
				"content_hash", hash,
			)
		}
		return created, DispatchSkipped, nil
	}

	return s.deliver(ctx, created)
}

// spamGateArmed consults the redis NX key first and the outbox history
// second. A redis outage degrades to the durable check alone.
func (s *OutboxService) spamGateArmed(ctx context.Context, recipient, hash string) (bool, error) {
	if s.cache != nil {
		key := spamGateKey(recipient, hash)
		set, err := s.cache.SetIfNotExists(ctx, key, []byte("1"), s.spamWindow)
		if err != nil {
			if s.logger != nil {
				s.logger.WarnContext(ctx, "spam gate cache unavailable, falling back to outbox history",
					"error", err,
				)
			}
		} else if !set {
			return true, nil
		}
	}

	dispatched, err := s.repo.DispatchedSince(ctx, core.DispatchedSinceParams{
		Recipient:   recipient,
		ContentHash: hash,
		Since:       s.now().Add(-s.spamWindow),
	})
	if err != nil {
		return false, err
	}
	return dispatched, nil
}

func spamGateKey(recipient, hash string) string {
	return "mailgate:" + recipient + ":" + hash
}

func (s *OutboxService) deliver(
	ctx context.Context,
	entry *model.MailOutboxEntry,
) (*model.MailOutboxEntry, DispatchOutcome, error) {
	updated, err := s.repo.UpdateStatus(ctx, core.UpdateOutboxStatusParams{
		ID:       entry.ID,
		Status:   model.OutboxStatusSending,
		Attempts: 0,
	})
	if err != nil {
		return nil, "", fmt.Errorf("mark outbox entry sending: %w", err)
	}
	entry = updated

	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		lastErr = s.sender.Send(ctx, entry)
		if lastErr == nil {
			sentAt := s.now()
			final, updateErr := s.repo.UpdateStatus(ctx, core.UpdateOutboxStatusParams{
				ID:       entry.ID,
				Status:   model.OutboxStatusSent,
				Attempts: attempt,
				SentAt:   &sentAt,
			})
			if updateErr != nil {
				return nil, "", fmt.Errorf("mark outbox entry sent: %w", updateErr)
			}
			metrics.ObserveMailOutcome(string(DispatchSent))
			if s.logger != nil {
				s.logger.InfoContext(ctx, "notification sent",
					"outbox_id", entry.ID,
					"recipient", entry.Recipient,
					"attempts", attempt,
				)
			}
			return final, DispatchSent, nil
		}

		if attempt < s.attempts {
			timer := time.NewTimer(s.backoff.Delay(attempt - 1))
			select {
			case <-ctx.Done():
				if !timer.Stop() {
					<-timer.C
				}
				return nil, "", ctx.Err()
			case <-timer.C:
			}
		}
	}

	errMsg := lastErr.Error()
	final, updateErr := s.repo.UpdateStatus(ctx, core.UpdateOutboxStatusParams{
		ID:        entry.ID,
		Status:    model.OutboxStatusFailed,
		Attempts:  s.attempts,
		LastError: &errMsg,
	})
	if updateErr != nil {
		return nil, "", fmt.Errorf("mark outbox entry failed: %w", updateErr)
	}

	// Disarm the fast-path gate so a job-level retry is not suppressed by
	// this failed delivery.
	if s.cache != nil {
		if _, delErr := s.cache.Delete(ctx, spamGateKey(entry.Recipient, entry.ContentHash)); delErr != nil &&
			s.logger != nil {
			s.logger.WarnContext(ctx, "failed to disarm spam gate after delivery failure",
				"outbox_id", entry.ID,
				"error", delErr,
			)
		}
	}

	metrics.ObserveMailOutcome(string(DispatchFailed))
	if s.logger != nil {
		s.logger.WarnContext(ctx, "notification delivery failed",
			"outbox_id", entry.ID,
			"recipient", entry.Recipient,
			"attempts", s.attempts,
			"error", errMsg,
		)
	}

	return final, DispatchFailed, obserrors.Transient(
		fmt.Errorf("deliver notification %s: %w", entry.ID, lastErr),
	)
}
