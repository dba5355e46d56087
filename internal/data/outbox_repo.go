package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/core"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
)

// OutboxRepo provides database operations for the mail outbox.
type OutboxRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewOutboxRepo creates a new OutboxRepo instance with the given database connection.
func NewOutboxRepo(db *sql.DB) *OutboxRepo {
	return &OutboxRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewOutboxRepoWithTimeProvider creates an OutboxRepo with a custom TimeProvider (useful for testing).
func NewOutboxRepoWithTimeProvider(db *sql.DB, timeProvider TimeProvider) *OutboxRepo {
	return &OutboxRepo{DB: db, timeProvider: timeProvider}
}

const outboxColumns = `
  id,
  recipient,
  subject,
  template_id,
  payload,
  locale,
  content_hash,
  poi_id,
  status,
  attempts,
  last_error,
  sent_at,
  created_at,
  updated_at
`

// Create persists a new outbox entry in its initial status.
func (r *OutboxRepo) Create(ctx context.Context, entry *model.MailOutboxEntry) (*model.MailOutboxEntry, error) {
	if entry == nil {
		return nil, errors.New("outbox entry is required")
	}
	if entry.Recipient == "" || entry.TemplateID == "" {
		return nil, errors.New("recipient and template id are required")
	}
	status := entry.Status
	if status == "" {
		status = model.OutboxStatusPending
	}
	if !status.Valid() {
		return nil, fmt.Errorf("invalid outbox status: %s", status)
	}
	locale := entry.Locale
	if locale == "" {
		locale = "de"
	}

	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO mail_outbox (recipient, subject, template_id, payload, locale, content_hash, poi_id, status, attempts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+outboxColumns,
		entry.Recipient,
		entry.Subject,
		entry.TemplateID,
		entry.Payload,
		locale,
		entry.ContentHash,
		entry.POIID,
		status,
		entry.Attempts,
	)
	created, err := scanOutboxEntry(row)
	if err != nil {
		return nil, fmt.Errorf("insert outbox entry: %w", err)
	}
	return created, nil
}

// GetByID retrieves an outbox entry by its ID.
func (r *OutboxRepo) GetByID(ctx context.Context, id string) (*model.MailOutboxEntry, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+outboxColumns+` FROM mail_outbox WHERE id = $1`, id)
	entry, err := scanOutboxEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrOutboxEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get outbox entry: %w", err)
	}
	return entry, nil
}

// UpdateStatus transitions an entry's delivery state.
func (r *OutboxRepo) UpdateStatus(ctx context.Context, params core.UpdateOutboxStatusParams) (*model.MailOutboxEntry, error) {
	if !params.Status.Valid() {
		return nil, fmt.Errorf("invalid outbox status: %s", params.Status)
	}

	row := r.DB.QueryRowContext(ctx, `
		UPDATE mail_outbox
		SET status = $2,
		    attempts = $3,
		    last_error = $4,
		    sent_at = $5,
		    updated_at = $6
		WHERE id = $1
		RETURNING `+outboxColumns,
		params.ID,
		params.Status,
		params.Attempts,
		params.LastError,
		params.SentAt,
		r.timeProvider.Now().UTC(),
	)
	entry, err := scanOutboxEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrOutboxEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update outbox status: %w", err)
	}
	return entry, nil
}

// DispatchedSince reports whether an identical notification was dispatched
// (SENT) or is being dispatched (SENDING) to the recipient at or after the
// cutoff. SKIPPED and FAILED entries do not arm the spam gate.
func (r *OutboxRepo) DispatchedSince(ctx context.Context, params core.DispatchedSinceParams) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM mail_outbox
			WHERE recipient = $1
			  AND content_hash = $2
			  AND status IN ('SENT', 'SENDING')
			  AND created_at >= $3
		)
	`, params.Recipient, params.ContentHash, params.Since.UTC()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check dispatched since: %w", err)
	}
	return exists, nil
}

// DeleteFinishedBefore removes old SENT and SKIPPED entries in batches.
// FAILED entries are kept for manual inspection.
func (r *OutboxRepo) DeleteFinishedBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		return 0, ErrBatchSizeRequired
	}

	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM mail_outbox
		WHERE id IN (
			SELECT id FROM mail_outbox
			WHERE status IN ('SENT', 'SKIPPED')
			  AND updated_at < $1
			ORDER BY updated_at
			LIMIT $2
		)
	`, cutoff.UTC(), batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete finished outbox entries: %w", err)
	}
	return res.RowsAffected()
}

type outboxRowScanner interface {
	Scan(dest ...any) error
}

func scanOutboxEntry(scanner outboxRowScanner) (*model.MailOutboxEntry, error) {
	entry := &model.MailOutboxEntry{}
	var poiID, lastError sql.NullString
	var sentAt sql.NullTime

	err := scanner.Scan(
		&entry.ID,
		&entry.Recipient,
		&entry.Subject,
		&entry.TemplateID,
		&entry.Payload,
		&entry.Locale,
		&entry.ContentHash,
		&poiID,
		&entry.Status,
		&entry.Attempts,
		&lastError,
		&sentAt,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	entry.POIID = cloneNullableString(poiID)
	entry.LastError = cloneNullableString(lastError)
	entry.SentAt = cloneNullableTime(sentAt)
	return entry, nil
}
