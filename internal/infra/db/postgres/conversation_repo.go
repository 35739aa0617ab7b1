// File: internal/infra/db/postgres/conversation_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/oklog/ulid/v2"

	"ai-chat-client/internal/domain"
	"ai-chat-client/internal/domain/model"
	"ai-chat-client/internal/domain/ports/repository"
	"ai-chat-client/internal/infra/metrics"
)

const fkViolation = "23503"

var _ repository.ConversationRepository = (*ConversationRepo)(nil)

// ConversationRepo persists conversations keyed by (owner_id, id).
// Messages live in a side table ordered by seq; seq is assigned here and
// never reused, so transcript order survives concurrent readers.
type ConversationRepo struct {
	pool *pgxpool.Pool
}

func NewConversationRepo(pool *pgxpool.Pool) *ConversationRepo {
	return &ConversationRepo{pool: pool}
}

func (r *ConversationRepo) Create(ctx context.Context, qx repository.Tx, conv *model.Conversation) (string, error) {
	start := time.Now()
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return "", err
	}

	if conv.ID == "" {
		conv.ID = ulid.Make().String()
	}
	if strings.TrimSpace(conv.Title) == "" {
		conv.Title = model.DeriveTitle(conv.Messages)
	}
	now := time.Now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.UpdatedAt.Before(conv.CreatedAt) {
		conv.UpdatedAt = conv.CreatedAt
	}

	const q = `
INSERT INTO conversations (id, owner_id, title, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5);`
	if _, err = ex.Exec(ctx, q, conv.ID, conv.OwnerID, conv.Title, conv.CreatedAt.Unix(), conv.UpdatedAt.Unix()); err != nil {
		metrics.ObserveStoreOp("create", int(time.Since(start).Milliseconds()), false)
		return "", fmt.Errorf("create conversation: %w", err)
	}
	if err = insertMessages(ctx, ex, conv.ID, 0, conv.Messages); err != nil {
		metrics.ObserveStoreOp("create", int(time.Since(start).Milliseconds()), false)
		return "", err
	}
	metrics.ObserveStoreOp("create", int(time.Since(start).Milliseconds()), true)
	return conv.ID, nil
}

func (r *ConversationRepo) FindByID(ctx context.Context, qx repository.Tx, ownerID, id string) (*model.Conversation, error) {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return nil, err
	}

	const q = `SELECT id, owner_id, title, created_at, updated_at FROM conversations WHERE id=$1;`
	var (
		conv               model.Conversation
		createdAt, updated int64
	)
	if err := ex.QueryRow(ctx, q, id).Scan(&conv.ID, &conv.OwnerID, &conv.Title, &createdAt, &updated); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	if conv.OwnerID != ownerID {
		return nil, domain.ErrForbidden
	}
	conv.CreatedAt = time.Unix(createdAt, 0)
	conv.UpdatedAt = time.Unix(updated, 0)

	const qm = `
SELECT role, content, created_at FROM conversation_messages
WHERE conversation_id=$1 ORDER BY seq;`
	rows, err := ex.Query(ctx, qm, id)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			m  model.Message
			ts int64
		)
		if err := rows.Scan(&m.Role, &m.Content, &ts); err != nil {
			return nil, err
		}
		m.ConversationID = id
		m.Timestamp = time.Unix(ts, 0)
		conv.Messages = append(conv.Messages, m)
	}
	return &conv, rows.Err()
}

func (r *ConversationRepo) FindSummariesByOwner(ctx context.Context, qx repository.Tx, ownerID string) ([]model.ConversationSummary, error) {
	start := time.Now()
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return nil, err
	}

	const q = `
SELECT c.id, c.title, c.created_at, c.updated_at, COUNT(m.seq)
FROM conversations c
LEFT JOIN conversation_messages m ON m.conversation_id = c.id
WHERE c.owner_id = $1
GROUP BY c.id
ORDER BY c.updated_at DESC;`
	rows, err := ex.Query(ctx, q, ownerID)
	if err != nil {
		metrics.ObserveStoreOp("list", int(time.Since(start).Milliseconds()), false)
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	defer rows.Close()

	out := make([]model.ConversationSummary, 0, 16)
	for rows.Next() {
		var (
			s                  model.ConversationSummary
			createdAt, updated int64
		)
		if err := rows.Scan(&s.ID, &s.Title, &createdAt, &updated, &s.MessageCount); err != nil {
			return nil, err
		}
		s.OwnerID = ownerID
		s.CreatedAt = time.Unix(createdAt, 0)
		s.UpdatedAt = time.Unix(updated, 0)
		out = append(out, s)
	}
	metrics.ObserveStoreOp("list", int(time.Since(start).Milliseconds()), rows.Err() == nil)
	return out, rows.Err()
}

func (r *ConversationRepo) Update(ctx context.Context, qx repository.Tx, ownerID, id string, patch repository.ConversationPatch) error {
	start := time.Now()
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	if err := checkOwner(ctx, ex, ownerID, id); err != nil {
		return err
	}
	if patch.Title == nil {
		return nil // nothing to apply
	}

	// GREATEST keeps updated_at monotonic even under clock skew between clients.
	const q = `
UPDATE conversations
SET title=$1, updated_at=GREATEST(updated_at, $2)
WHERE id=$3;`
	_, err = ex.Exec(ctx, q, strings.TrimSpace(*patch.Title), time.Now().Unix(), id)
	metrics.ObserveStoreOp("update", int(time.Since(start).Milliseconds()), err == nil)
	if err != nil {
		return fmt.Errorf("rename conversation: %w", err)
	}
	return nil
}

func (r *ConversationRepo) AppendMessages(ctx context.Context, qx repository.Tx, ownerID, id string, messages []model.Message) error {
	start := time.Now()
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}
	if err := checkOwner(ctx, ex, ownerID, id); err != nil {
		return err
	}

	var maxSeq int
	const qSeq = `SELECT COALESCE(MAX(seq), 0) FROM conversation_messages WHERE conversation_id=$1;`
	if err := ex.QueryRow(ctx, qSeq, id).Scan(&maxSeq); err != nil {
		return fmt.Errorf("message seq lookup: %w", err)
	}

	if err := insertMessages(ctx, ex, id, maxSeq, messages); err != nil {
		metrics.ObserveStoreOp("append", int(time.Since(start).Milliseconds()), false)
		// A FK violation here means the conversation was deleted between the
		// owner check and the insert (another tab racing a delete).
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == fkViolation {
			return domain.ErrConflict
		}
		return err
	}

	const qTouch = `UPDATE conversations SET updated_at=GREATEST(updated_at, $1) WHERE id=$2;`
	_, err = ex.Exec(ctx, qTouch, time.Now().Unix(), id)
	metrics.ObserveStoreOp("append", int(time.Since(start).Milliseconds()), err == nil)
	return err
}

func (r *ConversationRepo) Delete(ctx context.Context, qx repository.Tx, ownerID, id string) error {
	start := time.Now()
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}

	const q = `DELETE FROM conversations WHERE id=$1 AND owner_id=$2;`
	tag, err := ex.Exec(ctx, q, id, ownerID)
	if err != nil {
		metrics.ObserveStoreOp("delete", int(time.Since(start).Milliseconds()), false)
		return fmt.Errorf("delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Idempotent when the row is simply gone; Forbidden when it exists
		// under a different owner.
		if err := checkOwner(ctx, ex, ownerID, id); errors.Is(err, domain.ErrForbidden) {
			return err
		}
	}
	metrics.ObserveStoreOp("delete", int(time.Since(start).Milliseconds()), true)
	return nil
}

func checkOwner(ctx context.Context, ex executor, ownerID, id string) error {
	const q = `SELECT owner_id FROM conversations WHERE id=$1;`
	var owner string
	if err := ex.QueryRow(ctx, q, id).Scan(&owner); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("owner lookup: %w", err)
	}
	if owner != ownerID {
		return domain.ErrForbidden
	}
	return nil
}

func insertMessages(ctx context.Context, ex executor, conversationID string, seqOffset int, messages []model.Message) error {
	const q = `
INSERT INTO conversation_messages (conversation_id, seq, role, content, created_at)
VALUES ($1,$2,$3,$4,$5);`
	for i, m := range messages {
		ts := m.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		if _, err := ex.Exec(ctx, q, conversationID, seqOffset+i+1, m.Role, m.Content, ts.Unix()); err != nil {
			return fmt.Errorf("insert message %d: %w", seqOffset+i+1, err)
		}
	}
	return nil
}
