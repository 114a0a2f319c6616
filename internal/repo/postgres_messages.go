package repo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/LeventeLantos/message-relay/internal/model"
)

const pgMessageColumns = `
	id::text, conversation_id::text, sender_id::text, recipient_id::text,
	message_type, direction, body, attachments, status, last_error,
	provider_message_id, occurred_at, created_at, updated_at`

func (s *PostgresStore) CreateMessage(ctx context.Context, m *model.Message) error {
	attachments, err := encodeAttachments(m.Attachments)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO messages (
			id, conversation_id, sender_id, recipient_id, message_type, direction, body,
			attachments, status, last_error, provider_message_id, occurred_at, created_at, updated_at
		) VALUES ($1::uuid, $2::uuid, $3::uuid, $4::uuid, $5, $6, $7, $8::jsonb, $9, $10, $11, $12, $13, $14)
	`,
		m.ID, m.ConversationID, m.SenderID, m.RecipientID, string(m.Type), string(m.Direction), m.Body,
		attachments, string(m.Status), m.LastError, m.ProviderMessageID, m.Timestamp, m.CreatedAt, m.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *PostgresStore) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	m, err := scanPgMessage(s.pool.QueryRow(ctx, `SELECT `+pgMessageColumns+` FROM messages WHERE id = $1::uuid`, id))
	if err != nil {
		return nil, lookupErr(err)
	}
	return m, nil
}

func (s *PostgresStore) MessageExistsByProviderID(ctx context.Context, providerMessageID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM messages WHERE provider_message_id = $1)`, providerMessageID,
	).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) UpdateMessageStatus(ctx context.Context, id string, status model.Status, lastError *string) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE messages
		SET status = $2,
		    last_error = $3,
		    updated_at = $4
		WHERE id = $1::uuid
	`, id, string(status), lastError, time.Now().UTC())
	if err != nil {
		return lookupErr(err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, limit, offset int) ([]model.Message, error) {
	limit, offset = normalizePage(limit, offset)
	return s.queryMessages(ctx, `
		SELECT `+pgMessageColumns+`
		FROM messages
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
}

func (s *PostgresStore) ListConversationMessages(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error) {
	limit, offset = normalizePage(limit, offset)
	msgs, err := s.queryMessages(ctx, `
		SELECT `+pgMessageColumns+`
		FROM messages
		WHERE conversation_id = $1::uuid
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, conversationID, limit, offset)
	if err != nil {
		return nil, lookupErr(err)
	}
	return msgs, nil
}

func (s *PostgresStore) ClaimStaleQueued(ctx context.Context, before time.Time, limit int) ([]model.Message, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be > 0")
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT `+pgMessageColumns+`
		FROM messages
		WHERE status = $1 AND updated_at < $2
		ORDER BY created_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT $3
	`, string(model.Queued), before, limit)
	if err != nil {
		return nil, err
	}
	msgs, err := collectPgMessages(rows)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for _, m := range msgs {
		if _, err := tx.Exec(ctx, `
			UPDATE messages SET updated_at = $2 WHERE id = $1::uuid
		`, m.ID, now); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	for i := range msgs {
		msgs[i].UpdatedAt = now
	}
	return msgs, nil
}

func (s *PostgresStore) DeleteMessage(ctx context.Context, id string) error {
	ct, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1::uuid`, id)
	if err != nil {
		return lookupErr(err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) queryMessages(ctx context.Context, sql string, args ...any) ([]model.Message, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return collectPgMessages(rows)
}

func collectPgMessages(rows pgx.Rows) ([]model.Message, error) {
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		m, err := scanPgMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func scanPgMessage(row pgx.Row) (*model.Message, error) {
	var (
		m           model.Message
		msgType     string
		direction   string
		status      string
		attachments []byte
	)
	if err := row.Scan(
		&m.ID,
		&m.ConversationID,
		&m.SenderID,
		&m.RecipientID,
		&msgType,
		&direction,
		&m.Body,
		&attachments,
		&status,
		&m.LastError,
		&m.ProviderMessageID,
		&m.Timestamp,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		return nil, err
	}

	m.Type = model.MessageType(msgType)
	m.Direction = model.Direction(direction)
	m.Status = model.Status(status)

	var err error
	if m.Attachments, err = decodeAttachments(attachments); err != nil {
		return nil, err
	}
	return &m, nil
}

// encodeAttachments keeps nil distinct from an empty list.
func encodeAttachments(a []model.Attachment) ([]byte, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(a)
}

func decodeAttachments(raw []byte) ([]model.Attachment, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var out []model.Attachment
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
