package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/LeventeLantos/message-relay/internal/model"
)

// sqliteTime is fixed-width so TEXT columns sort chronologically.
const sqliteTime = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore is the embedded backend used for local runs and tests.
type SQLiteStore struct {
	db  *sql.DB
	log *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// one writer at a time; sqlite serializes writes anyway
	db.SetMaxOpenConns(1)

	return &SQLiteStore{db: db, log: logger.With("component", "store", "driver", "sqlite")}, nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	s.log.Info("schema applied")
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTime)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(sqliteTime, s)
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) GetParticipant(ctx context.Context, id string) (*model.Participant, error) {
	return s.getParticipant(ctx, "id = ?", id)
}

func (s *SQLiteStore) GetParticipantByPhone(ctx context.Context, phone string) (*model.Participant, error) {
	return s.getParticipant(ctx, "phone = ?", phone)
}

func (s *SQLiteStore) GetParticipantByEmail(ctx context.Context, email string) (*model.Participant, error) {
	return s.getParticipant(ctx, "email = ?", email)
}

func (s *SQLiteStore) getParticipant(ctx context.Context, where string, arg any) (*model.Participant, error) {
	var (
		p            model.Participant
		phone, email sql.NullString
		createdAt    string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, phone, email, created_at FROM participants WHERE `+where, arg,
	).Scan(&p.ID, &phone, &email, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p.Phone = nullString(phone)
	p.Email = nullString(email)
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &p, nil
}

func (s *SQLiteStore) CreateParticipant(ctx context.Context, p *model.Participant) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO participants (id, phone, email, created_at) VALUES (?, ?, ?, ?)
	`, p.ID, p.Phone, p.Email, formatTime(p.CreatedAt))
	if isUniqueConstraintError(err) {
		return ErrConflict
	}
	return err
}

func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	return s.getConversation(ctx, "id = ?", id)
}

func (s *SQLiteStore) GetConversationByParticipants(ctx context.Context, a, b string) (*model.Conversation, error) {
	return s.getConversation(ctx, "participant_a = ? AND participant_b = ?", a, b)
}

func (s *SQLiteStore) getConversation(ctx context.Context, where string, args ...any) (*model.Conversation, error) {
	var (
		c                       model.Conversation
		lastActivity, createdAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, participant_a, participant_b, last_activity, created_at
		FROM conversations
		WHERE `+where, args...,
	).Scan(&c.ID, &c.ParticipantA, &c.ParticipantB, &lastActivity, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if c.LastActivity, err = parseTime(lastActivity); err != nil {
		return nil, fmt.Errorf("parsing last_activity: %w", err)
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &c, nil
}

func (s *SQLiteStore) CreateConversation(ctx context.Context, c *model.Conversation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, participant_a, participant_b, last_activity, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, c.ID, c.ParticipantA, c.ParticipantB, formatTime(c.LastActivity), formatTime(c.CreatedAt))
	if isUniqueConstraintError(err) {
		return ErrConflict
	}
	return err
}

func (s *SQLiteStore) TouchConversation(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET last_activity = MAX(last_activity, ?) WHERE id = ?
	`, formatTime(at), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const sqliteMessageColumns = `
	id, conversation_id, sender_id, recipient_id, message_type, direction, body,
	attachments, status, last_error, provider_message_id, occurred_at, created_at, updated_at`

func (s *SQLiteStore) CreateMessage(ctx context.Context, m *model.Message) error {
	attachments, err := encodeAttachments(m.Attachments)
	if err != nil {
		return err
	}
	var attachmentsArg any
	if attachments != nil {
		attachmentsArg = string(attachments)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (`+sqliteMessageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.ID, m.ConversationID, m.SenderID, m.RecipientID, string(m.Type), string(m.Direction), m.Body,
		attachmentsArg, string(m.Status), m.LastError, m.ProviderMessageID,
		formatTime(m.Timestamp), formatTime(m.CreatedAt), formatTime(m.UpdatedAt),
	)
	if isUniqueConstraintError(err) {
		return ErrConflict
	}
	return err
}

func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	m, err := scanSQLiteMessage(s.db.QueryRowContext(ctx, `SELECT `+sqliteMessageColumns+` FROM messages WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *SQLiteStore) MessageExistsByProviderID(ctx context.Context, providerMessageID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM messages WHERE provider_message_id = ?)`, providerMessageID,
	).Scan(&exists)
	return exists, err
}

func (s *SQLiteStore) UpdateMessageStatus(ctx context.Context, id string, status model.Status, lastError *string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET status = ?, last_error = ?, updated_at = ? WHERE id = ?
	`, string(status), lastError, formatTime(time.Now()), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *SQLiteStore) ListMessages(ctx context.Context, limit, offset int) ([]model.Message, error) {
	limit, offset = normalizePage(limit, offset)
	return s.queryMessages(ctx, s.db, `
		SELECT `+sqliteMessageColumns+` FROM messages
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
}

func (s *SQLiteStore) ListConversationMessages(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error) {
	limit, offset = normalizePage(limit, offset)
	return s.queryMessages(ctx, s.db, `
		SELECT `+sqliteMessageColumns+` FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, conversationID, limit, offset)
}

func (s *SQLiteStore) ClaimStaleQueued(ctx context.Context, before time.Time, limit int) ([]model.Message, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be > 0")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	msgs, err := s.queryMessages(ctx, tx, `
		SELECT `+sqliteMessageColumns+` FROM messages
		WHERE status = ? AND updated_at < ?
		ORDER BY created_at ASC
		LIMIT ?
	`, string(model.Queued), formatTime(before), limit)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for _, m := range msgs {
		if _, err := tx.ExecContext(ctx, `UPDATE messages SET updated_at = ? WHERE id = ?`, formatTime(now), m.ID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	for i := range msgs {
		msgs[i].UpdatedAt = now
	}
	return msgs, nil
}

func (s *SQLiteStore) DeleteMessage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *SQLiteStore) queryMessages(ctx context.Context, q queryer, query string, args ...any) ([]model.Message, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		m, err := scanSQLiteMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func scanSQLiteMessage(row rowScanner) (*model.Message, error) {
	var (
		m                                model.Message
		msgType, direction, status       string
		attachments, lastErr, providerID sql.NullString
		occurredAt, createdAt, updatedAt string
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
		&lastErr,
		&providerID,
		&occurredAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	m.Type = model.MessageType(msgType)
	m.Direction = model.Direction(direction)
	m.Status = model.Status(status)
	m.LastError = nullString(lastErr)
	m.ProviderMessageID = nullString(providerID)

	var err error
	if attachments.Valid {
		if m.Attachments, err = decodeAttachments([]byte(attachments.String)); err != nil {
			return nil, err
		}
	}
	if m.Timestamp, err = parseTime(occurredAt); err != nil {
		return nil, fmt.Errorf("parsing occurred_at: %w", err)
	}
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &m, nil
}
