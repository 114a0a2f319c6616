package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/LeventeLantos/message-relay/internal/model"
)

const (
	pgUniqueViolation      = "23505"
	pgInvalidTextRepresent = "22P02"
)

type PostgresStore struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore opens a pgx pool for dsn and verifies it with a ping.
func NewPostgresStore(ctx context.Context, dsn string, maxConns int32, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := pgxpool.ParseConfig(normalizeDSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.MaxConnLifetime = time.Hour
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: new pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return &PostgresStore{pool: pool, log: logger.With("component", "store", "driver", "postgres")}, nil
}

// normalizeDSN strips driver suffixes some .env files carry (postgresql+asyncpg://...).
func normalizeDSN(dsn string) string {
	s := strings.TrimSpace(dsn)
	for _, suffix := range []string{"+asyncpg", "+pgx", "+psycopg2"} {
		s = strings.Replace(s, "postgresql"+suffix+"://", "postgresql://", 1)
		s = strings.Replace(s, "postgres"+suffix+"://", "postgres://", 1)
	}
	return s
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	s.log.Info("schema applied")
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// lookupErr maps a missing row to ErrNotFound. Ids are uuid columns, so an id
// that does not parse as a uuid cannot name a row either.
func lookupErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgInvalidTextRepresent {
		return ErrNotFound
	}
	return err
}

func (s *PostgresStore) GetParticipant(ctx context.Context, id string) (*model.Participant, error) {
	return s.getParticipant(ctx, "id = $1::uuid", id)
}

func (s *PostgresStore) GetParticipantByPhone(ctx context.Context, phone string) (*model.Participant, error) {
	return s.getParticipant(ctx, "phone = $1", phone)
}

func (s *PostgresStore) GetParticipantByEmail(ctx context.Context, email string) (*model.Participant, error) {
	return s.getParticipant(ctx, "email = $1", email)
}

func (s *PostgresStore) getParticipant(ctx context.Context, where string, arg any) (*model.Participant, error) {
	var p model.Participant
	err := s.pool.QueryRow(ctx,
		`SELECT id::text, phone, email, created_at FROM participants WHERE `+where, arg,
	).Scan(&p.ID, &p.Phone, &p.Email, &p.CreatedAt)
	if err != nil {
		return nil, lookupErr(err)
	}
	return &p, nil
}

func (s *PostgresStore) CreateParticipant(ctx context.Context, p *model.Participant) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO participants (id, phone, email, created_at)
		VALUES ($1::uuid, $2, $3, $4)
	`, p.ID, p.Phone, p.Email, p.CreatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *PostgresStore) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	return s.getConversation(ctx, "id = $1::uuid", id)
}

func (s *PostgresStore) GetConversationByParticipants(ctx context.Context, a, b string) (*model.Conversation, error) {
	return s.getConversation(ctx, "participant_a = $1::uuid AND participant_b = $2::uuid", a, b)
}

func (s *PostgresStore) getConversation(ctx context.Context, where string, args ...any) (*model.Conversation, error) {
	var c model.Conversation
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, participant_a::text, participant_b::text, last_activity, created_at
		FROM conversations
		WHERE `+where, args...,
	).Scan(&c.ID, &c.ParticipantA, &c.ParticipantB, &c.LastActivity, &c.CreatedAt)
	if err != nil {
		return nil, lookupErr(err)
	}
	return &c, nil
}

func (s *PostgresStore) CreateConversation(ctx context.Context, c *model.Conversation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversations (id, participant_a, participant_b, last_activity, created_at)
		VALUES ($1::uuid, $2::uuid, $3::uuid, $4, $5)
	`, c.ID, c.ParticipantA, c.ParticipantB, c.LastActivity, c.CreatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *PostgresStore) TouchConversation(ctx context.Context, id string, at time.Time) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE conversations SET last_activity = GREATEST(last_activity, $2) WHERE id = $1::uuid
	`, id, at)
	if err != nil {
		return lookupErr(err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
