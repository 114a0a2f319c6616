package repo

const postgresSchema = `
CREATE TABLE IF NOT EXISTS participants (
	id         UUID PRIMARY KEY,
	phone      TEXT UNIQUE,
	email      TEXT UNIQUE,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS conversations (
	id            UUID PRIMARY KEY,
	participant_a UUID NOT NULL REFERENCES participants(id) ON DELETE CASCADE,
	participant_b UUID NOT NULL REFERENCES participants(id) ON DELETE CASCADE,
	last_activity TIMESTAMPTZ NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	UNIQUE (participant_a, participant_b)
);

CREATE TABLE IF NOT EXISTS messages (
	id                  UUID PRIMARY KEY,
	conversation_id     UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	sender_id           UUID NOT NULL REFERENCES participants(id),
	recipient_id        UUID NOT NULL REFERENCES participants(id),
	message_type        TEXT NOT NULL,
	direction           TEXT NOT NULL,
	body                TEXT NOT NULL,
	attachments         JSONB,
	status              TEXT NOT NULL,
	last_error          TEXT,
	provider_message_id TEXT UNIQUE,
	occurred_at         TIMESTAMPTZ NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_status_updated ON messages(status, updated_at);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS participants (
	id         TEXT PRIMARY KEY,
	phone      TEXT UNIQUE,
	email      TEXT UNIQUE,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS conversations (
	id            TEXT PRIMARY KEY,
	participant_a TEXT NOT NULL REFERENCES participants(id) ON DELETE CASCADE,
	participant_b TEXT NOT NULL REFERENCES participants(id) ON DELETE CASCADE,
	last_activity TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	UNIQUE (participant_a, participant_b)
);

CREATE TABLE IF NOT EXISTS messages (
	id                  TEXT PRIMARY KEY,
	conversation_id     TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	sender_id           TEXT NOT NULL REFERENCES participants(id),
	recipient_id        TEXT NOT NULL REFERENCES participants(id),
	message_type        TEXT NOT NULL,
	direction           TEXT NOT NULL,
	body                TEXT NOT NULL,
	attachments         TEXT,
	status              TEXT NOT NULL,
	last_error          TEXT,
	provider_message_id TEXT UNIQUE,
	occurred_at         TEXT NOT NULL,
	created_at          TEXT NOT NULL,
	updated_at          TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_status_updated ON messages(status, updated_at);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
`
