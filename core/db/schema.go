package db

// Timestamps are unix milliseconds and JSON columns are TEXT so the same
// queries run on both dialects.
func schema(d Dialect) []string {
	idType := "INTEGER"
	if d == DialectPostgres {
		idType = "BIGINT"
	}

	return []string{
		`CREATE TABLE IF NOT EXISTS conversation_sessions (
			session_id     TEXT PRIMARY KEY,
			device_id      TEXT NOT NULL,
			source         TEXT NOT NULL,
			transcript     TEXT NOT NULL DEFAULT '',
			speakers       TEXT NOT NULL DEFAULT '{}',
			metadata       TEXT NOT NULL DEFAULT '{}',
			status         TEXT NOT NULL,
			memory_id      TEXT,
			start_time     BIGINT NOT NULL,
			end_time       BIGINT,
			updated_at     BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_sessions_device ON conversation_sessions (device_id)`,
		`CREATE TABLE IF NOT EXISTS voice_profiles (
			id                  ` + idType + ` PRIMARY KEY,
			device_id           TEXT NOT NULL,
			name                TEXT NOT NULL,
			embedding           TEXT NOT NULL DEFAULT '{}',
			external_speaker_id INTEGER,
			created_at          BIGINT NOT NULL,
			updated_at          BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_voice_profiles_device_speaker ON voice_profiles (device_id, external_speaker_id)`,
		`CREATE TABLE IF NOT EXISTS extracted_tasks (
			id          ` + idType + ` PRIMARY KEY,
			title       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			priority    TEXT NOT NULL,
			due_date    BIGINT,
			assignee    TEXT,
			source      TEXT NOT NULL,
			category    TEXT NOT NULL DEFAULT '',
			memory_id   TEXT NOT NULL DEFAULT '',
			session_id  TEXT NOT NULL DEFAULT '',
			device_id   TEXT NOT NULL DEFAULT '',
			created_at  BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_extracted_tasks_memory ON extracted_tasks (memory_id)`,
		`CREATE TABLE IF NOT EXISTS contacts (
			id        ` + idType + ` PRIMARY KEY,
			device_id TEXT NOT NULL,
			name      TEXT NOT NULL,
			UNIQUE (device_id, name)
		)`,
	}
}
