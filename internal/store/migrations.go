package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create sessions and turns",
		SQL: `
			CREATE TABLE sessions (
				id          TEXT PRIMARY KEY,
				mode        TEXT NOT NULL,
				customer_id TEXT NOT NULL DEFAULT '',
				currency    TEXT NOT NULL DEFAULT 'USD',
				locale      TEXT NOT NULL DEFAULT 'en-US',
				created_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_sessions_customer ON sessions (customer_id);

			CREATE TABLE turns (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id  TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
				input       TEXT NOT NULL,
				action_id   TEXT NOT NULL DEFAULT '',
				commands    TEXT NOT NULL,
				blocked     INTEGER NOT NULL DEFAULT 0,
				created_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_turns_session ON turns (session_id, id);
		`,
	},
}
