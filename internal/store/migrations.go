package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS task_cache (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	text         TEXT NOT NULL DEFAULT '',
	is_completed INTEGER NOT NULL DEFAULT 0,
	sort_order   INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS pending_operations (
	id             TEXT PRIMARY KEY,
	task_id        TEXT NOT NULL UNIQUE,
	operation_type TEXT NOT NULL,
	timestamp      DATETIME NOT NULL,
	payload        TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_task_cache_user ON task_cache(user_id);
CREATE INDEX IF NOT EXISTS idx_pending_timestamp ON pending_operations(timestamp);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
