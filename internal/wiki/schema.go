package wiki

const schemaVersion = 1

const schemaSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS pages (
	id TEXT PRIMARY KEY,
	path TEXT,
	deleted INTEGER NOT NULL DEFAULT 0,
	draft INTEGER NOT NULL DEFAULT 1,
	oldest INTEGER NOT NULL DEFAULT 0,
	latest INTEGER NOT NULL DEFAULT 0,
	last_deleted_path TEXT
);

CREATE TABLE IF NOT EXISTS page_paths (
	path TEXT PRIMARY KEY,
	page_id TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS deleted_paths (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	path TEXT NOT NULL,
	page_id TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS deleted_paths_by_path ON deleted_paths(path);

CREATE TABLE IF NOT EXISTS page_renames (
	page_id TEXT NOT NULL,
	revision INTEGER NOT NULL,
	PRIMARY KEY(page_id, revision)
);

CREATE TABLE IF NOT EXISTS page_sources (
	page_id TEXT NOT NULL,
	revision INTEGER NOT NULL,
	body TEXT NOT NULL,
	PRIMARY KEY(page_id, revision)
);

CREATE TABLE IF NOT EXISTS locks (
	page_id TEXT PRIMARY KEY,
	token TEXT NOT NULL,
	user_name TEXT NOT NULL,
	expire INTEGER NOT NULL,
	creation INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS assets (
	id TEXT PRIMARY KEY,
	page_id TEXT,
	file_name TEXT NOT NULL,
	mime TEXT NOT NULL,
	size INTEGER NOT NULL,
	uploaded_at INTEGER NOT NULL,
	user_name TEXT NOT NULL,
	deleted INTEGER NOT NULL DEFAULT 0,
	deleted_with_page INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS assets_by_page ON assets(page_id);

CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT UNIQUE NOT NULL,
	password_hash TEXT NOT NULL,
	display_name TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE VIRTUAL TABLE IF NOT EXISTS pages_fts USING fts5(
	page_id UNINDEXED,
	path UNINDEXED,
	body
);
`
