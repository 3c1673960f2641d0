package storage

// SchemaVersion is the current schema version, tracked in
// system_config under the schema_version key.
const SchemaVersion = 1

// CoreSchema contains the relational table and index definitions, kept
// as a single string const applied on open rather than split across
// per-migration files.
const CoreSchema = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS system_config (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS memories (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	session_id TEXT NOT NULL,
	content TEXT NOT NULL,
	metadata_json TEXT NOT NULL DEFAULT '{}',
	importance REAL NOT NULL DEFAULT 0.5 CHECK (importance >= 0.0 AND importance <= 1.0),
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	expires_at DATETIME,
	ttl_hours INTEGER,
	is_compressed BOOLEAN NOT NULL DEFAULT 0,
	compressed_from_json TEXT,
	access_count INTEGER NOT NULL DEFAULT 0,
	last_accessed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id);
CREATE INDEX IF NOT EXISTS idx_memories_session ON memories(session_id);
CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at);
CREATE INDEX IF NOT EXISTS idx_memories_expires ON memories(expires_at);
CREATE INDEX IF NOT EXISTS idx_memories_importance ON memories(importance);
CREATE INDEX IF NOT EXISTS idx_memories_user_created ON memories(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_memories_user_importance ON memories(user_id, importance DESC);
CREATE INDEX IF NOT EXISTS idx_memories_session_created ON memories(session_id, created_at DESC);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	name TEXT,
	created_at DATETIME NOT NULL,
	last_active DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
CREATE INDEX IF NOT EXISTS idx_sessions_last_active ON sessions(last_active);

CREATE TABLE IF NOT EXISTS session_summaries (
	session_id TEXT PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
	summary TEXT NOT NULL,
	key_topics_json TEXT NOT NULL DEFAULT '[]',
	memory_count INTEGER NOT NULL,
	importance_score REAL NOT NULL,
	date_range_start DATETIME NOT NULL,
	date_range_end DATETIME NOT NULL,
	high_importance_count INTEGER NOT NULL DEFAULT 0,
	medium_importance_count INTEGER NOT NULL DEFAULT 0,
	generated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS compressed_memories (
	id TEXT PRIMARY KEY,
	summary_memory_id TEXT NOT NULL,
	original_ids_json TEXT NOT NULL,
	user_id TEXT NOT NULL,
	session_id TEXT NOT NULL,
	original_count INTEGER NOT NULL,
	date_range_start DATETIME NOT NULL,
	date_range_end DATETIME NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_compressed_summary ON compressed_memories(summary_memory_id);

CREATE TABLE IF NOT EXISTS decay_runs (
	id TEXT PRIMARY KEY,
	started_at DATETIME NOT NULL,
	finished_at DATETIME,
	status TEXT NOT NULL CHECK (status IN ('running', 'completed', 'failed')),
	expired_count INTEGER NOT NULL DEFAULT 0,
	purged_count INTEGER NOT NULL DEFAULT 0,
	compressed_groups INTEGER NOT NULL DEFAULT 0,
	compressed_originals INTEGER NOT NULL DEFAULT 0,
	summarized_count INTEGER NOT NULL DEFAULT 0,
	quota_evicted_count INTEGER NOT NULL DEFAULT 0,
	count_before INTEGER NOT NULL DEFAULT 0,
	count_after INTEGER NOT NULL DEFAULT 0,
	bytes_reclaimed_estimate INTEGER NOT NULL DEFAULT 0,
	error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_decay_runs_started ON decay_runs(started_at);

CREATE TABLE IF NOT EXISTS memory_embeddings (
	memory_id TEXT NOT NULL,
	model TEXT NOT NULL,
	embedding BLOB NOT NULL,
	dimension INTEGER NOT NULL,
	created_at DATETIME NOT NULL,
	PRIMARY KEY (memory_id, model),
	FOREIGN KEY (memory_id) REFERENCES memories(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_embeddings_model ON memory_embeddings(model);
`

// FTS5Schema is the full-text index and its synchronization triggers.
// Kept as a standalone (not external-content) FTS5 table for reliable
// trigger-driven sync rather than a content=memories external-content
// table.
const FTS5Schema = `
CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
	id UNINDEXED,
	content,
	user_id UNINDEXED,
	session_id UNINDEXED
);

CREATE TRIGGER IF NOT EXISTS memories_fts_insert AFTER INSERT ON memories BEGIN
	INSERT INTO memories_fts(rowid, id, content, user_id, session_id)
	VALUES (new.rowid, new.id, new.content, new.user_id, new.session_id);
END;

CREATE TRIGGER IF NOT EXISTS memories_fts_delete AFTER DELETE ON memories BEGIN
	DELETE FROM memories_fts WHERE rowid = old.rowid;
END;

CREATE TRIGGER IF NOT EXISTS memories_fts_update AFTER UPDATE ON memories BEGIN
	UPDATE memories_fts SET content = new.content WHERE rowid = new.rowid;
END;
`
