package store

// currentSchemaVersion is the target schema version for this build.
const currentSchemaVersion = 1

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS videos (
	id          TEXT PRIMARY KEY,
	filename    TEXT NOT NULL,
	path        TEXT NOT NULL UNIQUE,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	width       INTEGER NOT NULL DEFAULT 0,
	height      INTEGER NOT NULL DEFAULT 0,
	fps         REAL NOT NULL DEFAULT 0,
	bitrate     INTEGER NOT NULL DEFAULT 0,
	video_codec TEXT NOT NULL DEFAULT '',
	container   TEXT NOT NULL DEFAULT '',
	workflow    BLOB,
	params      TEXT,
	rating      TEXT NOT NULL DEFAULT 'SAFE',
	reason      TEXT NOT NULL DEFAULT '',
	is_legal    INTEGER NOT NULL DEFAULT 1,
	evaluated   INTEGER NOT NULL DEFAULT 0,
	frames      INTEGER NOT NULL DEFAULT 0,
	thumbnail   TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_videos_created ON videos(created_at);

CREATE TABLE IF NOT EXISTS video_tags (
	video_id   TEXT NOT NULL,
	name       TEXT NOT NULL,
	confidence REAL NOT NULL,
	source     TEXT NOT NULL,
	PRIMARY KEY (video_id, name)
);

CREATE INDEX IF NOT EXISTS idx_video_tags_name ON video_tags(name);
`
