// Package store persists the metadata document of each ingested video in
// SQLite. The embedded graph is stored as an opaque blob and handed back
// byte for byte.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/royen99/clip-manager/internal/moderation"
	"github.com/royen99/clip-manager/internal/tagging"
	"github.com/royen99/clip-manager/internal/workflow"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned for unknown video ids.
	ErrNotFound = errors.New("video not found")
	// ErrNoWorkflow is returned when a video carries no embedded graph.
	ErrNoWorkflow = errors.New("video has no embedded workflow")
)

// Video is the persisted metadata document.
type Video struct {
	ID         string        `json:"id"`
	Filename   string        `json:"filename"`
	Path       string        `json:"path"`
	Duration   time.Duration `json:"duration_ns"`
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	FPS        float64       `json:"fps"`
	Bitrate    int64         `json:"bitrate"`
	VideoCodec string        `json:"video_codec"`
	Container  string        `json:"container"`

	// Workflow is the raw embedded graph, nil when the clip has none.
	Workflow    []byte               `json:"-"`
	HasWorkflow bool                 `json:"has_workflow"`
	Parameters  *workflow.Parameters `json:"parameters,omitempty"`
	Verdict     moderation.Verdict   `json:"moderation"`
	Tags        []tagging.Tag        `json:"tags"`
	Thumbnail   string               `json:"thumbnail,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// ListOptions filters and pages List.
type ListOptions struct {
	Limit  int
	Offset int
	// Tag keeps only videos carrying this tag.
	Tag string
	// MaxRating keeps only videos rated at or below it.
	MaxRating *moderation.Rating
}

// SqlStore implements the video store with SQLite.
type SqlStore struct {
	db *sql.DB
}

// Open opens or creates a SQLite DB at path and runs migrations.
// Creates the parent directory if it does not exist.
func Open(path string) (*SqlStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer at a time; batch ingest saves from several goroutines
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &SqlStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SqlStore) migrate() error {
	var tableCount int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableCount)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableCount == 0 {
		if _, err := s.db.Exec(schemaV1); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version(version) VALUES(?)", currentSchemaVersion); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
		return nil
	}

	var v int
	if err := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if v != currentSchemaVersion {
		return fmt.Errorf("unknown schema version %d", v)
	}
	return nil
}

// Close closes the database.
func (s *SqlStore) Close() error {
	return s.db.Close()
}

// Save inserts or replaces v. A video without an id gets a new one, or the
// id already stored for the same path, so re-ingesting a file updates it.
func (s *SqlStore) Save(ctx context.Context, v *Video) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	if v.ID == "" {
		var existing string
		var created string
		err := tx.QueryRowContext(ctx, "SELECT id, created_at FROM videos WHERE path = ?", v.Path).Scan(&existing, &created)
		switch {
		case err == nil:
			v.ID = existing
			if v.CreatedAt.IsZero() {
				v.CreatedAt = parseTime(created)
			}
		case errors.Is(err, sql.ErrNoRows):
			v.ID = uuid.NewString()
		default:
			return fmt.Errorf("lookup path: %w", err)
		}
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	v.UpdatedAt = now
	v.HasWorkflow = v.Workflow != nil

	var wf any
	if v.Workflow != nil {
		wf = v.Workflow
	}

	var params sql.NullString
	if v.Parameters != nil {
		b, err := json.Marshal(v.Parameters)
		if err != nil {
			return fmt.Errorf("encode parameters: %w", err)
		}
		params = sql.NullString{String: string(b), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO videos (id, filename, path, duration_ms, width, height, fps, bitrate,
			video_codec, container, workflow, params, rating, reason, is_legal, evaluated,
			frames, thumbnail, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			filename = excluded.filename, path = excluded.path,
			duration_ms = excluded.duration_ms, width = excluded.width,
			height = excluded.height, fps = excluded.fps, bitrate = excluded.bitrate,
			video_codec = excluded.video_codec, container = excluded.container,
			workflow = excluded.workflow, params = excluded.params,
			rating = excluded.rating, reason = excluded.reason,
			is_legal = excluded.is_legal, evaluated = excluded.evaluated,
			frames = excluded.frames, thumbnail = excluded.thumbnail,
			updated_at = excluded.updated_at`,
		v.ID, v.Filename, v.Path, v.Duration.Milliseconds(), v.Width, v.Height, v.FPS, v.Bitrate,
		v.VideoCodec, v.Container, wf, params, v.Verdict.Rating.String(), v.Verdict.Reason,
		v.Verdict.IsLegal, v.Verdict.Evaluated, v.Verdict.FramesInspected, v.Thumbnail,
		formatTime(v.CreatedAt), formatTime(v.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save video %s: %w", v.ID, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM video_tags WHERE video_id = ?", v.ID); err != nil {
		return fmt.Errorf("clear tags: %w", err)
	}
	for _, t := range v.Tags {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO video_tags (video_id, name, confidence, source) VALUES (?, ?, ?, ?)",
			v.ID, t.Name, t.Confidence, string(t.Source),
		); err != nil {
			return fmt.Errorf("save tag %q: %w", t.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save tx: %w", err)
	}
	return nil
}

const videoColumns = `id, filename, path, duration_ms, width, height, fps, bitrate, video_codec,
	container, workflow IS NOT NULL, params, rating, reason, is_legal, evaluated, frames,
	thumbnail, created_at, updated_at`

// Get loads one video without its raw workflow; use Workflow for that.
func (s *SqlStore) Get(ctx context.Context, id string) (*Video, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+videoColumns+" FROM videos WHERE id = ?", id)
	v, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get video %s: %w", id, err)
	}

	tags, err := s.tags(ctx, []string{v.ID})
	if err != nil {
		return nil, err
	}
	v.Tags = tags[v.ID]
	return v, nil
}

// List returns videos newest first.
func (s *SqlStore) List(ctx context.Context, opts ListOptions) ([]*Video, error) {
	var where []string
	var args []any
	if opts.Tag != "" {
		where = append(where, "id IN (SELECT video_id FROM video_tags WHERE name = ?)")
		args = append(args, strings.ToLower(opts.Tag))
	}
	if opts.MaxRating != nil {
		var allowed []string
		for _, r := range []moderation.Rating{moderation.Safe, moderation.PG13, moderation.R, moderation.XXX} {
			if r <= *opts.MaxRating {
				allowed = append(allowed, "?")
				args = append(args, r.String())
			}
		}
		where = append(where, "rating IN ("+strings.Join(allowed, ",")+")")
	}

	query := "SELECT " + videoColumns + " FROM videos"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, max(opts.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	var videos []*Video
	var ids []string
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, v)
		ids = append(ids, v.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// release the connection before the tag query
	rows.Close()

	tags, err := s.tags(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, v := range videos {
		v.Tags = tags[v.ID]
	}
	return videos, nil
}

// Workflow returns the stored graph exactly as it was embedded.
func (s *SqlStore) Workflow(ctx context.Context, id string) ([]byte, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, "SELECT workflow FROM videos WHERE id = ?", id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow %s: %w", id, err)
	}
	if raw == nil {
		return nil, ErrNoWorkflow
	}
	return raw, nil
}

// Delete removes a video and its tags.
func (s *SqlStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, "DELETE FROM videos WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete video %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM video_tags WHERE video_id = ?", id); err != nil {
		return fmt.Errorf("delete tags: %w", err)
	}
	return tx.Commit()
}

func (s *SqlStore) tags(ctx context.Context, ids []string) (map[string][]tagging.Tag, error) {
	out := make(map[string][]tagging.Tag, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT video_id, name, confidence, source FROM video_tags WHERE video_id IN ("+placeholders+") ORDER BY video_id, name",
		args...)
	if err != nil {
		return nil, fmt.Errorf("load tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, source string
		var t tagging.Tag
		if err := rows.Scan(&id, &t.Name, &t.Confidence, &source); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		t.Source = tagging.Source(source)
		out[id] = append(out[id], t)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVideo(row scanner) (*Video, error) {
	var (
		v                Video
		durationMS       int64
		params           sql.NullString
		rating           string
		created, updated string
	)
	err := row.Scan(&v.ID, &v.Filename, &v.Path, &durationMS, &v.Width, &v.Height, &v.FPS,
		&v.Bitrate, &v.VideoCodec, &v.Container, &v.HasWorkflow, &params, &rating,
		&v.Verdict.Reason, &v.Verdict.IsLegal, &v.Verdict.Evaluated, &v.Verdict.FramesInspected,
		&v.Thumbnail, &created, &updated)
	if err != nil {
		return nil, err
	}

	v.Duration = time.Duration(durationMS) * time.Millisecond
	v.CreatedAt = parseTime(created)
	v.UpdatedAt = parseTime(updated)
	if v.Verdict.Rating, err = moderation.ParseRating(rating); err != nil {
		return nil, err
	}
	if params.Valid {
		var p workflow.Parameters
		if err := json.Unmarshal([]byte(params.String), &p); err != nil {
			return nil, fmt.Errorf("decode parameters: %w", err)
		}
		v.Parameters = &p
	}
	return &v, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
