package transcript

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xhad/vidrag/internal/models"
	"github.com/xhad/vidrag/internal/types"
	_ "modernc.org/sqlite"
)

// CachedSource keeps fetched transcripts in a SQLite table so a video is
// downloaded once across restarts.
type CachedSource struct {
	inner  types.TranscriptSource
	db     *sql.DB
	logger *slog.Logger
}

// OpenCache opens (creating if needed) the cache database at path. Use
// ":memory:" for a process-local cache.
func OpenCache(path string, inner types.TranscriptSource, logger *slog.Logger) (*CachedSource, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// a second connection to ":memory:" would be a different database
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS transcripts (
			video_id TEXT PRIMARY KEY,
			segments TEXT NOT NULL,
			fetched_at REAL NOT NULL
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create transcripts table: %w", err)
	}

	return &CachedSource{inner: inner, db: db, logger: logger}, nil
}

func (c *CachedSource) Fetch(ctx context.Context, videoID string) ([]models.TranscriptSegment, error) {
	segs, err := c.lookup(ctx, videoID)
	switch {
	case err == nil:
		return segs, nil
	case !errors.Is(err, sql.ErrNoRows):
		c.logger.WarnContext(ctx, "transcript cache read failed", "video_id", videoID, "error", err)
	}

	segs, err = c.inner.Fetch(ctx, videoID)
	if err != nil {
		return nil, err
	}

	if err := c.store(ctx, videoID, segs); err != nil {
		c.logger.WarnContext(ctx, "transcript cache write failed", "video_id", videoID, "error", err)
	}
	return segs, nil
}

func (c *CachedSource) lookup(ctx context.Context, videoID string) ([]models.TranscriptSegment, error) {
	var raw string
	err := c.db.QueryRowContext(ctx,
		`SELECT segments FROM transcripts WHERE video_id = ?`, videoID).Scan(&raw)
	if err != nil {
		return nil, err
	}

	var segs []models.TranscriptSegment
	if err := json.Unmarshal([]byte(raw), &segs); err != nil {
		return nil, fmt.Errorf("decode cached segments: %w", err)
	}
	return segs, nil
}

func (c *CachedSource) store(ctx context.Context, videoID string, segs []models.TranscriptSegment) error {
	raw, err := json.Marshal(segs)
	if err != nil {
		return fmt.Errorf("encode segments: %w", err)
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO transcripts (video_id, segments, fetched_at) VALUES (?, ?, ?)`,
		videoID, string(raw), float64(time.Now().UnixNano())/1e9)
	if err != nil {
		return fmt.Errorf("insert transcript: %w", err)
	}
	return nil
}

// Forget drops the cached transcript for videoID.
func (c *CachedSource) Forget(ctx context.Context, videoID string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM transcripts WHERE video_id = ?`, videoID); err != nil {
		return fmt.Errorf("delete transcript: %w", err)
	}
	return nil
}

func (c *CachedSource) Close() error {
	return c.db.Close()
}
