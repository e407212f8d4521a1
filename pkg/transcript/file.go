package transcript

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/xhad/vidrag/internal/models"
)

// FileSource reads <Dir>/<videoID>.json in any shape Normalize accepts.
type FileSource struct {
	Dir string
}

func (s FileSource) Fetch(ctx context.Context, videoID string) ([]models.TranscriptSegment, error) {
	if videoID == "" || filepath.Base(videoID) != videoID || videoID == ".." {
		return nil, fmt.Errorf("%w: invalid video id %q", ErrNotFound, videoID)
	}

	data, err := os.ReadFile(filepath.Join(s.Dir, videoID+".json"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, videoID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript file: %w", err)
	}
	return Normalize(data)
}
