// Package store downloads media to local temporary files and owns their
// on-disk lifetime, including deferred deletion.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrDownloadFailed means the transfer never completed within the retry
// budget. Terminal for the task.
var ErrDownloadFailed = errors.New("store: download failed")

// Artifact is a downloaded media file on local disk.
type Artifact struct {
	Name      string
	Path      string
	Size      int64
	CreatedAt time.Time
}

// Store streams direct media URLs to uniquely named files under its
// directory. Every successful download is handed to a deferred deletion
// timer; ScheduleRemoval re-arms that timer, which is how delivery extends
// retention for link-based sends.
type Store struct {
	logger     *slog.Logger
	http       *http.Client
	dir        string
	attempts   int
	retryDelay time.Duration
	retention  time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// New creates a store rooted at dir, creating the directory if absent.
func New(log *slog.Logger, dir string, attempts int, retryDelay, retention time.Duration) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if attempts <= 0 {
		attempts = 1
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	return &Store{
		logger: log.With(slog.String("component", "store")),
		// Generous but finite: a stuck transfer must not hold a pool
		// slot forever.
		http:       &http.Client{Timeout: 10 * time.Minute},
		dir:        dir,
		attempts:   attempts,
		retryDelay: retryDelay,
		retention:  retention,
		timers:     make(map[string]*time.Timer),
	}, nil
}

// Dir returns the temporary directory artifacts are written to.
func (s *Store) Dir() string { return s.dir }

// Download streams directURL to a file named from the chat id and a
// nanosecond timestamp, so concurrent tasks never contend on a path.
// Failed attempts rewrite the same target path; after the final failure the
// partial file is removed. On success the artifact is scheduled for
// deletion after the default retention window.
func (s *Store) Download(ctx context.Context, directURL string, chatID int64) (Artifact, error) {
	name := fmt.Sprintf("tt_%d_%d.mp4", chatID, time.Now().UnixNano())
	path := filepath.Join(s.dir, name)

	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		size, err := s.fetch(ctx, directURL, path)
		if err == nil {
			artifact := Artifact{Name: name, Path: path, Size: size, CreatedAt: time.Now()}
			s.ScheduleRemoval(artifact, s.retention)
			s.logger.Info("downloaded",
				slog.String("file", name),
				slog.Int64("size_bytes", size),
				slog.Int("attempt", attempt),
			)
			return artifact, nil
		}
		lastErr = err
		s.logger.Debug("download attempt failed",
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
		if attempt < s.attempts {
			select {
			case <-time.After(s.retryDelay):
			case <-ctx.Done():
				s.discard(path)
				return Artifact{}, fmt.Errorf("%w: %w", ErrDownloadFailed, ctx.Err())
			}
		}
	}
	s.discard(path)
	return Artifact{}, fmt.Errorf("%w after %d attempts: %w", ErrDownloadFailed, s.attempts, lastErr)
}

func (s *Store) fetch(ctx context.Context, directURL, path string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, directURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch media: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetch media status: %d", resp.StatusCode)
	}
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create file: %w", err)
	}
	written, err := io.Copy(file, resp.Body)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return 0, fmt.Errorf("write file: %w", err)
	}
	return written, nil
}

// ScheduleRemoval arms deferred deletion of the artifact after delay,
// replacing any earlier timer for the same path. Ownership of the file
// transfers to the timer; deletion is idempotent.
func (s *Store) ScheduleRemoval(artifact Artifact, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[artifact.Path]; ok {
		timer.Stop()
	}
	s.timers[artifact.Path] = time.AfterFunc(delay, func() {
		s.remove(artifact.Path)
	})
}

// Remove deletes the artifact now and cancels any pending timer.
func (s *Store) Remove(artifact Artifact) {
	s.mu.Lock()
	if timer, ok := s.timers[artifact.Path]; ok {
		timer.Stop()
		delete(s.timers, artifact.Path)
	}
	s.mu.Unlock()
	s.remove(artifact.Path)
}

func (s *Store) remove(path string) {
	s.mu.Lock()
	delete(s.timers, path)
	s.mu.Unlock()
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		// Unexpected filesystem trouble; logged only, never user-visible.
		s.logger.Warn("cleanup failed", slog.String("path", path), slog.Any("error", err))
	}
}

// discard drops a partial file left by a failed transfer.
func (s *Store) discard(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("discard partial file failed", slog.String("path", path), slog.Any("error", err))
	}
}
