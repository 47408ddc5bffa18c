package store_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/grabbitapp/grabbit/internal/store"
)

func newTestStore(t *testing.T, attempts int) *store.Store {
	t.Helper()
	s, err := store.New(nil, t.TempDir(), attempts, time.Millisecond, time.Hour)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestDownload_WritesUniquelyNamedFile(t *testing.T) {
	t.Parallel()

	payload := strings.Repeat("v", 2048)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	s := newTestStore(t, 3)
	artifact, err := s.Download(context.Background(), srv.URL, 12345)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if !strings.HasPrefix(artifact.Name, "tt_12345_") || !strings.HasSuffix(artifact.Name, ".mp4") {
		t.Fatalf("artifact name = %q, want tt_12345_<ts>.mp4", artifact.Name)
	}
	if artifact.Size != int64(len(payload)) {
		t.Fatalf("artifact size = %d, want %d", artifact.Size, len(payload))
	}
	data, err := os.ReadFile(artifact.Path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != payload {
		t.Fatal("file content does not match served payload")
	}
}

func TestDownload_RetriesThenRecovers(t *testing.T) {
	t.Parallel()

	payload := "final attempt payload"
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	s := newTestStore(t, 5)
	artifact, err := s.Download(context.Background(), srv.URL, 7)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("transfer attempts = %d, want 3", got)
	}
	// All attempts reuse one target path: exactly one file on disk.
	if files := listFiles(t, s.Dir()); len(files) != 1 || files[0] != artifact.Name {
		t.Fatalf("files on disk = %v, want exactly [%s]", files, artifact.Name)
	}
}

func TestDownload_ExhaustsRetriesAndLeavesNoPartialFile(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := newTestStore(t, 3)
	_, err := s.Download(context.Background(), srv.URL, 7)
	if !errors.Is(err, store.ErrDownloadFailed) {
		t.Fatalf("Download() error = %v, want ErrDownloadFailed", err)
	}
	if files := listFiles(t, s.Dir()); len(files) != 0 {
		t.Fatalf("files on disk after terminal failure = %v, want none", files)
	}
}

func TestScheduleRemoval_DeletesAfterDelay(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 1)
	path := filepath.Join(s.Dir(), "tt_1_1.mp4")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	s.ScheduleRemoval(store.Artifact{Name: "tt_1_1.mp4", Path: path}, 20*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("artifact still on disk after removal delay")
}

func TestScheduleRemoval_IdempotentWhenFileAlreadyGone(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 1)
	path := filepath.Join(s.Dir(), "tt_2_2.mp4")
	// Never created: the timer fires against an absent file and must not
	// complain.
	s.ScheduleRemoval(store.Artifact{Name: "tt_2_2.mp4", Path: path}, time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	s.Remove(store.Artifact{Name: "tt_2_2.mp4", Path: path})
}

func TestScheduleRemoval_RearmExtendsRetention(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 1)
	path := filepath.Join(s.Dir(), "tt_3_3.mp4")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	artifact := store.Artifact{Name: "tt_3_3.mp4", Path: path}
	s.ScheduleRemoval(artifact, 30*time.Millisecond)
	s.ScheduleRemoval(artifact, 500*time.Millisecond)

	time.Sleep(150 * time.Millisecond)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("artifact removed by the replaced timer: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("artifact still on disk after extended retention")
}
