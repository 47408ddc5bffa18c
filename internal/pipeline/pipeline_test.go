package pipeline_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/grabbitapp/grabbit/internal/delivery"
	"github.com/grabbitapp/grabbit/internal/extractor"
	"github.com/grabbitapp/grabbit/internal/pipeline"
	"github.com/grabbitapp/grabbit/internal/queue"
	"github.com/grabbitapp/grabbit/internal/resolver"
	"github.com/grabbitapp/grabbit/internal/store"
)

type recordingTransport struct {
	mu         sync.Mutex
	texts      []string
	videoPaths []string
	edits      []string
	deleted    []int
	nextID     int
}

func (f *recordingTransport) SendText(ctx context.Context, chatID int64, text string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	f.nextID++
	return f.nextID, nil
}

func (f *recordingTransport) SendVideo(ctx context.Context, chatID int64, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.videoPaths = append(f.videoPaths, path)
	return nil
}

func (f *recordingTransport) EditText(ctx context.Context, chatID int64, messageID int, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, text)
	return nil
}

func (f *recordingTransport) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *recordingTransport) counts() (texts, videos, edits, deleted int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.texts), len(f.videoPaths), len(f.edits), len(f.deleted)
}

func (f *recordingTransport) lastEdit() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		return ""
	}
	return f.edits[len(f.edits)-1]
}

func newTestRunner(t *testing.T, transport delivery.Transport, extractEndpoint string) (*pipeline.Runner, *store.Store) {
	t.Helper()
	artifacts, err := store.New(nil, t.TempDir(), 3, time.Millisecond, time.Hour)
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	res := resolver.New(nil, []string{"tiktok.com"})
	ext := extractor.New(nil, extractEndpoint, 3, time.Millisecond, 0)
	disp := delivery.NewDispatcher(nil, transport, artifacts, delivery.Options{
		BaseURL:       "https://grabbit.example.com",
		InlineLimit:   50 * 1024 * 1024,
		Attempts:      3,
		Backoff:       time.Millisecond,
		FrameInterval: time.Hour, // keep animation frames out of the counts
		InlineCleanup: delivery.CleanupDeferred,
		LinkRetention: 15 * time.Minute,
	})
	return pipeline.NewRunner(nil, res, ext, artifacts, disp), artifacts
}

func TestRun_SuccessDeliversInlineAndRemovesStatus(t *testing.T) {
	t.Parallel()

	media := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("video bytes"))
	}))
	defer media.Close()
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":0,"data":{"play":"` + media.URL + `"}}`))
	}))
	defer api.Close()

	transport := &recordingTransport{}
	runner, _ := newTestRunner(t, transport, api.URL)

	runner.Run(context.Background(), queue.Task{
		ID:         "task-1",
		ChatID:     99,
		Text:       "look https://www.tiktok.com/@u/video/1",
		ReceivedAt: time.Now(),
	})

	texts, videos, _, deleted := transport.counts()
	if videos != 1 {
		t.Fatalf("inline sends = %d, want 1", videos)
	}
	if texts != 1 { // the status placeholder only
		t.Fatalf("text sends = %d, want 1 (placeholder)", texts)
	}
	if deleted != 1 {
		t.Fatalf("deleted messages = %d, want the placeholder removed", deleted)
	}
}

func TestRun_ExtractionFailureEditsStatusAndCreatesNoFile(t *testing.T) {
	t.Parallel()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":-1,"msg":"no media","data":{}}`))
	}))
	defer api.Close()

	transport := &recordingTransport{}
	runner, artifacts := newTestRunner(t, transport, api.URL)

	runner.Run(context.Background(), queue.Task{
		ID:     "task-2",
		ChatID: 99,
		Text:   "https://www.tiktok.com/@u/video/2",
	})

	if got := transport.lastEdit(); got != "❌ Download failed. Try again." {
		t.Fatalf("last edit = %q, want terminal failure notice", got)
	}
	_, _, _, deleted := transport.counts()
	if deleted != 0 {
		t.Fatal("status message was deleted on the failure path, want edited in place")
	}
	entries, err := os.ReadDir(artifacts.Dir())
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("artifact files created on extraction failure: %v", entries)
	}
}

func TestRun_DownloadFailureEditsStatus(t *testing.T) {
	t.Parallel()

	media := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer media.Close()
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":0,"data":{"play":"` + media.URL + `"}}`))
	}))
	defer api.Close()

	transport := &recordingTransport{}
	runner, _ := newTestRunner(t, transport, api.URL)

	runner.Run(context.Background(), queue.Task{ID: "task-3", ChatID: 5, Text: "https://vm.tiktok.com/abc"})

	if got := transport.lastEdit(); got != "❌ Download failed. Try again." {
		t.Fatalf("last edit = %q, want terminal failure notice", got)
	}
	_, videos, _, _ := transport.counts()
	if videos != 0 {
		t.Fatal("video sent despite download failure")
	}
}
