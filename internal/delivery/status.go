package delivery

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// loadingFrames is the progress animation cycled through while a task runs.
var loadingFrames = []string{
	"🌑 [░░░░░░░░░░] Downloading",
	"🌒 [█░░░░░░░░░] Downloading",
	"🌓 [██░░░░░░░░] Downloading",
	"🌔 [███░░░░░░░] Downloading",
	"🌕 [████░░░░░░] Downloading",
	"🌖 [█████░░░░░] Downloading",
	"🌗 [██████░░░░] Downloading",
	"🌘 [███████░░░] Downloading",
	"🌑 [████████░░] Downloading",
	"🌒 [█████████░] Downloading",
	"🌓 [██████████] Downloading",
}

// Status is the transient placeholder message shown while a task's pipeline
// runs. It animates on a fixed tick until stopped, then is either deleted
// (success) or edited in place with a terminal notice (failure). All UI
// cleanup is best effort; errors are swallowed.
type Status struct {
	logger    *slog.Logger
	transport Transport
	chatID    int64
	messageID int
	interval  time.Duration

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

func newStatus(ctx context.Context, log *slog.Logger, transport Transport, chatID int64, interval time.Duration) (*Status, error) {
	messageID, err := transport.SendText(ctx, chatID, loadingFrames[0])
	if err != nil {
		return nil, err
	}
	animCtx, cancel := context.WithCancel(ctx)
	s := &Status{
		logger:    log,
		transport: transport,
		chatID:    chatID,
		messageID: messageID,
		interval:  interval,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go s.animate(animCtx)
	return s, nil
}

func (s *Status) animate(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	frame := 1
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			text := loadingFrames[frame%len(loadingFrames)]
			frame++
			if err := s.transport.EditText(ctx, s.chatID, s.messageID, text); err != nil {
				s.logger.Debug("animation edit failed", slog.Any("error", err))
			}
		}
	}
}

// stop cancels the animation and waits for the ticker goroutine to exit, so
// no frame edit can land after the terminal update.
func (s *Status) stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		<-s.done
	})
}

// Close stops the animation and deletes the placeholder; the delivered
// artifact or link message supersedes it.
func (s *Status) Close(ctx context.Context) {
	if s == nil {
		return
	}
	s.stop()
	if err := s.transport.DeleteMessage(ctx, s.chatID, s.messageID); err != nil {
		s.logger.Debug("delete status message failed", slog.Any("error", err))
	}
}

// Fail stops the animation and edits the placeholder into a terminal
// failure notice.
func (s *Status) Fail(ctx context.Context, text string) {
	if s == nil {
		return
	}
	s.stop()
	if err := s.transport.EditText(ctx, s.chatID, s.messageID, text); err != nil {
		s.logger.Debug("edit status message failed", slog.Any("error", err))
	}
}
