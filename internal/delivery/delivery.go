// Package delivery sends completed artifacts back to the requesting chat —
// inline for small files, via a temporary download link for large ones —
// and manages the animated status message a task shows while it runs.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/grabbitapp/grabbit/internal/store"
)

// ErrDeliveryFailed means the transport rejected the send after exhausting
// retries. Terminal for the task.
var ErrDeliveryFailed = errors.New("delivery: send failed")

// CleanupPolicy controls when an inline-delivered artifact leaves the disk.
type CleanupPolicy string

const (
	// CleanupImmediate removes the file right after the inline send; it is
	// no longer needed once the transport has it.
	CleanupImmediate CleanupPolicy = "immediate"
	// CleanupDeferred leaves the file to the downloader's retention timer.
	CleanupDeferred CleanupPolicy = "deferred"
)

// Options tunes the dispatcher. Attempt counts, backoffs, and the cleanup
// policy vary by deployment, so none of them are hardcoded.
type Options struct {
	BaseURL       string
	InlineLimit   int64
	Attempts      int
	Backoff       time.Duration
	FrameInterval time.Duration
	InlineCleanup CleanupPolicy
	LinkRetention time.Duration
}

// Dispatcher decides inline-vs-link delivery and performs the send.
type Dispatcher struct {
	logger    *slog.Logger
	transport Transport
	artifacts *store.Store
	opts      Options
}

func NewDispatcher(log *slog.Logger, transport Transport, artifacts *store.Store, opts Options) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = 500 * time.Millisecond
	}
	return &Dispatcher{
		logger:    log.With(slog.String("component", "delivery")),
		transport: transport,
		artifacts: artifacts,
		opts:      opts,
	}
}

// BeginStatus creates the animated placeholder for a starting task.
func (d *Dispatcher) BeginStatus(ctx context.Context, chatID int64) (*Status, error) {
	return newStatus(ctx, d.logger, d.transport, chatID, d.opts.FrameInterval)
}

// Deliver sends the artifact to the chat. Files under the inline limit go
// out as native video messages; everything at or above it becomes a
// time-limited download link backed by the file server.
func (d *Dispatcher) Deliver(ctx context.Context, chatID int64, artifact store.Artifact) error {
	if artifact.Size < d.opts.InlineLimit {
		return d.deliverInline(ctx, chatID, artifact)
	}
	return d.deliverLink(ctx, chatID, artifact)
}

func (d *Dispatcher) deliverInline(ctx context.Context, chatID int64, artifact store.Artifact) error {
	var lastErr error
	for attempt := 1; attempt <= d.opts.Attempts; attempt++ {
		err := d.transport.SendVideo(ctx, chatID, artifact.Path)
		if err == nil {
			d.logger.Info("delivered inline",
				slog.Int64("chat_id", chatID),
				slog.String("file", artifact.Name),
				slog.Int64("size_bytes", artifact.Size),
			)
			if d.opts.InlineCleanup == CleanupImmediate {
				d.artifacts.Remove(artifact)
			}
			return nil
		}
		lastErr = err
		d.logger.Debug("inline send failed",
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
		if attempt < d.opts.Attempts {
			select {
			case <-time.After(d.opts.Backoff):
			case <-ctx.Done():
				return fmt.Errorf("%w: %w", ErrDeliveryFailed, ctx.Err())
			}
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrDeliveryFailed, d.opts.Attempts, lastErr)
}

func (d *Dispatcher) deliverLink(ctx context.Context, chatID int64, artifact store.Artifact) error {
	// Extend retention before emitting the link so the file outlives the
	// downloader's default window long enough to be fetched.
	d.artifacts.ScheduleRemoval(artifact, d.opts.LinkRetention)
	link := strings.TrimRight(d.opts.BaseURL, "/") + "/video/" + artifact.Name
	text := fmt.Sprintf(
		"📥 Video ready!\n🔗 Download (auto delete in %d min):\n%s",
		int(d.opts.LinkRetention.Minutes()), link,
	)
	if _, err := d.transport.SendText(ctx, chatID, text); err != nil {
		return fmt.Errorf("%w: link message: %w", ErrDeliveryFailed, err)
	}
	d.logger.Info("delivered link",
		slog.Int64("chat_id", chatID),
		slog.String("file", artifact.Name),
		slog.Int64("size_bytes", artifact.Size),
	)
	return nil
}
