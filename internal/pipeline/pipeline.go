// Package pipeline runs one task end to end: resolve the link, ask the
// extraction service for a direct media URL, download the file, deliver it.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/grabbitapp/grabbit/internal/delivery"
	"github.com/grabbitapp/grabbit/internal/extractor"
	"github.com/grabbitapp/grabbit/internal/queue"
	"github.com/grabbitapp/grabbit/internal/resolver"
	"github.com/grabbitapp/grabbit/internal/store"
)

const failureNotice = "❌ Download failed. Try again."

// Runner wires the pipeline stages together. It is the queue's task
// handler: Run produces exactly one terminal user-visible outcome and never
// lets a stage error escape past the task boundary.
type Runner struct {
	logger    *slog.Logger
	resolver  *resolver.Resolver
	extractor *extractor.Client
	artifacts *store.Store
	delivery  *delivery.Dispatcher
}

func NewRunner(log *slog.Logger, res *resolver.Resolver, ext *extractor.Client, artifacts *store.Store, disp *delivery.Dispatcher) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		logger:    log.With(slog.String("component", "pipeline")),
		resolver:  res,
		extractor: ext,
		artifacts: artifacts,
		delivery:  disp,
	}
}

// Run executes the task. Any stage failure is converted into a terminal
// edit of the status message; the queue only ever sees a clean return.
func (r *Runner) Run(ctx context.Context, task queue.Task) {
	started := time.Now()
	log := r.logger.With(
		slog.String("task_id", task.ID),
		slog.Int64("chat_id", task.ChatID),
	)

	status, err := r.delivery.BeginStatus(ctx, task.ChatID)
	if err != nil {
		// Run the pipeline anyway; the delivered artifact is the outcome
		// that matters, the placeholder is progress decoration.
		log.Warn("create status message failed", slog.Any("error", err))
	}

	link, ok := r.resolver.ExtractLink(task.Text)
	if !ok {
		log.Warn("no recognized link in task text")
		status.Fail(ctx, failureNotice)
		return
	}
	pageURL := r.resolver.Resolve(ctx, link)

	media, err := r.extractor.DirectURL(ctx, pageURL)
	if err != nil {
		log.Error("extraction failed", slog.Any("error", err))
		status.Fail(ctx, failureNotice)
		return
	}

	artifact, err := r.artifacts.Download(ctx, media.URL, task.ChatID)
	if err != nil {
		log.Error("download failed", slog.Any("error", err))
		status.Fail(ctx, failureNotice)
		return
	}

	if err := r.delivery.Deliver(ctx, task.ChatID, artifact); err != nil {
		// The artifact stays on disk until its retention timer fires.
		log.Error("delivery failed", slog.Any("error", err))
		status.Fail(ctx, failureNotice)
		return
	}
	status.Close(ctx)
	log.Info("task completed",
		slog.String("file", artifact.Name),
		slog.Int64("size_bytes", artifact.Size),
		slog.Duration("elapsed", time.Since(started)),
	)
}
