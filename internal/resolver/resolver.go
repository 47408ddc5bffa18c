// Package resolver extracts share links from message text and expands
// shortened redirect links to their canonical targets.
package resolver

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
)

var linkPattern = regexp.MustCompile(`https?://[^\s<>"]+`)

// Resolver expands shortened links. Resolution is best-effort: any failure
// falls back to the input link unchanged.
type Resolver struct {
	logger *slog.Logger
	client *http.Client
	hosts  []string
}

// New creates a resolver recognizing links whose host contains one of the
// given host suffixes (for example "tiktok.com", which also covers
// vm.tiktok.com and vt.tiktok.com share links).
func New(log *slog.Logger, hosts []string) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		logger: log.With(slog.String("component", "resolver")),
		client: &http.Client{
			Timeout: 15 * time.Second,
			// One hop only: surface the redirect instead of following it.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		hosts: hosts,
	}
}

// ExtractLink returns the first recognized link embedded in text.
func (r *Resolver) ExtractLink(text string) (string, bool) {
	for _, candidate := range linkPattern.FindAllString(text, -1) {
		if r.recognized(candidate) {
			return candidate, true
		}
	}
	return "", false
}

func (r *Resolver) recognized(link string) bool {
	for _, host := range r.hosts {
		if strings.Contains(link, host) {
			return true
		}
	}
	return false
}

// Resolve performs a single non-following request against link and returns
// the redirect target from the Location header. On any failure — network
// error, non-redirect status, missing header — the original link is
// returned. Resolve never fails.
func (r *Resolver) Resolve(ctx context.Context, link string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return link
	}
	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Debug("expand failed, using original link", slog.String("link", link), slog.Any("error", err))
		return link
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 300 || resp.StatusCode >= 400 {
		return link
	}
	target := strings.TrimSpace(resp.Header.Get("Location"))
	if target == "" {
		return link
	}
	return target
}
