// Package keepalive pings the process's own public URL on a schedule so
// free-tier hosting does not idle the bot out.
package keepalive

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
)

type Pinger struct {
	logger *slog.Logger
	client *http.Client
	url    string
	spec   string
	cron   *cron.Cron
}

// New creates a pinger hitting url on the given cron spec (e.g. "@every 4m").
func New(log *slog.Logger, url, spec string) *Pinger {
	if log == nil {
		log = slog.Default()
	}
	return &Pinger{
		logger: log.With(slog.String("component", "keepalive")),
		client: &http.Client{Timeout: 30 * time.Second},
		url:    url,
		spec:   spec,
	}
}

func (p *Pinger) Start() error {
	p.cron = cron.New()
	if _, err := p.cron.AddFunc(p.spec, p.ping); err != nil {
		return fmt.Errorf("schedule keepalive: %w", err)
	}
	p.cron.Start()
	return nil
}

func (p *Pinger) Stop() {
	if p.cron != nil {
		<-p.cron.Stop().Done()
	}
}

// ping failures are logged and otherwise ignored.
func (p *Pinger) ping() {
	resp, err := p.client.Get(p.url)
	if err != nil {
		p.logger.Debug("self ping failed", slog.Any("error", err))
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
