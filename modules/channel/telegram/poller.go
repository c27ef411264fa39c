package telegram

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const (
	maxConsecutivePollingErrors = 5
	errorPauseDuration          = 30 * time.Second
)

// Poller receives updates through getUpdates long-polling.
type Poller struct {
	client  *Client
	handler *updateHandler
	logger  *slog.Logger
	config  Config

	// pause is errorPauseDuration outside tests.
	pause time.Duration

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewPoller creates a Poller that hands every update to handler.
func NewPoller(client *Client, handler *updateHandler, logger *slog.Logger, config Config) *Poller {
	return &Poller{
		client:  client,
		handler: handler,
		logger:  logger,
		config:  config,
		pause:   errorPauseDuration,
		done:    make(chan struct{}),
	}
}

// Start launches the polling loop in a goroutine.
func (p *Poller) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.loop(ctx)
}

// Stop cancels the in-flight poll and waits for the loop to exit. It is
// safe to call more than once.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
			<-p.done
		}
	})
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.done)

	var offset, consecutiveErrors int
	for ctx.Err() == nil {
		updates, err := p.client.GetUpdates(ctx, GetUpdatesRequest{
			Offset:         offset,
			Timeout:        p.config.PollingTimeout,
			AllowedUpdates: p.config.AllowedUpdates,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			consecutiveErrors++
			p.logger.Error("polling getUpdates failed", "error", err, "consecutive_errors", consecutiveErrors)

			if consecutiveErrors >= maxConsecutivePollingErrors {
				p.logger.Warn("polling paused after consecutive errors", "pause", p.pause)
				select {
				case <-ctx.Done():
					return
				case <-time.After(p.pause):
				}
				consecutiveErrors = 0
			}
			continue
		}

		consecutiveErrors = 0
		for i := range updates {
			offset = updates[i].UpdateID + 1
			p.handler.handle(&updates[i])
		}
	}
}
