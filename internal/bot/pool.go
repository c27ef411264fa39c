package bot

import (
	"context"
	"sync"

	"github.com/flemzord/omnihear/pkg/message"
)

// envelope is one queued update.
type envelope struct {
	msg   message.InboundMessage
	jobID string
}

// workerPool runs a fixed number of goroutines draining the inbox.
type workerPool struct {
	size int
	wg   sync.WaitGroup
}

func newWorkerPool(size int) *workerPool {
	if size <= 0 {
		size = defaultWorkers
	}
	return &workerPool{size: size}
}

func (p *workerPool) start(ctx context.Context, inbox <-chan envelope, handler func(context.Context, envelope)) {
	for range p.size {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for env := range inbox {
				handler(ctx, env)
			}
		}()
	}
}

func (p *workerPool) wait() {
	p.wg.Wait()
}
