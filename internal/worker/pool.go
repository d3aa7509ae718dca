package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"textify/internal/service"
)

// Handler processes one delivered payload. Nil result means ack, error
// means nack.
type Handler interface {
	Process(ctx context.Context, payload []byte) error
}

type Pool struct {
	transport      service.Transport
	handler        Handler
	workers        int
	receiveTimeout time.Duration
}

func NewPool(transport service.Transport, handler Handler, workers int) *Pool {
	if workers <= 0 {
		workers = 4
	}
	return &Pool{
		transport:      transport,
		handler:        handler,
		workers:        workers,
		receiveTimeout: 5 * time.Second,
	}
}

// Run claims deliveries and fans them out to N workers. Ack only after
// the handler succeeded (the terminal status write is durable by then);
// nack on failure so the transport may redeliver.
func (p *Pool) Run(ctx context.Context) {
	log.Printf("[worker] pool started: workers=%d", p.workers)

	deliveries := make(chan *service.Delivery)

	for i := 0; i < p.workers; i++ {
		go func(n int) {
			for d := range deliveries {
				if err := p.handler.Process(ctx, d.Payload); err != nil {
					log.Printf("[worker-%d] process error=%v", n, err)
					if nackErr := p.transport.Nack(ctx, d); nackErr != nil {
						log.Printf("[worker-%d] nack error=%v", n, nackErr)
					}
					continue
				}
				if ackErr := p.transport.Ack(ctx, d); ackErr != nil {
					log.Printf("[worker-%d] ack error=%v", n, ackErr)
				}
			}
		}(i + 1)
	}

	for {
		select {
		case <-ctx.Done():
			close(deliveries)
			log.Println("[worker] pool stopped")
			return
		default:
			d, err := p.transport.Receive(ctx, p.receiveTimeout)
			if err != nil {
				if !errors.Is(err, service.ErrNoDelivery) && ctx.Err() == nil {
					log.Printf("[worker] receive error=%v", err)
				}
				continue
			}
			select {
			case deliveries <- d:
			case <-ctx.Done():
				close(deliveries)
				return
			}
		}
	}
}
