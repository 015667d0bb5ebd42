// Package pricefeed provides a polling price stream for exchanges whose
// WebSocket feed is unavailable.
package pricefeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gridBot/internal/ports"
)

const defaultInterval = 5 * time.Second

// Poller wraps an ExchangeGateway and replaces its price stream with periodic
// GetTicker calls. Every other method is delegated.
type Poller struct {
	ports.ExchangeGateway
	interval time.Duration
	logger   ports.Logger
}

// Wrap returns gw with a polling SubscribePriceStream.
func Wrap(gw ports.ExchangeGateway, interval time.Duration, logger ports.Logger) *Poller {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Poller{ExchangeGateway: gw, interval: interval, logger: logger}
}

type pollSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Close stops polling and returns once no further callback can run.
func (s *pollSubscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

// SubscribePriceStream fetches the ticker once to prove the symbol is reachable,
// then delivers the last price immediately and after every interval.
func (p *Poller) SubscribePriceStream(ctx context.Context, symbol string, onPrice ports.PriceHandler) (ports.Subscription, error) {
	op := "SubscribePriceStream"
	first, err := p.fetch(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w: %w", op, ports.ErrConnectionFailed, err)
	}

	pollCtx, cancel := context.WithCancel(ctx)
	sub := &pollSubscription{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		price := first
		for {
			if price > 0 && pollCtx.Err() == nil {
				onPrice(price)
			}
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
			}

			price, err = p.fetch(pollCtx, symbol)
			if err != nil {
				if pollCtx.Err() == nil {
					p.logger.Warn(pollCtx, op+": Price poll failed", map[string]interface{}{"symbol": symbol, "error": err.Error()})
				}
				price = 0
			}
		}
	}()

	p.logger.Info(ctx, op+": Polling price feed started", map[string]interface{}{"symbol": symbol, "interval": p.interval.String()})
	return sub, nil
}

func (p *Poller) fetch(ctx context.Context, symbol string) (float64, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()
	ticker, err := p.ExchangeGateway.GetTicker(callCtx, symbol)
	if err != nil {
		return 0, err
	}
	return ticker.Last, nil
}

var _ ports.ExchangeGateway = (*Poller)(nil)
