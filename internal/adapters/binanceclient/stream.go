package binanceclient

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"

	"gridBot/internal/ports"
)

const maxReconnectDelay = time.Minute

// priceStream is the Subscription returned by SubscribePriceStream.
type priceStream struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Close stops the stream and returns once no further callback can run.
func (s *priceStream) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

// SubscribePriceStream delivers the last price of every 24h ticker event for
// symbol. The first connection is made synchronously; later disconnects are
// retried with exponential backoff.
func (c *Client) SubscribePriceStream(ctx context.Context, symbol string, onPrice ports.PriceHandler) (ports.Subscription, error) {
	op := "SubscribePriceStream"
	wsCtx, cancelWs := context.WithCancel(ctx)
	stream := &priceStream{cancel: cancelWs, done: make(chan struct{})}

	var handlerMu sync.Mutex
	handler := func(event *binance.WsMarketStatEvent) {
		if event == nil {
			return
		}
		price, err := strconv.ParseFloat(event.LastPrice, 64)
		if err != nil || price <= 0 {
			c.logger.Warn(wsCtx, op+": Ignoring malformed ticker event", map[string]interface{}{"symbol": symbol, "lastPrice": event.LastPrice})
			return
		}
		handlerMu.Lock()
		defer handlerMu.Unlock()
		if wsCtx.Err() != nil {
			return
		}
		onPrice(price)
	}
	errHandler := func(err error) {
		c.logger.Warn(wsCtx, op+": WebSocket error reported", map[string]interface{}{"symbol": symbol, "error": err.Error()})
	}

	doneC, stopC, err := c.wsServe(exchangeSymbol(symbol), handler, errHandler)
	if err != nil {
		cancelWs()
		close(stream.done)
		return nil, c.handleError(ctx, fmt.Errorf("%w: %w", ports.ErrConnectionFailed, err), op)
	}
	c.logger.Info(ctx, op+": WebSocket connection established.", map[string]interface{}{"symbol": symbol})

	go func() {
		defer close(stream.done)
		// Wait for an in-flight callback before reporting closed.
		defer func() {
			handlerMu.Lock()
			handlerMu.Unlock()
		}()

		for {
			select {
			case <-wsCtx.Done():
				close(stopC)
				<-doneC
				c.logger.Info(ctx, op+": Context cancelled, stopping WebSocket.", map[string]interface{}{"symbol": symbol})
				return
			case <-doneC:
				c.logger.Warn(wsCtx, op+": WebSocket connection closed unexpectedly. Reconnecting...", map[string]interface{}{"symbol": symbol})
			}

			var ok bool
			doneC, stopC, ok = c.reconnect(wsCtx, symbol, handler, errHandler)
			if !ok {
				return
			}
		}
	}()

	return stream, nil
}

// reconnect retries the WebSocket connection until it succeeds, the context
// ends or the attempt budget runs out.
func (c *Client) reconnect(ctx context.Context, symbol string, handler binance.WsMarketStatHandler, errHandler binance.ErrHandler) (chan struct{}, chan struct{}, bool) {
	op := "SubscribePriceStream"
	for attempt := 1; attempt <= c.maxReconnectAttempts; attempt++ {
		delay := c.reconnectDelay * time.Duration(1<<uint(attempt-1))
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			c.logger.Info(ctx, op+": Context cancelled during backoff.", map[string]interface{}{"symbol": symbol})
			return nil, nil, false
		}

		doneC, stopC, err := c.wsServe(exchangeSymbol(symbol), handler, errHandler)
		if err == nil {
			c.logger.Info(ctx, op+": WebSocket connection re-established.", map[string]interface{}{"symbol": symbol, "attempt": attempt})
			return doneC, stopC, true
		}
		c.logger.Warn(ctx, op+": Reconnection attempt failed", map[string]interface{}{"symbol": symbol, "attempt": attempt, "error": err.Error()})
	}
	c.logger.Error(ctx, ports.ErrConnectionFailed, op+": Max reconnection attempts exceeded, giving up.", map[string]interface{}{"symbol": symbol, "maxAttempts": c.maxReconnectAttempts})
	return nil, nil, false
}
