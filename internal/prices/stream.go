package prices

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Tick is one observed oracle or exchange price for a symbol.
type Tick struct {
	Symbol      string
	Source      string
	FeedID      string
	PublishTime int64
	Price       float64
	Conf        float64
	Expo        int32
}

// Sink receives ticks as they arrive. Implementations must tolerate
// duplicates; reconnects replay the last event.
type Sink interface {
	HandleTick(ctx context.Context, tick Tick) error
}

// Config selects the sources and feeds to stream.
type Config struct {
	HermesURL         string
	FeedIDsBySymbol   map[string]string
	EnableExchange    bool
	ReconnectInterval time.Duration
}

// Streamer multiplexes price sources into a single sink: the Hermes oracle
// stream for every configured feed, plus per-symbol exchange mark prices
// used as a sanity cross-check.
type Streamer struct {
	cfg  Config
	sink Sink
	log  *slog.Logger
}

func NewStreamer(cfg Config, sink Sink, log *slog.Logger) *Streamer {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 3 * time.Second
	}
	return &Streamer{cfg: cfg, sink: sink, log: log}
}

// Run blocks until ctx is done, restarting each source on failure.
func (s *Streamer) Run(ctx context.Context) {
	var wg sync.WaitGroup

	if strings.TrimSpace(s.cfg.HermesURL) != "" && len(s.cfg.FeedIDsBySymbol) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runWithReconnect(ctx, "hermes", s.consumeHermesStream)
		}()
	}

	if s.cfg.EnableExchange {
		for symbol := range s.cfg.FeedIDsBySymbol {
			symbol := symbol
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.runWithReconnect(ctx, "exchange:"+symbol, func(ctx context.Context) error {
					return s.consumeExchangeStream(ctx, symbol)
				})
			}()
		}
	}

	wg.Wait()
}

func (s *Streamer) runWithReconnect(ctx context.Context, name string, consume func(context.Context) error) {
	for {
		if err := ctx.Err(); err != nil {
			return
		}

		err := consume(ctx)
		if err != nil && ctx.Err() == nil {
			s.log.Warn("price stream disconnected",
				"stream", name,
				"err", err,
				"retry_in", s.cfg.ReconnectInterval.String(),
			)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.ReconnectInterval):
		}
	}
}

func (s *Streamer) deliver(ctx context.Context, tick Tick) {
	if tick.Price <= 0 {
		return
	}
	if err := s.sink.HandleTick(ctx, tick); err != nil && ctx.Err() == nil {
		s.log.Warn("price tick dropped", "symbol", tick.Symbol, "source", tick.Source, "err", err)
	}
}
