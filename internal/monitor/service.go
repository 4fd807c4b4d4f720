package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go/rpc"

	"github.com/polaris-fi/perpdesk/internal/config"
	"github.com/polaris-fi/perpdesk/internal/history"
	"github.com/polaris-fi/perpdesk/internal/perp"
	"github.com/polaris-fi/perpdesk/internal/prices"
)

// Service polls the pool, persists aggregate snapshots, and follows the
// oracle price stream. It never signs or submits anything.
type Service struct {
	cfg      config.MonitorConfig
	client   *perp.Client
	store    *history.Store
	streamer *prices.Streamer
	logger   *slog.Logger
}

func New(ctx context.Context, cfg config.MonitorConfig, logger *slog.Logger) (*Service, error) {
	store, err := history.NewStore(cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	tokens := make([]perp.Token, 0, len(cfg.Tokens))
	for _, t := range cfg.Tokens {
		tokens = append(tokens, perp.Token{
			Mint:     t.Mint,
			Symbol:   t.Symbol,
			Decimals: t.Decimals,
			IsStable: t.Stable,
		})
	}

	client, err := perp.NewClient(ctx, perp.Params{
		ProgramID:  cfg.ProgramID,
		Pool:       cfg.Pool,
		Commitment: cfg.Commitment,
		Tokens:     tokens,
	}, rpc.New(cfg.RPCURL), logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init client: %w", err)
	}

	svc := &Service{
		cfg:    cfg,
		client: client,
		store:  store,
		logger: logger,
	}

	if cfg.EnablePriceStream {
		svc.streamer = prices.NewStreamer(prices.Config{
			HermesURL:         cfg.PriceStreamURL,
			FeedIDsBySymbol:   cfg.PriceFeedIDs,
			EnableExchange:    true,
			ReconnectInterval: cfg.PriceReconnectInterval,
		}, &tickSink{store: store}, logger)
	}

	return svc, nil
}

func (s *Service) Run(ctx context.Context) error {
	defer func() {
		if err := s.store.Close(); err != nil {
			s.logger.Error("failed to close store", "err", err)
		}
	}()

	s.logger.Info("monitor started",
		"rpc", s.cfg.RPCURL,
		"pool", s.cfg.Pool,
		"commitment", s.cfg.Commitment,
		"poll_interval", s.cfg.PollInterval.String(),
		"snapshot_interval", s.cfg.SnapshotInterval.String(),
	)

	if s.streamer != nil {
		s.logger.Info("price stream enabled",
			"endpoint", s.cfg.PriceStreamURL,
			"feeds", len(s.cfg.PriceFeedIDs),
		)
		go s.streamer.Run(ctx)
	}

	if err := s.snapshotOnce(ctx); err != nil {
		s.logger.Error("initial snapshot failed", "err", err)
	}

	poll := time.NewTicker(s.cfg.PollInterval)
	defer poll.Stop()
	snapshot := time.NewTicker(s.cfg.SnapshotInterval)
	defer snapshot.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("monitor stopped")
			return nil
		case <-poll.C:
			if err := s.client.Refresh(ctx); err != nil {
				s.logger.Error("pool refresh failed", "err", err)
			}
		case <-snapshot.C:
			if err := s.snapshotOnce(ctx); err != nil {
				s.logger.Error("snapshot failed", "err", err)
			}
		}
	}
}

// snapshotOnce refreshes the pool and writes one row per aggregate and per
// custody in a single transaction.
func (s *Service) snapshotOnce(ctx context.Context) error {
	if err := s.client.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh pool: %w", err)
	}

	stats := s.client.Stats()
	pool := s.client.Book().Pool
	custodyKeys := s.client.Pool().Custodies
	custodies := s.client.Custodies()

	return s.store.WithTx(ctx, func(tx *history.Tx) error {
		if err := s.store.InsertPoolSnapshotTx(ctx, tx, pool, stats); err != nil {
			return fmt.Errorf("pool snapshot: %w", err)
		}
		for i, custody := range custodies {
			if err := s.store.InsertCustodySnapshotTx(ctx, tx, pool, custodyKeys[i], custody); err != nil {
				return fmt.Errorf("custody snapshot %s: %w", custodyKeys[i], err)
			}
		}
		return nil
	})
}

type tickSink struct {
	store *history.Store
}

func (s *tickSink) HandleTick(ctx context.Context, tick prices.Tick) error {
	return s.store.InsertPriceTick(ctx, history.PriceTick{
		Symbol:      tick.Symbol,
		Source:      tick.Source,
		FeedID:      tick.FeedID,
		PublishTime: tick.PublishTime,
		Price:       tick.Price,
		Conf:        tick.Conf,
		Expo:        tick.Expo,
	})
}
