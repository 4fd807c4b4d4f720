package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/polaris-fi/perpdesk/internal/perp"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Store persists pool, custody, and position observations so dashboards can
// chart the protocol over time without replaying the chain.
type Store struct {
	db *DB
}

type DB struct {
	raw *sql.DB
}

type Tx struct {
	raw *sql.Tx
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.raw.ExecContext(ctx, rebindPostgresPlaceholders(query), args...)
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.raw.QueryContext(ctx, rebindPostgresPlaceholders(query), args...)
}

func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.raw.QueryRowContext(ctx, rebindPostgresPlaceholders(query), args...)
}

func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	tx, err := db.raw.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Tx{raw: tx}, nil
}

func (db *DB) Close() error {
	return db.raw.Close()
}

func (tx *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return tx.raw.ExecContext(ctx, rebindPostgresPlaceholders(query), args...)
}

func (tx *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return tx.raw.QueryContext(ctx, rebindPostgresPlaceholders(query), args...)
}

func (tx *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return tx.raw.QueryRowContext(ctx, rebindPostgresPlaceholders(query), args...)
}

func (tx *Tx) Commit() error {
	return tx.raw.Commit()
}

func (tx *Tx) Rollback() error {
	return tx.raw.Rollback()
}

func rebindPostgresPlaceholders(query string) string {
	var out strings.Builder
	out.Grow(len(query) + 16)

	arg := 1
	inSingleQuote := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		if ch == '\'' {
			out.WriteByte(ch)
			if inSingleQuote {
				// SQL escape: two single quotes inside a string literal.
				if i+1 < len(query) && query[i+1] == '\'' {
					out.WriteByte(query[i+1])
					i++
					continue
				}
				inSingleQuote = false
			} else {
				inSingleQuote = true
			}
			continue
		}

		if ch == '?' && !inSingleQuote {
			out.WriteByte('$')
			out.WriteString(strconv.Itoa(arg))
			arg++
			continue
		}

		out.WriteByte(ch)
	}

	return out.String()
}

func NewStore(dbDSN string) (*Store, error) {
	db, err := sql.Open("pgx", dbDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetConnMaxIdleTime(30 * time.Second)
	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(16)

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &Store{db: &DB{raw: db}}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) WithTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS pool_snapshots (
			id BIGSERIAL PRIMARY KEY,
			pool TEXT NOT NULL,
			aum_usd DOUBLE PRECISION NOT NULL,
			total_fees_usd DOUBLE PRECISION NOT NULL,
			total_volume_usd DOUBLE PRECISION NOT NULL,
			long_positions_usd DOUBLE PRECISION NOT NULL,
			short_positions_usd DOUBLE PRECISION NOT NULL,
			oi_long_usd DOUBLE PRECISION NOT NULL,
			oi_short_usd DOUBLE PRECISION NOT NULL,
			open_long_positions BIGINT NOT NULL,
			open_short_positions BIGINT NOT NULL,
			average_long_leverage DOUBLE PRECISION NOT NULL,
			average_short_leverage DOUBLE PRECISION NOT NULL,
			recorded_at BIGINT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_pool_snapshots_pool_time ON pool_snapshots(pool, recorded_at DESC);`,
		`CREATE TABLE IF NOT EXISTS custody_snapshots (
			id BIGSERIAL PRIMARY KEY,
			pool TEXT NOT NULL,
			custody TEXT NOT NULL,
			mint TEXT NOT NULL,
			owned TEXT NOT NULL,
			locked TEXT NOT NULL,
			long_size_usd TEXT NOT NULL,
			short_size_usd TEXT NOT NULL,
			open_long_positions BIGINT NOT NULL,
			open_short_positions BIGINT NOT NULL,
			raw_json TEXT NOT NULL,
			recorded_at BIGINT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_custody_snapshots_custody_time ON custody_snapshots(custody, recorded_at DESC);`,
		`CREATE TABLE IF NOT EXISTS positions (
			pubkey TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			pool TEXT NOT NULL,
			custody TEXT NOT NULL,
			side TEXT NOT NULL,
			price TEXT NOT NULL,
			size_usd TEXT NOT NULL,
			collateral_usd TEXT NOT NULL,
			unrealized_interest_usd TEXT NOT NULL,
			raw_json TEXT NOT NULL,
			updated_at BIGINT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_positions_owner ON positions(owner);`,
		`CREATE TABLE IF NOT EXISTS position_events (
			id BIGSERIAL PRIMARY KEY,
			position_pubkey TEXT NOT NULL,
			owner TEXT NOT NULL,
			event_type TEXT NOT NULL,
			prev_size_usd TEXT NOT NULL,
			prev_collateral_usd TEXT NOT NULL,
			next_size_usd TEXT NOT NULL,
			next_collateral_usd TEXT NOT NULL,
			recorded_at BIGINT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_position_events_position_time ON position_events(position_pubkey, recorded_at DESC);`,
		`CREATE TABLE IF NOT EXISTS price_ticks (
			id BIGSERIAL PRIMARY KEY,
			symbol TEXT NOT NULL,
			source TEXT NOT NULL,
			feed_id TEXT NOT NULL,
			publish_time BIGINT NOT NULL,
			price DOUBLE PRECISION NOT NULL,
			conf DOUBLE PRECISION NOT NULL,
			expo INTEGER NOT NULL,
			received_at BIGINT NOT NULL
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_price_ticks_dedupe ON price_ticks(symbol, source, publish_time);`,
		`CREATE INDEX IF NOT EXISTS idx_price_ticks_symbol_time ON price_ticks(symbol, publish_time DESC, id DESC);`,
	}

	for _, query := range ddl {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// InsertPoolSnapshotTx appends one aggregate observation of the pool.
func (s *Store) InsertPoolSnapshotTx(ctx context.Context, tx *Tx, pool solana.PublicKey, stats perp.PoolStats) error {
	now := time.Now().Unix()
	_, err := tx.ExecContext(ctx, `
		INSERT INTO pool_snapshots (
			pool, aum_usd, total_fees_usd, total_volume_usd,
			long_positions_usd, short_positions_usd, oi_long_usd, oi_short_usd,
			open_long_positions, open_short_positions,
			average_long_leverage, average_short_leverage, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		pool.String(),
		stats.AumUsd,
		stats.TotalFeesUsd,
		stats.TotalVolumeUsd,
		stats.LongPositionsUsd,
		stats.ShortPositionsUsd,
		stats.OiLongUsd,
		stats.OiShortUsd,
		int64(stats.NbOpenLongPositions),
		int64(stats.NbOpenShortPositions),
		stats.AverageLongLeverage,
		stats.AverageShortLeverage,
		now,
	)
	return err
}

// InsertCustodySnapshotTx appends one observation of a custody's balances
// and position aggregates.
func (s *Store) InsertCustodySnapshotTx(ctx context.Context, tx *Tx, pool, custodyKey solana.PublicKey, custody *perp.Custody) error {
	raw, err := json.Marshal(custody)
	if err != nil {
		return err
	}
	now := time.Now().Unix()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO custody_snapshots (
			pool, custody, mint, owned, locked,
			long_size_usd, short_size_usd,
			open_long_positions, open_short_positions,
			raw_json, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		pool.String(),
		custodyKey.String(),
		custody.Mint.String(),
		strconv.FormatUint(custody.Assets.Owned, 10),
		strconv.FormatUint(custody.Assets.Locked, 10),
		strconv.FormatUint(custody.LongPositions.SizeUsd, 10),
		strconv.FormatUint(custody.ShortPositions.SizeUsd, 10),
		int64(custody.LongPositions.OpenPositions),
		int64(custody.ShortPositions.OpenPositions),
		string(raw),
		now,
	)
	return err
}

type positionSnapshot struct {
	SizeUsd       string
	CollateralUsd string
}

// UpsertPositionTx records the position's current state and, when size or
// collateral moved since the last write, a position_events row with the
// before and after figures.
func (s *Store) UpsertPositionTx(ctx context.Context, tx *Tx, pos perp.LoadedPosition) error {
	raw, err := json.Marshal(pos.State)
	if err != nil {
		return err
	}

	pubkeyText := pos.Address.String()
	next := positionSnapshot{
		SizeUsd:       strconv.FormatUint(pos.State.SizeUsd, 10),
		CollateralUsd: strconv.FormatUint(pos.State.CollateralUsd, 10),
	}
	prev, err := s.getPositionSnapshotTx(ctx, tx, pubkeyText)
	if err != nil {
		return err
	}

	now := time.Now().Unix()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO positions (
			pubkey, owner, pool, custody, side, price, size_usd,
			collateral_usd, unrealized_interest_usd, raw_json, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pubkey) DO UPDATE SET
			owner = excluded.owner,
			pool = excluded.pool,
			custody = excluded.custody,
			side = excluded.side,
			price = excluded.price,
			size_usd = excluded.size_usd,
			collateral_usd = excluded.collateral_usd,
			unrealized_interest_usd = excluded.unrealized_interest_usd,
			raw_json = excluded.raw_json,
			updated_at = excluded.updated_at
	`,
		pubkeyText,
		pos.State.Owner.String(),
		pos.State.Pool.String(),
		pos.State.Custody.String(),
		perp.Side(pos.State.Side).String(),
		strconv.FormatUint(pos.State.Price, 10),
		next.SizeUsd,
		next.CollateralUsd,
		strconv.FormatUint(pos.State.UnrealizedInterestUsd, 10),
		string(raw),
		now,
	)
	if err != nil {
		return err
	}

	if prev == nil {
		return s.insertPositionEventTx(ctx, tx, pubkeyText, pos.State.Owner.String(), "open",
			positionSnapshot{SizeUsd: "0", CollateralUsd: "0"}, next, now)
	}
	if prev.SizeUsd == next.SizeUsd && prev.CollateralUsd == next.CollateralUsd {
		return nil
	}
	return s.insertPositionEventTx(ctx, tx, pubkeyText, pos.State.Owner.String(), "update", *prev, next, now)
}

func (s *Store) getPositionSnapshotTx(ctx context.Context, tx *Tx, pubkey string) (*positionSnapshot, error) {
	row := tx.QueryRowContext(
		ctx,
		`SELECT size_usd, collateral_usd FROM positions WHERE pubkey = ?`,
		pubkey,
	)

	var snapshot positionSnapshot
	err := row.Scan(&snapshot.SizeUsd, &snapshot.CollateralUsd)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (s *Store) insertPositionEventTx(
	ctx context.Context,
	tx *Tx,
	positionPubkey string,
	owner string,
	eventType string,
	prev positionSnapshot,
	next positionSnapshot,
	recordedAt int64,
) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO position_events (
			position_pubkey, owner, event_type,
			prev_size_usd, prev_collateral_usd,
			next_size_usd, next_collateral_usd,
			recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		positionPubkey,
		owner,
		eventType,
		prev.SizeUsd,
		prev.CollateralUsd,
		next.SizeUsd,
		next.CollateralUsd,
		recordedAt,
	)
	return err
}

// PriceTick is one oracle price observation from the stream.
type PriceTick struct {
	Symbol      string
	Source      string
	FeedID      string
	PublishTime int64
	Price       float64
	Conf        float64
	Expo        int32
}

// InsertPriceTick appends a tick, silently dropping duplicates of the same
// (symbol, source, publish time).
func (s *Store) InsertPriceTick(ctx context.Context, tick PriceTick) error {
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO price_ticks (
			symbol, source, feed_id, publish_time, price, conf, expo, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, source, publish_time) DO NOTHING
	`,
		tick.Symbol,
		tick.Source,
		tick.FeedID,
		tick.PublishTime,
		tick.Price,
		tick.Conf,
		tick.Expo,
		now,
	)
	return err
}

// LatestPoolSnapshot returns the most recent aggregate row for the pool, or
// nil when none has been recorded yet.
func (s *Store) LatestPoolSnapshot(ctx context.Context, pool solana.PublicKey) (*perp.PoolStats, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT aum_usd, total_fees_usd, total_volume_usd,
			long_positions_usd, short_positions_usd, oi_long_usd, oi_short_usd,
			open_long_positions, open_short_positions,
			average_long_leverage, average_short_leverage
		FROM pool_snapshots
		WHERE pool = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT 1
	`, pool.String())

	var stats perp.PoolStats
	var openLong, openShort int64
	err := row.Scan(
		&stats.AumUsd,
		&stats.TotalFeesUsd,
		&stats.TotalVolumeUsd,
		&stats.LongPositionsUsd,
		&stats.ShortPositionsUsd,
		&stats.OiLongUsd,
		&stats.OiShortUsd,
		&openLong,
		&openShort,
		&stats.AverageLongLeverage,
		&stats.AverageShortLeverage,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	stats.NbOpenLongPositions = uint64(openLong)
	stats.NbOpenShortPositions = uint64(openShort)
	return &stats, nil
}
