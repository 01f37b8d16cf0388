// Package postgres persists the contract event log in PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rideescrow/internal/domain/entities"
	"rideescrow/internal/repository"
)

// schema is idempotent. The ALTER statements upgrade journals created before
// events carried an epoch.
const schema = `
CREATE TABLE IF NOT EXISTS ride_events (
	seq        BIGSERIAL PRIMARY KEY,
	epoch      TEXT        NOT NULL DEFAULT '',
	tx_id      TEXT        NOT NULL,
	name       TEXT        NOT NULL,
	contract   BYTEA       NOT NULL,
	log_index  BIGINT      NOT NULL,
	ride       BYTEA,
	driver     BYTEA,
	passenger  BYTEA,
	price      NUMERIC(20, 0),
	emitted_at TIMESTAMPTZ NOT NULL
);
ALTER TABLE ride_events ADD COLUMN IF NOT EXISTS epoch TEXT NOT NULL DEFAULT '';
ALTER TABLE ride_events DROP CONSTRAINT IF EXISTS ride_events_contract_log_index_key;
CREATE UNIQUE INDEX IF NOT EXISTS ride_events_epoch_log_idx ON ride_events (epoch, contract, log_index);
CREATE INDEX IF NOT EXISTS ride_events_contract_idx ON ride_events (contract, seq);
`

const insertEvent = `
INSERT INTO ride_events (epoch, tx_id, name, contract, log_index, ride, driver, passenger, price, emitted_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::text::numeric, $10)
RETURNING seq`

// EventStore is a repository.EventStore backed by a pgx connection pool.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore connects to url, verifies the connection and creates the
// schema if needed.
func NewEventStore(ctx context.Context, url string) (*EventStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &EventStore{pool: pool}, nil
}

func (s *EventStore) Close() {
	s.pool.Close()
}

// Append inserts all events in one transaction.
func (s *EventStore) Append(ctx context.Context, events []entities.Event) ([]entities.Event, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stored := make([]entities.Event, len(events))
	for i, ev := range events {
		var price *string
		if ev.Price != nil {
			p := strconv.FormatUint(uint64(*ev.Price), 10)
			price = &p
		}
		var seq int64
		err := tx.QueryRow(ctx, insertEvent,
			ev.Epoch,
			ev.TxID,
			string(ev.Name),
			ev.Contract.Bytes(),
			int64(ev.LogIndex),
			addressBytes(ev.Ride),
			addressBytes(ev.Driver),
			addressBytes(ev.Passenger),
			price,
			ev.EmittedAt,
		).Scan(&seq)
		if err != nil {
			return nil, fmt.Errorf("insert %s event: %w", ev.Name, err)
		}
		ev.Seq = uint64(seq)
		stored[i] = ev
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return stored, nil
}

func (s *EventStore) List(ctx context.Context, filter repository.EventFilter) ([]entities.Event, error) {
	query, args := buildListQuery(filter)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []entities.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return out, nil
}

func buildListQuery(filter repository.EventFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if filter.AfterSeq > 0 {
		add("seq > $%d", int64(filter.AfterSeq))
	}
	if filter.Epoch != "" {
		add("epoch = $%d", filter.Epoch)
	}
	if filter.Contract != nil {
		add("contract = $%d", filter.Contract.Bytes())
	}
	if filter.Name != "" {
		add("name = $%d", string(filter.Name))
	}
	if filter.TxID != "" {
		add("tx_id = $%d", filter.TxID)
	}

	var b strings.Builder
	b.WriteString("SELECT seq, epoch, tx_id, name, contract, log_index, ride, driver, passenger, price::text, emitted_at FROM ride_events")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY seq")
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args
}

func scanEvent(row pgx.Row) (entities.Event, error) {
	var (
		ev                      entities.Event
		seq, logIndex           int64
		name                    string
		contract                []byte
		ride, driver, passenger []byte
		price                   *string
	)
	if err := row.Scan(&seq, &ev.Epoch, &ev.TxID, &name, &contract, &logIndex, &ride, &driver, &passenger, &price, &ev.EmittedAt); err != nil {
		return ev, fmt.Errorf("scan event: %w", err)
	}

	ev.Seq = uint64(seq)
	ev.LogIndex = uint64(logIndex)
	ev.Name = entities.EventName(name)
	ev.EmittedAt = ev.EmittedAt.UTC()

	var err error
	if ev.Contract, err = entities.AddressFromBytes(contract); err != nil {
		return ev, fmt.Errorf("event %d contract: %w", seq, err)
	}
	if ev.Ride, err = optionalAddress(ride); err != nil {
		return ev, fmt.Errorf("event %d ride: %w", seq, err)
	}
	if ev.Driver, err = optionalAddress(driver); err != nil {
		return ev, fmt.Errorf("event %d driver: %w", seq, err)
	}
	if ev.Passenger, err = optionalAddress(passenger); err != nil {
		return ev, fmt.Errorf("event %d passenger: %w", seq, err)
	}
	if price != nil {
		p, err := strconv.ParseUint(*price, 10, 64)
		if err != nil {
			return ev, fmt.Errorf("event %d price: %w", seq, err)
		}
		amount := entities.Amount(p)
		ev.Price = &amount
	}
	return ev, nil
}

func addressBytes(a *entities.Address) []byte {
	if a == nil {
		return nil
	}
	return a.Bytes()
}

func optionalAddress(b []byte) (*entities.Address, error) {
	if b == nil {
		return nil, nil
	}
	a, err := entities.AddressFromBytes(b)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

var _ repository.EventStore = (*EventStore)(nil)
