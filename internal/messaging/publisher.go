// Package messaging publishes committed contract events to RabbitMQ.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	amqp "github.com/rabbitmq/amqp091-go"

	"rideescrow/internal/config"
	"rideescrow/internal/domain/entities"
)

// ContentType of published message bodies.
const ContentType = "application/cbor"

const publishTimeout = 5 * time.Second

const maxBackoff = 30 * time.Second

var (
	ErrChannelClosed   = errors.New("amqp channel not available")
	ErrPublisherClosed = errors.New("amqp publisher closed")
)

var eventEncMode cbor.EncMode

func init() {
	opts := cbor.CoreDetEncOptions()
	// Keep sub-second emission times; the default is whole Unix seconds.
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor: core deterministic enc mode: %v", err))
	}
	eventEncMode = em
}

// EncodeEvent serializes an event as deterministic CBOR.
func EncodeEvent(ev entities.Event) ([]byte, error) {
	b, err := eventEncMode.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", ev.Name, err)
	}
	return b, nil
}

// RoutingKey maps an event to its topic routing key.
func RoutingKey(name entities.EventName) string {
	switch name {
	case entities.EventRideCreated:
		return "ride.created"
	case entities.EventPassengerAdded:
		return "ride.passenger_added"
	case entities.EventRideStarted:
		return "ride.started"
	default:
		return "ride.event"
	}
}

// Publisher sends events to a durable topic exchange. When the broker drops
// the connection or closes the channel, a background watcher redials with
// backoff until it succeeds or the publisher is closed. Publishes made while
// disconnected fail with ErrChannelClosed.
type Publisher struct {
	exchange string
	url      string
	log      *slog.Logger
	backoff  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Dial connects to the broker, retrying with backoff, and declares the
// exchange.
func Dial(ctx context.Context, cfg config.AMQPConfig, log *slog.Logger) (*Publisher, error) {
	p := newPublisher(cfg, log)
	if err := p.dial(ctx, max(cfg.DialRetries, 1)); err != nil {
		p.cancel()
		return nil, err
	}
	return p, nil
}

func newPublisher(cfg config.AMQPConfig, log *slog.Logger) *Publisher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Publisher{
		exchange: cfg.Exchange,
		url:      cfg.URL,
		log:      log.With("component", "amqp_publisher"),
		backoff:  time.Second,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// dial connects with exponential backoff. retries < 1 keeps trying until ctx
// is done or the publisher is closed.
func (p *Publisher) dial(ctx context.Context, retries int) error {
	delay := p.backoff
	var lastErr error
	for attempt := 1; retries < 1 || attempt <= retries; attempt++ {
		if lastErr = p.connect(); lastErr == nil {
			p.log.Info("amqp_connected", "attempt", attempt, "exchange", p.exchange)
			return nil
		}
		if errors.Is(lastErr, ErrPublisherClosed) {
			return lastErr
		}
		p.log.Warn("amqp_connect_failed", "attempt", attempt, "max_attempts", retries, "error", lastErr)
		if attempt == retries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.ctx.Done():
			return ErrPublisherClosed
		case <-time.After(delay):
		}
		delay = min(delay*2, maxBackoff)
	}
	return fmt.Errorf("connect to broker after %d attempts: %w", retries, lastErr)
}

func (p *Publisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare exchange %q: %w", p.exchange, err)
	}

	// Buffered: the library blocks on an unread notification.
	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx.Err() != nil {
		_ = ch.Close()
		_ = conn.Close()
		return ErrPublisherClosed
	}
	p.conn, p.ch = conn, ch
	p.wg.Add(1)
	go p.watch(conn, connClosed, chClosed)
	return nil
}

// watch waits for the connection or its channel to close and then redials.
func (p *Publisher) watch(conn *amqp.Connection, connClosed, chClosed <-chan *amqp.Error) {
	defer p.wg.Done()

	var reason *amqp.Error
	select {
	case reason = <-connClosed:
	case reason = <-chClosed:
	case <-p.ctx.Done():
		return
	}

	p.mu.Lock()
	if p.conn == conn {
		p.conn, p.ch = nil, nil
	}
	p.mu.Unlock()
	if p.ctx.Err() != nil {
		return
	}

	// A channel exception leaves the connection open; start over on both.
	_ = conn.Close()
	p.log.Warn("amqp_connection_lost", "error", reason)
	p.reconnect()
}

// reconnect redials until it succeeds or the publisher is closed.
func (p *Publisher) reconnect() {
	if err := p.dial(p.ctx, 0); err != nil {
		p.log.Info("amqp_reconnect_stopped", "error", err)
	}
}

func (p *Publisher) Name() string { return "amqp" }

// Publish sends each event as a persistent message. The message id is the
// event's transaction id and log index, so consumers can deduplicate.
func (p *Publisher) Publish(ctx context.Context, events []entities.Event) error {
	p.mu.Lock()
	ch := p.ch
	p.mu.Unlock()
	if ch == nil || ch.IsClosed() {
		return ErrChannelClosed
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	for _, ev := range events {
		body, err := EncodeEvent(ev)
		if err != nil {
			return err
		}
		err = ch.PublishWithContext(ctx, p.exchange, RoutingKey(ev.Name), false, false, amqp.Publishing{
			ContentType:  ContentType,
			DeliveryMode: amqp.Persistent,
			MessageId:    fmt.Sprintf("%s/%d", ev.TxID, ev.LogIndex),
			Timestamp:    ev.EmittedAt,
			Type:         string(ev.Name),
			Body:         body,
		})
		if err != nil {
			return fmt.Errorf("publish %s: %w", ev.Name, err)
		}
	}
	return nil
}

// Close stops any reconnect in progress and closes the connection. It waits
// for the watcher to exit.
func (p *Publisher) Close() error {
	p.mu.Lock()
	p.cancel()
	ch, conn := p.ch, p.conn
	p.ch, p.conn = nil, nil
	p.mu.Unlock()

	var errs []error
	if ch != nil {
		errs = append(errs, ch.Close())
	}
	if conn != nil {
		errs = append(errs, conn.Close())
	}
	p.wg.Wait()
	return errors.Join(errs...)
}
