package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
)

// listenCmd represents a LISTEN/UNLISTEN command executed by the receive
// loop, the sole goroutine that touches the dedicated pgx connection.
type listenCmd struct {
	sql     string
	channel string
	gen     uint64 // generation captured at Unsubscribe time; 0 for LISTEN
	result  chan error
}

// NotifyBus listens for PostgreSQL NOTIFY events on a dedicated connection
// and dispatches them to registered in-process handlers. No subsystem in
// this module subscribes to it: the workpool and projection engine dispatch
// by polling alone.
type NotifyBus struct {
	connString string
	conn       *pgx.Conn
	connMu     sync.Mutex
	channels   map[string]bool
	channelsMu sync.RWMutex

	// cmdCh serializes LISTEN/UNLISTEN through the receive loop to avoid the
	// "conn busy" race between WaitForNotification and Exec.
	cmdCh   chan listenCmd
	running atomic.Bool

	// listenGen guards against a stale UNLISTEN winning a race against a
	// newer LISTEN on the same channel (rapid unsubscribe/resubscribe).
	listenGen   map[string]uint64
	listenGenMu sync.Mutex

	handlers   map[string]func(payload []byte)
	handlersMu sync.RWMutex

	cancelLoop context.CancelFunc
	loopDone   chan struct{}
}

// NewNotifyBus creates a NotifyBus bound to connString. Call Start to
// establish the dedicated LISTEN connection.
func NewNotifyBus(connString string) *NotifyBus {
	return &NotifyBus{
		connString: connString,
		channels:   make(map[string]bool),
		cmdCh:      make(chan listenCmd, 32),
		listenGen:  make(map[string]uint64),
		handlers:   make(map[string]func(payload []byte)),
	}
}

// Start establishes the dedicated LISTEN connection and begins the receive
// loop.
func (b *NotifyBus) Start(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, b.connString)
	if err != nil {
		return fmt.Errorf("notifybus: connect: %w", err)
	}

	b.connMu.Lock()
	b.conn = conn
	b.connMu.Unlock()
	b.running.Store(true)

	loopCtx, cancel := context.WithCancel(ctx)
	b.cancelLoop = cancel
	b.loopDone = make(chan struct{})
	go func() {
		defer close(b.loopDone)
		b.receiveLoop(loopCtx)
	}()

	slog.Info("notify bus started")
	return nil
}

// RegisterHandler registers the callback invoked when a NOTIFY arrives on
// channel. Only one handler per channel; registering again replaces it.
func (b *NotifyBus) RegisterHandler(channel string, fn func(payload []byte)) {
	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()
	b.handlers[channel] = fn
}

// Subscribe issues LISTEN for channel via the receive loop.
func (b *NotifyBus) Subscribe(ctx context.Context, channel string) error {
	if !b.running.Load() {
		return fmt.Errorf("notifybus: not started")
	}

	sanitized := pgx.Identifier{channel}.Sanitize()
	cmd := listenCmd{sql: "LISTEN " + sanitized, channel: channel, result: make(chan error, 1)}

	select {
	case b.cmdCh <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.result:
		if err != nil {
			return fmt.Errorf("LISTEN %s: %w", sanitized, err)
		}
		b.channelsMu.Lock()
		b.channels[channel] = true
		b.channelsMu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unsubscribe issues UNLISTEN for channel via the receive loop.
func (b *NotifyBus) Unsubscribe(ctx context.Context, channel string) error {
	b.channelsMu.Lock()
	if !b.channels[channel] {
		b.channelsMu.Unlock()
		return nil
	}
	b.channelsMu.Unlock()

	if !b.running.Load() {
		return nil
	}

	b.listenGenMu.Lock()
	gen := b.listenGen[channel]
	b.listenGenMu.Unlock()

	sanitized := pgx.Identifier{channel}.Sanitize()
	cmd := listenCmd{sql: "UNLISTEN " + sanitized, channel: channel, gen: gen, result: make(chan error, 1)}

	select {
	case b.cmdCh <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.result:
		if err != nil {
			return fmt.Errorf("UNLISTEN %s: %w", sanitized, err)
		}
		b.listenGenMu.Lock()
		stale := b.listenGen[channel] != gen
		b.listenGenMu.Unlock()
		if !stale {
			b.channelsMu.Lock()
			delete(b.channels, channel)
			b.channelsMu.Unlock()
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *NotifyBus) receiveLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		b.processPendingCmds(ctx)

		b.connMu.Lock()
		conn := b.conn
		b.connMu.Unlock()

		if conn == nil {
			b.reconnect(ctx)
			continue
		}

		waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		notification, err := conn.WaitForNotification(waitCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if waitCtx.Err() != nil {
				continue
			}
			slog.Error("notify receive error", "error", err)
			b.reconnect(ctx)
			continue
		}

		b.handlersMu.RLock()
		handler := b.handlers[notification.Channel]
		b.handlersMu.RUnlock()
		if handler != nil {
			handler([]byte(notification.Payload))
		}
	}
}

func (b *NotifyBus) processPendingCmds(ctx context.Context) {
	for {
		select {
		case cmd := <-b.cmdCh:
			if cmd.gen > 0 {
				b.listenGenMu.Lock()
				stale := b.listenGen[cmd.channel] != cmd.gen
				b.listenGenMu.Unlock()
				if stale {
					cmd.result <- nil
					continue
				}
			}

			b.connMu.Lock()
			conn := b.conn
			b.connMu.Unlock()

			if conn == nil {
				cmd.result <- fmt.Errorf("notifybus: connection not established")
				continue
			}

			_, err := conn.Exec(ctx, cmd.sql)

			if err == nil && cmd.gen == 0 && cmd.channel != "" {
				b.listenGenMu.Lock()
				b.listenGen[cmd.channel]++
				b.listenGenMu.Unlock()
			}

			cmd.result <- err
		default:
			return
		}
	}
}

func (b *NotifyBus) reconnect(ctx context.Context) {
	b.connMu.Lock()
	defer b.connMu.Unlock()

	if b.conn != nil {
		_ = b.conn.Close(ctx)
		b.conn = nil
	}

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		conn, err := pgx.Connect(ctx, b.connString)
		if err != nil {
			slog.Error("notify reconnect failed", "error", err, "backoff", backoff)
			backoff = min(backoff*2, 30*time.Second)
			continue
		}
		b.conn = conn

		b.channelsMu.RLock()
		for ch := range b.channels {
			sanitized := pgx.Identifier{ch}.Sanitize()
			if _, err := conn.Exec(ctx, "LISTEN "+sanitized); err != nil {
				slog.Error("re-LISTEN failed", "channel", ch, "error", err)
			}
		}
		b.channelsMu.RUnlock()

		slog.Info("notify bus reconnected")
		return
	}
}

// Stop signals the receive loop to exit and closes the LISTEN connection.
func (b *NotifyBus) Stop(ctx context.Context) {
	b.running.Store(false)

	if b.cancelLoop != nil {
		b.cancelLoop()
	}
	if b.loopDone != nil {
		<-b.loopDone
	}

	b.connMu.Lock()
	defer b.connMu.Unlock()
	if b.conn != nil {
		_ = b.conn.Close(ctx)
		b.conn = nil
	}
}
