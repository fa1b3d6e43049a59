// Package app wires configuration, store, session, and dispatcher into a
// runnable chat client.
package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/redischat/internal/chat"
	"github.com/vovakirdan/redischat/internal/config"
	"github.com/vovakirdan/redischat/internal/dispatch"
	"github.com/vovakirdan/redischat/internal/history"
	"github.com/vovakirdan/redischat/internal/store"
	redisstore "github.com/vovakirdan/redischat/internal/store/redis"
)

// App owns the run loop: input lines in, session events out.
type App struct {
	cfg        config.Config
	log        *zerolog.Logger
	store      store.Store
	session    *chat.Session
	dispatcher *dispatch.Dispatcher
	history    *history.History

	in  io.Reader
	out io.Writer
}

// New connects to Redis per cfg and assembles the client.
func New(ctx context.Context, cfg config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := redisstore.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis")

	a, err := NewWithStore(cfg, logger, st, os.Stdin, os.Stdout)
	if err != nil {
		st.Close()
		return nil, err
	}
	return a, nil
}

// NewWithStore assembles the client on an already-built store. Used by New
// and by tests that run against the in-memory store.
func NewWithStore(cfg config.Config, logger *zerolog.Logger, st store.Store, in io.Reader, out io.Writer) (*App, error) {
	session := chat.NewSession(st, logger, chat.Options{
		PresenceTTL: cfg.PresenceTTL,
		StopTimeout: cfg.StopTimeout,
		EventBuffer: cfg.EventBuffer,
	})

	var hist *history.History
	if cfg.HistoryPath != "" {
		h, err := history.Open(cfg.HistoryPath)
		if err != nil {
			return nil, fmt.Errorf("init history: %w", err)
		}
		hist = h
	}

	return &App{
		cfg:        cfg,
		log:        logger,
		store:      st,
		session:    session,
		dispatcher: dispatch.New(session, logger, cfg.DefaultChannel),
		history:    hist,
		in:         in,
		out:        out,
	}, nil
}

// Session exposes the underlying session (tests).
func (a *App) Session() *chat.Session {
	return a.session
}

// Run processes input lines and session events until the input closes or
// ctx is cancelled, then tears the session down.
func (a *App) Run(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(a.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			a.log.Warn().Err(err).Msg("input scanner failed")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return a.shutdown()
		case line, ok := <-lines:
			if !ok {
				return a.shutdown()
			}
			reply, err := a.dispatcher.Dispatch(ctx, line)
			if err != nil {
				fmt.Fprintf(a.out, "error: %v\n", err)
				continue
			}
			if reply != "" {
				fmt.Fprintln(a.out, reply)
			}
		case ev := <-a.session.Events():
			a.render(ctx, ev)
		}
	}
}

// render prints an event and records chat messages in the transcript.
func (a *App) render(ctx context.Context, ev chat.Event) {
	switch ev.Kind {
	case chat.EventChannelMessage:
		channel := strings.TrimPrefix(ev.Channel, "channel:")
		fmt.Fprintf(a.out, "[%s] %s: %s\n", channel, ev.From, ev.Body)
		if a.history != nil {
			entry := history.Entry{
				SessionID:  a.session.ID(),
				Channel:    channel,
				Sender:     ev.From,
				Body:       ev.Body,
				ReceivedAt: ev.ReceivedAt,
			}
			if err := a.history.Append(ctx, entry); err != nil {
				a.log.Warn().Err(err).Msg("history append failed")
			}
		}
	case chat.EventListenerStopped:
		fmt.Fprintf(a.out, "disconnected from %s: %s\n", strings.TrimPrefix(ev.Channel, "channel:"), ev.Err.Message)
	}
}

// shutdown announces the departure, stops listeners, and closes resources.
func (a *App) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.StopTimeout)
	defer cancel()

	a.session.Shutdown(shutdownCtx)

	// Render whatever was already queued before the session closed.
	for ev := range a.session.Events() {
		a.render(shutdownCtx, ev)
	}

	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close history")
		}
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close store")
		return err
	}
	a.log.Info().Msg("store closed")
	return nil
}
