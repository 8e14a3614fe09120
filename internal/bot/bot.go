// Package bot connects the transport to the dialog engine: it polls for
// incoming messages and dispatches each one to a per-chat worker, so one
// conversation handles its turns strictly in order while distinct
// conversations proceed concurrently.
package bot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"spendingcalc/internal/dialog"
	"spendingcalc/internal/telegram"
)

// Transport is the messaging boundary the bot consumes.
type Transport interface {
	Receive(ctx context.Context) ([]telegram.Inbound, error)
	Send(ctx context.Context, chatID int64, text string, options [][]string) error
}

const (
	chatQueueSize  = 16
	pollRetryDelay = 3 * time.Second
)

type Bot struct {
	transport Transport
	engine    *dialog.Engine

	mu     sync.Mutex
	queues map[int64]chan telegram.Inbound
}

func New(transport Transport, engine *dialog.Engine) *Bot {
	return &Bot{
		transport: transport,
		engine:    engine,
		queues:    make(map[int64]chan telegram.Inbound),
	}
}

// Run polls for updates until the context is cancelled. Transport errors
// are logged and retried; Run only returns on cancellation.
func (b *Bot) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			inbound, err := b.transport.Receive(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.WarnContext(ctx, "Receiving updates failed, retrying", "error", err)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(pollRetryDelay):
				}
				continue
			}

			for _, in := range inbound {
				b.dispatch(ctx, g, in)
			}
		}
	})

	return g.Wait()
}

// dispatch hands the message to the chat's worker, creating it on first
// contact. A full queue drops the message so one flooding chat cannot stall
// the poller.
func (b *Bot) dispatch(ctx context.Context, g *errgroup.Group, in telegram.Inbound) {
	b.mu.Lock()
	q, ok := b.queues[in.ChatID]
	if !ok {
		q = make(chan telegram.Inbound, chatQueueSize)
		b.queues[in.ChatID] = q
		g.Go(func() error {
			b.worker(ctx, q)
			return nil
		})
	}
	b.mu.Unlock()

	select {
	case q <- in:
	default:
		slog.WarnContext(ctx, "Chat queue full, dropping message", "chat_id", in.ChatID)
	}
}

func (b *Bot) worker(ctx context.Context, q <-chan telegram.Inbound) {
	for {
		select {
		case <-ctx.Done():
			return
		case in := <-q:
			b.handle(ctx, in)
		}
	}
}

func (b *Bot) handle(ctx context.Context, in telegram.Inbound) {
	reply, err := b.engine.HandleMessage(ctx, in.ChatID, in.Text)
	if err != nil {
		slog.ErrorContext(ctx, "Dialog turn failed", "chat_id", in.ChatID, "error", err)
		if sendErr := b.transport.Send(ctx, in.ChatID, "Something went wrong, please try again.", nil); sendErr != nil {
			slog.ErrorContext(ctx, "Failed to send error reply", "chat_id", in.ChatID, "error", sendErr)
		}
		return
	}

	if err := b.transport.Send(ctx, in.ChatID, reply.Text, reply.Options); err != nil {
		slog.ErrorContext(ctx, "Failed to send reply", "chat_id", in.ChatID, "error", err)
	}
}
