package bot

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"spendingcalc/internal/dialog"
	"spendingcalc/internal/services"
	"spendingcalc/internal/session"
	"spendingcalc/internal/storage"
	"spendingcalc/internal/telegram"
)

type sent struct {
	chatID  int64
	text    string
	options [][]string
}

// fakeTransport replays one batch of inbound messages and records sends.
type fakeTransport struct {
	inbound chan []telegram.Inbound
	sends   chan sent
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound: make(chan []telegram.Inbound, 8),
		sends:   make(chan sent, 8),
	}
}

func (f *fakeTransport) Receive(ctx context.Context) ([]telegram.Inbound, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case batch := <-f.inbound:
		return batch, nil
	}
}

func (f *fakeTransport) Send(ctx context.Context, chatID int64, text string, options [][]string) error {
	f.sends <- sent{chatID: chatID, text: text, options: options}
	return nil
}

func newTestBot(t *testing.T) (*Bot, *fakeTransport) {
	t.Helper()
	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	svc := services.NewEntryService(repo, nil)
	t.Cleanup(func() { svc.Close() })

	transport := newFakeTransport()
	engine := dialog.NewEngine(session.NewStore(), svc, nil)
	return New(transport, engine), transport
}

func waitForSend(t *testing.T, transport *fakeTransport) sent {
	t.Helper()
	select {
	case s := <-transport.sends:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for outbound message")
		return sent{}
	}
}

func TestRunRoutesMessagesThroughEngine(t *testing.T) {
	b, transport := newTestBot(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	transport.inbound <- []telegram.Inbound{{ChatID: 42, Text: "/start"}}
	s := waitForSend(t, transport)
	if s.chatID != 42 {
		t.Fatalf("reply went to chat %d, want 42", s.chatID)
	}
	if s.options == nil {
		t.Fatal("greeting should carry the main menu options")
	}

	// A second turn continues the same conversation.
	transport.inbound <- []telegram.Inbound{{ChatID: 42, Text: "Enter"}}
	s = waitForSend(t, transport)
	if !strings.Contains(s.text, "How much") {
		t.Fatalf("expected amount prompt, got %q", s.text)
	}
	if s.options != nil {
		t.Fatal("amount prompt expects free text, not options")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}
}

func TestRunKeepsChatsIndependent(t *testing.T) {
	b, transport := newTestBot(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	transport.inbound <- []telegram.Inbound{
		{ChatID: 1, Text: "Enter"},
		{ChatID: 2, Text: "Analyze"},
	}

	replies := map[int64]string{}
	for i := 0; i < 2; i++ {
		s := waitForSend(t, transport)
		replies[s.chatID] = s.text
	}

	if !strings.Contains(replies[1], "How much") {
		t.Errorf("chat 1 got %q", replies[1])
	}
	if !strings.Contains(replies[2], "period") {
		t.Errorf("chat 2 got %q", replies[2])
	}
}
