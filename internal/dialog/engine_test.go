package dialog

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"spendingcalc/internal/core"
	"spendingcalc/internal/services"
	"spendingcalc/internal/session"
	"spendingcalc/internal/storage"
)

var testNow = time.Date(2023, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*Engine, *services.EntryService, session.Store) {
	t.Helper()
	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	svc := services.NewEntryService(repo, nil)
	t.Cleanup(func() { svc.Close() })

	store := session.NewStore()
	return NewEngine(store, svc, func() time.Time { return testNow }), svc, store
}

// send runs one turn and fails the test on a storage error.
func send(t *testing.T, e *Engine, chatID int64, text string) Reply {
	t.Helper()
	reply, err := e.HandleMessage(context.Background(), chatID, text)
	if err != nil {
		t.Fatalf("HandleMessage(%q): %v", text, err)
	}
	return reply
}

func converse(t *testing.T, e *Engine, chatID int64, texts ...string) Reply {
	t.Helper()
	var reply Reply
	for _, text := range texts {
		reply = send(t, e, chatID, text)
	}
	return reply
}

func TestEnterFlowEndToEnd(t *testing.T) {
	e, svc, store := newTestEngine(t)
	ctx := context.Background()

	reply := converse(t, e, 42, ButtonEnter, "12.50", "Groceries", ButtonToday, ButtonNoSave)

	if !strings.Contains(reply.Text, "Saved") {
		t.Fatalf("expected save confirmation, got %q", reply.Text)
	}
	if store.Len() != 0 {
		t.Fatal("session should be cleared after saving")
	}

	entries, err := svc.ListEntries(ctx, 42, "", core.PeriodAll, testNow)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	got := entries[0]
	if got.Value.Cents != 1250 || got.Category != "Groceries" || got.Comment != "" {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if got.Date.ISO() != "2023-06-15" {
		t.Fatalf("expected today's date, got %s", got.Date.ISO())
	}

	sums, err := svc.Aggregate(ctx, 42, "", core.PeriodAll, testNow)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(sums) != 1 || sums[0].Category != "Groceries" || sums[0].Total.Cents != 1250 {
		t.Fatalf("expected [Groceries 12.50], got %v", sums)
	}
}

func TestEnterFlowWithComment(t *testing.T) {
	e, svc, _ := newTestEngine(t)

	converse(t, e, 42, ButtonEnter, "7", "Food", ButtonYesterday, ButtonComment, "lunch with Sam")

	entries, err := svc.ListEntries(context.Background(), 42, "", core.PeriodAll, testNow)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Comment != "lunch with Sam" {
		t.Fatalf("expected comment to be saved, got %v", entries)
	}
	if entries[0].Date.ISO() != "2023-06-14" {
		t.Fatalf("expected yesterday, got %s", entries[0].Date.ISO())
	}
}

func TestInvalidInputKeepsState(t *testing.T) {
	e, _, store := newTestEngine(t)

	send(t, e, 42, ButtonEnter)

	// Bad amount: state and session stay put.
	reply := send(t, e, 42, "not money")
	if reply.Text != msgInvalidAmount {
		t.Fatalf("expected invalid amount message, got %q", reply.Text)
	}
	sess, ok := store.Get(42)
	if !ok || sess.State != StateEnterValue {
		t.Fatalf("expected to stay in EnterValue, got %v", sess)
	}

	// Valid amount still accepted afterwards.
	send(t, e, 42, "3,50")
	sess, _ = store.Get(42)
	if sess.State != StateEnterTag || sess.Value.Cents != 350 {
		t.Fatalf("expected EnterTag with 350 cents, got %+v", sess)
	}

	// Bad date keeps the date step.
	send(t, e, 42, "Stuff")
	reply = send(t, e, 42, "99.99")
	if reply.Text != msgInvalidDate {
		t.Fatalf("expected invalid date message, got %q", reply.Text)
	}
	reply = send(t, e, 42, "1.1.2024")
	if reply.Text != msgFutureDate {
		t.Fatalf("expected future date message, got %q", reply.Text)
	}
	sess, _ = store.Get(42)
	if sess.State != StateEnterDate {
		t.Fatalf("expected to stay in EnterDate, got %s", sess.State)
	}
}

func TestReservedCategoryNameRejected(t *testing.T) {
	e, _, store := newTestEngine(t)

	converse(t, e, 42, ButtonEnter, "5")
	reply := send(t, e, 42, "All")
	if reply.Text != msgInvalidCategory {
		t.Fatalf("expected reserved name rejection, got %q", reply.Text)
	}
	sess, _ := store.Get(42)
	if sess.State != StateEnterTag {
		t.Fatalf("expected to stay in EnterTag, got %s", sess.State)
	}
}

func TestCategoryReuseCreatesNoDuplicate(t *testing.T) {
	e, svc, _ := newTestEngine(t)

	converse(t, e, 42, ButtonEnter, "5", "Groceries", ButtonToday, ButtonNoSave)
	converse(t, e, 42, ButtonEnter, "6", "Groceries", ButtonToday, ButtonNoSave)

	names, err := svc.ListCategories(context.Background(), 42)
	if err != nil {
		t.Fatalf("list categories: %v", err)
	}
	if len(names) != 1 || names[0] != "Groceries" {
		t.Fatalf("expected exactly one Groceries category, got %v", names)
	}
}

func TestAnalysisAggregate(t *testing.T) {
	e, _, store := newTestEngine(t)

	converse(t, e, 42, ButtonEnter, "12.50", "Groceries", ButtonToday, ButtonNoSave)
	converse(t, e, 42, ButtonEnter, "80", "Rent", ButtonToday, ButtonNoSave)

	reply := converse(t, e, 42, ButtonAnalyze, ButtonPeriodAll, core.ReservedCategory)
	if !strings.Contains(reply.Text, "Groceries: 12.50 €") || !strings.Contains(reply.Text, "Rent: 80.00 €") {
		t.Fatalf("unexpected aggregate text: %q", reply.Text)
	}
	if !strings.Contains(reply.Text, "Total: 92.50 €") {
		t.Fatalf("expected grand total, got %q", reply.Text)
	}

	// Single category filter returns one row and no total line.
	converse(t, e, 42, ButtonShowEntries, ButtonNo)
	reply = converse(t, e, 42, ButtonAnalyze, ButtonPeriodAll, "Rent")
	if strings.Contains(reply.Text, "Groceries") || !strings.Contains(reply.Text, "Rent: 80.00 €") {
		t.Fatalf("unexpected filtered aggregate: %q", reply.Text)
	}

	converse(t, e, 42, ButtonBack)
	if store.Len() != 0 {
		t.Fatal("back should clear the session")
	}
}

func TestAnalysisEmptyWindow(t *testing.T) {
	e, _, store := newTestEngine(t)

	reply := converse(t, e, 42, ButtonAnalyze, ButtonPeriod7Day, core.ReservedCategory)
	if reply.Text != msgNoEntries {
		t.Fatalf("expected no-entries message, got %q", reply.Text)
	}
	if store.Len() != 0 {
		t.Fatal("empty result should return to idle")
	}
}

func TestEditValueSaveAndDiscard(t *testing.T) {
	e, svc, _ := newTestEngine(t)
	ctx := context.Background()

	converse(t, e, 42, ButtonEnter, "12.50", "Groceries", ButtonToday, ButtonNoSave)
	id := onlyEntryID(t, svc)

	// Stage a new value but answer No: the record stays unchanged.
	reply := converse(t, e, 42,
		ButtonAnalyze, ButtonPeriodAll, "Groceries",
		ButtonShowEntries, ButtonYes, "1",
		ButtonEditValue, "99", ButtonNo)
	if reply.Text != msgDiscarded {
		t.Fatalf("expected discard message, got %q", reply.Text)
	}
	entry, err := svc.GetEntry(ctx, id)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if entry.Value.Cents != 1250 {
		t.Fatalf("entry should be unchanged, got %d cents", entry.Value.Cents)
	}

	// Same edit confirmed with Yes persists exactly the staged value.
	reply = converse(t, e, 42,
		ButtonAnalyze, ButtonPeriodAll, "Groceries",
		ButtonShowEntries, ButtonYes, "1",
		ButtonEditValue, "99", ButtonYes)
	if reply.Text != msgChangesSaved {
		t.Fatalf("expected save message, got %q", reply.Text)
	}
	entry, err = svc.GetEntry(ctx, id)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if entry.Value.Cents != 9900 {
		t.Fatalf("expected 9900 cents, got %d", entry.Value.Cents)
	}
}

func TestEditDateAndComment(t *testing.T) {
	e, svc, _ := newTestEngine(t)
	ctx := context.Background()

	converse(t, e, 42, ButtonEnter, "5", "Groceries", ButtonToday, ButtonNoSave)
	id := onlyEntryID(t, svc)

	converse(t, e, 42,
		ButtonAnalyze, ButtonPeriodAll, "Groceries",
		ButtonShowEntries, ButtonYes, "1",
		ButtonEditDate, "1.6", ButtonYes)
	entry, err := svc.GetEntry(ctx, id)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if entry.Date.ISO() != "2023-06-01" {
		t.Fatalf("expected 2023-06-01, got %s", entry.Date.ISO())
	}

	converse(t, e, 42,
		ButtonAnalyze, ButtonPeriodAll, "Groceries",
		ButtonShowEntries, ButtonYes, "1",
		ButtonEditComment, "corrected", ButtonYes)
	entry, err = svc.GetEntry(ctx, id)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if entry.Comment != "corrected" {
		t.Fatalf("expected comment to be updated, got %q", entry.Comment)
	}
}

func TestSelectIndexBounds(t *testing.T) {
	e, _, store := newTestEngine(t)

	converse(t, e, 42, ButtonEnter, "5", "Groceries", ButtonToday, ButtonNoSave)
	converse(t, e, 42, ButtonAnalyze, ButtonPeriodAll, "Groceries", ButtonShowEntries, ButtonYes)

	for _, bad := range []string{"0", "2", "-1", "x"} {
		reply := send(t, e, 42, bad)
		if reply.Text != msgInvalid {
			t.Fatalf("index %q should be invalid, got %q", bad, reply.Text)
		}
		sess, _ := store.Get(42)
		if sess.State != StateAnalysisSelect {
			t.Fatalf("index %q should keep state, got %s", bad, sess.State)
		}
	}

	// The 1-based index 1 selects the only entry.
	reply := send(t, e, 42, "1")
	if !strings.Contains(reply.Text, "Groceries") {
		t.Fatalf("expected entry preview, got %q", reply.Text)
	}
	sess, _ := store.Get(42)
	if sess.State != StateAnalysisEdit || sess.Selected == nil || sess.Entries != nil {
		t.Fatalf("expected selected entry and dropped cache, got %+v", sess)
	}
}

func TestDeleteEntryFlow(t *testing.T) {
	e, svc, _ := newTestEngine(t)

	converse(t, e, 42, ButtonEnter, "5", "Groceries", ButtonToday, ButtonNoSave)

	reply := converse(t, e, 42,
		ButtonAnalyze, ButtonPeriodAll, "Groceries",
		ButtonShowEntries, ButtonYes, "1",
		ButtonDelete, ButtonYes)
	if reply.Text != msgDeleted {
		t.Fatalf("expected delete confirmation, got %q", reply.Text)
	}

	entries, err := svc.ListEntries(context.Background(), 42, "", core.PeriodAll, testNow)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries after delete, got %v", entries)
	}
}

func TestStaleSelectionAbortsToMain(t *testing.T) {
	e, svc, store := newTestEngine(t)

	converse(t, e, 42, ButtonEnter, "5", "Groceries", ButtonToday, ButtonNoSave)
	id := onlyEntryID(t, svc)

	converse(t, e, 42,
		ButtonAnalyze, ButtonPeriodAll, "Groceries",
		ButtonShowEntries, ButtonYes, "1", ButtonDelete)

	// The entry disappears underneath the staged confirmation.
	if err := svc.DeleteEntry(context.Background(), 42, id); err != nil {
		t.Fatalf("delete entry: %v", err)
	}

	reply := send(t, e, 42, ButtonYes)
	if reply.Text != msgEntryGone {
		t.Fatalf("expected recoverable abort, got %q", reply.Text)
	}
	if store.Len() != 0 {
		t.Fatal("session should be cleared after abort")
	}
}

func TestStartResetsConversation(t *testing.T) {
	e, _, store := newTestEngine(t)

	converse(t, e, 42, ButtonEnter, "5")
	reply := send(t, e, 42, "/start")
	if reply.Text != msgGreeting {
		t.Fatalf("expected greeting, got %q", reply.Text)
	}
	if store.Len() != 0 {
		t.Fatal("/start should clear the session")
	}
}

func TestConversationsAreIndependent(t *testing.T) {
	e, svc, _ := newTestEngine(t)
	ctx := context.Background()

	// Two chats interleave their turns without stepping on each other.
	send(t, e, 1, ButtonEnter)
	send(t, e, 2, ButtonEnter)
	send(t, e, 1, "10")
	send(t, e, 2, "20")
	send(t, e, 1, "Food")
	send(t, e, 2, "Travel")
	converse(t, e, 1, ButtonToday, ButtonNoSave)
	converse(t, e, 2, ButtonToday, ButtonNoSave)

	for chat, want := range map[int64]string{1: "Food", 2: "Travel"} {
		entries, err := svc.ListEntries(ctx, chat, "", core.PeriodAll, testNow)
		if err != nil {
			t.Fatalf("list entries: %v", err)
		}
		if len(entries) != 1 || entries[0].Category != want {
			t.Fatalf("chat %d: expected one %s entry, got %v", chat, want, entries)
		}
	}
}

func TestSevenDayWindowInDialog(t *testing.T) {
	e, _, _ := newTestEngine(t)

	// 6 days ago is inside the window, 8 days ago is not.
	converse(t, e, 42, ButtonEnter, "10", "Groceries", "9.6", ButtonNoSave)
	converse(t, e, 42, ButtonEnter, "20", "Groceries", "7.6", ButtonNoSave)

	reply := converse(t, e, 42, ButtonAnalyze, ButtonPeriod7Day, "Groceries")
	if !strings.Contains(reply.Text, "Groceries: 10.00 €") {
		t.Fatalf("expected only the 6-day-old entry, got %q", reply.Text)
	}
}

func onlyEntryID(t *testing.T, svc *services.EntryService) int64 {
	t.Helper()
	entries, err := svc.ListEntries(context.Background(), 42, "", core.PeriodAll, testNow)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one entry, got %d", len(entries))
	}
	return entries[0].ID
}
