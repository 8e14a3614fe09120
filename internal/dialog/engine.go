// Package dialog drives each chat through the multi-step entry and analysis
// conversations. Every turn is one short validate-mutate-persist-respond
// unit: the incoming text is checked against the grammar of the chat's
// current state, the session is updated, and the persistence layer is called
// at most once, only when a step finalizes data.
package dialog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"spendingcalc/internal/core"
	"spendingcalc/internal/services"
	"spendingcalc/internal/session"
)

// Engine is the dialog state machine. It is safe for concurrent use across
// distinct conversations; the transport guarantees at most one in-flight
// message per conversation.
type Engine struct {
	sessions session.Store
	service  *services.EntryService
	now      func() time.Time
}

// NewEngine creates an engine. now may be nil, in which case time.Now is
// used; tests inject a fixed clock.
func NewEngine(sessions session.Store, service *services.EntryService, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{sessions: sessions, service: service, now: now}
}

// HandleMessage advances the conversation by one turn and returns what to
// render. Input that does not match the current state's grammar produces an
// "invalid input" reply and leaves state and session untouched. A returned
// error means storage failed; the session is kept so the user's progress is
// not lost on retry.
func (e *Engine) HandleMessage(ctx context.Context, chatID int64, text string) (Reply, error) {
	text = strings.TrimSpace(text)

	if text == "/start" {
		e.sessions.Delete(chatID)
		return mainMenuReply(msgGreeting), nil
	}

	sess, ok := e.sessions.Get(chatID)
	if !ok {
		sess = &session.Session{State: StateMain}
	}

	switch sess.State {
	case StateMain:
		return e.handleMain(ctx, chatID, text)
	case StateEnterValue:
		return e.handleEnterValue(ctx, chatID, sess, text)
	case StateEnterTag:
		return e.handleEnterTag(ctx, chatID, sess, text)
	case StateEnterDate:
		return e.handleEnterDate(chatID, sess, text)
	case StateEnterSave:
		return e.handleEnterSave(ctx, chatID, sess, text)
	case StateEnterComment:
		return e.finalizeEntry(ctx, chatID, sess, text)
	case StateAnalysisMenu:
		return e.handleAnalysisMenu(ctx, chatID, sess, text)
	case StateAnalysisTime:
		return e.handleAnalysisTime(ctx, chatID, sess, text)
	case StateAnalysisTag:
		return e.handleAnalysisTag(ctx, chatID, sess, text)
	case StateAnalysisShow:
		return e.handleAnalysisShow(chatID, sess, text)
	case StateAnalysisSelect:
		return e.handleAnalysisSelect(chatID, sess, text)
	case StateAnalysisEdit:
		return e.handleAnalysisEdit(chatID, sess, text)
	case StateEditValue:
		return e.handleEditValue(chatID, sess, text)
	case StateEditDate:
		return e.handleEditDate(chatID, sess, text)
	case StateEditComment:
		return e.stageEdit(chatID, sess, sess.Selected.WithComment(text))
	case StateEditSave:
		return e.handleEditSave(ctx, chatID, sess, text)
	case StateEditRemove:
		return e.handleEditRemove(ctx, chatID, sess, text)
	default:
		// Unknown state can only come from a stale session after a code
		// change; recover to the main menu.
		e.sessions.Delete(chatID)
		return mainMenuReply(msgMainMenu), nil
	}
}

func (e *Engine) handleMain(ctx context.Context, chatID int64, text string) (Reply, error) {
	switch text {
	case ButtonEnter:
		e.sessions.Put(chatID, &session.Session{State: StateEnterValue})
		return Reply{Text: msgAskValue}, nil
	case ButtonAnalyze:
		e.sessions.Put(chatID, &session.Session{State: StateAnalysisMenu})
		return Reply{Text: msgAskPeriod, Options: periodOptions()}, nil
	default:
		return mainMenuReply(msgInvalid), nil
	}
}

func (e *Engine) handleEnterValue(ctx context.Context, chatID int64, sess *session.Session, text string) (Reply, error) {
	value, err := core.ParseMoney(text)
	if err != nil {
		return Reply{Text: msgInvalidAmount}, nil
	}

	categories, err := e.service.ListCategories(ctx, chatID)
	if err != nil {
		return Reply{}, fmt.Errorf("list categories: %w", err)
	}

	sess.Value = value
	sess.Categories = categories
	sess.State = StateEnterTag
	e.sessions.Put(chatID, sess)

	return Reply{Text: msgAskCategory, Options: grid(categories)}, nil
}

func (e *Engine) handleEnterTag(ctx context.Context, chatID int64, sess *session.Session, text string) (Reply, error) {
	if !core.ValidCategoryName(text) {
		return Reply{Text: msgInvalidCategory, Options: grid(sess.Categories)}, nil
	}

	if !slices.Contains(sess.Categories, text) {
		if err := e.service.CreateCategory(ctx, chatID, text); err != nil {
			return Reply{}, fmt.Errorf("create category: %w", err)
		}
	}

	sess.Category = text
	sess.State = StateEnterDate
	e.sessions.Put(chatID, sess)

	return Reply{Text: msgAskDate, Options: dateOptions()}, nil
}

func (e *Engine) handleEnterDate(chatID int64, sess *session.Session, text string) (Reply, error) {
	date, reply, ok := e.parseDate(text)
	if !ok {
		return reply, nil
	}

	sess.Date = date
	sess.State = StateEnterSave
	e.sessions.Put(chatID, sess)

	return Reply{Text: msgAskSave, Options: saveOptions()}, nil
}

func (e *Engine) handleEnterSave(ctx context.Context, chatID int64, sess *session.Session, text string) (Reply, error) {
	switch text {
	case ButtonNoSave:
		return e.finalizeEntry(ctx, chatID, sess, "")
	case ButtonComment:
		sess.State = StateEnterComment
		e.sessions.Put(chatID, sess)
		return Reply{Text: msgAskComment}, nil
	default:
		return Reply{Text: msgInvalid, Options: saveOptions()}, nil
	}
}

// finalizeEntry is the single persistence call of the Enter branch.
func (e *Engine) finalizeEntry(ctx context.Context, chatID int64, sess *session.Session, comment string) (Reply, error) {
	_, err := e.service.CreateEntry(ctx, chatID, sess.Category, sess.Value, sess.Date, comment)
	if errors.Is(err, core.ErrNotFound) {
		e.sessions.Delete(chatID)
		return mainMenuReply(msgCategoryGone), nil
	}
	if err != nil {
		return Reply{}, fmt.Errorf("create entry: %w", err)
	}

	saved := core.Entry{Category: sess.Category, Value: sess.Value, Date: sess.Date, Comment: comment}
	e.sessions.Delete(chatID)
	return mainMenuReply("Saved: " + formatEntry(saved)), nil
}

func (e *Engine) handleAnalysisMenu(ctx context.Context, chatID int64, sess *session.Session, text string) (Reply, error) {
	if text == ButtonBack {
		e.sessions.Delete(chatID)
		return mainMenuReply(msgMainMenu), nil
	}

	period, ok := periodByLabel[text]
	if !ok {
		return Reply{Text: msgInvalid, Options: periodOptions()}, nil
	}

	categories, err := e.service.ListCategories(ctx, chatID)
	if err != nil {
		return Reply{}, fmt.Errorf("list categories: %w", err)
	}

	sess.Period = period
	sess.Categories = categories
	sess.State = StateAnalysisTime
	e.sessions.Put(chatID, sess)

	options := grid(append([]string{core.ReservedCategory}, categories...))
	return Reply{Text: msgAskAnalysisTag, Options: options}, nil
}

func (e *Engine) handleAnalysisTime(ctx context.Context, chatID int64, sess *session.Session, text string) (Reply, error) {
	filter := ""
	if text != core.ReservedCategory {
		if !slices.Contains(sess.Categories, text) {
			options := grid(append([]string{core.ReservedCategory}, sess.Categories...))
			return Reply{Text: msgInvalid, Options: options}, nil
		}
		filter = text
	}

	sums, err := e.service.Aggregate(ctx, chatID, filter, sess.Period, e.now())
	if err != nil {
		return Reply{}, fmt.Errorf("aggregate: %w", err)
	}
	if len(sums) == 0 {
		e.sessions.Delete(chatID)
		return mainMenuReply(msgNoEntries), nil
	}

	sess.FilterCategory = filter
	sess.State = StateAnalysisTag
	e.sessions.Put(chatID, sess)

	options := [][]string{{ButtonShowEntries}, {ButtonBack}}
	return Reply{Text: formatSums(sums), Options: options}, nil
}

func (e *Engine) handleAnalysisTag(ctx context.Context, chatID int64, sess *session.Session, text string) (Reply, error) {
	switch text {
	case ButtonShowEntries:
		entries, err := e.service.ListEntries(ctx, chatID, sess.FilterCategory, sess.Period, e.now())
		if err != nil {
			return Reply{}, fmt.Errorf("list entries: %w", err)
		}
		if len(entries) == 0 {
			e.sessions.Delete(chatID)
			return mainMenuReply(msgNoEntries), nil
		}

		sess.Entries = entries
		sess.State = StateAnalysisShow
		e.sessions.Put(chatID, sess)

		body := formatEntryList(entries) + "Do you want to edit one of them?"
		return Reply{Text: body, Options: yesNoOptions()}, nil
	case ButtonBack:
		e.sessions.Delete(chatID)
		return mainMenuReply(msgMainMenu), nil
	default:
		return Reply{Text: msgInvalid, Options: [][]string{{ButtonShowEntries}, {ButtonBack}}}, nil
	}
}

func (e *Engine) handleAnalysisShow(chatID int64, sess *session.Session, text string) (Reply, error) {
	switch text {
	case ButtonYes:
		sess.State = StateAnalysisSelect
		e.sessions.Put(chatID, sess)
		return Reply{Text: msgAskIndex}, nil
	case ButtonNo:
		e.sessions.Delete(chatID)
		return mainMenuReply(msgMainMenu), nil
	default:
		return Reply{Text: msgInvalid, Options: yesNoOptions()}, nil
	}
}

func (e *Engine) handleAnalysisSelect(chatID int64, sess *session.Session, text string) (Reply, error) {
	// Displayed 1-based, resolved 0-based.
	idx, err := strconv.Atoi(text)
	if err != nil || idx < 1 || idx > len(sess.Entries) {
		return Reply{Text: msgInvalid}, nil
	}

	selected := sess.Entries[idx-1]
	sess.Selected = &selected
	sess.Entries = nil
	sess.State = StateAnalysisEdit
	e.sessions.Put(chatID, sess)

	return Reply{Text: formatEntry(selected) + "\n" + msgAskEditAction, Options: editOptions()}, nil
}

func (e *Engine) handleAnalysisEdit(chatID int64, sess *session.Session, text string) (Reply, error) {
	switch text {
	case ButtonEditValue:
		sess.State = StateEditValue
		e.sessions.Put(chatID, sess)
		return Reply{Text: msgAskNewValue}, nil
	case ButtonEditDate:
		sess.State = StateEditDate
		e.sessions.Put(chatID, sess)
		return Reply{Text: msgAskNewDate, Options: dateOptions()}, nil
	case ButtonEditComment:
		sess.State = StateEditComment
		e.sessions.Put(chatID, sess)
		return Reply{Text: msgAskNewComment}, nil
	case ButtonDelete:
		sess.State = StateEditRemove
		e.sessions.Put(chatID, sess)
		return Reply{Text: msgConfirmDelete + "\n" + formatEntry(*sess.Selected), Options: yesNoOptions()}, nil
	case ButtonBack:
		e.sessions.Delete(chatID)
		return mainMenuReply(msgMainMenu), nil
	default:
		return Reply{Text: msgInvalid, Options: editOptions()}, nil
	}
}

func (e *Engine) handleEditValue(chatID int64, sess *session.Session, text string) (Reply, error) {
	value, err := core.ParseMoney(text)
	if err != nil {
		return Reply{Text: msgInvalidAmount}, nil
	}
	return e.stageEdit(chatID, sess, sess.Selected.WithValue(value))
}

func (e *Engine) handleEditDate(chatID int64, sess *session.Session, text string) (Reply, error) {
	date, reply, ok := e.parseDate(text)
	if !ok {
		return reply, nil
	}
	return e.stageEdit(chatID, sess, sess.Selected.WithDate(date))
}

// stageEdit stores the mutated copy and asks for confirmation. Nothing is
// persisted until the user answers Yes.
func (e *Engine) stageEdit(chatID int64, sess *session.Session, staged core.Entry) (Reply, error) {
	sess.Staged = &staged
	sess.State = StateEditSave
	e.sessions.Put(chatID, sess)

	return Reply{Text: "Save as " + formatEntry(staged) + "?", Options: yesNoOptions()}, nil
}

func (e *Engine) handleEditSave(ctx context.Context, chatID int64, sess *session.Session, text string) (Reply, error) {
	switch text {
	case ButtonYes:
		err := e.service.UpdateEntry(ctx, chatID, *sess.Staged)
		if errors.Is(err, core.ErrNotFound) {
			e.sessions.Delete(chatID)
			return mainMenuReply(msgEntryGone), nil
		}
		if err != nil {
			return Reply{}, fmt.Errorf("update entry: %w", err)
		}
		e.sessions.Delete(chatID)
		return mainMenuReply(msgChangesSaved), nil
	case ButtonNo:
		e.sessions.Delete(chatID)
		return mainMenuReply(msgDiscarded), nil
	default:
		return Reply{Text: msgInvalid, Options: yesNoOptions()}, nil
	}
}

func (e *Engine) handleEditRemove(ctx context.Context, chatID int64, sess *session.Session, text string) (Reply, error) {
	switch text {
	case ButtonYes:
		err := e.service.DeleteEntry(ctx, chatID, sess.Selected.ID)
		if errors.Is(err, core.ErrNotFound) {
			e.sessions.Delete(chatID)
			return mainMenuReply(msgEntryGone), nil
		}
		if err != nil {
			return Reply{}, fmt.Errorf("delete entry: %w", err)
		}
		e.sessions.Delete(chatID)
		return mainMenuReply(msgDeleted), nil
	case ButtonNo:
		e.sessions.Delete(chatID)
		return mainMenuReply(msgMainMenu), nil
	default:
		return Reply{Text: msgInvalid, Options: yesNoOptions()}, nil
	}
}

// parseDate resolves the shared date grammar of the entry and edit dialogs:
// the Today/Yesterday buttons or free text for the normalizer. ok is false
// when the input was invalid, with reply carrying the user-facing message.
func (e *Engine) parseDate(text string) (core.Date, Reply, bool) {
	now := e.now()
	switch text {
	case ButtonToday:
		return core.DateOf(now), Reply{}, true
	case ButtonYesterday:
		return core.DateOf(now.AddDate(0, 0, -1)), Reply{}, true
	}

	date, err := core.NormalizeDate(text, now)
	if errors.Is(err, core.ErrFutureDate) {
		return core.Date{}, Reply{Text: msgFutureDate, Options: dateOptions()}, false
	}
	if err != nil {
		return core.Date{}, Reply{Text: msgInvalidDate, Options: dateOptions()}, false
	}
	return date, Reply{}, true
}
