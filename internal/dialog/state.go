package dialog

import (
	"fmt"
	"strings"

	"spendingcalc/internal/core"
	"spendingcalc/internal/session"
)

// Dialog states. The conversation is a strict tree with two branches, Enter
// and Analyze, both terminating back at Main. A conversation without a
// session is idle, which behaves like Main.
const (
	StateMain           session.State = "Main"
	StateEnterValue     session.State = "EnterValue"
	StateEnterTag       session.State = "EnterTag"
	StateEnterDate      session.State = "EnterDate"
	StateEnterSave      session.State = "EnterSave"
	StateEnterComment   session.State = "EnterComment"
	StateAnalysisMenu   session.State = "AnalysisMenu"
	StateAnalysisTime   session.State = "AnalysisTime"
	StateAnalysisTag    session.State = "AnalysisTag"
	StateAnalysisShow   session.State = "AnalysisShow"
	StateAnalysisSelect session.State = "AnalysisSelect"
	StateAnalysisEdit   session.State = "AnalysisEdit"
	StateEditValue      session.State = "EditValue"
	StateEditDate       session.State = "EditDate"
	StateEditComment    session.State = "EditComment"
	StateEditSave       session.State = "EditSave"
	StateEditRemove     session.State = "EditRemove"
)

// Button labels. The transport renders them as an ordered grid of selectable
// options; matching is on the literal text the user sends back.
const (
	ButtonEnter       = "Enter"
	ButtonAnalyze     = "Analyze"
	ButtonToday       = "Today"
	ButtonYesterday   = "Yesterday"
	ButtonComment     = "Comment"
	ButtonNoSave      = "No & Save"
	ButtonShowEntries = "Show entries"
	ButtonBack        = "Back"
	ButtonYes         = "Yes"
	ButtonNo          = "No"
	ButtonEditValue   = "Edit value"
	ButtonEditDate    = "Edit date"
	ButtonEditComment = "Edit comment"
	ButtonDelete      = "Delete"

	ButtonPeriod7Day  = "Last 7 days"
	ButtonPeriod30Day = "Last 30 days"
	ButtonPeriodMonth = "This month"
	ButtonPeriodYear  = "This year"
	ButtonPeriodAll   = "All time"
)

var periodByLabel = map[string]core.Period{
	ButtonPeriod7Day:  core.Period7Day,
	ButtonPeriod30Day: core.Period30Day,
	ButtonPeriodMonth: core.PeriodMonth,
	ButtonPeriodYear:  core.PeriodYear,
	ButtonPeriodAll:   core.PeriodAll,
}

// Reply is what the transport should render for the current turn. A nil
// Options grid means free text is expected.
type Reply struct {
	Text    string
	Options [][]string
}

const (
	msgGreeting        = "Hi! I keep track of your spending. What would you like to do?"
	msgMainMenu        = "What would you like to do?"
	msgInvalid         = "Invalid input, please try again."
	msgInvalidAmount   = "That is not an amount I understand. Try something like 12.50."
	msgInvalidCategory = "That name cannot be used as a category."
	msgInvalidDate     = "That is not a date I understand. Try something like 24.12 or 24.12.2023."
	msgFutureDate      = "That date lies in the future."
	msgAskValue        = "How much did you spend?"
	msgAskCategory     = "Which category does it belong to?"
	msgAskDate         = "When was it?"
	msgAskSave         = "Do you want to add a comment?"
	msgAskComment      = "Go ahead, what should the comment say?"
	msgAskPeriod       = "Which period are you interested in?"
	msgAskAnalysisTag  = "Which category?"
	msgAskIndex        = "Send the number of the entry you want to edit."
	msgAskEditAction   = "What do you want to do with it?"
	msgAskNewValue     = "What is the new amount?"
	msgAskNewDate      = "What is the new date?"
	msgAskNewComment   = "What should the new comment say?"
	msgConfirmDelete   = "Really delete this entry?"
	msgNoEntries       = "No entries found for that selection."
	msgEntryGone       = "That entry no longer exists."
	msgCategoryGone    = "That category no longer exists."
	msgDiscarded       = "Nothing was changed."
	msgDeleted         = "Entry deleted."
	msgChangesSaved    = "Changes saved."
)

func mainMenuReply(text string) Reply {
	return Reply{Text: text, Options: [][]string{{ButtonEnter, ButtonAnalyze}}}
}

func periodOptions() [][]string {
	return [][]string{
		{ButtonPeriod7Day, ButtonPeriod30Day},
		{ButtonPeriodMonth, ButtonPeriodYear},
		{ButtonPeriodAll, ButtonBack},
	}
}

func dateOptions() [][]string {
	return [][]string{{ButtonToday, ButtonYesterday}}
}

func saveOptions() [][]string {
	return [][]string{{ButtonComment, ButtonNoSave}}
}

func yesNoOptions() [][]string {
	return [][]string{{ButtonYes, ButtonNo}}
}

func editOptions() [][]string {
	return [][]string{
		{ButtonEditValue, ButtonEditDate},
		{ButtonEditComment, ButtonDelete},
		{ButtonBack},
	}
}

// grid lays names out two per row for the option keyboard.
func grid(names []string) [][]string {
	var rows [][]string
	for i := 0; i < len(names); i += 2 {
		end := i + 2
		if end > len(names) {
			end = len(names)
		}
		rows = append(rows, names[i:end])
	}
	return rows
}

func formatEntry(e core.Entry) string {
	s := fmt.Sprintf("%s € for %s on %s", e.Value, e.Category, e.Date.Display())
	if e.Comment != "" {
		s += fmt.Sprintf(" (%s)", e.Comment)
	}
	return s
}

func formatEntryList(entries []core.Entry) string {
	var b strings.Builder
	for i, e := range entries {
		fmt.Fprintf(&b, "%d: %s\n", i+1, formatEntry(e))
	}
	return b.String()
}

func formatSums(sums []core.CategorySum) string {
	var b strings.Builder
	total := core.Money{}
	for _, s := range sums {
		fmt.Fprintf(&b, "%s: %s €\n", s.Category, s.Total)
		total = total.Add(s.Total)
	}
	if len(sums) > 1 {
		fmt.Fprintf(&b, "Total: %s €\n", total)
	}
	return b.String()
}
