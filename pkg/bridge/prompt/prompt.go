// Package prompt builds the upstream session's system instructions from a
// call's business context. Pure string assembly; no I/O.
package prompt

import (
	"fmt"
	"strings"

	"github.com/vango-go/voicebridge/pkg/bridge/call"
)

const (
	defaultCallerName = "a customer"
	defaultTarget     = "the business"
	defaultTask       = "complete the requested task"
)

type opener struct {
	keywords []string
	line     string
}

// Ordered; the first template whose keyword appears in the task wins.
var openers = []opener{
	{
		keywords: []string{"order", "pizza", "food", "takeout", "delivery", "pickup", "restaurant"},
		line:     "Hi, I'd like to place an order.",
	},
	{
		keywords: []string{"car", "auto", "oil", "tire", "brake", "mechanic", "vehicle"},
		line:     "Hi, I'm calling about getting some work done on a car.",
	},
	{
		keywords: []string{"repair", "plumb", "electric", "hvac", "leak", "fix", "install"},
		line:     "Hi, I'm calling about a home repair job.",
	},
	{
		keywords: []string{"appointment", "schedule", "book", "reserve", "reschedule"},
		line:     "Hi, I'd like to schedule an appointment.",
	},
	{
		keywords: []string{"quote", "price", "cost", "estimate", "rate", "how much"},
		line:     "Hi, I'm calling to ask about pricing.",
	},
}

const genericOpener = "Hi, I'm calling on behalf of a customer."

// BuildInstructions renders the system instructions for one call. Missing
// context fields fall back to generic placeholders; there are no other
// failure modes.
func BuildInstructions(bc call.BusinessContext) string {
	target := strings.TrimSpace(bc.TargetName)
	if target == "" {
		target = defaultTarget
	}
	task := strings.TrimSpace(bc.TaskDescription)
	if task == "" {
		task = defaultTask
	}
	caller := strings.TrimSpace(bc.CallerIdentity)
	if caller == "" {
		caller = defaultCallerName
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are an assistant making a phone call to %s on behalf of %s.\n", target, caller)
	fmt.Fprintf(&b, "Your task: %s.\n", task)
	fmt.Fprintf(&b, "Open the call with: %q\n\n", openingLine(task))
	b.WriteString("Rules:\n")
	b.WriteString("- Be concise and natural; this is a real phone conversation.\n")
	fmt.Fprintf(&b, "- If asked who is calling, say you are calling for %s.\n", caller)
	b.WriteString("- When you hear a price or availability, use the extract_quote tool.\n")
	b.WriteString("- When a date or time is agreed, use the schedule_appointment tool.\n")
	b.WriteString("- When the task is done or cannot proceed, use the end_call tool, then say goodbye politely.\n")
	return b.String()
}

func openingLine(task string) string {
	lower := strings.ToLower(task)
	for _, o := range openers {
		for _, kw := range o.keywords {
			if strings.Contains(lower, kw) {
				return o.line
			}
		}
	}
	return genericOpener
}
