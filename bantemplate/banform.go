package bantemplate

import (
	"strconv"
	"strings"
)

// ReasonTruncateLength is the longest reason shown in template lists.
const ReasonTruncateLength = 150

// Application is what the ban form shows after a template is applied.
type Application struct {
	Reason           string   `json:"reason"`
	Duration         Duration `json:"duration"`
	Selection        string   `json:"selection"`
	CustomMultiplier string   `json:"customMultiplier,omitempty"`
	CustomUnit       Unit     `json:"customUnit,omitempty"`
}

// ApplyTemplate resolves t with values and routes its duration to a preset selection, or
// to the custom fields when it is not a preset.
func ApplyTemplate(t Template, values map[string]string) Application {
	app := Application{
		Reason:   t.Reason,
		Duration: t.Duration,
	}
	if t.HasSpacers() {
		app.Reason = t.Resolve(values)
	}

	if t.Duration.IsPermanent() || t.Duration.IsPreset() {
		app.Selection = t.Duration.LongString()
	} else {
		app.Selection = SelectionCustom
		app.CustomMultiplier = strconv.Itoa(t.Duration.Value())
		app.CustomUnit = t.Duration.Unit()
	}

	return app
}

// InitialValues returns the blank spacer values a form starts with.
func InitialValues(t Template) map[string]string {
	values := make(map[string]string, len(t.Spacers))
	for _, spacer := range t.Spacers {
		values[spacer.Name] = ""
	}
	return values
}

// TruncateReason shortens reason to ReasonTruncateLength runes, ending in "...".
func TruncateReason(reason string) string {
	runes := []rune(reason)
	if len(runes) <= ReasonTruncateLength {
		return reason
	}
	return string(runes[:ReasonTruncateLength-3]) + "..."
}

// ListEntry is the one-line label of t in template pickers, e.g.
// "2d   Cheating (RDM) [2 spacers]".
func ListEntry(t Template) string {
	var b strings.Builder
	b.WriteString(padRight(t.Duration.ShortString(), 4))
	b.WriteString(" ")
	b.WriteString(TruncateReason(t.Reason))

	if n := len(t.Spacers); n > 0 {
		b.WriteString(" [")
		b.WriteString(strconv.Itoa(n))
		b.WriteString(" spacer")
		if n > 1 {
			b.WriteString("s")
		}
		b.WriteString("]")
	}

	return b.String()
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
