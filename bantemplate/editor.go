package bantemplate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// MinReasonLength is the editor's minimum trimmed reason length.
	MinReasonLength = 3

	SelectionCustom    = "custom"
	defaultSelection   = "2 days"
	defaultCustomUnits = UnitDays
)

// EditorInput is the state of the template editor when it is submitted.
// SelectedDuration is a preset from DurationPresets, "permanent" or "custom"; the custom
// fields are only read for "custom".
type EditorInput struct {
	ID               string   `json:"id,omitempty"`
	Reason           string   `json:"reason"`
	SelectedDuration string   `json:"selectedDuration"`
	CustomMultiplier string   `json:"customMultiplier,omitempty"`
	CustomUnit       Unit     `json:"customUnit,omitempty"`
	Text             *string  `json:"text,omitempty"`
	Spacers          []Spacer `json:"spacers,omitempty"`
}

// EditorError is an editor-level rejection, meant to be shown next to Field.
type EditorError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *EditorError) Error() string {
	return e.Field + ": " + e.Message
}

// IDFunc generates identifiers for new templates.
type IDFunc func() (string, error)

// NewID returns a random IDLength character identifier.
func NewID() (string, error) {
	return gonanoid.New(IDLength)
}

var lineBreaks = regexp.MustCompile(`\s*\r*\n+\s*`)

// NormalizeReason trims the reason and folds line breaks into single spaces.
func NormalizeReason(reason string) string {
	return strings.TrimSpace(lineBreaks.ReplaceAllString(reason, " "))
}

// PrepareTemplate applies the editor policy to in and validates the result.
// Incomplete spacer rows are dropped without error. When in.ID is empty, newID
// provides one; a nil newID uses NewID.
func PrepareTemplate(in EditorInput, newID IDFunc) (Template, error) {
	reason := NormalizeReason(in.Reason)
	if len([]rune(reason)) < MinReasonLength {
		return Template{}, &EditorError{
			Field:   "reason",
			Message: fmt.Sprintf("Reason must be at least %d characters long", MinReasonLength),
		}
	}

	spacers := completeSpacers(in.Spacers)
	names := make([]spacerSchema, len(spacers))
	for i, s := range spacers {
		names[i] = spacerSchema{Name: s.Name}
	}
	if dups := duplicateNames(names); len(dups) > 0 {
		return Template{}, &EditorError{
			Field:   "spacers",
			Message: "Duplicate spacer names: " + strings.Join(dups, ", "),
		}
	}

	duration, err := editorDuration(in)
	if err != nil {
		return Template{}, err
	}

	id := in.ID
	if id == "" {
		if newID == nil {
			newID = NewID
		}
		if id, err = newID(); err != nil {
			return Template{}, fmt.Errorf("generate template id: %w", err)
		}
	}

	tmpl := Template{
		ID:       id,
		Reason:   reason,
		Duration: duration,
		Text:     in.Text,
		Spacers:  spacers,
	}

	return ValidateTemplate(tmpl.Candidate())
}

// completeSpacers keeps rows whose name and placeholder are both non-blank.
// Names are trimmed; placeholders are kept as typed. An empty result is nil.
func completeSpacers(rows []Spacer) []Spacer {
	var spacers []Spacer
	for _, row := range rows {
		name := strings.TrimSpace(row.Name)
		if name == "" || strings.TrimSpace(row.Placeholder) == "" {
			continue
		}
		spacers = append(spacers, Spacer{Name: name, Placeholder: row.Placeholder})
	}
	return spacers
}

func editorDuration(in EditorInput) (Duration, error) {
	switch in.SelectedDuration {
	case PermanentToken:
		return Permanent(), nil
	case SelectionCustom:
		multiplier, err := strconv.Atoi(strings.TrimSpace(in.CustomMultiplier))
		if err != nil || multiplier <= 0 {
			return Duration{}, &EditorError{Field: "durationMultiplier", Message: "Custom duration must be a positive number"}
		}
		d, err := Relative(multiplier, in.CustomUnit)
		if err != nil {
			return Duration{}, &EditorError{Field: "durationUnits", Message: err.Error()}
		}
		return d, nil
	}

	d, err := ParseDuration(in.SelectedDuration)
	if err != nil {
		return Duration{}, &EditorError{Field: "duration", Message: err.Error()}
	}
	return d, nil
}

// EditorStateFor returns the editor state for editing t, or the blank state for a new
// template when t is nil.
func EditorStateFor(t *Template) EditorInput {
	if t == nil {
		return EditorInput{
			SelectedDuration: defaultSelection,
			CustomUnit:       defaultCustomUnits,
		}
	}

	state := EditorInput{
		ID:         t.ID,
		Reason:     t.Reason,
		Text:       t.Text,
		CustomUnit: defaultCustomUnits,
		Spacers:    append([]Spacer(nil), t.Spacers...),
	}

	if t.Duration.IsPermanent() || t.Duration.IsPreset() {
		state.SelectedDuration = t.Duration.LongString()
	} else {
		state.SelectedDuration = SelectionCustom
		state.CustomMultiplier = strconv.Itoa(t.Duration.Value())
		state.CustomUnit = t.Duration.Unit()
	}

	return state
}

// InsertToken replaces text[start:end] with the token for name and returns the new text
// and the cursor position right after the inserted token. Offsets are byte offsets and
// are clamped to the text and moved back to the start of any rune they fall inside.
func InsertToken(text string, start, end int, name string) (string, int) {
	start = runeStart(text, clamp(start, 0, len(text)))
	end = runeStart(text, clamp(end, start, len(text)))

	token := Token(name)
	return text[:start] + token + text[end:], start + len(token)
}

func runeStart(text string, i int) int {
	for i > 0 && i < len(text) && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
