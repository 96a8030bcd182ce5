package bantemplate

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Unit is the time unit of a relative ban duration.
type Unit string

const (
	UnitHours  Unit = "hours"
	UnitDays   Unit = "days"
	UnitWeeks  Unit = "weeks"
	UnitMonths Unit = "months"
)

// PermanentToken is the literal used for permanent bans in strings and on the wire.
const PermanentToken = "permanent"

// Units lists the valid units in ascending order.
var Units = []Unit{UnitHours, UnitDays, UnitWeeks, UnitMonths}

var unitSuffixes = map[Unit]string{
	UnitHours:  "h",
	UnitDays:   "d",
	UnitWeeks:  "w",
	UnitMonths: "mo",
}

// Valid reports whether u is one of the known units.
func (u Unit) Valid() bool {
	_, ok := unitSuffixes[u]
	return ok
}

// DurationPresets are the durations offered by the duration dropdowns.
var DurationPresets = []string{
	"2 hours",
	"8 hours",
	"1 days",
	"2 days",
	"1 weeks",
	"2 weeks",
	PermanentToken,
}

// Duration is either permanent or a positive amount of a Unit.
// The zero value is permanent.
type Duration struct {
	value int
	unit  Unit
}

// DurationParseError describes why a duration could not be built.
type DurationParseError struct {
	Input  string
	Reason string
}

func (e *DurationParseError) Error() string {
	return fmt.Sprintf("invalid duration %q: %s", e.Input, e.Reason)
}

// Permanent returns the permanent duration.
func Permanent() Duration {
	return Duration{}
}

// Relative returns a duration of value units.
func Relative(value int, unit Unit) (Duration, error) {
	input := fmt.Sprintf("%d %s", value, unit)
	if value <= 0 {
		return Duration{}, &DurationParseError{Input: input, Reason: "multiplier must be a positive integer"}
	}
	if !unit.Valid() {
		return Duration{}, &DurationParseError{Input: input, Reason: fmt.Sprintf("unknown unit %q", unit)}
	}

	return Duration{value: value, unit: unit}, nil
}

// MustRelative is like Relative but panics on invalid input. Intended for literals.
func MustRelative(value int, unit Unit) Duration {
	d, err := Relative(value, unit)
	if err != nil {
		panic(err)
	}
	return d
}

// ParseDuration is the inverse of LongString: it accepts "permanent" or "<value> <unit>".
func ParseDuration(s string) (Duration, error) {
	if s == PermanentToken {
		return Permanent(), nil
	}

	valueStr, unitStr, found := strings.Cut(s, " ")
	if !found {
		return Duration{}, &DurationParseError{Input: s, Reason: "expected \"permanent\" or \"<value> <unit>\""}
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return Duration{}, &DurationParseError{Input: s, Reason: "multiplier must be a positive integer"}
	}

	unit := Unit(unitStr)
	if !unit.Valid() {
		return Duration{}, &DurationParseError{Input: s, Reason: fmt.Sprintf("unknown unit %q", unitStr)}
	}

	if value <= 0 {
		return Duration{}, &DurationParseError{Input: s, Reason: "multiplier must be a positive integer"}
	}

	return Duration{value: value, unit: unit}, nil
}

func (d Duration) IsPermanent() bool { return d.value == 0 }

// Value is the multiplier of a relative duration, 0 when permanent.
func (d Duration) Value() int { return d.value }

// Unit is the unit of a relative duration, empty when permanent.
func (d Duration) Unit() Unit { return d.unit }

// LongString renders "permanent" or "<value> <unit>". The unit token is never singularized.
func (d Duration) LongString() string {
	if d.IsPermanent() {
		return PermanentToken
	}
	return strconv.Itoa(d.value) + " " + string(d.unit)
}

// ShortString renders a compact label for dense lists, e.g. "PERM", "2h", "3mo".
func (d Duration) ShortString() string {
	if d.IsPermanent() {
		return "PERM"
	}
	return strconv.Itoa(d.value) + unitSuffixes[d.unit]
}

func (d Duration) String() string {
	return d.LongString()
}

// IsPreset reports whether d is one of DurationPresets.
func (d Duration) IsPreset() bool {
	long := d.LongString()
	for _, preset := range DurationPresets {
		if preset == long {
			return true
		}
	}
	return false
}

// maxAddHours is the largest hour count time.Duration can hold.
const maxAddHours = int(math.MaxInt64 / int64(time.Hour))

// ExpiresAt returns the moment a ban of this duration starting at from ends.
// Permanent durations never expire and return nil.
func (d Duration) ExpiresAt(from time.Time) *time.Time {
	var until time.Time
	switch d.unit {
	case UnitHours:
		if d.value <= maxAddHours {
			until = from.Add(time.Duration(d.value) * time.Hour)
		} else {
			// time.Duration overflows past ~292 years; count whole days on the calendar.
			until = from.AddDate(0, 0, d.value/24).Add(time.Duration(d.value%24) * time.Hour)
		}
	case UnitDays:
		until = from.AddDate(0, 0, d.value)
	case UnitWeeks:
		until = from.AddDate(0, 0, 7*d.value)
	case UnitMonths:
		until = from.AddDate(0, d.value, 0)
	default:
		return nil
	}

	return &until
}

// durationObject is the wire shape of a relative duration.
type durationObject struct {
	Value int  `json:"value" yaml:"value"`
	Unit  Unit `json:"unit" yaml:"unit"`
}

func (d Duration) MarshalJSON() ([]byte, error) {
	if d.IsPermanent() {
		return json.Marshal(PermanentToken)
	}
	return json.Marshal(durationObject{Value: d.value, Unit: d.unit})
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	parsed, err := durationFromAny(raw)
	if err != nil {
		return err
	}
	*d = parsed

	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	if d.IsPermanent() {
		return PermanentToken, nil
	}
	return durationObject{Value: d.value, Unit: d.unit}, nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}

	parsed, err := durationFromAny(raw)
	if err != nil {
		return err
	}
	*d = parsed

	return nil
}

// durationFromAny builds a Duration from a decoded JSON or YAML value: either the
// permanent token or a {value, unit} object.
func durationFromAny(raw any) (Duration, error) {
	switch v := raw.(type) {
	case string:
		if v != PermanentToken {
			return Duration{}, &DurationParseError{Input: v, Reason: "unrecognized literal"}
		}
		return Permanent(), nil
	case map[string]any:
		unitRaw, ok := v["unit"]
		if !ok {
			return Duration{}, &DurationParseError{Input: fmt.Sprint(v), Reason: "missing unit"}
		}
		unitStr, ok := unitRaw.(string)
		if !ok {
			return Duration{}, &DurationParseError{Input: fmt.Sprint(v), Reason: "unit must be a string"}
		}

		valueRaw, ok := v["value"]
		if !ok {
			return Duration{}, &DurationParseError{Input: fmt.Sprint(v), Reason: "missing value"}
		}
		value, ok := integerValue(valueRaw)
		if !ok {
			return Duration{}, &DurationParseError{Input: fmt.Sprint(v), Reason: "multiplier must be a positive integer"}
		}

		return Relative(value, Unit(unitStr))
	case nil:
		return Duration{}, &DurationParseError{Input: "null", Reason: "duration is required"}
	default:
		return Duration{}, &DurationParseError{Input: fmt.Sprint(v), Reason: "expected \"permanent\" or a {value, unit} object"}
	}
}

// integerValue accepts the integer representations produced by encoding/json (float64)
// and yaml.v3 (int) and rejects fractional numbers.
func integerValue(raw any) (int, bool) {
	switch n := raw.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	}

	return 0, false
}
