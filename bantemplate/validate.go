package bantemplate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Rule identifies which template rule a field failed.
type Rule string

const (
	RuleRequired  Rule = "required"
	RuleType      Rule = "type"
	RuleMinLength Rule = "min_length"
	RuleLength    Rule = "length"
	RuleDuration  Rule = "duration"
	RuleNonEmpty  Rule = "non_empty"
	RuleDuplicate Rule = "duplicate"
)

// FieldError is one failed rule, addressed by the candidate's field path
// (e.g. "id", "spacers[1].name").
type FieldError struct {
	Field   string   `json:"field"`
	Rule    Rule     `json:"rule"`
	Message string   `json:"message"`
	Names   []string `json:"names,omitempty"` // duplicated spacer names

	err error
}

// TemplateValidationError lists every rule a candidate template failed.
type TemplateValidationError struct {
	Errors []FieldError `json:"issues"`
}

func (e *TemplateValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, fe.Field+": "+fe.Message)
	}
	return "invalid ban template: " + strings.Join(msgs, "; ")
}

func (e *TemplateValidationError) Unwrap() []error {
	var errs []error
	for _, fe := range e.Errors {
		if fe.err != nil {
			errs = append(errs, fe.err)
		}
	}
	return errs
}

// Field returns the first error reported for field, or nil.
func (e *TemplateValidationError) Field(field string) *FieldError {
	for i := range e.Errors {
		if e.Errors[i].Field == field {
			return &e.Errors[i]
		}
	}
	return nil
}

func (e *TemplateValidationError) add(fe FieldError) {
	e.Errors = append(e.Errors, fe)
}

func (e *TemplateValidationError) has(field string) bool {
	return e.Field(field) != nil
}

// covers reports whether field or one of its parents already has an error.
func (e *TemplateValidationError) covers(field string) bool {
	for _, fe := range e.Errors {
		if fe.Field == field || strings.HasPrefix(field, fe.Field+".") {
			return true
		}
	}
	return false
}

type templateSchema struct {
	ID      string         `json:"id" validate:"min=1"`
	Spacers []spacerSchema `json:"spacers" validate:"omitnil,min=1,dive"`
}

type spacerSchema struct {
	Name        string `json:"name" validate:"required"`
	Placeholder string `json:"placeholder" validate:"required"`
}

// Validator checks candidate ban templates.
type Validator struct {
	validate       *validator.Validate
	strictIDLength bool
}

type Option func(*Validator)

// WithStrictIDLength makes the validator require IDs of exactly IDLength characters.
func WithStrictIDLength() Option {
	return func(v *Validator) {
		v.strictIDLength = true
	}
}

func NewValidator(opts ...Option) *Validator {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	v := &Validator{validate: validate}
	for _, opt := range opts {
		opt(v)
	}

	return v
}

var defaultValidator = NewValidator()

// ValidateTemplate checks a decoded JSON or YAML object against the ban template rules
// and returns the typed template. Failures are reported as *TemplateValidationError.
func ValidateTemplate(candidate map[string]any) (Template, error) {
	return defaultValidator.Validate(candidate)
}

func (v *Validator) Validate(candidate map[string]any) (Template, error) {
	verr := &TemplateValidationError{}

	var tmpl Template
	var schema templateSchema

	if id, ok := requiredString(candidate, "id", verr); ok {
		tmpl.ID = id
		schema.ID = id
	}

	if reason, ok := requiredString(candidate, "reason", verr); ok {
		tmpl.Reason = reason
	}

	if raw, ok := candidate["duration"]; !ok || raw == nil {
		verr.add(FieldError{Field: "duration", Rule: RuleRequired, Message: "duration is required"})
	} else {
		d, err := durationFromAny(raw)
		if err != nil {
			var perr *DurationParseError
			msg := err.Error()
			if errors.As(err, &perr) {
				msg = perr.Reason
			}
			verr.add(FieldError{Field: "duration", Rule: RuleDuration, Message: msg, err: err})
		} else {
			tmpl.Duration = d
		}
	}

	if raw, ok := candidate["text"]; ok {
		text, isString := raw.(string)
		if !isString {
			verr.add(FieldError{Field: "text", Rule: RuleType, Message: "text must be a string"})
		} else {
			tmpl.Text = &text
		}
	}

	if raw, ok := candidate["spacers"]; ok {
		schema.Spacers = spacersFromAny(raw, verr)
	}

	if err := v.validate.Struct(schema); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return Template{}, fmt.Errorf("validate template: %w", err)
		}
		for _, fieldErr := range verrs {
			fe := fieldErrorFor(fieldErr)
			if verr.covers(fe.Field) {
				continue
			}
			verr.add(fe)
		}
	}

	if names := duplicateNames(schema.Spacers); len(names) > 0 {
		verr.add(FieldError{
			Field:   "spacers",
			Rule:    RuleDuplicate,
			Message: "duplicate spacer names: " + strings.Join(names, ", "),
			Names:   names,
		})
	}

	if v.strictIDLength && !verr.has("id") {
		if err := v.validate.Var(schema.ID, fmt.Sprintf("len=%d", IDLength)); err != nil {
			verr.add(FieldError{
				Field:   "id",
				Rule:    RuleLength,
				Message: fmt.Sprintf("id must be exactly %d characters", IDLength),
			})
		}
	}

	if len(verr.Errors) > 0 {
		return Template{}, verr
	}

	if schema.Spacers != nil {
		tmpl.Spacers = make([]Spacer, len(schema.Spacers))
		for i, s := range schema.Spacers {
			tmpl.Spacers[i] = Spacer{Name: s.Name, Placeholder: s.Placeholder}
		}
	}

	return tmpl, nil
}

func requiredString(candidate map[string]any, field string, verr *TemplateValidationError) (string, bool) {
	raw, ok := candidate[field]
	if !ok || raw == nil {
		verr.add(FieldError{Field: field, Rule: RuleRequired, Message: field + " is required"})
		return "", false
	}

	s, ok := raw.(string)
	if !ok {
		verr.add(FieldError{Field: field, Rule: RuleType, Message: field + " must be a string"})
		return "", false
	}

	return s, true
}

// spacersFromAny type-checks the spacers list. Elements with type errors are reported and
// kept as zero values so the index paths of later elements stay accurate.
func spacersFromAny(raw any, verr *TemplateValidationError) []spacerSchema {
	list, ok := raw.([]any)
	if !ok {
		verr.add(FieldError{Field: "spacers", Rule: RuleType, Message: "spacers must be a list"})
		return nil
	}

	spacers := make([]spacerSchema, 0, len(list))
	for i, item := range list {
		path := fmt.Sprintf("spacers[%d]", i)
		obj, ok := item.(map[string]any)
		if !ok {
			verr.add(FieldError{Field: path, Rule: RuleType, Message: "spacer must be an object"})
			spacers = append(spacers, spacerSchema{})
			continue
		}

		var s spacerSchema
		for _, field := range []string{"name", "placeholder"} {
			value, present := obj[field]
			if !present || value == nil {
				continue // left empty, reported by the schema
			}
			str, isString := value.(string)
			if !isString {
				verr.add(FieldError{Field: path + "." + field, Rule: RuleType, Message: field + " must be a string"})
				continue
			}
			if field == "name" {
				s.Name = str
			} else {
				s.Placeholder = str
			}
		}
		spacers = append(spacers, s)
	}

	return spacers
}

func fieldErrorFor(fe validator.FieldError) FieldError {
	// Namespace is "templateSchema.spacers[0].name"; drop the struct name.
	_, field, _ := strings.Cut(fe.Namespace(), ".")

	switch fe.Tag() {
	case "required":
		return FieldError{Field: field, Rule: RuleRequired, Message: fe.Field() + " must not be empty"}
	case "min":
		if fe.Kind() == reflect.Slice {
			return FieldError{Field: field, Rule: RuleNonEmpty, Message: "spacers must not be an empty list"}
		}
		return FieldError{Field: field, Rule: RuleMinLength, Message: fmt.Sprintf("%s must be at least %s character(s)", fe.Field(), fe.Param())}
	}

	return FieldError{Field: field, Rule: Rule(fe.Tag()), Message: fe.Error()}
}

// duplicateNames lists each non-empty name that appears more than once, in order of its
// first repeat. Names are compared exactly.
func duplicateNames(spacers []spacerSchema) []string {
	seen := make(map[string]int, len(spacers))
	var dups []string
	for _, s := range spacers {
		if s.Name == "" {
			continue
		}
		seen[s.Name]++
		if seen[s.Name] == 2 {
			dups = append(dups, s.Name)
		}
	}
	return dups
}

// Candidate converts t back into the loosely typed form accepted by ValidateTemplate.
func (t Template) Candidate() map[string]any {
	candidate := map[string]any{
		"id":     t.ID,
		"reason": t.Reason,
	}

	if t.Duration.IsPermanent() {
		candidate["duration"] = PermanentToken
	} else {
		candidate["duration"] = map[string]any{
			"value": t.Duration.Value(),
			"unit":  string(t.Duration.Unit()),
		}
	}

	if t.Text != nil {
		candidate["text"] = *t.Text
	}

	if t.Spacers != nil {
		spacers := make([]any, len(t.Spacers))
		for i, s := range t.Spacers {
			spacers[i] = map[string]any{"name": s.Name, "placeholder": s.Placeholder}
		}
		candidate["spacers"] = spacers
	}

	return candidate
}
