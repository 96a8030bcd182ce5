package bantemplate

import (
	"errors"
	"time"
)

// IDLength is the length of generated template identifiers.
const IDLength = 21

var (
	ErrTemplateNotFound = errors.New("ban template not found")
	ErrTemplateExists   = errors.New("ban template already exists")
)

// Template is a reusable ban reason with a duration and optional spacers.
type Template struct {
	ID       string   `json:"id" yaml:"id"`
	Reason   string   `json:"reason" yaml:"reason"`
	Duration Duration `json:"duration" yaml:"duration"`
	Text     *string  `json:"text,omitempty" yaml:"text,omitempty"` // nil when absent
	Spacers  []Spacer `json:"spacers,omitempty" yaml:"spacers,omitempty"`
}

func (t Template) HasSpacers() bool {
	return len(t.Spacers) > 0
}

// Resolve returns the template reason with its spacers substituted from values.
func (t Template) Resolve(values map[string]string) string {
	return ReplaceSpacers(t.Reason, t.Spacers, values)
}

// UnusedSpacers returns declared spacers whose token never appears in the reason.
func (t Template) UnusedSpacers() []string {
	referenced := make(map[string]struct{})
	for _, name := range ReferencedSpacers(t.Reason) {
		referenced[name] = struct{}{}
	}

	var unused []string
	for _, spacer := range t.Spacers {
		if _, ok := referenced[spacer.Name]; !ok {
			unused = append(unused, spacer.Name)
		}
	}
	return unused
}

// UndeclaredTokens returns token names in the reason that no spacer declares.
// Such tokens survive substitution verbatim.
func (t Template) UndeclaredTokens() []string {
	declared := make(map[string]struct{}, len(t.Spacers))
	for _, spacer := range t.Spacers {
		declared[spacer.Name] = struct{}{}
	}

	var undeclared []string
	for _, name := range ReferencedSpacers(t.Reason) {
		if _, ok := declared[name]; !ok {
			undeclared = append(undeclared, name)
		}
	}
	return undeclared
}

// TemplateStore persists the ban template collection and enforces ID uniqueness.
type TemplateStore interface {
	List() []Template
	Search(query string) []Template
	Get(id string) (*Template, error)
	Create(t Template) error
	Update(t Template) error
	Delete(id string) error
}

// BanRecord is a ban issued from a template.
type BanRecord struct {
	Reason     string     `json:"reason" yaml:"Reason"`
	TemplateID string     `json:"templateId,omitempty" yaml:"TemplateID,omitempty"`
	BannedAt   time.Time  `json:"bannedAt" yaml:"BannedAt"`
	Until      *time.Time `json:"until" yaml:"Until"` // nil for permanent bans
}

// Issue builds the ban record produced by applying t with values at now.
func Issue(t Template, values map[string]string, now time.Time) BanRecord {
	return BanRecord{
		Reason:     t.Resolve(values),
		TemplateID: t.ID,
		BannedAt:   now,
		Until:      t.Duration.ExpiresAt(now),
	}
}

type BanMgr interface {
	Add(identifier string, record BanRecord) error
	IsBanned(identifier string, now time.Time) (bool, *BanRecord)
}
