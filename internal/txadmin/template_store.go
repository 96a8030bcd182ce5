package txadmin

import (
	"fmt"
	"os"
	"sync"

	"github.com/Maxos-programming/txAdmin/bantemplate"
	"github.com/sahilm/fuzzy"
	"github.com/stretchr/testify/mock"
	"gopkg.in/yaml.v3"
)

// YAMLTemplateStore implements bantemplate.TemplateStore on a single YAML file holding a
// list of templates. The collection is kept in memory in file order and written back in
// full on every change.
type YAMLTemplateStore struct {
	templates []bantemplate.Template
	filePath  string
	validator *bantemplate.Validator

	mu sync.Mutex
}

// NewYAMLTemplateStore loads the templates in filePath. A missing file is an empty
// collection; the file is created on the first write.
func NewYAMLTemplateStore(filePath string, validator *bantemplate.Validator) (*YAMLTemplateStore, error) {
	if validator == nil {
		validator = bantemplate.NewValidator()
	}

	store := &YAMLTemplateStore{
		filePath:  filePath,
		validator: validator,
	}

	return store, store.Load()
}

// Load replaces the in-memory collection with the file contents. Every record is checked
// against the template rules; on any failure the current collection is left untouched.
func (s *YAMLTemplateStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	templates, err := readTemplates(s.filePath, s.validator)
	if err != nil {
		return err
	}
	s.templates = templates

	return nil
}

// Reconfigure switches the store to filePath and validator and loads from it. On failure
// the store keeps its current file, rules and collection.
func (s *YAMLTemplateStore) Reconfigure(filePath string, validator *bantemplate.Validator) error {
	if validator == nil {
		validator = bantemplate.NewValidator()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	templates, err := readTemplates(filePath, validator)
	if err != nil {
		return err
	}
	s.filePath = filePath
	s.validator = validator
	s.templates = templates

	return nil
}

func readTemplates(filePath string, validator *bantemplate.Validator) ([]bantemplate.Template, error) {
	fileContents, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read file: %w", err)
	}

	var records []map[string]any
	if err := yaml.Unmarshal(fileContents, &records); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	templates := make([]bantemplate.Template, 0, len(records))
	seen := make(map[string]int, len(records))
	for i, record := range records {
		tmpl, err := validator.Validate(record)
		if err != nil {
			return nil, fmt.Errorf("template %d: %w", i, err)
		}
		if first, ok := seen[tmpl.ID]; ok {
			return nil, fmt.Errorf("template %d: id %q already used by template %d: %w", i, tmpl.ID, first, bantemplate.ErrTemplateExists)
		}
		seen[tmpl.ID] = i
		templates = append(templates, tmpl)
	}

	return templates, nil
}

// List returns every template in stored order.
func (s *YAMLTemplateStore) List() []bantemplate.Template {
	s.mu.Lock()
	defer s.mu.Unlock()

	templates := make([]bantemplate.Template, len(s.templates))
	copy(templates, s.templates)

	return templates
}

// Search fuzzy-matches query against template reasons, best match first. An empty query
// returns the whole collection.
func (s *YAMLTemplateStore) Search(query string) []bantemplate.Template {
	if query == "" {
		return s.List()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	matches := fuzzy.FindFrom(query, reasonSource(s.templates))

	templates := make([]bantemplate.Template, 0, len(matches))
	for _, match := range matches {
		templates = append(templates, s.templates[match.Index])
	}

	return templates
}

// Get returns the template with id or bantemplate.ErrTemplateNotFound.
func (s *YAMLTemplateStore) Get(id string) (*bantemplate.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil, bantemplate.ErrTemplateNotFound
	}

	tmpl := s.templates[i]
	return &tmpl, nil
}

// Create appends t to the collection. Returns bantemplate.ErrTemplateExists if the ID is
// already taken.
func (s *YAMLTemplateStore) Create(t bantemplate.Template) error {
	if _, err := s.validator.Validate(t.Candidate()); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(t.ID) >= 0 {
		return bantemplate.ErrTemplateExists
	}

	templates := append(s.clone(), t)
	if err := s.writeFile(templates); err != nil {
		return err
	}
	s.templates = templates

	return nil
}

// Update replaces the template sharing t's ID, keeping its position.
func (s *YAMLTemplateStore) Update(t bantemplate.Template) error {
	if _, err := s.validator.Validate(t.Candidate()); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(t.ID)
	if i < 0 {
		return bantemplate.ErrTemplateNotFound
	}

	templates := s.clone()
	templates[i] = t
	if err := s.writeFile(templates); err != nil {
		return err
	}
	s.templates = templates

	return nil
}

// Delete removes the template with id.
func (s *YAMLTemplateStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return bantemplate.ErrTemplateNotFound
	}

	templates := append(s.clone()[:i], s.templates[i+1:]...)
	if err := s.writeFile(templates); err != nil {
		return err
	}
	s.templates = templates

	return nil
}

func (s *YAMLTemplateStore) indexOf(id string) int {
	for i, tmpl := range s.templates {
		if tmpl.ID == id {
			return i
		}
	}
	return -1
}

func (s *YAMLTemplateStore) clone() []bantemplate.Template {
	templates := make([]bantemplate.Template, len(s.templates), len(s.templates)+1)
	copy(templates, s.templates)
	return templates
}

func (s *YAMLTemplateStore) writeFile(templates []bantemplate.Template) error {
	if templates == nil {
		templates = []bantemplate.Template{}
	}

	out, err := yaml.Marshal(templates)
	if err != nil {
		return fmt.Errorf("marshal templates to YAML: %w", err)
	}

	if err := os.WriteFile(s.filePath, out, 0644); err != nil {
		return fmt.Errorf("write templates file: %w", err)
	}

	return nil
}

// reasonSource adapts a template list to fuzzy.Source.
type reasonSource []bantemplate.Template

func (r reasonSource) String(i int) string { return r[i].Reason }

func (r reasonSource) Len() int { return len(r) }

// MockTemplateStore provides a test double implementation of bantemplate.TemplateStore
// using testify/mock.
type MockTemplateStore struct {
	mock.Mock
}

func (m *MockTemplateStore) List() []bantemplate.Template {
	args := m.Called()

	return args.Get(0).([]bantemplate.Template)
}

func (m *MockTemplateStore) Search(query string) []bantemplate.Template {
	args := m.Called(query)

	return args.Get(0).([]bantemplate.Template)
}

func (m *MockTemplateStore) Get(id string) (*bantemplate.Template, error) {
	args := m.Called(id)

	tmpl, _ := args.Get(0).(*bantemplate.Template)
	return tmpl, args.Error(1)
}

func (m *MockTemplateStore) Create(t bantemplate.Template) error {
	args := m.Called(t)

	return args.Error(0)
}

func (m *MockTemplateStore) Update(t bantemplate.Template) error {
	args := m.Called(t)

	return args.Error(0)
}

func (m *MockTemplateStore) Delete(id string) error {
	args := m.Called(id)

	return args.Error(0)
}
