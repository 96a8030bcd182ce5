package txadmin

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Maxos-programming/txAdmin/bantemplate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const templatesFixture = `- id: cheat
  reason: Cheating
  duration:
    value: 2
    unit: days
- id: rdm
  reason: '{{player}} was killing at random'
  duration: permanent
  text: ""
  spacers:
    - name: player
      placeholder: '[PLAYER]'
- id: toxic
  reason: Toxic behaviour in chat
  duration:
    value: 8
    unit: hours
  text: Be nice.
`

func newTestStore(t *testing.T, content string) (*YAMLTemplateStore, string) {
	t.Helper()

	filePath := filepath.Join(t.TempDir(), "BanTemplates.yaml")
	if content != "" {
		require.NoError(t, os.WriteFile(filePath, []byte(content), 0644))
	}

	store, err := NewYAMLTemplateStore(filePath, nil)
	require.NoError(t, err)

	return store, filePath
}

func TestNewYAMLTemplateStore(t *testing.T) {
	store, _ := newTestStore(t, templatesFixture)

	templates := store.List()
	require.Len(t, templates, 3)

	assert.Equal(t, []string{"cheat", "rdm", "toxic"}, []string{templates[0].ID, templates[1].ID, templates[2].ID}, "file order is kept")
	assert.Equal(t, bantemplate.MustRelative(2, bantemplate.UnitDays), templates[0].Duration)
	assert.Nil(t, templates[0].Text)
	assert.True(t, templates[1].Duration.IsPermanent())
	require.NotNil(t, templates[1].Text)
	assert.Equal(t, "", *templates[1].Text)
	assert.Equal(t, []bantemplate.Spacer{{Name: "player", Placeholder: "[PLAYER]"}}, templates[1].Spacers)
}

func TestNewYAMLTemplateStore_MissingFile(t *testing.T) {
	store, _ := newTestStore(t, "")

	assert.Empty(t, store.List())
}

func TestNewYAMLTemplateStore_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr func(t *testing.T, err error)
	}{
		{
			name: "invalid record",
			content: `- id: a
  reason: Cheating
  duration: forever
`,
			wantErr: func(t *testing.T, err error) {
				var verr *bantemplate.TemplateValidationError
				assert.ErrorAs(t, err, &verr)
				assert.ErrorContains(t, err, "template 0")
			},
		},
		{
			name: "duplicate ids",
			content: `- id: a
  reason: Cheating
  duration: permanent
- id: a
  reason: Hacking
  duration: permanent
`,
			wantErr: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, bantemplate.ErrTemplateExists)
			},
		},
		{
			name:    "not a list",
			content: "id: a\n",
			wantErr: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "unmarshal")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filePath := filepath.Join(t.TempDir(), "BanTemplates.yaml")
			require.NoError(t, os.WriteFile(filePath, []byte(tt.content), 0644))

			_, err := NewYAMLTemplateStore(filePath, nil)
			require.Error(t, err)
			tt.wantErr(t, err)
		})
	}
}

func TestYAMLTemplateStore_Load_KeepsCollectionOnError(t *testing.T) {
	store, filePath := newTestStore(t, templatesFixture)

	require.NoError(t, os.WriteFile(filePath, []byte("- id: broken\n"), 0644))

	assert.Error(t, store.Load())
	assert.Len(t, store.List(), 3)
}

func TestYAMLTemplateStore_Reconfigure(t *testing.T) {
	strict := bantemplate.NewValidator(bantemplate.WithStrictIDLength())

	tests := []struct {
		name      string
		content   string
		validator *bantemplate.Validator
		wantErr   assert.ErrorAssertionFunc
		wantIDs   []string
	}{
		{
			name:    "new file with default rules",
			content: "- id: spam\n  reason: Spamming\n  duration: permanent\n",
			wantErr: assert.NoError,
			wantIDs: []string{"spam"},
		},
		{
			name:      "strict rules reject short ids",
			content:   "- id: spam\n  reason: Spamming\n  duration: permanent\n",
			validator: strict,
			wantErr:   assert.Error,
			wantIDs:   []string{"cheat", "rdm", "toxic"},
		},
		{
			name:    "missing file empties the store",
			wantErr: assert.NoError,
			wantIDs: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, oldPath := newTestStore(t, templatesFixture)

			newPath := filepath.Join(t.TempDir(), "Other.yaml")
			if tt.content != "" {
				require.NoError(t, os.WriteFile(newPath, []byte(tt.content), 0644))
			}

			err := store.Reconfigure(newPath, tt.validator)
			tt.wantErr(t, err)

			ids := []string{}
			for _, tmpl := range store.List() {
				ids = append(ids, tmpl.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)

			if err != nil {
				assert.Equal(t, oldPath, store.filePath)
				return
			}
			assert.Equal(t, newPath, store.filePath)
		})
	}
}

func TestYAMLTemplateStore_Reconfigure_AppliesRulesToWrites(t *testing.T) {
	store, filePath := newTestStore(t, "")

	require.NoError(t, store.Reconfigure(filePath, bantemplate.NewValidator(bantemplate.WithStrictIDLength())))

	err := store.Create(bantemplate.Template{ID: "short", Reason: "Cheating", Duration: bantemplate.Permanent()})
	assert.Error(t, err)
	assert.Empty(t, store.List())
}

func TestYAMLTemplateStore_Get(t *testing.T) {
	store, _ := newTestStore(t, templatesFixture)

	got, err := store.Get("toxic")
	require.NoError(t, err)
	assert.Equal(t, "Toxic behaviour in chat", got.Reason)

	_, err = store.Get("missing")
	assert.ErrorIs(t, err, bantemplate.ErrTemplateNotFound)
}

func TestYAMLTemplateStore_Create(t *testing.T) {
	store, filePath := newTestStore(t, "")
	empty := ""

	tmpl := bantemplate.Template{
		ID:       "new",
		Reason:   "{{player}} exploited {{bug}}",
		Duration: bantemplate.MustRelative(3, bantemplate.UnitMonths),
		Text:     &empty,
		Spacers: []bantemplate.Spacer{
			{Name: "player", Placeholder: "[PLAYER]"},
			{Name: "bug", Placeholder: "a bug"},
		},
	}
	require.NoError(t, store.Create(tmpl))
	assert.ErrorIs(t, store.Create(tmpl), bantemplate.ErrTemplateExists)

	// A fresh store reads back exactly what was written, including the empty text.
	reloaded, err := NewYAMLTemplateStore(filePath, nil)
	require.NoError(t, err)
	assert.Equal(t, []bantemplate.Template{tmpl}, reloaded.List())
}

func TestYAMLTemplateStore_Create_Invalid(t *testing.T) {
	store, filePath := newTestStore(t, "")

	err := store.Create(bantemplate.Template{ID: "", Reason: "Cheating"})

	var verr *bantemplate.TemplateValidationError
	assert.ErrorAs(t, err, &verr)
	assert.NoFileExists(t, filePath)
}

func TestYAMLTemplateStore_Create_StrictIDLength(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "BanTemplates.yaml")
	store, err := NewYAMLTemplateStore(filePath, bantemplate.NewValidator(bantemplate.WithStrictIDLength()))
	require.NoError(t, err)

	assert.Error(t, store.Create(bantemplate.Template{ID: "short", Reason: "Cheating"}))
	assert.NoError(t, store.Create(bantemplate.Template{ID: "V1StGXR8_Z5jdHi6B-myT", Reason: "Cheating"}))
}

func TestYAMLTemplateStore_Update(t *testing.T) {
	store, filePath := newTestStore(t, templatesFixture)

	updated := bantemplate.Template{ID: "rdm", Reason: "Random deathmatch", Duration: bantemplate.MustRelative(1, bantemplate.UnitWeeks)}
	require.NoError(t, store.Update(updated))

	reloaded, err := NewYAMLTemplateStore(filePath, nil)
	require.NoError(t, err)
	templates := reloaded.List()
	require.Len(t, templates, 3)
	assert.Equal(t, updated, templates[1], "position is kept")

	assert.ErrorIs(t, store.Update(bantemplate.Template{ID: "missing", Reason: "x"}), bantemplate.ErrTemplateNotFound)
}

func TestYAMLTemplateStore_Delete(t *testing.T) {
	store, filePath := newTestStore(t, templatesFixture)

	require.NoError(t, store.Delete("rdm"))
	assert.ErrorIs(t, store.Delete("rdm"), bantemplate.ErrTemplateNotFound)

	reloaded, err := NewYAMLTemplateStore(filePath, nil)
	require.NoError(t, err)
	ids := []string{}
	for _, tmpl := range reloaded.List() {
		ids = append(ids, tmpl.ID)
	}
	assert.Equal(t, []string{"cheat", "toxic"}, ids)
}

func TestYAMLTemplateStore_Search(t *testing.T) {
	store, _ := newTestStore(t, templatesFixture)

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{name: "empty query lists everything", query: "", want: []string{"cheat", "rdm", "toxic"}},
		{name: "prefix", query: "cheat", want: []string{"cheat"}},
		{name: "fuzzy", query: "tox chat", want: []string{"toxic"}},
		{name: "no match", query: "zzz", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids := []string{}
			for _, tmpl := range store.Search(tt.query) {
				ids = append(ids, tmpl.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}
