package txadmin

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Maxos-programming/txAdmin/bantemplate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testAPIKey = "s3cret"

var testNow = time.Date(2024, 6, 29, 12, 0, 0, 0, time.UTC)

func checkTestKey(key string) bool { return key == testAPIKey }

type apiFixture struct {
	srv       *APIServer
	templates *MockTemplateStore
	bans      *BanFile
	reloaded  int
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	bans, err := NewBanFile(filepath.Join(t.TempDir(), "Banlist.yaml"))
	require.NoError(t, err)

	f := &apiFixture{templates: &MockTemplateStore{}, bans: bans}
	f.srv = NewAPIServer(f.templates, bans, checkTestKey, func() error {
		f.reloaded++
		return nil
	}, zap.NewNop().Sugar())
	f.srv.Now = func() time.Time { return testNow }
	f.srv.NewID = func() (string, error) { return "generated", nil }

	return f
}

func (f *apiFixture) do(method, target, body string, withKey bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if withKey {
		req.Header.Set(apiKeyHeader, testAPIKey)
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

var rdmTemplate = bantemplate.Template{
	ID:       "rdm",
	Reason:   "{{player}} was killing at random",
	Duration: bantemplate.MustRelative(3, bantemplate.UnitDays),
	Spacers:  []bantemplate.Spacer{{Name: "player", Placeholder: "[PLAYER]"}},
}

func TestAPIServer_ListTemplates(t *testing.T) {
	f := newAPIFixture(t)
	f.templates.On("Search", "rdm").Return([]bantemplate.Template{rdmTemplate})
	f.templates.On("Search", "").Return([]bantemplate.Template(nil))

	rec := f.do(http.MethodGet, "/api/v1/templates?q=rdm", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{
		"id": "rdm",
		"reason": "{{player}} was killing at random",
		"duration": {"value": 3, "unit": "days"},
		"spacers": [{"name": "player", "placeholder": "[PLAYER]"}]
	}]`, rec.Body.String())

	rec = f.do(http.MethodGet, "/api/v1/templates", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	f.templates.AssertExpectations(t)
}

func TestAPIServer_GetTemplate(t *testing.T) {
	f := newAPIFixture(t)
	f.templates.On("Get", "rdm").Return(&rdmTemplate, nil)
	f.templates.On("Get", "missing").Return(nil, bantemplate.ErrTemplateNotFound)

	rec := f.do(http.MethodGet, "/api/v1/templates/rdm", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rdm", decodeJSON(t, rec)["id"])

	rec = f.do(http.MethodGet, "/api/v1/templates/missing", "", false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, bantemplate.ErrTemplateNotFound.Error(), decodeJSON(t, rec)["error"])
}

func TestAPIServer_CreateTemplate(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		withKey  bool
		storeErr error
		wantCode int
		wantBody string
	}{
		{
			name:     "created",
			body:     `{"reason": "  Cheating\n in game ", "selectedDuration": "2 days"}`,
			withKey:  true,
			wantCode: http.StatusCreated,
			wantBody: `{"id": "generated", "reason": "Cheating in game", "duration": {"value": 2, "unit": "days"}}`,
		},
		{
			name:     "missing key",
			body:     `{"reason": "Cheating", "selectedDuration": "2 days"}`,
			wantCode: http.StatusUnauthorized,
			wantBody: `{"error": "invalid or missing API key"}`,
		},
		{
			name:     "editor rejection",
			body:     `{"reason": "ab", "selectedDuration": "2 days"}`,
			withKey:  true,
			wantCode: http.StatusUnprocessableEntity,
			wantBody: `{"error": "Reason must be at least 3 characters long", "field": "reason"}`,
		},
		{
			name:     "duplicate spacer names",
			body:     `{"reason": "{{a}}", "selectedDuration": "permanent", "spacers": [{"name": "a", "placeholder": "1"}, {"name": "a", "placeholder": "2"}]}`,
			withKey:  true,
			wantCode: http.StatusUnprocessableEntity,
			wantBody: `{"error": "Duplicate spacer names: a", "field": "spacers"}`,
		},
		{
			name:     "id taken",
			body:     `{"id": "rdm", "reason": "Cheating", "selectedDuration": "permanent"}`,
			withKey:  true,
			storeErr: bantemplate.ErrTemplateExists,
			wantCode: http.StatusConflict,
			wantBody: `{"error": "ban template already exists"}`,
		},
		{
			name:     "malformed body",
			body:     `{`,
			withKey:  true,
			wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture(t)
			f.templates.On("Create", mock.Anything).Return(tt.storeErr)

			rec := f.do(http.MethodPost, "/api/v1/templates", tt.body, tt.withKey)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestAPIServer_UpdateTemplate(t *testing.T) {
	f := newAPIFixture(t)
	f.templates.On("Update", mock.MatchedBy(func(tmpl bantemplate.Template) bool {
		return tmpl.ID == "rdm"
	})).Return(nil)
	f.templates.On("Update", mock.Anything).Return(bantemplate.ErrTemplateNotFound)

	rec := f.do(http.MethodPut, "/api/v1/templates/rdm", `{"id": "ignored", "reason": "Random deathmatch", "selectedDuration": "custom", "customMultiplier": "5", "customUnit": "hours"}`, true)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"id": "rdm", "reason": "Random deathmatch", "duration": {"value": 5, "unit": "hours"}}`, rec.Body.String())

	rec = f.do(http.MethodPut, "/api/v1/templates/missing", `{"reason": "Random deathmatch", "selectedDuration": "permanent"}`, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIServer_DeleteTemplate(t *testing.T) {
	f := newAPIFixture(t)
	f.templates.On("Delete", "rdm").Return(nil)
	f.templates.On("Delete", "missing").Return(bantemplate.ErrTemplateNotFound)

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodDelete, "/api/v1/templates/rdm", "", false).Code)
	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/api/v1/templates/rdm", "", true).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/api/v1/templates/missing", "", true).Code)

	f.templates.AssertNumberOfCalls(t, "Delete", 2)
}

func TestAPIServer_ValidateTemplate(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/templates/validate", `{"id": "a", "reason": "", "duration": "permanent", "text": ""}`, false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id": "a", "reason": "", "duration": "permanent", "text": ""}`, rec.Body.String())

	rec = f.do(http.MethodPost, "/api/v1/templates/validate", `{
		"id": "",
		"reason": "x",
		"duration": {"value": 0, "unit": "days"},
		"spacers": [{"name": "a", "placeholder": "1"}, {"name": "a", "placeholder": "2"}]
	}`, false)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body := decodeJSON(t, rec)
	assert.Equal(t, "invalid ban template", body["error"])

	rules := map[string]any{}
	for _, issue := range body["issues"].([]any) {
		issue := issue.(map[string]any)
		rules[issue["field"].(string)] = issue["rule"]
		if issue["rule"] == string(bantemplate.RuleDuplicate) {
			assert.Equal(t, []any{"a"}, issue["names"])
		}
	}
	assert.Equal(t, map[string]any{
		"id":       string(bantemplate.RuleMinLength),
		"duration": string(bantemplate.RuleDuration),
		"spacers":  string(bantemplate.RuleDuplicate),
	}, rules)
}

func TestAPIServer_PreviewTemplate(t *testing.T) {
	f := newAPIFixture(t)
	f.templates.On("Get", "rdm").Return(&rdmTemplate, nil)

	rec := f.do(http.MethodPost, "/api/v1/templates/rdm/preview", `{"values": {"player": "Bob"}}`, false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"reason": "Bob was killing at random",
		"duration": {"value": 3, "unit": "days"},
		"selection": "custom",
		"customMultiplier": "3",
		"customUnit": "days",
		"short": "3d",
		"long": "3 days"
	}`, rec.Body.String())

	rec = f.do(http.MethodPost, "/api/v1/templates/rdm/preview", `{}`, false)
	assert.Equal(t, "[PLAYER] was killing at random", decodeJSON(t, rec)["reason"])

	rec = f.do(http.MethodPost, "/api/v1/templates/rdm/preview", `{"values": {"player": ""}}`, false)
	assert.Equal(t, " was killing at random", decodeJSON(t, rec)["reason"], "an empty value is used verbatim")
}

func TestAPIServer_IssueBan(t *testing.T) {
	f := newAPIFixture(t)
	f.templates.On("Get", "rdm").Return(&rdmTemplate, nil)
	f.templates.On("Get", "missing").Return(nil, bantemplate.ErrTemplateNotFound)

	assert.Equal(t, http.StatusUnauthorized,
		f.do(http.MethodPost, "/api/v1/bans", `{"identifier": "license:abc", "templateId": "rdm"}`, false).Code)
	assert.Equal(t, http.StatusUnprocessableEntity,
		f.do(http.MethodPost, "/api/v1/bans", `{"templateId": "rdm"}`, true).Code)
	assert.Equal(t, http.StatusNotFound,
		f.do(http.MethodPost, "/api/v1/bans", `{"identifier": "license:abc", "templateId": "missing"}`, true).Code)

	rec := f.do(http.MethodPost, "/api/v1/bans", `{"identifier": "license:abc", "templateId": "rdm", "values": {"player": "Bob"}}`, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{
		"reason": "Bob was killing at random",
		"templateId": "rdm",
		"bannedAt": "2024-06-29T12:00:00Z",
		"until": "2024-07-02T12:00:00Z"
	}`, rec.Body.String())

	banned, record := f.bans.IsBanned("license:abc", testNow)
	assert.True(t, banned)
	assert.Equal(t, "Bob was killing at random", record.Reason)
}

func TestAPIServer_GetBan(t *testing.T) {
	f := newAPIFixture(t)
	require.NoError(t, f.bans.Add("license:abc", bantemplate.BanRecord{Reason: "Hacking", BannedAt: testNow}))

	rec := f.do(http.MethodGet, "/api/v1/bans/license:abc", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"banned": true, "ban": {"reason": "Hacking", "bannedAt": "2024-06-29T12:00:00Z", "until": null}}`, rec.Body.String())

	rec = f.do(http.MethodGet, "/api/v1/bans/license:xyz", "", false)
	assert.JSONEq(t, `{"banned": false}`, rec.Body.String())
}

func TestAPIServer_Reload(t *testing.T) {
	f := newAPIFixture(t)

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/api/v1/reload", "", false).Code)
	assert.Equal(t, 0, f.reloaded)

	rec := f.do(http.MethodPost, "/api/v1/reload", "", true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"msg": "config reloaded"}`, rec.Body.String())
	assert.Equal(t, 1, f.reloaded)

	f.srv.reload = func() error { return errors.New("disk on fire") }
	assert.Equal(t, http.StatusInternalServerError, f.do(http.MethodPost, "/api/v1/reload", "", true).Code)
}

func TestAPIServer_RecoversFromPanic(t *testing.T) {
	f := newAPIFixture(t)
	f.templates.On("Get", "boom").Run(func(mock.Arguments) { panic("boom") })

	rec := f.do(http.MethodGet, "/api/v1/templates/boom", "", false)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
