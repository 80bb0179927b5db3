package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	coredash "zeno_agent/pkg/core/dashboard"
)

type MockAnalyzer struct {
	AnalyzeFunc func(panel, query string) (coredash.Analysis, error)
}

func (m *MockAnalyzer) Analyze(_ context.Context, panel, query string) (coredash.Analysis, error) {
	return m.AnalyzeFunc(panel, query)
}

func TestHandleData(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHandler(nil, nil).HandleData(rec, httptest.NewRequest(http.MethodGet, "/dashboard/economist", nil))

	var data map[string]json.RawMessage
	if err := json.NewDecoder(rec.Body).Decode(&data); err != nil {
		t.Fatal(err)
	}
	if _, ok := data["rainfall_shock"]; !ok {
		t.Errorf("missing panel in %v", data)
	}
}

func TestHandleAnalyze(t *testing.T) {
	m := &MockAnalyzer{AnalyzeFunc: func(panel, query string) (coredash.Analysis, error) {
		if query == "fail" {
			return coredash.Analysis{}, errors.New("quota")
		}
		return coredash.Analysis{Panel: panel, Analysis: "ok", SuggestedFollowups: coredash.Followups(panel)}, nil
	}}
	h := NewHandler(m, nil)

	rec := httptest.NewRecorder()
	h.HandleAnalyze(rec, httptest.NewRequest(http.MethodPost, "/dashboard/economist/analyze", strings.NewReader(`{"panel":"logistics","query":"which route?"}`)))
	var got coredash.Analysis
	json.NewDecoder(rec.Body).Decode(&got)
	if rec.Code != http.StatusOK || got.Panel != "logistics" || len(got.SuggestedFollowups) != 3 {
		t.Errorf("status %d body %+v", rec.Code, got)
	}

	rec = httptest.NewRecorder()
	h.HandleAnalyze(rec, httptest.NewRequest(http.MethodPost, "/dashboard/economist/analyze", strings.NewReader(`{"query":"fail"}`)))
	if rec.Code != http.StatusInternalServerError || !strings.Contains(rec.Body.String(), "Analysis failed: quota") {
		t.Errorf("status %d body %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.HandleAnalyze(rec, httptest.NewRequest(http.MethodPost, "/dashboard/economist/analyze", strings.NewReader(`nope`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad body: status %d", rec.Code)
	}
}
