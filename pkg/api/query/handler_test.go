package query

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"zeno_agent/pkg/core/normalize"
	"zeno_agent/pkg/core/pipeline"
)

type MockDispatcher struct {
	HandleFunc func(q pipeline.Query) pipeline.Reply
	Got        pipeline.Query
}

func (m *MockDispatcher) Handle(_ context.Context, q pipeline.Query) pipeline.Reply {
	m.Got = q
	return m.HandleFunc(q)
}

func okDispatcher() *MockDispatcher {
	return &MockDispatcher{HandleFunc: func(q pipeline.Query) pipeline.Reply {
		return pipeline.Reply{Status: http.StatusOK, Body: normalize.Response{"type": "rag", "final_output": "answer"}}
	}}
}

func TestHandleQuery_JSON(t *testing.T) {
	d := okDispatcher()
	h := NewHandler(d, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"query":"coffee levies","file_context":"memo"}`))
	req.Header.Set("Content-Type", "application/json")
	h.HandleQuery(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	json.NewDecoder(rec.Body).Decode(&body)
	if body["final_output"] != "answer" {
		t.Errorf("body = %v", body)
	}
	if d.Got.Text != "coffee levies" || d.Got.FileContext != "memo" {
		t.Errorf("dispatched %+v", d.Got)
	}
}

func TestHandleQuery_StatusPassThrough(t *testing.T) {
	d := &MockDispatcher{HandleFunc: func(pipeline.Query) pipeline.Reply {
		return pipeline.Reply{Status: http.StatusBadRequest, Body: normalize.Response{"error": pipeline.MsgQueryRequired}}
	}}
	rec := httptest.NewRecorder()
	NewHandler(d, nil).HandleQuery(rec, httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{}`)))
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), pipeline.MsgQueryRequired) {
		t.Errorf("status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestHandleQuery_BadRequests(t *testing.T) {
	h := NewHandler(okDispatcher(), nil)

	rec := httptest.NewRecorder()
	h.HandleQuery(rec, httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"query":`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed json: status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.HandleQuery(rec, httptest.NewRequest(http.MethodGet, "/query", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET: status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.HandleQuery(rec, httptest.NewRequest(http.MethodOptions, "/query", nil))
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Errorf("OPTIONS: status = %d", rec.Code)
	}
}

func TestHandleQuery_JSONFileContextCapped(t *testing.T) {
	d := okDispatcher()
	body, _ := json.Marshal(Request{Query: "summarise", FileContext: strings.Repeat("é", MaxFileChars+50)})
	rec := httptest.NewRecorder()
	NewHandler(d, nil).HandleQuery(rec, httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	fc := d.Got.FileContext
	if n := utf8.RuneCountInString(fc); n != MaxFileChars || !utf8.ValidString(fc) {
		t.Errorf("file context: %d runes, valid=%v", n, utf8.ValidString(fc))
	}
}

func TestHandleQuery_JSONBodyTooLarge(t *testing.T) {
	d := &MockDispatcher{HandleFunc: func(q pipeline.Query) pipeline.Reply {
		t.Fatal("oversized body reached the dispatcher")
		return pipeline.Reply{}
	}}
	body := `{"query":"x","file_context":"` + strings.Repeat("a", MaxUploadBytes+1) + `"}`
	rec := httptest.NewRecorder()
	NewHandler(d, nil).HandleQuery(rec, httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(body)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "exceeds") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func multipartRequest(t *testing.T, query, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if query != "" {
		mw.WriteField("query", query)
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/query", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHandleQuery_MultipartHTML(t *testing.T) {
	d := okDispatcher()
	h := NewHandler(d, nil)

	html := `<html><head><script>var x = 1;</script></head><body><h1>Tea Report</h1><p>Exports rose 8%.</p></body></html>`
	rec := httptest.NewRecorder()
	h.HandleQuery(rec, multipartRequest(t, "", "report.html", html))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	fc := d.Got.FileContext
	if !strings.HasPrefix(fc, "File: report.html\n") || !strings.Contains(fc, "Exports rose 8%.") {
		t.Errorf("file context = %q", fc)
	}
	if strings.Contains(fc, "var x") {
		t.Error("script content leaked into file context")
	}
	if d.Got.Text != "" {
		t.Errorf("query = %q", d.Got.Text)
	}
}

func TestHandleQuery_MultipartText(t *testing.T) {
	d := okDispatcher()
	rec := httptest.NewRecorder()
	NewHandler(d, nil).HandleQuery(rec, multipartRequest(t, "summarise", "notes.txt", "maize prices fell"))

	if d.Got.Text != "summarise" || d.Got.FileContext != "File: notes.txt\nmaize prices fell" {
		t.Errorf("dispatched %+v", d.Got)
	}
}

func TestHandleHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"status":"ok"}` {
		t.Errorf("got %d %s", rec.Code, rec.Body.String())
	}
}
