package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"zeno_agent/pkg/core/retry"
)

func TestIsQuotaError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("status 429 Too Many Requests"), true},
		{errors.New("rpc error: RESOURCE_EXHAUSTED"), true},
		{errors.New("exceeded your current quota"), true},
		{errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		if got := IsQuotaError(tt.err); got != tt.want {
			t.Errorf("IsQuotaError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestDeepSeekProvider_GenerateResponse(t *testing.T) {
	var got DeepSeekRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"choices":[{"message":{"content":"  [FORECAST] ok "}}]}`))
	}))
	defer srv.Close()

	p := &DeepSeekProvider{APIKey: "key", BaseURL: srv.URL}
	text, err := p.GenerateResponse(context.Background(), "q", "sys", map[string]interface{}{
		OptMaxTokens:   100,
		OptTemperature: 0.2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "[FORECAST] ok" {
		t.Errorf("text = %q", text)
	}
	if got.MaxTokens != 100 || got.Temperature != 0.2 || got.Model != "deepseek-chat" {
		t.Errorf("request options not forwarded: %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Errorf("unexpected messages: %+v", got.Messages)
	}
}

func TestDeepSeekProvider_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`rate limited`))
	}))
	defer srv.Close()

	p := &DeepSeekProvider{APIKey: "key", BaseURL: srv.URL}
	_, err := p.GenerateResponse(context.Background(), "q", "", nil)
	if !IsQuotaError(err) {
		t.Fatalf("expected quota error, got %v", err)
	}
}

func TestProviders_MissingKey(t *testing.T) {
	providers := []Provider{
		&DeepSeekProvider{},
		NewGeminiProvider("", "m"),
		&LegacyGeminiProvider{},
		NewOpenAIProvider("openai", "", "", "m"),
		NewAnthropicProvider("", "m"),
	}
	for _, p := range providers {
		_, err := p.GenerateResponse(context.Background(), "q", "", nil)
		if !errors.Is(err, ErrMissingAPIKey) {
			t.Errorf("%T: expected ErrMissingAPIKey, got %v", p, err)
		}
	}
}

func TestCachedEmbedder(t *testing.T) {
	calls := 0
	fn := func(ctx context.Context, text string) ([]float32, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("transient")
		}
		return []float32{1, 2, 3}, nil
	}
	r := retry.New(retry.Default("embed"), logrus.New()).
		WithSleep(func(context.Context, time.Duration) error { return nil })
	e, err := NewCachedEmbedder(fn, 10, time.Minute, r)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	if _, err := e.Embed(context.Background(), "   "); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}

	v, err := e.Embed(context.Background(), "coffee")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(v) != 3 || calls != 2 {
		t.Errorf("vector=%v calls=%d", v, calls)
	}
}

func TestOptHelpers(t *testing.T) {
	opts := map[string]interface{}{OptMaxTokens: 512, OptTemperature: 0.3, OptModel: "x"}
	if optInt(opts, OptMaxTokens, 1) != 512 {
		t.Error("optInt")
	}
	if optFloat(opts, OptTemperature, 1) != 0.3 {
		t.Error("optFloat")
	}
	if optFloat(map[string]interface{}{OptTemperature: 0.0}, OptTemperature, 0.1) != 0 {
		t.Error("optFloat should keep an explicit zero")
	}
	if optString(opts, OptModel, "d") != "x" || optString(nil, OptModel, "d") != "d" {
		t.Error("optString")
	}
}
