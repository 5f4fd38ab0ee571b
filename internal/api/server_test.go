package api

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/shunzh/llm.ipynb/internal/decode"
	"github.com/shunzh/llm.ipynb/internal/logger"
	"github.com/shunzh/llm.ipynb/internal/model"
	"github.com/shunzh/llm.ipynb/internal/tokenizer"
)

type testEngine struct {
	text   string
	params GenParams
	err    error
}

func (e *testEngine) Complete(ctx context.Context, prompt string, params GenParams) (string, decode.Stats, error) {
	e.params = params
	if e.err != nil {
		return "", decode.Stats{}, e.err
	}
	return e.text, decode.Stats{PromptTokens: len(prompt), TokensGenerated: 3, Duration: time.Millisecond}, nil
}

func newTestEcho(engine Engine) *echo.Echo {
	server := NewServer(engine, "llm-test", logger.Default())
	e := echo.New()
	server.Register(e)
	return e
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCompletionsHappyPath(t *testing.T) {
	t.Parallel()

	engine := &testEngine{text: "world"}
	e := newTestEcho(engine)

	rec := doJSON(t, e, http.MethodPost, "/v1/completions", `{"prompt":"hello","max_tokens":5,"strategy":"full"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}

	var resp CompletionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.HasPrefix(resp.ID, "cmpl-") {
		t.Fatalf("id = %q, want cmpl- prefix", resp.ID)
	}
	if resp.Object != "text_completion" || resp.Model != "llm-test" {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].Text != "world" {
		t.Fatalf("unexpected choices: %+v", resp.Choices)
	}
	if resp.Usage.TotalTokens != resp.Usage.PromptTokens+resp.Usage.CompletionTokens {
		t.Fatalf("usage does not add up: %+v", resp.Usage)
	}

	if engine.params.MaxTokens != 5 {
		t.Fatalf("engine max tokens = %d, want 5", engine.params.MaxTokens)
	}
	if engine.params.Strategy != decode.StrategyFull {
		t.Fatalf("engine strategy = %q, want full", engine.params.Strategy)
	}
}

func TestCompletionsDefaults(t *testing.T) {
	t.Parallel()

	engine := &testEngine{text: "x"}
	e := newTestEcho(engine)

	rec := doJSON(t, e, http.MethodPost, "/v1/completions", `{"prompt":"a"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	if engine.params.Strategy != decode.StrategyCached {
		t.Fatalf("default strategy = %q, want cached", engine.params.Strategy)
	}
	if engine.params.MaxTokens <= 0 {
		t.Fatalf("default max tokens = %d, want positive", engine.params.MaxTokens)
	}
}

func TestCompletionsValidation(t *testing.T) {
	t.Parallel()

	e := newTestEcho(&testEngine{text: "x"})

	for name, body := range map[string]string{
		"empty prompt":        `{"prompt":""}`,
		"bad strategy":        `{"prompt":"a","strategy":"turbo"}`,
		"negative max tokens": `{"prompt":"a","max_tokens":-1}`,
		"malformed json":      `{`,
	} {
		rec := doJSON(t, e, http.MethodPost, "/v1/completions", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400 (body=%s)", name, rec.Code, rec.Body.String())
		}
	}
}

func TestCompletionsEngineError(t *testing.T) {
	t.Parallel()

	e := newTestEcho(&testEngine{err: errors.New("boom")})
	rec := doJSON(t, e, http.MethodPost, "/v1/completions", `{"prompt":"a"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "boom") {
		t.Fatalf("error body missing cause: %s", rec.Body.String())
	}
}

func TestListModelsAndHealth(t *testing.T) {
	t.Parallel()

	e := newTestEcho(&testEngine{text: "x"})

	rec := doJSON(t, e, http.MethodGet, "/v1/models", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("models status = %d", rec.Code)
	}
	var list ModelList
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode models: %v", err)
	}
	if len(list.Data) != 1 || list.Data[0].ID != "llm-test" {
		t.Fatalf("unexpected model list: %+v", list)
	}

	rec = doJSON(t, e, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
}

func TestModelEngineCompletes(t *testing.T) {
	t.Parallel()

	tok := tokenizer.NewCharTokenizer("abcdefgh")
	cfg := model.Config{
		HiddenSize:      16,
		FFHiddenSize:    32,
		NumHiddenLayers: 1,
		VocabSize:       tok.VocabSize(),
		MaxSeqLen:       32,
	}
	m, err := model.NewSequenceModel(cfg, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	engine := NewModelEngine(m, tok)

	text, stats, err := engine.Complete(context.Background(), "abc", GenParams{
		MaxTokens: 4,
		Strategy:  decode.StrategyCached,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if stats.TokensGenerated != 4 {
		t.Fatalf("generated %d tokens, want 4", stats.TokensGenerated)
	}
	if len([]rune(text)) > 4 {
		t.Fatalf("completion %q has %d runes, want at most 4", text, len([]rune(text)))
	}

	// Greedy decoding over the same model is reproducible.
	again, _, err := engine.Complete(context.Background(), "abc", GenParams{
		MaxTokens: 4,
		Strategy:  decode.StrategyFull,
	})
	if err != nil {
		t.Fatalf("second complete: %v", err)
	}
	if again != text {
		t.Fatalf("strategies produced different text: %q vs %q", again, text)
	}

	if _, _, err := engine.Complete(context.Background(), "xyz", GenParams{MaxTokens: 1, Strategy: decode.StrategyCached}); err == nil {
		t.Fatal("expected error for prompt outside vocabulary")
	}
}
