// Package api exposes text completion over HTTP with an OpenAI-style
// surface: POST /v1/completions, GET /v1/models and a health probe.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/shunzh/llm.ipynb/internal/decode"
	"github.com/shunzh/llm.ipynb/internal/logger"
)

// GenParams carries one request's resolved generation settings.
type GenParams struct {
	MaxTokens   int
	Temperature float32
	TopK        int
	TopP        float32
	Seed        int64
	Strategy    decode.Strategy
}

// Engine runs one prompt to completion. Implementations are expected to be
// safe for concurrent calls; each call builds its own decoding state.
type Engine interface {
	Complete(ctx context.Context, prompt string, params GenParams) (string, decode.Stats, error)
}

// Server wires the completion engine into echo routes.
type Server struct {
	engine  Engine
	modelID string
	log     logger.Logger
	clock   func() time.Time

	defaultMaxTokens int
}

// NewServer returns a server over engine. modelID is the name reported by
// /v1/models and echoed in completion responses.
func NewServer(engine Engine, modelID string, log logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{
		engine:           engine,
		modelID:          modelID,
		log:              log,
		clock:            time.Now,
		defaultMaxTokens: 64,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/completions", s.handleCompletions)
	e.GET("/v1/models", s.handleListModels)
	e.GET("/healthz", s.handleHealth)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListModels(c *echo.Context) error {
	return c.JSON(http.StatusOK, ModelList{
		Object: "list",
		Data: []ModelInfo{{
			ID:      s.modelID,
			Object:  "model",
			Created: s.clock().Unix(),
			OwnedBy: "local",
		}},
	})
}

func (s *Server) handleCompletions(c *echo.Context) error {
	if s.engine == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "completion engine not configured", "", "")
	}
	req, err := decodeJSON[CompletionRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if req.Prompt == "" {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", "prompt must not be empty", "prompt", "")
	}

	params := GenParams{
		MaxTokens: s.defaultMaxTokens,
		Strategy:  decode.StrategyCached,
	}
	if req.MaxTokens != nil {
		if *req.MaxTokens < 0 {
			return writeError(c, http.StatusBadRequest, "invalid_request_error", "max_tokens must not be negative", "max_tokens", "")
		}
		params.MaxTokens = *req.MaxTokens
	}
	if req.Temperature != nil {
		params.Temperature = float32(*req.Temperature)
	}
	if req.TopK != nil {
		params.TopK = *req.TopK
	}
	if req.TopP != nil {
		params.TopP = float32(*req.TopP)
	}
	if req.Seed != nil {
		params.Seed = *req.Seed
	}
	if req.Strategy != "" {
		strategy, err := decode.ParseStrategy(req.Strategy)
		if err != nil {
			return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error(), "strategy", "")
		}
		params.Strategy = strategy
	}

	text, stats, err := s.engine.Complete(c.Request().Context(), req.Prompt, params)
	if err != nil {
		s.log.Error("completion failed", "error", err)
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "")
	}

	s.log.Info("completion served",
		"prompt_tokens", stats.PromptTokens,
		"completion_tokens", stats.TokensGenerated,
		"tps", fmt.Sprintf("%.1f", stats.TokensPerSecond()),
	)

	return c.JSON(http.StatusOK, CompletionResponse{
		ID:      "cmpl-" + uuid.NewString(),
		Object:  "text_completion",
		Created: s.clock().Unix(),
		Model:   s.modelID,
		Choices: []CompletionChoice{{
			Index:        0,
			Text:         text,
			FinishReason: "length",
		}},
		Usage: CompletionUsage{
			PromptTokens:     stats.PromptTokens,
			CompletionTokens: stats.TokensGenerated,
			TotalTokens:      stats.PromptTokens + stats.TokensGenerated,
		},
	})
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg, "", "")
}

func writeError(c *echo.Context, status int, errType, msg, param, code string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
			Code:    code,
			Param:   param,
		},
	})
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var v T
	raw, err := io.ReadAll(r)
	if err != nil {
		return v, fmt.Errorf("read request body: %w", err)
	}
	if len(raw) == 0 {
		return v, fmt.Errorf("empty request body")
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("parse request body: %w", err)
	}
	return v, nil
}
