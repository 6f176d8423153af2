// Package generate turns one user utterance into one assistant answer.
package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/genai"

	"github.com/vango-go/revlive/pkg/gateway/metrics"
	"github.com/vango-go/revlive/pkg/gateway/observe"
)

// Persona is the fixed system instruction sent with every turn.
const Persona = `You are Rev, a friendly and knowledgeable voice assistant for Revolt Motors.

Key guidelines:
- Only answer questions about Revolt Motors, electric motorcycles, and electric vehicles
- Keep responses conversational and under 50 words for voice interaction
- Be enthusiastic about electric mobility and Revolt's products
- If asked about other topics, politely redirect to Revolt Motors

Revolt Motors key information:
- Leading electric motorcycle manufacturer in India
- Popular models: RV400, RV1, RV1+
- Focus on sustainable transportation and electric mobility
- Offers smart connectivity features and fast charging
- Committed to reducing pollution through electric vehicles`

var (
	// ErrEmptyPrompt is returned for a blank prompt.
	ErrEmptyPrompt = errors.New("generate: prompt is empty")
	// ErrNoCandidates is returned when the model produced no candidate,
	// typically because the prompt was blocked.
	ErrNoCandidates = errors.New("generate: response has no candidates")
)

// Generator produces an answer for a single prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// ModelsAPI is the subset of *genai.Models used by Gemini.
type ModelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiConfig configures NewGemini.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string // empty => SDK default

	// SystemInstruction defaults to Persona.
	SystemInstruction string

	Metrics *metrics.Metrics
}

// Gemini generates answers with the Gemini API. Each call is a single
// independent request: no history is carried between turns.
type Gemini struct {
	models  ModelsAPI
	model   string
	system  string
	metrics *metrics.Metrics
}

// NewGemini builds a Gemini generator backed by the genai SDK.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("generate: api key is required")
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("generate: create genai client: %w", err)
	}
	return NewGeminiWithModels(client.Models, cfg), nil
}

// NewGeminiWithModels builds a Gemini generator over an existing models API.
func NewGeminiWithModels(models ModelsAPI, cfg GeminiConfig) *Gemini {
	system := cfg.SystemInstruction
	if system == "" {
		system = Persona
	}
	return &Gemini{
		models:  models,
		model:   cfg.Model,
		system:  system,
		metrics: cfg.Metrics,
	}
}

// Model returns the configured model name.
func (g *Gemini) Model() string { return g.model }

// Generate sends prompt as the sole user content with the persona as system
// instruction and returns the answer text.
func (g *Gemini) Generate(ctx context.Context, prompt string) (answer string, err error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", ErrEmptyPrompt
	}

	ctx, span := observe.StartSpan(ctx, "relay.generate")
	span.SetAttributes(
		attribute.String("gen_ai.system", "gemini"),
		attribute.String("gen_ai.request.model", g.model),
		attribute.Int("revlive.prompt_chars", len(prompt)),
	)
	start := time.Now()
	defer func() {
		status := metrics.TurnOK
		switch {
		case err == nil:
			span.SetAttributes(attribute.Int("revlive.answer_chars", len(answer)))
		case errors.Is(err, context.Canceled):
			status = metrics.TurnCanceled
		case errors.Is(err, context.DeadlineExceeded):
			status = metrics.TurnTimeout
		default:
			status = metrics.TurnError
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, status)
		}
		span.End()
		g.metrics.RecordGenerate(g.model, status, time.Since(start))
	}()

	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(g.system, genai.RoleUser),
	})
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ErrNoCandidates
	}
	return resp.Text(), nil
}
