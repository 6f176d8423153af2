package generate

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"google.golang.org/genai"

	"github.com/vango-go/revlive/pkg/gateway/metrics"
)

type modelsCall struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

type fakeModels struct {
	mu    sync.Mutex
	calls []modelsCall
	resp  *genai.GenerateContentResponse
	err   error
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, modelsCall{model: model, contents: contents, config: config})
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.resp, f.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func withTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

func TestGemini_GenerateSendsPersonaAndPrompt(t *testing.T) {
	exp := withTracer(t)
	fm := &fakeModels{resp: textResponse("The RV400 is our flagship.")}
	m := metrics.New("test")
	g := NewGeminiWithModels(fm, GeminiConfig{Model: "gemini-1.5-flash", Metrics: m})

	got, err := g.Generate(context.Background(), "  tell me about the RV400 ")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "The RV400 is our flagship." {
		t.Fatalf("answer=%q", got)
	}

	if len(fm.calls) != 1 {
		t.Fatalf("calls=%d, want 1", len(fm.calls))
	}
	call := fm.calls[0]
	if call.model != "gemini-1.5-flash" {
		t.Fatalf("model=%q", call.model)
	}
	if len(call.contents) != 1 || len(call.contents[0].Parts) != 1 || call.contents[0].Parts[0].Text != "tell me about the RV400" {
		t.Fatalf("contents=%+v", call.contents)
	}
	si := call.config.SystemInstruction
	if si == nil || len(si.Parts) != 1 || si.Parts[0].Text != Persona {
		t.Fatalf("system instruction=%+v", si)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "relay.generate" {
		t.Fatalf("spans=%v", spans)
	}
	if spans[0].Status.Code == codes.Error {
		t.Fatalf("span status=%v", spans[0].Status)
	}
	if n := testutil.CollectAndCount(m.GenerateDuration); n != 1 {
		t.Fatalf("generate duration series=%d, want 1", n)
	}
}

func TestGemini_GenerateErrors(t *testing.T) {
	upstream := errors.New("quota exceeded")
	tests := []struct {
		name    string
		fm      *fakeModels
		prompt  string
		wantErr error
	}{
		{name: "empty prompt", fm: &fakeModels{}, prompt: "   ", wantErr: ErrEmptyPrompt},
		{name: "upstream", fm: &fakeModels{err: upstream}, prompt: "hi", wantErr: upstream},
		{name: "no candidates", fm: &fakeModels{resp: &genai.GenerateContentResponse{}}, prompt: "hi", wantErr: ErrNoCandidates},
		{name: "nil response", fm: &fakeModels{}, prompt: "hi", wantErr: ErrNoCandidates},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp := withTracer(t)
			g := NewGeminiWithModels(tt.fm, GeminiConfig{Model: "m"})
			_, err := g.Generate(context.Background(), tt.prompt)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err=%v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == ErrEmptyPrompt {
				if len(tt.fm.calls) != 0 {
					t.Fatalf("empty prompt reached the API")
				}
				return
			}
			spans := exp.GetSpans()
			if len(spans) != 1 || spans[0].Status.Code != codes.Error {
				t.Fatalf("spans=%v, want one errored span", spans)
			}
		})
	}
}

func TestGemini_GenerateCanceled(t *testing.T) {
	withTracer(t)
	m := metrics.New("test")
	g := NewGeminiWithModels(&fakeModels{resp: textResponse("late")}, GeminiConfig{Model: "m", Metrics: m})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.Generate(ctx, "hi"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
	if got := testutil.CollectAndCount(m.GenerateDuration, "test_generate_duration_seconds"); got != 1 {
		t.Fatalf("series=%d", got)
	}
}

func TestGemini_CustomSystemInstruction(t *testing.T) {
	fm := &fakeModels{resp: textResponse("ok")}
	g := NewGeminiWithModels(fm, GeminiConfig{Model: "m", SystemInstruction: "be brief"})
	if _, err := g.Generate(context.Background(), "hi"); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got := fm.calls[0].config.SystemInstruction.Parts[0].Text; got != "be brief" {
		t.Fatalf("system=%q", got)
	}
}

func TestNewGemini_RequiresKey(t *testing.T) {
	if _, err := NewGemini(context.Background(), GeminiConfig{Model: "m"}); err == nil {
		t.Fatalf("expected error without api key")
	}
}

func TestGeneratorFunc(t *testing.T) {
	var g Generator = GeneratorFunc(func(_ context.Context, prompt string) (string, error) {
		return "echo: " + prompt, nil
	})
	got, _ := g.Generate(context.Background(), "x")
	if got != "echo: x" {
		t.Fatalf("got %q", got)
	}
}
