package llm

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	genai "google.golang.org/genai"
)

// GeminiClient is a thin wrapper around the official genai client.
type GeminiClient struct {
	cli   *genai.Client
	model string
	rl    *rpsLimiter
}

func NewGeminiClient(ctx context.Context, model string) (*GeminiClient, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	// Optional RPS limiter via env: LLM_RPS / LLM_BURST.
	var rps float64
	var burst int
	if v := os.Getenv("LLM_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			rps = f
		}
	}
	if v := os.Getenv("LLM_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			burst = n
		}
	}
	return &GeminiClient{cli: cli, model: model, rl: newRPSLimiter(rps, burst)}, nil
}

func (g *GeminiClient) Name() string { return "Gemini:" + g.model }
func (g *GeminiClient) Close() error {
	if g.rl != nil {
		g.rl.Stop()
	}
	return nil
}

// GenerateCode sends the prompt and returns the raw text of the first
// candidate. Transient failures retry in place with backoff; an unreachable
// backend maps to ErrUnavailable for the orchestrator's taxonomy.
func (g *GeminiClient) GenerateCode(ctx context.Context, req Request) (string, error) {
	if hook := HookFrom(ctx); hook != nil {
		hook.Before(ctx, req)
	}
	log.Printf("LLM request (%s): %d bytes", req.Kind, len(req.Prompt))

	temp := float32(req.Temperature)
	cfg := &genai.GenerateContentConfig{Temperature: &temp}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if err := g.rl.Acquire(ctx); err != nil {
			lastErr = err
			break
		}
		resp, err := g.cli.Models.GenerateContent(ctx, g.model,
			[]*genai.Content{{Parts: []*genai.Part{{Text: req.Prompt}}}},
			cfg,
		)
		if err != nil {
			lastErr = err
		} else if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
			lastErr = ErrEmptyResponse
		} else {
			txt := resp.Candidates[0].Content.Parts[0].Text
			if hook := HookFrom(ctx); hook != nil {
				hook.After(ctx, req, txt, nil)
			}
			return txt, nil
		}
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = 3
		case <-time.After(time.Duration(300*(1<<attempt)) * time.Millisecond):
		}
	}
	lastErr = markUnavailable(lastErr)
	if hook := HookFrom(ctx); hook != nil {
		hook.After(ctx, req, "", lastErr)
	}
	return "", lastErr
}
