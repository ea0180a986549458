package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/singleflight"

	"vibewidget/internal/artifact"
	"vibewidget/internal/llm"
	"vibewidget/internal/store"
)

const defaultTimeout = 120 * time.Second

// Orchestrator turns a natural-language request into a validated artifact
// through a bounded generate, validate, diagnose, repair loop, and writes
// results into the store. Concurrent requests for the same cache key are
// coalesced into one collaborator call.
type Orchestrator struct {
	store   store.Store
	client  llm.Client
	timeout time.Duration
	group   singleflight.Group
}

type Option func(*Orchestrator)

// WithTimeout bounds each collaborator round-trip; callers see the artifact
// in the generating state until it resolves.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func New(st store.Store, client llm.Client, opts ...Option) *Orchestrator {
	o := &Orchestrator{store: st, client: client, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Generate returns a cached artifact when the key hits, otherwise assembles
// the prompt, invokes the collaborator, and validates the result. A module
// missing its default export enters the repair path instead of failing.
func (o *Orchestrator) Generate(ctx context.Context, description string, dc artifact.DataContext, theme string) (*artifact.Artifact, error) {
	if o == nil {
		return nil, fmt.Errorf("orchestrator is nil")
	}
	key := artifact.NewCacheKey(description, dc, theme)
	if a, ok, err := o.store.Get(ctx, key); err != nil {
		return nil, err
	} else if ok {
		return a, nil
	}
	return o.coalesced(ctx, key, func(ctx context.Context) (*artifact.Artifact, error) {
		prompt := llm.BuildGenerationPrompt(key.Description, dc, theme)
		return o.produce(ctx, key, prompt, llm.KindGenerate, "", dc)
	})
}

// Revise produces a new artifact derived from source. The new artifact gets
// its own lineage: a fresh id keyed by the revision instruction, with
// baseArtifactId pointing back at the source. Revision asks the collaborator
// for minimal, targeted edits.
func (o *Orchestrator) Revise(ctx context.Context, description string, src Source, dc artifact.DataContext, theme string) (*artifact.Artifact, error) {
	if o == nil {
		return nil, fmt.Errorf("orchestrator is nil")
	}
	if src == nil {
		return nil, fmt.Errorf("revision source is required")
	}
	resolved, err := src.resolve(ctx, o.store)
	if err != nil {
		return nil, err
	}
	key := artifact.NewCacheKey(description, dc, theme)
	if a, ok, err := o.store.Get(ctx, key); err != nil {
		return nil, err
	} else if ok {
		return a, nil
	}
	return o.coalesced(ctx, key, func(ctx context.Context) (*artifact.Artifact, error) {
		prompt := llm.BuildRevisionPrompt(key.Description, resolved, dc, theme)
		return o.produce(ctx, key, prompt, llm.KindRevise, resolved.BaseID, dc)
	})
}

// RepairCode asks the collaborator to patch broken code given the runtime
// diagnostic. The patched code replaces the served copy in place: same id,
// same version, marked dirty in the store. The caller owns the retry budget.
func (o *Orchestrator) RepairCode(ctx context.Context, artifactID, code, errorMessage string, dc artifact.DataContext) (string, error) {
	if o == nil {
		return "", fmt.Errorf("orchestrator is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	raw, err := o.client.GenerateCode(ctx, llm.Request{
		Kind:        llm.KindRepair,
		Prompt:      llm.BuildRepairPrompt(code, errorMessage, dc),
		Temperature: llm.TemperatureEdit,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}
	fixed := llm.CleanCode(raw)
	if !artifact.HasDefaultExport(fixed) {
		return "", ErrStaticValidationFailed
	}
	if artifactID != "" {
		if err := o.store.MarkDirty(ctx, artifactID, fixed); err != nil {
			return "", err
		}
	}
	return fixed, nil
}

func (o *Orchestrator) coalesced(ctx context.Context, key artifact.CacheKey, fn func(context.Context) (*artifact.Artifact, error)) (*artifact.Artifact, error) {
	v, err, shared := o.group.Do(key.ID(), func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, o.timeout)
		defer cancel()
		return fn(ctx)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Printf("coalesced duplicate generation for id %s", key.ID())
	}
	return v.(*artifact.Artifact), nil
}

// produce runs one collaborator call plus the static-validation repair
// sub-loop, then performs the single store write.
func (o *Orchestrator) produce(ctx context.Context, key artifact.CacheKey, prompt string, kind llm.Kind, baseArtifactID string, dc artifact.DataContext) (*artifact.Artifact, error) {
	temperature := llm.TemperatureGenerate
	if kind == llm.KindRevise {
		temperature = llm.TemperatureEdit
	}
	raw, err := o.client.GenerateCode(ctx, llm.Request{Kind: kind, Prompt: prompt, Temperature: temperature})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}
	code := llm.CleanCode(raw)

	retries := 0
	for !artifact.HasDefaultExport(code) {
		if retries >= RepairBudget {
			return nil, fmt.Errorf("%w: %v (%s)", ErrRetriesExhausted, ErrStaticValidationFailed, Hint(ErrStaticValidationFailed.Error()))
		}
		retries++
		log.Printf("static validation failed for id %s, repair attempt %d", key.ID(), retries)
		raw, err = o.client.GenerateCode(ctx, llm.Request{
			Kind:        llm.KindRepair,
			Prompt:      llm.BuildRepairPrompt(code, ErrStaticValidationFailed.Error(), dc),
			Temperature: llm.TemperatureEdit,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
		}
		code = llm.CleanCode(raw)
	}

	a, err := o.store.Put(ctx, key, code, baseArtifactID)
	if err != nil {
		return nil, err
	}
	a.RetryCount = retries
	return a, nil
}
