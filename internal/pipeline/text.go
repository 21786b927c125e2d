package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelworks/sitegen-api/internal/cache"
	"github.com/kestrelworks/sitegen-api/internal/domain"
	"github.com/kestrelworks/sitegen-api/internal/hub"
	"github.com/kestrelworks/sitegen-api/internal/redact"
)

// errCancelledMidFlight aborts a pipeline whose job was cancelled between
// stages. The hub's terminal-wins rule makes the subsequent terminal report a
// no-op, so the sentinel never reaches a client.
var errCancelledMidFlight = errors.New("job cancelled mid-flight")

// runText drives the four-step text pipeline:
// validate -> detect specialty -> generate -> assemble and persist.
func (o *Orchestrator) runText(
	ctx context.Context,
	requestID, userID uuid.UUID,
	input domain.TextInput,
) (*domain.ContentResult, error) {
	text := normalizeText(input.Text)

	o.hub.UpdateProgress(requestID, hub.Update{
		Step:       1,
		Progress:   10,
		Status:     domain.JobStatusProcessing,
		StepName:   domain.StageValidate,
		StepStatus: domain.StepStatusCompleted,
		Message:    "input validated",
		Metadata:   map[string]any{"input_type": string(domain.InputTypeText)},
	})

	cacheKey := cache.DeriveKey(cache.NamespaceContent, text, input.Specialty)
	if !input.Refresh {
		if result, ok := o.probeResultCache(ctx, cacheKey); ok {
			o.logger.Debug("serving generation result from cache",
				"request_id", requestID, "cache_key", cacheKey)
			o.hub.UpdateProgress(requestID, hub.Update{
				Step:       2,
				Progress:   90,
				StepName:   domain.StageDetect,
				StepStatus: domain.StepStatusCompleted,
				Message:    "cached result found",
				Metadata:   map[string]any{"cached": true},
			})
			return result, nil
		}
	}
	if o.cancelled(requestID) {
		return nil, errCancelledMidFlight
	}

	specialty := detectSpecialty(text, input.Specialty)
	o.hub.UpdateProgress(requestID, hub.Update{
		Step:       2,
		Progress:   30,
		StepName:   domain.StageDetect,
		StepStatus: domain.StepStatusCompleted,
		Message:    "specialty detected: " + specialty,
		Metadata:   map[string]any{"specialty": specialty},
	})
	if o.cancelled(requestID) {
		return nil, errCancelledMidFlight
	}

	content, err := o.generate(ctx, requestID, text, specialty, 3, 60)
	if err != nil {
		return nil, err
	}
	if o.cancelled(requestID) {
		return nil, errCancelledMidFlight
	}

	return o.assemble(ctx, requestID, userID, assembleParams{
		step:          4,
		progress:      90,
		content:       content,
		specialty:     specialty,
		cacheKey:      cacheKey,
		originalInput: text,
		save:          input.Save,
		inputType:     domain.InputTypeText,
	})
}

// generate invokes the generation collaborator under its timeout and reports
// the stage. The step and progress values differ between input types.
func (o *Orchestrator) generate(
	ctx context.Context,
	requestID uuid.UUID,
	text, specialty string,
	step, progress int,
) (*domain.GeneratedContent, error) {
	o.hub.UpdateProgress(requestID, hub.Update{
		Step:     step,
		Progress: progress,
		StepName: domain.StageGenerate,
		Message:  "generating site content",
	})

	genCtx, cancel := context.WithTimeout(ctx, o.cfg.GenerationTimeout)
	defer cancel()

	content, err := o.generator.Generate(genCtx, text, specialty)
	if err != nil {
		return nil, fmt.Errorf("content generation failed: %w", err)
	}
	return content, nil
}

type assembleParams struct {
	step          int
	progress      int
	content       *domain.GeneratedContent
	specialty     string
	cacheKey      string
	originalInput string
	save          bool
	inputType     domain.InputType
	extraMeta     map[string]any
}

// assemble builds the result envelope, stores it in the cache, and persists
// it when requested. Persistence failures become a warning on the result.
func (o *Orchestrator) assemble(
	ctx context.Context,
	requestID, userID uuid.UUID,
	p assembleParams,
) (*domain.ContentResult, error) {
	o.hub.UpdateProgress(requestID, hub.Update{
		Step:     p.step,
		Progress: p.progress,
		StepName: domain.StagePersist,
		Message:  "assembling result",
	})

	meta := map[string]any{
		"input_type": string(p.inputType),
	}
	for k, v := range p.extraMeta {
		meta[k] = v
	}

	result := &domain.ContentResult{
		Content:     p.content,
		Summary:     p.content.Summarize(),
		Specialty:   p.specialty,
		CacheKey:    p.cacheKey,
		Cached:      false,
		Metadata:    meta,
		GeneratedAt: time.Now().UTC(),
	}

	o.storeResultCache(ctx, p.cacheKey, result)

	if p.save && o.persister != nil {
		persistCtx, cancel := context.WithTimeout(ctx, o.cfg.PersistTimeout)
		docID, err := o.persister.Save(persistCtx, p.content, p.originalInput, userID, meta)
		cancel()
		if err != nil {
			// Generation succeeded; a failed save must not fail the job.
			o.logger.Warn("persistence failed for generated content",
				"request_id", requestID, "error", redact.Error(err))
			result.Warning = "content generated but could not be saved"
		} else {
			result.DocumentID = docID
		}
	}

	return result, nil
}

// probeResultCache looks up a previously generated result. A hit comes back
// with Cached set so clients can tell a replay from fresh generation.
func (o *Orchestrator) probeResultCache(ctx context.Context, key string) (*domain.ContentResult, bool) {
	raw, found := o.cache.Get(ctx, key)
	if !found {
		return nil, false
	}
	var result domain.ContentResult
	if err := json.Unmarshal(raw, &result); err != nil {
		o.logger.Warn("discarding undecodable cache entry", "cache_key", key, "error", err)
		o.cache.Delete(ctx, key)
		return nil, false
	}
	result.Cached = true
	return &result, true
}

func (o *Orchestrator) storeResultCache(ctx context.Context, key string, result *domain.ContentResult) {
	raw, err := json.Marshal(result)
	if err != nil {
		o.logger.Warn("failed to encode result for cache", "cache_key", key, "error", err)
		return
	}
	o.cache.Set(ctx, key, raw, o.cfg.CacheTTL)
}
