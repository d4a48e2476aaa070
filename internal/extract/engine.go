// Package extract wraps single model calls under schema prompts and turns
// the responses into typed records. It owns the tolerant JSON parse, range
// validation and the quota-retry policy; it never retries content errors.
package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/showscout/scout-cli/internal/model"
	"github.com/showscout/scout-cli/internal/resilience"
	"github.com/showscout/scout-cli/pkg/anthropic"
)

const (
	defaultModel     = "claude-haiku-4-5-20251001"
	defaultMaxTokens = 1024

	// geoBatchSize caps how many incomplete records ride in one
	// geo-completion prompt.
	geoBatchSize = 5
)

// Engine runs schema-prompted model calls.
type Engine struct {
	client    anthropic.Client
	modelID   string
	maxTokens int64
	retry     resilience.RetryConfig
}

// Option configures the Engine.
type Option func(*Engine)

// WithModel overrides the default model ID.
func WithModel(id string) Option {
	return func(e *Engine) {
		if id != "" {
			e.modelID = id
		}
	}
}

// WithMaxTokens overrides the per-call output token cap.
func WithMaxTokens(n int64) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxTokens = n
		}
	}
}

// WithRetry overrides the quota-retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(e *Engine) {
		e.retry = cfg
	}
}

// NewEngine creates an extraction engine over the given model client.
func NewEngine(client anthropic.Client, opts ...Option) *Engine {
	e := &Engine{
		client:    client,
		modelID:   defaultModel,
		maxTokens: defaultMaxTokens,
		retry:     resilience.QuotaRetryConfig(),
	}
	e.retry.OnRetry = resilience.RetryLogger("anthropic", "extract")
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract runs one job through the model and returns its result. It never
// returns an error: every failure mode is folded into the result's
// ErrorKind so the dispatcher always gets exactly one result per job.
func (e *Engine) Extract(ctx context.Context, job model.ExtractionJob) model.RawExtractionResult {
	result := model.RawExtractionResult{
		JobIndex:  job.Index,
		SourceURL: job.Target.SourceURL,
	}

	resp, err := e.call(ctx, e.buildRequest(job))
	if err != nil {
		result.ErrorKind = classifyCallError(err)
		result.ErrorMsg = err.Error()
		return result
	}
	resp.Usage.LogCost(e.modelID, string(job.Prompt))

	text := resp.Text()
	switch job.Prompt {
	case model.PromptShowImage, model.PromptShowText:
		fields, confidence, parseErr := parseShowFields(text)
		if parseErr != nil {
			fillError(&result, parseErr)
			return result
		}
		result.Success = true
		result.Show = fields
		result.Confidence = confidence
		if fields.DJName != nil && *fields.DJName != "" {
			result.DJ = &model.DJRecord{Name: *fields.DJName, Confidence: confidence}
		}

	case model.PromptGroupName:
		name, confidence, parseErr := parseGroupName(text)
		if parseErr != nil {
			fillError(&result, parseErr)
			return result
		}
		result.Success = true
		result.Confidence = confidence
		if name != "" {
			result.Vendor = &model.VendorRecord{Name: name, Confidence: confidence}
		}

	case model.PromptPopupClassify:
		verdict, parseErr := parsePopupVerdict(text)
		if parseErr != nil {
			fillError(&result, parseErr)
			return result
		}
		result.Success = true
		result.Confidence = verdict.Confidence

	default:
		result.ErrorKind = model.ErrValidation
		result.ErrorMsg = fmt.Sprintf("extract: unknown prompt kind %q", job.Prompt)
	}

	return result
}

// GeoComplete submits up to geoBatchSize incomplete records in one call and
// returns the completion fills aligned to the input order.
func (e *Engine) GeoComplete(ctx context.Context, records []model.ShowRecord) ([]model.GeoFill, error) {
	if len(records) == 0 {
		return nil, nil
	}
	if len(records) > geoBatchSize {
		return nil, eris.Errorf("extract: geo completion batch of %d exceeds %d", len(records), geoBatchSize)
	}

	req := anthropic.MessageRequest{
		Model:     e.modelID,
		MaxTokens: e.maxTokens,
		System:    []anthropic.SystemBlock{{Text: geoCompletionSystem}},
		Messages: []anthropic.Message{
			{Role: "user", Content: geoCompletionPrompt(records)},
		},
	}

	resp, err := e.call(ctx, req)
	if err != nil {
		return nil, newError(classifyCallError(err), err)
	}
	resp.Usage.LogCost(e.modelID, string(model.PromptGeoCompletion))

	return parseGeoCompletion(resp.Text(), len(records))
}

// BulkGeoComplete runs geo completion for a large record set through the
// Batch API: a primer warms the shared system prompt, then each chunk of
// geoBatchSize records becomes one batch request. Chunks that fail come
// back as empty field sets so the caller can count them as skipped.
func (e *Engine) BulkGeoComplete(ctx context.Context, records []model.ShowRecord) ([]model.GeoFill, error) {
	if len(records) == 0 {
		return nil, nil
	}

	system := anthropic.BuildCachedSystemBlocks(geoCompletionSystem)

	if _, err := anthropic.PrimerRequest(ctx, e.client, anthropic.MessageRequest{
		Model:     e.modelID,
		MaxTokens: 16,
		System:    system,
		Messages:  []anthropic.Message{{Role: "user", Content: "Acknowledge."}},
	}); err != nil {
		zap.L().Warn("extract: geo primer failed, batch will pay cold cache", zap.Error(err))
	}

	var chunks [][]model.ShowRecord
	for start := 0; start < len(records); start += geoBatchSize {
		end := min(start+geoBatchSize, len(records))
		chunks = append(chunks, records[start:end])
	}

	items := make([]anthropic.BatchRequestItem, len(chunks))
	for i, chunk := range chunks {
		items[i] = anthropic.BatchRequestItem{
			CustomID: fmt.Sprintf("geo-%d", i),
			Params: anthropic.MessageRequest{
				Model:     e.modelID,
				MaxTokens: e.maxTokens,
				System:    system,
				Messages: []anthropic.Message{
					{Role: "user", Content: geoCompletionPrompt(chunk)},
				},
			},
		}
	}

	batch, err := e.client.CreateBatch(ctx, anthropic.BatchRequest{Requests: items})
	if err != nil {
		return nil, newError(classifyCallError(err), eris.Wrap(err, "extract: create geo batch"))
	}

	polled, err := anthropic.PollBatch(ctx, e.client, batch.ID)
	if err != nil {
		return nil, eris.Wrap(err, "extract: poll geo batch")
	}

	iter, err := e.client.GetBatchResults(ctx, polled.ID)
	if err != nil {
		return nil, eris.Wrap(err, "extract: fetch geo batch results")
	}
	responses, failures, err := anthropic.CollectBatchResults(iter)
	if err != nil {
		return nil, eris.Wrap(err, "extract: collect geo batch results")
	}
	if len(failures) > 0 {
		zap.L().Warn("extract: geo batch chunks failed", zap.Int("failed", len(failures)))
	}

	out := make([]model.GeoFill, len(records))
	for i, chunk := range chunks {
		resp, ok := responses[fmt.Sprintf("geo-%d", i)]
		if !ok {
			continue
		}
		fields, parseErr := parseGeoCompletion(resp.Text(), len(chunk))
		if parseErr != nil {
			zap.L().Warn("extract: geo chunk unparseable",
				zap.Int("chunk", i),
				zap.Error(parseErr),
			)
			continue
		}
		copy(out[i*geoBatchSize:], fields)
	}
	return out, nil
}

// ClassifyPopup asks the model what kind of overlay an HTML fragment is.
func (e *Engine) ClassifyPopup(ctx context.Context, html string) (*PopupVerdict, error) {
	job := model.ExtractionJob{
		Prompt: model.PromptPopupClassify,
		Target: model.ExtractionTarget{Text: html},
	}
	resp, err := e.call(ctx, e.buildRequest(job))
	if err != nil {
		return nil, newError(classifyCallError(err), err)
	}
	return parsePopupVerdict(resp.Text())
}

// ExtractGroupName asks the model for the publishing group's name.
func (e *Engine) ExtractGroupName(ctx context.Context, text string) (string, float64, error) {
	job := model.ExtractionJob{
		Prompt: model.PromptGroupName,
		Target: model.ExtractionTarget{Text: text},
	}
	resp, err := e.call(ctx, e.buildRequest(job))
	if err != nil {
		return "", 0, newError(classifyCallError(err), err)
	}
	return parseGroupName(resp.Text())
}

func (e *Engine) buildRequest(job model.ExtractionJob) anthropic.MessageRequest {
	msg := anthropic.Message{
		Role:    "user",
		Content: userPrompt(job),
	}
	if job.Prompt == model.PromptShowImage && len(job.Target.ImageData) > 0 {
		msg.Image = job.Target.ImageData
		msg.MediaType = job.Target.MediaType
	}

	return anthropic.MessageRequest{
		Model:     e.modelID,
		MaxTokens: e.maxTokens,
		System:    []anthropic.SystemBlock{{Text: systemPrompt(job.Prompt)}},
		Messages:  []anthropic.Message{msg},
	}
}

// call invokes the model under the quota-retry policy. Rate-limit errors
// are rewrapped so the policy recognizes them; everything else passes
// through and fails on the first attempt.
func (e *Engine) call(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	return resilience.DoVal(ctx, e.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		resp, err := e.client.CreateMessage(ctx, req)
		if err != nil && anthropic.IsRateLimited(err) {
			return nil, resilience.NewQuotaError(err)
		}
		return resp, err
	})
}

// classifyCallError maps a model-call error onto the failure taxonomy.
func classifyCallError(err error) model.ErrorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return model.ErrTimeout
	case anthropic.IsAuthError(err):
		return model.ErrAuthRequired
	case resilience.IsQuota(err):
		return model.ErrQuotaExceeded
	case resilience.IsTransient(err):
		return model.ErrTransient
	default:
		return model.ErrTransient
	}
}

// fillError copies a tagged parse error into a result.
func fillError(result *model.RawExtractionResult, err error) {
	var tagged *Error
	if errors.As(err, &tagged) {
		result.ErrorKind = tagged.Kind
	} else {
		result.ErrorKind = model.ErrMalformedModel
	}
	result.ErrorMsg = err.Error()
}
