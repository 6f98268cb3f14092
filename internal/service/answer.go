package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cloo-solutions/zenithvault/internal/domain"
	"github.com/cloo-solutions/zenithvault/internal/telemetry"
	"go.uber.org/zap"
)

// GenerationProvider produces a completion for a composed prompt.
type GenerationProvider interface {
	Generate(ctx context.Context, prompt Prompt) (string, error)
}

// QuestionRetriever is the retrieval step of the answer pipeline.
type QuestionRetriever interface {
	Retrieve(ctx context.Context, input RetrieveInput) ([]domain.RetrievalResult, error)
}

// AnswerComposerConfig tunes prompt assembly and generation.
type AnswerComposerConfig struct {
	SystemPrompt      string
	GenerationTimeout time.Duration
	MaxSourceChars    int
}

// DefaultAnswerComposerConfig returns the default composer settings.
func DefaultAnswerComposerConfig() AnswerComposerConfig {
	return AnswerComposerConfig{
		SystemPrompt:      defaultSystemPrompt,
		GenerationTimeout: DefaultExternalCallTimeout,
		MaxSourceChars:    defaultMaxSourceChars,
	}
}

// AnswerComposer answers questions grounded on the knowledge base.
type AnswerComposer struct {
	retriever QuestionRetriever
	generator GenerationProvider
	answerLog AnswerLogRepository
	uuidGen   UUIDGenerator
	cfg       AnswerComposerConfig
	metrics   Metrics
	logger    *zap.Logger
}

// NewAnswerComposer creates an AnswerComposer with default settings. The
// answer log is optional.
func NewAnswerComposer(retriever QuestionRetriever, generator GenerationProvider, answerLog AnswerLogRepository, logger *zap.Logger) *AnswerComposer {
	return NewAnswerComposerWithConfig(retriever, generator, answerLog, logger, DefaultAnswerComposerConfig())
}

// NewAnswerComposerWithConfig creates an AnswerComposer with custom settings.
func NewAnswerComposerWithConfig(
	retriever QuestionRetriever,
	generator GenerationProvider,
	answerLog AnswerLogRepository,
	logger *zap.Logger,
	cfg AnswerComposerConfig,
) *AnswerComposer {
	defaults := DefaultAnswerComposerConfig()
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		cfg.SystemPrompt = defaults.SystemPrompt
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = defaults.GenerationTimeout
	}
	if cfg.MaxSourceChars <= 0 {
		cfg.MaxSourceChars = defaults.MaxSourceChars
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnswerComposer{
		retriever: retriever,
		generator: generator,
		answerLog: answerLog,
		uuidGen:   &DefaultUUIDGenerator{},
		cfg:       cfg,
		metrics:   NopMetrics{},
		logger:    logger,
	}
}

// WithMetrics sets the metrics sink.
func (c *AnswerComposer) WithMetrics(m Metrics) *AnswerComposer {
	if m != nil {
		c.metrics = m
	}
	return c
}

// WithUUIDGenerator overrides answer id generation (for testing).
func (c *AnswerComposer) WithUUIDGenerator(gen UUIDGenerator) *AnswerComposer {
	if gen != nil {
		c.uuidGen = gen
	}
	return c
}

// AnswerInput is one question asked from the chat or the case helper.
type AnswerInput struct {
	Question       string
	OrganizationID string
	CaseContext    *domain.CaseContext
}

// AnswerOutput is a grounded answer. Sources is empty, never nil, when no
// knowledge entry grounded the answer.
type AnswerOutput struct {
	ResponseText string
	Sources      []int64
	Citations    []domain.RetrievalResult
	AnswerID     string
}

// Grounded reports whether any knowledge entry backs the answer.
func (o *AnswerOutput) Grounded() bool {
	return len(o.Sources) > 0
}

// answerRun tracks the stage of a single invocation.
type answerRun struct {
	stage  domain.PipelineStage
	logger *zap.Logger
}

func (r *answerRun) enter(stage domain.PipelineStage) {
	if r.stage == stage {
		return
	}
	r.logger.Debug("answer stage", zap.String("from", string(r.stage)), zap.String("to", string(stage)))
	r.stage = stage
}

type stageObserverKey struct{}

// withStageObserver lets the retrieval step report its progress to the
// invocation that started it.
func withStageObserver(ctx context.Context, fn func(domain.PipelineStage)) context.Context {
	return context.WithValue(ctx, stageObserverKey{}, fn)
}

func notifyStage(ctx context.Context, stage domain.PipelineStage) {
	if fn, ok := ctx.Value(stageObserverKey{}).(func(domain.PipelineStage)); ok {
		fn(stage)
	}
}

// Answer retrieves grounding for the question, generates a reply and
// attributes it to the entries it cites. Failures are returned as a
// *domain.PipelineError naming the stage; no partial answer is returned.
func (c *AnswerComposer) Answer(ctx context.Context, input AnswerInput) (*AnswerOutput, error) {
	ctx, span := telemetry.StartSpan(ctx, "AnswerComposer.Answer", telemetry.SpanAttributes{
		OrgID:     input.OrganizationID,
		Operation: "answer",
	})
	defer span.End()

	start := time.Now()
	run := &answerRun{stage: domain.StageIdle, logger: c.logger}

	out, err := c.answer(ctx, run, input)
	if err != nil {
		var pe *domain.PipelineError
		if !errors.As(err, &pe) {
			err = &domain.PipelineError{Stage: run.stage, Err: err}
		}
		run.enter(domain.StageFailed)
		span.SetStage(string(domain.StageFailed))
		if domain.CodeOf(err) != domain.ErrCodeInvalidInput {
			span.SetError(err)
		}
		c.metrics.AnswerCompleted(domain.StageFailed, false, time.Since(start))
		c.logger.Warn("answer failed", zap.String("organization_id", input.OrganizationID), zap.Error(err))
		return nil, err
	}

	run.enter(domain.StageSuccess)
	span.SetStage(string(domain.StageSuccess))
	elapsed := time.Since(start)
	c.metrics.AnswerCompleted(domain.StageSuccess, out.Grounded(), elapsed)
	c.recordAnswer(ctx, input, out, elapsed)
	return out, nil
}

func (c *AnswerComposer) answer(ctx context.Context, run *answerRun, input AnswerInput) (*AnswerOutput, error) {
	run.enter(domain.StageEmbedding)
	results, err := c.retriever.Retrieve(withStageObserver(ctx, run.enter), RetrieveInput{
		Question:       input.Question,
		OrganizationID: input.OrganizationID,
	})
	if err != nil {
		return nil, err
	}

	run.enter(domain.StageComposing)
	prompt := buildPrompt(c.cfg.SystemPrompt, input.Question, input.CaseContext, results, c.cfg.MaxSourceChars)

	run.enter(domain.StageGenerating)
	response, err := c.generate(ctx, prompt)
	if err != nil {
		return nil, &domain.PipelineError{Stage: domain.StageGenerating, Err: err}
	}

	supplied := make([]int64, 0, len(results))
	byID := make(map[int64]domain.RetrievalResult, len(results))
	for _, r := range results {
		supplied = append(supplied, r.Entry.ID)
		byID[r.Entry.ID] = r
	}

	text, sources := extractCitations(response, supplied)
	if text == "" {
		return nil, &domain.PipelineError{
			Stage: domain.StageGenerating,
			Err:   domain.ErrGenerationUnavailable.WithCause(errors.New("completion contained no answer text")),
		}
	}

	citations := make([]domain.RetrievalResult, 0, len(sources))
	for _, id := range sources {
		citations = append(citations, byID[id])
	}

	return &AnswerOutput{
		ResponseText: text,
		Sources:      sources,
		Citations:    citations,
	}, nil
}

func (c *AnswerComposer) generate(ctx context.Context, prompt Prompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.GenerationTimeout)
	defer cancel()

	start := time.Now()
	response, err := c.generator.Generate(ctx, prompt)
	if err == nil && strings.TrimSpace(response) == "" {
		err = errors.New("empty completion")
	}
	c.metrics.ExternalCall(ExternalGeneration, err, time.Since(start))
	if err != nil {
		return "", domain.ErrGenerationUnavailable.WithCause(err)
	}
	return response, nil
}

// recordAnswer writes the answer log. A failed write never fails the answer.
func (c *AnswerComposer) recordAnswer(ctx context.Context, input AnswerInput, out *AnswerOutput, elapsed time.Duration) {
	if c.answerLog == nil {
		return
	}

	scope := domain.ContextScope{OrganizationID: input.OrganizationID}
	if input.CaseContext != nil {
		scope.CaseID = input.CaseContext.CaseID
	}
	record := domain.NewAnswerRecord(c.uuidGen.NewString(), strings.TrimSpace(input.Question), out.ResponseText, out.Sources, scope, elapsed, time.Now().UTC())

	if err := c.answerLog.Create(ctx, record); err != nil {
		c.logger.Warn("failed to write answer log", zap.String("organization_id", input.OrganizationID), zap.Error(err))
		return
	}
	out.AnswerID = record.ID
}
