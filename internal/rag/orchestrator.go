package rag

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ent0n29/aspbot/internal/errs"
	"github.com/ent0n29/aspbot/internal/knowledge"
	"github.com/ent0n29/aspbot/internal/observability"
)

// Result is an answer and the passages it was grounded on. Empty Passages
// means Answer is the configured default response.
type Result struct {
	Answer   string              `json:"answer"`
	Passages []knowledge.Passage `json:"passages"`
}

// IsFallback reports whether the result carries the default response.
func (r Result) IsFallback() bool { return len(r.Passages) == 0 }

func (r Result) clone() Result {
	out := Result{Answer: r.Answer, Passages: make([]knowledge.Passage, len(r.Passages))}
	copy(out.Passages, r.Passages)
	return out
}

// Config holds the retrieval gate settings.
type Config struct {
	TopK            int
	Threshold       float64
	DefaultResponse string
	// RefusalPhrase is what the generator says when the passages do not answer the query.
	RefusalPhrase string
	StageTimeout  time.Duration
	CacheTTL      time.Duration
}

// Orchestrator retrieves passages, drops those under the relevance threshold
// and asks the generator for an answer grounded on the rest.
type Orchestrator struct {
	retriever knowledge.Retriever
	generator Generator
	cfg       Config
	cache     Cache
	metrics   *observability.Metrics
	log       *zap.Logger
}

func NewOrchestrator(
	retriever knowledge.Retriever,
	generator Generator,
	cfg Config,
	cache Cache,
	metrics *observability.Metrics,
	log *zap.Logger,
) *Orchestrator {
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	if strings.TrimSpace(cfg.RefusalPhrase) == "" {
		cfg.RefusalPhrase = cfg.DefaultResponse
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		retriever: retriever,
		generator: generator,
		cfg:       cfg,
		cache:     cache,
		metrics:   metrics,
		log:       log,
	}
}

// AnswerQuery returns errs.ErrNoRelevantDocuments when nothing clears the
// threshold. Every other failure is a RAG error wrapping its cause.
func (o *Orchestrator) AnswerQuery(ctx context.Context, query string) (res Result, err error) {
	ctx, span := observability.StartSpan(ctx, "rag.answer_query", attribute.Int("rag.top_k", o.cfg.TopK))
	defer func() {
		if errors.Is(err, errs.ErrNoRelevantDocuments) {
			observability.EndSpan(span, nil)
			return
		}
		observability.EndSpan(span, err)
	}()

	key := CacheKey(query, o.cfg.Threshold, o.cfg.TopK)
	if cached, ok := o.cacheGet(ctx, key); ok {
		o.metrics.ObserveRAGDecision(observability.DecisionCacheHit)
		return cached, nil
	}

	candidates, err := o.retrieve(ctx, query)
	if err != nil {
		return Result{}, errs.RAG("error querying RAG system", err)
	}
	if len(candidates) == 0 {
		o.metrics.ObserveRAGDecision(observability.DecisionNoDocuments)
		return Result{}, errs.ErrNoRelevantDocuments
	}

	relevant := FilterRelevant(candidates, o.cfg.Threshold)
	if len(relevant) == 0 {
		o.metrics.ObserveRAGDecision(observability.DecisionBelowThreshold)
		o.log.Debug("all passages below threshold",
			zap.Int("candidates", len(candidates)),
			zap.Float64("best_score", bestScore(candidates)),
			zap.Float64("threshold", o.cfg.Threshold),
		)
		return Result{}, errs.ErrNoRelevantDocuments
	}

	answer, err := o.generate(ctx, query, relevant)
	if err != nil {
		return Result{}, errs.RAG("error generating answer", err)
	}

	o.checkFidelity(answer, relevant)
	res = Result{Answer: answer, Passages: relevant}
	o.cacheSet(ctx, key, res)
	return res, nil
}

// Answer is AnswerQuery with NoRelevantDocuments turned into the default response.
func (o *Orchestrator) Answer(ctx context.Context, query string) (Result, error) {
	res, err := o.AnswerQuery(ctx, query)
	if errors.Is(err, errs.ErrNoRelevantDocuments) {
		return o.Fallback(), nil
	}
	return res, err
}

// Fallback returns the default-response result.
func (o *Orchestrator) Fallback() Result {
	return Result{Answer: o.cfg.DefaultResponse, Passages: []knowledge.Passage{}}
}

// FilterRelevant keeps passages scoring at least threshold, preserving their order.
func FilterRelevant(passages []knowledge.Passage, threshold float64) []knowledge.Passage {
	out := make([]knowledge.Passage, 0, len(passages))
	for _, p := range passages {
		if p.Score >= threshold {
			out = append(out, p)
		}
	}
	return out
}

func (o *Orchestrator) retrieve(ctx context.Context, query string) ([]knowledge.Passage, error) {
	ctx, cancel := o.stageContext(ctx)
	defer cancel()
	start := time.Now()
	passages, err := o.retriever.Retrieve(ctx, query, o.cfg.TopK)
	o.metrics.ObserveStage(observability.StageRetrieve, time.Since(start), err)
	if err != nil && errs.KindOf(err) == "" {
		err = errs.VectorStore("error searching knowledge base", err)
	}
	return passages, err
}

func (o *Orchestrator) generate(ctx context.Context, query string, passages []knowledge.Passage) (string, error) {
	ctx, cancel := o.stageContext(ctx)
	defer cancel()
	start := time.Now()
	answer, err := o.generator.Generate(ctx, query, passages)
	if err == nil && strings.TrimSpace(answer) == "" {
		err = errors.New("generator returned an empty answer")
	}
	o.metrics.ObserveStage(observability.StageGenerate, time.Since(start), err)
	return strings.TrimSpace(answer), err
}

func (o *Orchestrator) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.cfg.StageTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.cfg.StageTimeout)
}

// checkFidelity measures how much of the answer is backed by the passages.
// The generator cannot be verified here, so low overlap is reported, not rejected.
func (o *Orchestrator) checkFidelity(answer string, passages []knowledge.Passage) {
	if answer == strings.TrimSpace(o.cfg.RefusalPhrase) {
		o.metrics.ObserveRAGDecision(observability.DecisionRefusal)
		return
	}
	if Overlap(answer, passages) == 0 {
		o.metrics.ObserveRAGDecision(observability.DecisionLowOverlap)
		o.log.Warn("answer shares no words with retrieved passages", zap.Int("passages", len(passages)))
		return
	}
	o.metrics.ObserveRAGDecision(observability.DecisionAnswered)
}

// Overlap is the share of the answer's words (three letters or more) that occur in passages.
func Overlap(answer string, passages []knowledge.Passage) float64 {
	vocab := make(map[string]struct{})
	for _, p := range passages {
		for _, w := range knowledge.Tokenize(p.Content) {
			vocab[w] = struct{}{}
		}
	}
	var total, hits int
	for _, w := range knowledge.Tokenize(answer) {
		if len([]rune(w)) < 3 {
			continue
		}
		total++
		if _, ok := vocab[w]; ok {
			hits++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

func (o *Orchestrator) cacheGet(ctx context.Context, key string) (Result, bool) {
	if o.cache == nil || o.cfg.CacheTTL <= 0 {
		return Result{}, false
	}
	res, ok, err := o.cache.Get(ctx, key)
	if err != nil {
		o.log.Warn("answer cache read failed", zap.Error(err))
		return Result{}, false
	}
	if !ok || res.IsFallback() {
		return Result{}, false
	}
	return res, true
}

func (o *Orchestrator) cacheSet(ctx context.Context, key string, res Result) {
	if o.cache == nil || o.cfg.CacheTTL <= 0 || res.IsFallback() {
		return
	}
	if err := o.cache.Set(ctx, key, res, o.cfg.CacheTTL); err != nil {
		o.log.Warn("answer cache write failed", zap.Error(err))
	}
}

func bestScore(passages []knowledge.Passage) float64 {
	best := 0.0
	for _, p := range passages {
		if p.Score > best {
			best = p.Score
		}
	}
	return best
}
