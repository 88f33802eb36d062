package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	types "github.com/yungbote/roadmap-backend/internal/domain"
	"github.com/yungbote/roadmap-backend/internal/modules/rag/embedding"
	"github.com/yungbote/roadmap-backend/internal/modules/rag/query"
	"github.com/yungbote/roadmap-backend/internal/modules/rag/ragerr"
	"github.com/yungbote/roadmap-backend/internal/modules/rag/textnorm"
	"github.com/yungbote/roadmap-backend/internal/observability"
	"github.com/yungbote/roadmap-backend/internal/platform/artifacts"
	"github.com/yungbote/roadmap-backend/internal/platform/ctxutil"
	"github.com/yungbote/roadmap-backend/internal/platform/dbctx"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
	"github.com/yungbote/roadmap-backend/internal/platform/ratelimit"
)

type ContentStore interface {
	ListPending(dbc dbctx.Context, model string, dims, limit int) ([]types.ContentItem, error)
	UpsertEmbedding(dbc dbctx.Context, w types.EmbeddingWrite) (bool, error)
}

type TemplateStore interface {
	ListStale(dbc dbctx.Context, model string, dims, limit int) ([]*types.Template, error)
	UpdateEmbedding(dbc dbctx.Context, id uuid.UUID, vec []float32, model string) error
}

type Deps struct {
	Content   ContentStore
	Templates TemplateStore
	// Embedder must not be the cached query embedder.
	Embedder   embedding.Embedder
	Normalizer textnorm.Normalizer
	Artifacts  artifacts.Sink
	Log        *logger.Logger
	// NewLimiter builds the per-item limiter; defaults to ratelimit.Every.
	NewLimiter func(interval time.Duration) ratelimit.Limiter
	// NewGap builds the pause between batches; defaults to ratelimit.After.
	NewGap func(interval time.Duration) ratelimit.Gap
	Now    func() time.Time
}

const (
	PhaseContent   = "content"
	PhaseTemplates = "templates"
)

// Progress is reported after every batch of either phase.
type Progress struct {
	RunID     string
	Phase     string
	Batch     int
	Batches   int
	BatchSize int
	Processed int
	Total     int
	Success   int
	Failed    int
}

type RunOptions struct {
	// RunID is generated when empty.
	RunID string
	// ShouldStop is polled at batch boundaries; returning true ends the run cleanly.
	ShouldStop  func() bool
	OnBatchDone func(Progress)
}

// Job keeps content embeddings current for one model. Items are processed sequentially; the
// upsert is keyed by (content_type, content_id) so overlapping runs only duplicate work.
type Job struct {
	deps Deps
	log  *logger.Logger
}

func New(deps Deps) (*Job, error) {
	if deps.Content == nil {
		return nil, ragerr.Config("content_store", "required")
	}
	if deps.Embedder == nil {
		return nil, ragerr.Config("embedder", "required")
	}
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.Normalizer.MaxChars == 0 {
		deps.Normalizer = textnorm.Default()
	}
	if deps.Artifacts == nil {
		deps.Artifacts = artifacts.Discard{}
	}
	if deps.NewLimiter == nil {
		deps.NewLimiter = ratelimit.Every
	}
	if deps.NewGap == nil {
		deps.NewGap = ratelimit.After
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Job{deps: deps, log: deps.Log.With("service", "BatchEmbeddingJob")}, nil
}

var errStopped = errors.New("run stopped")

func (j *Job) Run(ctx context.Context, p Params, opts RunOptions) (types.EmbeddingRunSummary, error) {
	if err := p.Validate(); err != nil {
		return types.EmbeddingRunSummary{}, err
	}
	if p.RefreshTemplates && j.deps.Templates == nil {
		return types.EmbeddingRunSummary{}, ragerr.Config("template_store", "required to refresh templates")
	}
	start := j.deps.Now().UTC()
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	sum := types.EmbeddingRunSummary{
		RunID:     opts.RunID,
		Model:     p.Model,
		StartTime: start,
		DryRun:    p.DryRun,
	}
	ctx = ctxutil.WithRunID(ctx, sum.RunID)
	log := j.log.With(append(ctxutil.LogFields(ctx), "model", p.Model)...)

	items, err := j.deps.Content.ListPending(dbctx.Of(ctx), p.Model, p.Dims, p.Limit)
	if err != nil {
		observability.Current().ObserveBatchRun("error", time.Since(start))
		return sum, fmt.Errorf("list pending content: %w", err)
	}
	sum.Total = len(items)

	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.TextContent
	}
	sum.EstimatedTokens = EstimateTokens(texts)
	sum.EstimatedCost = EstimateCost(sum.EstimatedTokens, p.RatePer1K)
	log.Info("embedding cost estimate",
		"items", sum.Total,
		"estimated_tokens", sum.EstimatedTokens,
		"estimated_cost_usd", fmt.Sprintf("%.4f", sum.EstimatedCost),
		"rate_per_1k", p.RatePer1K,
	)
	observability.Current().AddBatchEstimate(p.Model, sum.EstimatedTokens, sum.EstimatedCost)

	batches := Chunk(items, p.BatchSize)
	for _, b := range batches {
		sum.BatchSizes = append(sum.BatchSizes, len(b))
	}

	if len(items) == 0 && !p.RefreshTemplates {
		log.Info("no content needs embedding")
		return j.finish(ctx, log, sum, false), nil
	}
	if p.DryRun {
		log.Info("dry run; skipping embedding", "batches", len(batches))
		return j.finish(ctx, log, sum, true), nil
	}

	pace := pacing{
		item:  j.deps.NewLimiter(p.ItemInterval),
		batch: j.deps.NewGap(p.BatchInterval),
		stop: func() bool {
			return ctx.Err() != nil || (opts.ShouldStop != nil && opts.ShouldStop())
		},
	}

	processed := 0
	for bi, batch := range batches {
		if !pace.begin(ctx) {
			sum.Stopped = true
			break
		}
		stopped := j.runBatch(ctx, log, p, pace.item, bi, len(batches), batch, &sum)
		pace.batch.Done()
		processed += len(batch)
		if stopped {
			sum.Stopped = true
			break
		}
		if opts.OnBatchDone != nil {
			opts.OnBatchDone(Progress{
				RunID:     sum.RunID,
				Phase:     PhaseContent,
				Batch:     bi + 1,
				Batches:   len(batches),
				BatchSize: len(batch),
				Processed: processed,
				Total:     sum.Total,
				Success:   sum.Success,
				Failed:    sum.Failed,
			})
		}
	}
	if sum.Stopped {
		log.Warn("embedding run stopped at batch boundary", "processed", sum.Success+sum.Failed, "total", sum.Total)
	}

	if p.RefreshTemplates && !sum.Stopped {
		j.refreshTemplates(ctx, log, p, pace, opts, &sum)
	}
	return j.finish(ctx, log, sum, true), nil
}

// pacing spaces embedding calls: item between calls, batch between the end of one batch and
// the start of the next. stop is polled at batch boundaries.
type pacing struct {
	item  ratelimit.Limiter
	batch ratelimit.Gap
	stop  func() bool
}

// begin reports whether the next batch may start.
func (pc pacing) begin(ctx context.Context) bool {
	if pc.stop() {
		return false
	}
	return pc.batch.Wait(ctx) == nil && !pc.stop()
}

// runBatch reports true when ctx ended while waiting on the item limiter.
func (j *Job) runBatch(ctx context.Context, log *logger.Logger, p Params, lim ratelimit.Limiter, idx, total int, batch []types.ContentItem, sum *types.EmbeddingRunSummary) bool {
	ctx, span := observability.StartSpan(ctx, "rag.embed_batch",
		attribute.Int("batch", idx+1),
		attribute.Int("batches", total),
		attribute.Int("size", len(batch)),
	)
	defer span.End()

	log.Debug("embedding batch", "batch", idx+1, "batches", total, "size", len(batch))
	for _, item := range batch {
		err := j.processItem(ctx, p, lim, item)
		if errors.Is(err, errStopped) {
			return true
		}
		var ipe *ragerr.ItemProcessingError
		if errors.As(err, &ipe) {
			sum.Failed++
			observability.Current().IncBatchItem("failed", string(ipe.Stage))
			log.Error("content item failed",
				"content_type", ipe.ContentType,
				"content_id", ipe.ContentID,
				"stage", string(ipe.Stage),
				"error", ipe.Error(),
			)
			continue
		}
		sum.Success++
		observability.Current().IncBatchItem("ok", "")
		log.Debug("content item embedded", "content_type", item.ContentType, "content_id", item.ContentID)
	}
	return false
}

func (j *Job) processItem(ctx context.Context, p Params, lim ratelimit.Limiter, item types.ContentItem) (err error) {
	stage := ragerr.StageValidate
	fail := func(cause error) error {
		return &ragerr.ItemProcessingError{ContentType: item.ContentType, ContentID: item.ContentID, Stage: stage, Cause: cause}
	}
	defer func() {
		if r := recover(); r != nil {
			err = fail(fmt.Errorf("panic: %v", r))
		}
	}()

	if err := item.Validate(); err != nil {
		return fail(err)
	}

	stage = ragerr.StageNormalize
	text := j.deps.Normalizer.Normalize(item.TextContent)
	if text == "" {
		return fail(errors.New("no text after normalization"))
	}

	if err := lim.Wait(ctx); err != nil {
		return errStopped
	}

	stage = ragerr.StageEmbed
	vec, err := j.deps.Embedder.Embed(ctx, p.Model, p.Dims, text)
	if err != nil {
		return fail(err)
	}
	if err := embedding.Validate(vec, p.Dims); err != nil {
		return fail(err)
	}

	stage = ragerr.StageStore
	ok, err := j.deps.Content.UpsertEmbedding(dbctx.Of(ctx), types.EmbeddingWrite{
		ContentType: item.ContentType,
		ContentID:   item.ContentID,
		Vector:      vec,
		Model:       p.Model,
	})
	if err != nil {
		return fail(err)
	}
	if !ok {
		return fail(errors.New("upsert wrote no row"))
	}
	return nil
}

// refreshTemplates re-embeds templates whose vector is missing, from another model or of another width.
// It batches, paces and stops like the content pass, with the same per-item recovery.
func (j *Job) refreshTemplates(ctx context.Context, log *logger.Logger, p Params, pace pacing, opts RunOptions, sum *types.EmbeddingRunSummary) {
	stale, err := j.deps.Templates.ListStale(dbctx.Of(ctx), p.Model, p.Dims, 0)
	if err != nil {
		log.Error("list stale templates failed", "error", err)
		return
	}
	if len(stale) == 0 {
		return
	}
	batches := Chunk(stale, p.BatchSize)
	log.Info("refreshing stale templates", "count", len(stale), "batches", len(batches))

	processed := 0
	for bi, batch := range batches {
		if !pace.begin(ctx) {
			sum.Stopped = true
			break
		}
		stopped := j.refreshBatch(ctx, log, p, pace.item, batch, sum)
		pace.batch.Done()
		processed += len(batch)
		if stopped {
			sum.Stopped = true
			break
		}
		if opts.OnBatchDone != nil {
			opts.OnBatchDone(Progress{
				RunID:     sum.RunID,
				Phase:     PhaseTemplates,
				Batch:     bi + 1,
				Batches:   len(batches),
				BatchSize: len(batch),
				Processed: processed,
				Total:     len(stale),
				Success:   sum.TemplatesRefreshed,
				Failed:    sum.TemplatesFailed,
			})
		}
	}
	if sum.Stopped {
		log.Warn("template refresh stopped at batch boundary", "refreshed", sum.TemplatesRefreshed, "stale", len(stale))
	}
}

// refreshBatch reports true when ctx ended while waiting on the item limiter.
func (j *Job) refreshBatch(ctx context.Context, log *logger.Logger, p Params, lim ratelimit.Limiter, batch []*types.Template, sum *types.EmbeddingRunSummary) bool {
	for _, row := range batch {
		if err := j.refreshTemplate(ctx, p, lim, row); err != nil {
			if errors.Is(err, errStopped) {
				return true
			}
			sum.TemplatesFailed++
			observability.Current().IncBatchItem("failed", "template")
			log.Error("template refresh failed", "template_id", row.ID.String(), "error", err)
			continue
		}
		sum.TemplatesRefreshed++
		observability.Current().IncBatchItem("ok", "template")
	}
	return false
}

func (j *Job) refreshTemplate(ctx context.Context, p Params, lim ratelimit.Limiter, row *types.Template) (err error) {
	stage := ragerr.StageValidate
	fail := func(cause error) error {
		return &ragerr.ItemProcessingError{ContentType: "template", ContentID: row.ID.String(), Stage: stage, Cause: cause}
	}
	defer func() {
		if r := recover(); r != nil {
			err = fail(fmt.Errorf("panic: %v", r))
		}
	}()

	rec, err := row.Record()
	if err != nil {
		return fail(err)
	}
	stage = ragerr.StageNormalize
	text := j.deps.Normalizer.Normalize(ProfileText(rec))
	if text == "" {
		return fail(errors.New("no profile text"))
	}
	if err := lim.Wait(ctx); err != nil {
		return errStopped
	}
	stage = ragerr.StageEmbed
	vec, err := j.deps.Embedder.Embed(ctx, p.Model, p.Dims, text)
	if err == nil {
		err = embedding.Validate(vec, p.Dims)
	}
	if err != nil {
		return fail(err)
	}
	stage = ragerr.StageStore
	if err := j.deps.Templates.UpdateEmbedding(dbctx.Of(ctx), rec.ID, vec, p.Model); err != nil {
		return fail(err)
	}
	return nil
}

// ProfileText is the text a template's vector is computed from: the stored profile when the
// template was cached from a query, otherwise one derived from its own fields.
func ProfileText(rec types.TemplateRecord) string {
	if strings.TrimSpace(rec.ProfileText) != "" {
		return rec.ProfileText
	}
	return query.TemplateProfileText(rec)
}

// finish stamps timing, logs the summary and, when persist is set, writes it as an artifact.
// An artifact failure is logged; the run itself already happened.
func (j *Job) finish(ctx context.Context, log *logger.Logger, sum types.EmbeddingRunSummary, persist bool) types.EmbeddingRunSummary {
	sum.EndTime = j.deps.Now().UTC()
	sum.DurationSeconds = sum.EndTime.Sub(sum.StartTime).Seconds()
	if sum.Total > 0 {
		sum.SuccessRate = float64(sum.Success) / float64(sum.Total)
	}

	if persist {
		key := artifacts.RunSummaryKey(sum.Model, sum.StartTime)
		body, err := json.MarshalIndent(sum, "", "  ")
		if err == nil {
			err = j.deps.Artifacts.Put(context.WithoutCancel(ctx), key, body, "application/json")
		}
		if err != nil {
			log.Warn("run summary artifact not written", "sink", j.deps.Artifacts.Describe(), "error", err)
		} else {
			sum.ArtifactKey = key
		}
	}

	result := "ok"
	switch {
	case sum.DryRun:
		result = "dry_run"
	case sum.Stopped:
		result = "stopped"
	case sum.Failed > 0 || sum.TemplatesFailed > 0:
		result = "partial"
	}
	observability.Current().ObserveBatchRun(result, time.Duration(sum.DurationSeconds*float64(time.Second)))

	log.Info("embedding run summary",
		"total", sum.Total,
		"success", sum.Success,
		"failed", sum.Failed,
		"duration_seconds", sum.DurationSeconds,
		"success_rate", sum.SuccessRate,
		"estimated_cost_usd", sum.EstimatedCost,
		"batch_sizes", sum.BatchSizes,
		"templates_refreshed", sum.TemplatesRefreshed,
		"templates_failed", sum.TemplatesFailed,
		"stopped", sum.Stopped,
		"artifact", sum.ArtifactKey,
	)
	return sum
}
