package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/attribute"

	types "github.com/yungbote/roadmap-backend/internal/domain"
	"github.com/yungbote/roadmap-backend/internal/modules/rag/customize"
	"github.com/yungbote/roadmap-backend/internal/modules/rag/embedding"
	"github.com/yungbote/roadmap-backend/internal/modules/rag/query"
	"github.com/yungbote/roadmap-backend/internal/modules/rag/ragerr"
	"github.com/yungbote/roadmap-backend/internal/observability"
	"github.com/yungbote/roadmap-backend/internal/platform/dbctx"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
	"github.com/yungbote/roadmap-backend/internal/platform/openai"
)

// TemplateCreator is the slice of the template store the write-back needs.
type TemplateCreator interface {
	Create(dbc dbctx.Context, row *types.Template) error
}

type Request struct {
	Query    types.UserQueryContext
	SkillIDs []string
	GoalIDs  []string
	// Model and Dims select the embedding used for the cached template.
	Model   string
	Dims    int
	Timeout time.Duration
}

type Config struct {
	DefaultTimeout time.Duration
	PersistTimeout time.Duration
}

// Fallback generates a roadmap on a cache miss and writes it back as a template in the background.
type Fallback struct {
	gen      Generator
	embedder embedding.Embedder
	store    TemplateCreator
	cfg      Config
	log      *logger.Logger
	now      func() time.Time

	wg sync.WaitGroup
	// onPersisted observes write-back results in tests.
	onPersisted func(*types.Template, error)
}

func NewFallback(gen Generator, embedder embedding.Embedder, store TemplateCreator, cfg Config, log *logger.Logger) *Fallback {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 60 * time.Second
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 30 * time.Second
	}
	return &Fallback{
		gen:      gen,
		embedder: embedder,
		store:    store,
		cfg:      cfg,
		log:      log.With("service", "GenerationFallback"),
		now:      time.Now,
	}
}

// Generate returns the generated roadmap as soon as the model answers. A write-back failure is logged
// and never reaches the caller; a generation failure is always a *ragerr.GenerationError.
func (f *Fallback) Generate(ctx context.Context, req Request) (_ *types.Roadmap, err error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = f.cfg.DefaultTimeout
	}
	ctx, span := observability.StartSpan(ctx, "rag.generate", attribute.String("timeout", timeout.String()))
	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = ragerr.GenerationCode(err)
		}
		observability.Current().ObserveGeneration(status, time.Since(start))
		observability.EndSpan(span, err)
	}()

	gctx, cancel := context.WithTimeout(ctx, timeout)
	rm, genErr := f.gen.Generate(gctx, req.Query, req.SkillIDs, req.GoalIDs)
	timedOut := errors.Is(gctx.Err(), context.DeadlineExceeded)
	cancel()
	if genErr != nil {
		return nil, classify(genErr, timedOut)
	}
	if rm == nil {
		return nil, ragerr.Generation(ragerr.GenerationInvalidOutput, errors.New("generator returned no roadmap"))
	}
	if hrs, ok := customize.ParseHoursPerWeek(req.Query.TimeAvailable); ok {
		rm.Metadata.HoursPerWeek = hrs
	}

	f.log.Info("roadmap generated", "modules", len(rm.Modules), "duration_weeks", rm.DurationWeeks, "elapsed", time.Since(start).String())
	f.persistAsync(ctx, req, *rm)
	return rm, nil
}

func classify(err error, timedOut bool) error {
	var ge *ragerr.GenerationError
	switch {
	case errors.As(err, &ge):
		return err
	case timedOut || errors.Is(err, context.DeadlineExceeded):
		return ragerr.Generation(ragerr.GenerationTimeout, err)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests), openai.IsUnavailable(err):
		return ragerr.Generation(ragerr.GenerationUnavailable, err)
	case errors.Is(err, ErrInvalidOutput), errors.Is(err, openai.ErrRefused):
		return ragerr.Generation(ragerr.GenerationInvalidOutput, err)
	default:
		return ragerr.Generation(ragerr.GenerationFailed, err)
	}
}

func (f *Fallback) persistAsync(parent context.Context, req Request, rm types.Roadmap) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), f.cfg.PersistTimeout)
		defer cancel()

		var (
			row *types.Template
			err error
		)
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			row, err = f.Persist(ctx, req, rm)
		}()

		if err != nil {
			warn := &ragerr.PersistenceWarning{TemplateName: rm.Title, Cause: err}
			f.log.Warn("template write-back failed", "error", warn.Error())
			observability.Current().IncTemplateWriteback("failed")
		} else {
			f.log.Info("template written back", "template_id", row.ID.String(), "model", row.EmbeddingModel)
			observability.Current().IncTemplateWriteback("ok")
		}
		if f.onPersisted != nil {
			f.onPersisted(row, err)
		}
	}()
}

// Persist stores rm as a generated template, embedding the same profile text a future query would produce.
// The new template starts with usage_count 1 since this request already used it.
func (f *Fallback) Persist(ctx context.Context, req Request, rm types.Roadmap) (*types.Template, error) {
	if strings.TrimSpace(req.Model) == "" {
		return nil, ragerr.Config("embedding_model", "required for template write-back")
	}
	text := query.Build(req.Query)
	if text == "" {
		text = query.TemplateProfileText(types.TemplateRecord{Name: rm.Title, Description: rm.Description})
	}
	vec, err := f.embedder.Embed(ctx, req.Model, req.Dims, text)
	if err != nil {
		return nil, fmt.Errorf("embed profile: %w", err)
	}
	if err := embedding.Validate(vec, req.Dims); err != nil {
		return nil, fmt.Errorf("embed profile: %w", err)
	}

	skills := append(query.ParseList(req.Query.SkillsText), req.SkillIDs...)
	for _, m := range rm.Modules {
		skills = append(skills, m.Skills...)
	}
	goals := append(query.ParseList(req.Query.GoalsText), req.GoalIDs...)

	row, err := types.NewTemplate(types.TemplateRecord{
		Name:           rm.Title,
		Description:    rm.Description,
		Difficulty:     req.Query.Difficulty(),
		DurationWeeks:  rm.DurationWeeks,
		TargetSkills:   skills,
		TargetGoals:    goals,
		UsageCount:     1,
		Path:           rm.PathData(),
		Embedding:      vec,
		EmbeddingModel: req.Model,
		ProfileText:    text,
		Source:         types.TemplateSourceGenerated,
	}, f.now().UTC())
	if err != nil {
		return nil, err
	}
	if err := f.store.Create(dbctx.Context{Ctx: ctx}, row); err != nil {
		return nil, fmt.Errorf("store template: %w", err)
	}
	return row, nil
}

// Drain blocks until in-flight write-backs finish or ctx ends.
func (f *Fallback) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
