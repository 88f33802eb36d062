package batch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	types "github.com/yungbote/roadmap-backend/internal/domain"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
)

var ErrRunInProgress = errors.New("an embedding run is already in progress")

// Launch identifies a run that was accepted but has not necessarily started.
type Launch struct {
	RunID string `json:"run_id"`
	Mode  string `json:"mode"`
}

type Launcher interface {
	Launch(ctx context.Context, p Params) (Launch, error)
}

// InProcessLauncher runs one job at a time on a goroutine owned by the process. Close stops the
// active run at its next batch boundary and waits for it.
type InProcessLauncher struct {
	job     *Job
	log     *logger.Logger
	base    context.Context
	cancel  context.CancelFunc
	running atomic.Bool
	wg      sync.WaitGroup

	mu   sync.Mutex
	last *types.EmbeddingRunSummary
}

func NewInProcessLauncher(job *Job, log *logger.Logger) *InProcessLauncher {
	base, cancel := context.WithCancel(context.Background())
	return &InProcessLauncher{
		job:    job,
		log:    log.With("service", "InProcessLauncher"),
		base:   base,
		cancel: cancel,
	}
}

func (l *InProcessLauncher) Launch(ctx context.Context, p Params) (Launch, error) {
	if err := p.Validate(); err != nil {
		return Launch{}, err
	}
	if l.base.Err() != nil {
		return Launch{}, errors.New("launcher closed")
	}
	if !l.running.CompareAndSwap(false, true) {
		return Launch{}, ErrRunInProgress
	}
	runID := uuid.NewString()
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer l.running.Store(false)
		sum, err := l.job.Run(l.base, p, RunOptions{RunID: runID})
		if err != nil {
			l.log.Error("embedding run failed", "run_id", runID, "error", err)
			return
		}
		l.mu.Lock()
		l.last = &sum
		l.mu.Unlock()
	}()
	return Launch{RunID: runID, Mode: "in_process"}, nil
}

// Last returns the most recent completed summary, if any.
func (l *InProcessLauncher) Last() (types.EmbeddingRunSummary, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.last == nil {
		return types.EmbeddingRunSummary{}, false
	}
	return *l.last, true
}

func (l *InProcessLauncher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *InProcessLauncher) Close(ctx context.Context) error {
	l.cancel()
	return l.Wait(ctx)
}
