package embedrun

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/roadmap-backend/internal/modules/rag/batch"
)

// Launcher starts embedding runs as workflows; a second start for the same model while one is
// open yields batch.ErrRunInProgress.
type Launcher struct {
	tc        temporalsdkclient.Client
	taskQueue string
}

func NewLauncher(tc temporalsdkclient.Client, taskQueue string) *Launcher {
	return &Launcher{tc: tc, taskQueue: taskQueue}
}

func (l *Launcher) Launch(ctx context.Context, p batch.Params) (batch.Launch, error) {
	if err := p.Validate(); err != nil {
		return batch.Launch{}, err
	}
	in := RunInput{RunID: uuid.NewString(), Params: p}
	_, err := l.tc.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:                                       WorkflowID(p.Model),
		TaskQueue:                                l.taskQueue,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, WorkflowName, in)
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			return batch.Launch{}, batch.ErrRunInProgress
		}
		return batch.Launch{}, err
	}
	return batch.Launch{RunID: in.RunID, Mode: "temporal"}, nil
}
