package workers

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"chat-app/bot"
	"chat-app/domain"
	"chat-app/mocks"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// panickingResponder crashes the bot runner on every reply attempt.
type panickingResponder struct {
	calls chan struct{}
}

func (p *panickingResponder) Reply(context.Context, string) (string, error) {
	p.calls <- struct{}{}
	panic("model runtime corrupted")
}

func TestSupervisor_RestartsCrashedBotRunner(t *testing.T) {
	req := require.New(t)
	log := slog.Default()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	storeMock := mocks.NewMockMessageStore(ctrl)
	latest := domain.Message{ID: 1, Sender: "alice", Room: "chat_room", Body: "x", At: time.Now().UTC()}
	storeMock.EXPECT().Latest("chat_room").Return(latest, true, nil).AnyTimes()

	responder := &panickingResponder{calls: make(chan struct{}, 16)}
	runner := bot.NewRunner(storeMock, responder, "helper", "chat_room", 10*time.Millisecond, log)

	sup := NewSupervisor(log)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go sup.Add(runner).Run(ctx)

	// The panic escapes the polling loop; the supervisor must restart the
	// runner instead of dying with it.
	for i := 0; i < 2; i++ {
		select {
		case <-responder.calls:
		case <-ctx.Done():
			req.Fail("bot runner was not restarted after a panic")
		}
	}
}

func TestSupervisor_RestartsOnErrorUntilSuccess(t *testing.T) {
	req := require.New(t)
	log := slog.Default()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	workerMock := mocks.NewMockWorker(ctrl)
	calls := 0
	workerMock.EXPECT().
		Run(gomock.Any()).
		DoAndReturn(func(context.Context) error {
			calls++
			if calls < 3 {
				return fmt.Errorf("transport unavailable")
			}
			return nil
		}).
		Times(3)

	sup := NewSupervisor(log)
	done := make(chan struct{})
	go func() {
		sup.Add(workerMock).Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
		req.Equal(3, calls)
	case <-time.After(2 * time.Second):
		req.Fail("supervisor should have stopped once the worker succeeded")
	}
}

func TestSupervisor_FinishedWorkerIsNotRestarted(t *testing.T) {
	req := require.New(t)
	log := slog.Default()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	workerMock := mocks.NewMockWorker(ctrl)
	workerMock.EXPECT().
		Run(gomock.Any()).
		Return(nil).
		Times(1)

	sup := NewSupervisor(log)
	done := make(chan struct{})
	go func() {
		sup.Add(workerMock).Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		req.Fail("supervisor should have stopped after the worker finished")
	}
}
