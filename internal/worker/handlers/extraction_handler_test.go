package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"autorbi/internal/extraction"
	"autorbi/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap/zaptest"
)

type fakeRunner struct {
	called bool
	id     uint
	retErr error
}

func (f *fakeRunner) Run(ctx context.Context, extractionID uint) error {
	f.called = true
	f.id = extractionID
	return f.retErr
}

func newTask(t *testing.T, id uint) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(tasks.RunExtractionPayload{ExtractionID: id})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return asynq.NewTask(tasks.TypeRunExtraction, payload)
}

func TestExtractionHandler_Success(t *testing.T) {
	runner := &fakeRunner{}
	h := NewExtractionHandler(runner, zaptest.NewLogger(t))
	if err := h.HandleRunExtraction(context.Background(), newTask(t, 7)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !runner.called || runner.id != 7 {
		t.Fatalf("runner not invoked correctly: called=%v id=%d", runner.called, runner.id)
	}
}

func TestExtractionHandler_FailedJobSkipsRetry(t *testing.T) {
	for _, retErr := range []error{
		extraction.ErrExtractionNotFound,
		errors.Join(extraction.ErrExtractionFailed, errors.New("no data")),
	} {
		h := NewExtractionHandler(&fakeRunner{retErr: retErr}, zaptest.NewLogger(t))
		err := h.HandleRunExtraction(context.Background(), newTask(t, 8))
		if !errors.Is(err, asynq.SkipRetry) {
			t.Fatalf("expected SkipRetry for %v, got %v", retErr, err)
		}
	}
}

func TestExtractionHandler_TransientErrorRetries(t *testing.T) {
	boom := errors.New("database is locked")
	h := NewExtractionHandler(&fakeRunner{retErr: boom}, zaptest.NewLogger(t))
	err := h.HandleRunExtraction(context.Background(), newTask(t, 9))
	if !errors.Is(err, boom) {
		t.Fatalf("expected error %v, got %v", boom, err)
	}
	if errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("transient errors should be retried")
	}
}

func TestExtractionHandler_InvalidPayload(t *testing.T) {
	runner := &fakeRunner{}
	h := NewExtractionHandler(runner, zaptest.NewLogger(t))
	err := h.HandleRunExtraction(context.Background(), asynq.NewTask(tasks.TypeRunExtraction, []byte("not-json")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry for invalid payload, got %v", err)
	}
	if err := h.HandleRunExtraction(context.Background(), newTask(t, 0)); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry for zero id, got %v", err)
	}
	if runner.called {
		t.Fatalf("runner should not be called when payload invalid")
	}
}

func TestExtractionHandler_CanceledRunIsRetried(t *testing.T) {
	h := NewExtractionHandler(&fakeRunner{retErr: context.Canceled}, zaptest.NewLogger(t))
	err := h.HandleRunExtraction(context.Background(), newTask(t, 10))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("canceled runs must go back to the queue")
	}
}
