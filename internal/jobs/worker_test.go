package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloo-solutions/campaignkb/internal/service"
	"github.com/cloo-solutions/campaignkb/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockJobProcessor is a mock implementation of JobProcessor
type MockJobProcessor struct {
	mock.Mock
}

func (m *MockJobProcessor) ProcessJobs(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockDirectorySyncer is a mock implementation of DirectorySyncer
type MockDirectorySyncer struct {
	mock.Mock
}

func (m *MockDirectorySyncer) SyncDirectory(ctx context.Context, dir string) (*service.SyncResult, error) {
	args := m.Called(ctx, dir)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SyncResult), args.Error(1)
}

// MockPDFPuller is a mock implementation of PDFPuller
type MockPDFPuller struct {
	mock.Mock
}

func (m *MockPDFPuller) PullPDFs(ctx context.Context, dir string) (*storage.PullResult, error) {
	args := m.Called(ctx, dir)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.PullResult), args.Error(1)
}

type processorFunc func(ctx context.Context) error

func (f processorFunc) ProcessJobs(ctx context.Context) error { return f(ctx) }

// TestWorker_StartStop tests the worker start and stop functionality
func TestWorker_StartStop(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil)

	worker := NewWorker("test", mockProcessor, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(250 * time.Millisecond)

	worker.Stop()
	wg.Wait()

	calls := len(mockProcessor.Calls)
	assert.GreaterOrEqual(t, calls, 2)
}

// TestWorker_RunsImmediately tests the first pass does not wait for a tick
func TestWorker_RunsImmediately(t *testing.T) {
	ran := make(chan struct{}, 1)
	worker := NewWorker("test", processorFunc(func(ctx context.Context) error {
		ran <- struct{}{}
		return nil
	}), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("processor was not run on start")
	}

	cancel()
	<-done
}

// TestWorker_ContextCancellation tests worker stops on context cancellation
func TestWorker_ContextCancellation(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(errors.New("boom"))

	worker := NewWorker("test", mockProcessor, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(150 * time.Millisecond)

	cancel()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

func TestSyncProcessor_PullsThenSyncs(t *testing.T) {
	syncer := new(MockDirectorySyncer)
	puller := new(MockPDFPuller)

	puller.On("PullPDFs", mock.Anything, "data/drive_raw").Return(&storage.PullResult{Downloaded: []string{"data/drive_raw/Session_01.pdf"}}, nil)
	syncer.On("SyncDirectory", mock.Anything, "data/drive_raw").Return(&service.SyncResult{Documents: 1, Chunks: 4}, nil)

	err := NewSyncProcessor(syncer, puller, "data/drive_raw").ProcessJobs(context.Background())

	assert.NoError(t, err)
	puller.AssertExpectations(t)
	syncer.AssertExpectations(t)
}

func TestSyncProcessor_WithoutPuller(t *testing.T) {
	syncer := new(MockDirectorySyncer)
	syncer.On("SyncDirectory", mock.Anything, "raw").Return(&service.SyncResult{}, nil)

	err := NewSyncProcessor(syncer, nil, "raw").ProcessJobs(context.Background())

	assert.NoError(t, err)
}

func TestSyncProcessor_PullErrorSkipsSync(t *testing.T) {
	syncer := new(MockDirectorySyncer)
	puller := new(MockPDFPuller)
	puller.On("PullPDFs", mock.Anything, "raw").Return(nil, errors.New("access denied"))

	err := NewSyncProcessor(syncer, puller, "raw").ProcessJobs(context.Background())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to pull PDFs")
	syncer.AssertNotCalled(t, "SyncDirectory", mock.Anything, mock.Anything)
}

func TestSyncProcessor_SyncError(t *testing.T) {
	syncer := new(MockDirectorySyncer)
	syncer.On("SyncDirectory", mock.Anything, "raw").Return(nil, errors.New("store down"))

	err := NewSyncProcessor(syncer, nil, "raw").ProcessJobs(context.Background())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to sync raw")
}

func TestWorker_StopIsIdempotent(t *testing.T) {
	worker := NewWorker("test", processorFunc(func(ctx context.Context) error { return nil }), time.Hour)

	go worker.Start(context.Background())
	time.Sleep(20 * time.Millisecond)

	worker.Stop()
	assert.NotPanics(t, worker.Stop)
}

func TestWorker_PassIsBoundedByInterval(t *testing.T) {
	deadline := make(chan bool, 1)
	worker := NewWorker("test", processorFunc(func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		select {
		case deadline <- ok:
		default:
		}
		return nil
	}), 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	assert.True(t, <-deadline)
	cancel()
	<-done
}
