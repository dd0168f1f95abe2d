package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fieldmetrics/api/internal/client"
	"github.com/fieldmetrics/api/internal/model"
	"github.com/fieldmetrics/api/internal/store"
)

// fakeEnqueuer records enqueued tasks instead of talking to Redis.
type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []enqueuedTask
	err   error
}

type enqueuedTask struct {
	task *asynq.Task
	opts []asynq.Option
}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, enqueuedTask{task: task, opts: opts})
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type()}, nil
}

func (f *fakeEnqueuer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tasks)
}

func (f *fakeEnqueuer) last() enqueuedTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tasks[len(f.tasks)-1]
}

// processIn extracts the ProcessIn delay from the last enqueued task.
func (f *fakeEnqueuer) processIn() (time.Duration, bool) {
	for _, opt := range f.last().opts {
		if opt.Type() == asynq.ProcessInOpt {
			return opt.Value().(time.Duration), true
		}
	}
	return 0, false
}

// fakeModel stands in for the model server client.
type fakeModel struct {
	mu         sync.Mutex
	configured bool
	err        error
	calls      []modelCall
}

type modelCall struct {
	req       *client.ProcessRequest
	signature string
	timestamp int64
}

func (m *fakeModel) Process(ctx context.Context, req *client.ProcessRequest, signature string, timestamp int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, modelCall{req: req, signature: signature, timestamp: timestamp})
	return m.err
}

func (m *fakeModel) IsConfigured() bool { return m.configured }

func (m *fakeModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// fakeNotifier records notification summaries.
type fakeNotifier struct {
	mu        sync.Mutex
	summaries []string
	err       error
}

func (n *fakeNotifier) Notify(ctx context.Context, ownerID, summary string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.summaries = append(n.summaries, summary)
	return nil
}

// fakeRenderer returns a canned artifact URL.
type fakeRenderer struct {
	configured bool
	url        string
	err        error
}

func (r *fakeRenderer) Render(ctx context.Context, req *client.RenderReportRequest) (*client.RenderReportResponse, error) {
	if r.err != nil {
		return nil, r.err
	}
	return &client.RenderReportResponse{ArtifactURL: r.url, Pages: 3, Size: 1024}, nil
}

func (r *fakeRenderer) HealthCheck(ctx context.Context) error { return nil }

func (r *fakeRenderer) IsConfigured() bool { return r.configured }

// failingResultStore rejects bundle writes; reads pass through.
type failingResultStore struct {
	*store.MemoryResultStore
}

func (s *failingResultStore) SaveBundle(ctx context.Context, bundle *model.ResultBundle) error {
	return errBoom
}

var errBoom = errors.New("boom")

func strptr(s string) *string { return &s }

func sampleResult(jobID string) *model.CallbackResult {
	return &model.CallbackResult{
		JobID: jobID,
		Scoring: model.ScoringMetrics{
			OverallScore: 85,
			Confidence:   0.92,
		},
		Breakdown: model.BreakdownMetrics{
			Technical: 82,
			Tactical:  88,
			Physical:  79,
			Mental:    91,
		},
		Benchmark: &model.BenchmarkComparison{
			PeerAverage: 71.5,
			Percentile:  88,
			CohortSize:  240,
			AgeGroup:    "U17",
		},
		Tempo: []model.TempoEntry{
			{Minute: 1, DistanceMeters: 112.4, Sprints: 2, AvgSpeedKmh: 6.7, MaxSpeedKmh: 24.1},
			{Minute: 2, DistanceMeters: 98.1, Sprints: 1, AvgSpeedKmh: 5.9, MaxSpeedKmh: 19.8},
		},
		Insights: []string{"strong first-half pressing"},
		Events: []model.EventEntry{
			{Type: model.EventShot, TimestampMS: 64000, Success: true, PositionX: 0.91, PositionY: 0.43},
		},
	}
}
