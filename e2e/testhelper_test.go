package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hibiken/asynq"

	"github.com/fieldmetrics/api/internal/auth"
	"github.com/fieldmetrics/api/internal/config"
	"github.com/fieldmetrics/api/internal/handler"
	"github.com/fieldmetrics/api/internal/middleware"
	"github.com/fieldmetrics/api/internal/service"
	"github.com/fieldmetrics/api/internal/signature"
	"github.com/fieldmetrics/api/internal/store"
	"github.com/fieldmetrics/api/internal/worker"
)

const (
	testJWTSecret    = "test-secret-for-e2e"
	testSharedSecret = "shared-secret-for-e2e"
)

// captureEnqueuer stands in for the asynq client: tasks are captured so
// tests can run workers by hand instead of waiting on Redis.
type captureEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (q *captureEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{ID: "task", Type: task.Type()}, nil
}

// drain returns and clears all captured tasks of one type.
func (q *captureEnqueuer) drain(taskType string) []*asynq.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	var matched, rest []*asynq.Task
	for _, task := range q.tasks {
		if task.Type() == taskType {
			matched = append(matched, task)
		} else {
			rest = append(rest, task)
		}
	}
	q.tasks = rest
	return matched
}

// testApp wires the full request path with in-memory stores and an
// unconfigured model client, so hand-offs take the mock-ack path.
type testApp struct {
	app      *fiber.App
	queue    *captureEnqueuer
	signer   *signature.Signer
	jobs     *store.MemoryJobStore
	records  *store.MemoryRecordStore
	results  *store.MemoryResultStore
	dispatch *worker.DispatchWorker
}

func setupApp(t *testing.T) *testApp {
	t.Helper()

	signer, err := signature.NewSigner(testSharedSecret)
	if err != nil {
		t.Fatalf("failed to create signer: %v", err)
	}

	jobStore := store.NewMemoryJobStore()
	recordStore := store.NewMemoryRecordStore()
	resultStore := store.NewMemoryResultStore()
	queue := &captureEnqueuer{}
	validate := validator.New()

	modelCfg := &config.ModelConfig{
		SharedSecret:    testSharedSecret,
		Timeout:         5,
		VerifyCallbacks: true,
		FreshnessWindow: 300,
	}

	locks := service.NewJobLocks()
	notifier := service.NewQueueNotifier(queue)
	// nil model client → mock acknowledgement on hand-off
	dispatchService := service.NewDispatchService(
		jobStore, recordStore, queue, nil, signer, locks, nil,
		3, modelCfg.TimeoutDuration(),
	)
	retryService := service.NewRetryService(
		jobStore, dispatchService, locks, nil,
		time.Second, 5*time.Minute,
	)
	ingestService := service.NewIngestService(
		jobStore, recordStore, resultStore, nil, notifier, locks, nil,
	)
	recordService := service.NewRecordService(recordStore, dispatchService)
	jobService := service.NewJobService(jobStore, resultStore)

	recordHandler := handler.NewRecordHandler(recordService, validate)
	jobHandler := handler.NewJobHandler(jobService, retryService)
	callbackHandler := handler.NewCallbackHandler(ingestService, signer, validate, modelCfg)

	authMiddleware := middleware.NewLegacyAuthMiddleware(testJWTSecret)

	app := fiber.New()
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Post("/api/v1/model/callback", callbackHandler.Receive)

	api := app.Group("/api", authMiddleware.Authenticate())
	api.Post("/records", recordHandler.Upload)
	api.Get("/records/:recordId", recordHandler.Get)
	api.Post("/records/:recordId/analyze", recordHandler.Resubmit)
	api.Get("/jobs/:jobId", jobHandler.Status)
	api.Get("/jobs/:jobId/report", jobHandler.Report)

	admin := api.Group("/admin", middleware.RequireAdmin())
	admin.Get("/jobs/failed", jobHandler.ListFailed)
	admin.Post("/jobs/:jobId/retry", jobHandler.Retry)

	return &testApp{
		app:      app,
		queue:    queue,
		signer:   signer,
		jobs:     jobStore,
		records:  recordStore,
		results:  resultStore,
		dispatch: worker.NewDispatchWorker(dispatchService),
	}
}

// runDispatchTasks executes every queued hand-off task synchronously.
func (ta *testApp) runDispatchTasks(t *testing.T) int {
	t.Helper()
	tasks := ta.queue.drain(service.TaskTypeDispatch)
	for _, task := range tasks {
		if err := ta.dispatch.ProcessTask(context.Background(), task); err != nil {
			t.Fatalf("dispatch task failed: %v", err)
		}
	}
	return len(tasks)
}

func generateToken(t *testing.T, role string) string {
	t.Helper()
	claims := auth.LegacyClaims{
		UserID: "test-user-123",
		Email:  "test@example.com",
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: "fieldmetrics-api",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

func doRequest(app *fiber.App, method, path, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + generateToken(t, "user"),
	})
}

func doAdminRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + generateToken(t, "admin"),
	})
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
