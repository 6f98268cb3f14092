//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cloo-solutions/zenithvault/internal/api/handlers"
	"github.com/cloo-solutions/zenithvault/internal/cache"
	"github.com/cloo-solutions/zenithvault/internal/metrics"
	"github.com/cloo-solutions/zenithvault/internal/repository"
	"github.com/cloo-solutions/zenithvault/internal/server"
	"github.com/cloo-solutions/zenithvault/internal/service"
	"github.com/cloo-solutions/zenithvault/internal/storage"
	"github.com/cloo-solutions/zenithvault/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	platformToken = "zv_e2e0e2e0e2e0e2e0e2e0e2e0e2e0e2e0e2e0e2e0e2e0e2e0e2e0e2e0e2e0e2e0"
	embeddingDims = 1536
)

// topics are the axes of the fake embedding space. Texts mentioning a topic
// point along its axis; everything shares a small bias so unrelated texts
// still have a defined, low similarity.
var topics = []string{"password", "invoice", "shipping", "refund"}

type topicEmbedder struct{}

func (topicEmbedder) GenerateEmbedding(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, embeddingDims)
	lower := strings.ToLower(text)
	for i, topic := range topics {
		if strings.Contains(lower, topic) {
			v[i] = 1
		}
	}
	v[embeddingDims-1] = 0.05
	return v, nil
}

// citingGenerator cites the first source when the prompt has one.
type citingGenerator struct{}

func (citingGenerator) Generate(_ context.Context, prompt service.Prompt) (string, error) {
	if strings.Contains(prompt.User, "[source:1]") {
		return "Here is what the knowledge base says [source:1].", nil
	}
	return "I could not find anything about that in the knowledge base.", nil
}

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	RustFSC      *testutil.RustFSContainer
	RedisC       *testutil.RedisContainer
	Pool         *pgxpool.Pool
	Redis        *redis.Client
	ServerURL    string
	ServerCloser func()
	BinaryDir    string
	HTTPClient   *http.Client
}

// SetupE2EEnv starts Postgres, RustFS, and Redis and serves the API on a free port.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)
	redisC := testutil.NewRedisContainer(ctx, t)

	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     s3C.AccessKey,
		SecretAccessKey: s3C.SecretKey,
		Bucket:          "e2e-imports",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	rc, err := cache.Connect(ctx, redisC.URL())
	if err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	serverURL, serverCloser := startServer(t, pool, s3Client, rc, port)

	return &E2ETestEnv{
		T:            t,
		Ctx:          ctx,
		PostgresC:    pgC,
		RustFSC:      s3C,
		RedisC:       redisC,
		Pool:         pool,
		Redis:        rc,
		ServerURL:    serverURL,
		ServerCloser: serverCloser,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.Redis != nil {
		_ = e.Redis.Close()
	}
	if e.RedisC != nil {
		e.RedisC.Terminate(e.Ctx)
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
	if e.BinaryDir != "" {
		os.RemoveAll(e.BinaryDir)
	}
}

// Tenant is an organization with an admin key and a member key.
type Tenant struct {
	OrgID       string
	AdminToken  string
	MemberToken string
}

// CreateTenant creates an organization and its keys through the API.
func (e *E2ETestEnv) CreateTenant(name string) Tenant {
	e.T.Helper()

	var org struct {
		ID string `json:"id"`
	}
	e.Must(e.Post("/orgs", map[string]string{"name": name}, platformToken)).Decode(e.T, &org)

	tenant := Tenant{OrgID: org.ID}
	tenant.AdminToken = e.createKey(org.ID, name+" admin", true)
	tenant.MemberToken = e.createKey(org.ID, name+" widget", false)
	return tenant
}

func (e *E2ETestEnv) createKey(orgID, name string, admin bool) string {
	var key struct {
		Token string `json:"token"`
	}
	e.Must(e.Post("/apikeys", map[string]interface{}{
		"org_id":   orgID,
		"name":     name,
		"is_admin": admin,
	}, platformToken)).Decode(e.T, &key)
	return key.Token
}

// BuildBinaries builds the zenith and zenithd binaries
func (e *E2ETestEnv) BuildBinaries() {
	tmpDir, err := os.MkdirTemp("", "zenith-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	for _, name := range []string{"zenith", "zenithd"} {
		cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, name), "./cmd/"+name)
		cmd.Dir = "../.."
		if out, err := cmd.CombinedOutput(); err != nil {
			e.T.Fatalf("failed to build %s: %v\n%s", name, err, out)
		}
	}
}

// RunZenith runs the zenith CLI with token as the API key. stdin may be empty.
func (e *E2ETestEnv) RunZenith(token, stdin string, args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "zenith"), args...)
	cmd.Dir = e.T.TempDir()
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Env = append(os.Environ(),
		"ZENITH_API_KEY="+token,
		"ZENITH_API_URL="+e.ServerURL,
		"XDG_CONFIG_HOME="+cmd.Dir,
	)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// RunZenithd runs the zenithd CLI against the test database.
func (e *E2ETestEnv) RunZenithd(args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "zenithd"), args...)
	cmd.Dir = "../.."
	cmd.Env = append(os.Environ(),
		"ZENITH_STORE=postgres",
		"ZENITH_DATABASE_URL="+e.PostgresC.ConnectionString(),
		"ZENITH_OPENAI_API_KEY=sk-e2e-unused",
		"ZENITH_LOG_LEVEL=error",
	)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// APIResponse represents a standard API response
type APIResponse struct {
	Status    int
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error,omitempty"`
	Retryable bool            `json:"retryable,omitempty"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path, authToken string) (*APIResponse, error) {
	return e.doRequest(http.MethodGet, path, nil, authToken)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body interface{}, authToken string) (*APIResponse, error) {
	return e.doRequest(http.MethodPost, path, body, authToken)
}

// Put performs a PUT request
func (e *E2ETestEnv) Put(path string, body interface{}, authToken string) (*APIResponse, error) {
	return e.doRequest(http.MethodPut, path, body, authToken)
}

// Delete performs a DELETE request
func (e *E2ETestEnv) Delete(path, authToken string) (*APIResponse, error) {
	return e.doRequest(http.MethodDelete, path, nil, authToken)
}

// Must fails the test unless the request succeeded.
func (e *E2ETestEnv) Must(resp *APIResponse, err error) *APIResponse {
	e.T.Helper()
	if err != nil {
		e.T.Fatalf("request failed: %v", err)
	}
	return resp
}

// Decode unmarshals the response data into v.
func (r *APIResponse) Decode(t *testing.T, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(r.Data, v); err != nil {
		t.Fatalf("failed to decode %s: %v", r.Data, err)
	}
}

// Status returns the HTTP status of a request, including failed ones.
func (e *E2ETestEnv) Status(method, path string, body interface{}, authToken string) int {
	e.T.Helper()
	resp, err := e.doRequest(method, path, body, authToken)
	if resp != nil {
		return resp.Status
	}
	e.T.Fatalf("request failed: %v", err)
	return 0
}

// doRequest returns the response alongside an error for 4xx and 5xx statuses.
func (e *E2ETestEnv) doRequest(method, path string, body interface{}, authToken string) (*APIResponse, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, e.ServerURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	apiResp := &APIResponse{Status: resp.StatusCode}
	if len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, apiResp); err != nil {
			return apiResp, fmt.Errorf("HTTP %d: %s", resp.StatusCode, respBody)
		}
	}
	if resp.StatusCode >= 400 {
		return apiResp, fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiResp.Error)
	}
	return apiResp, nil
}

// UploadFile uploads content to a presigned URL
func (e *E2ETestEnv) UploadFile(uploadURL string, content []byte, contentType string) error {
	req, err := http.NewRequest(http.MethodPut, uploadURL, bytes.NewReader(content))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, body)
	}
	return nil
}

// Metrics returns the Prometheus exposition of the server.
func (e *E2ETestEnv) Metrics() string {
	e.T.Helper()
	resp, err := e.HTTPClient.Get(e.ServerURL + "/metrics")
	if err != nil {
		e.T.Fatalf("failed to scrape metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return string(body)
}

// startServer wires the Postgres repositories, the cached query embedder,
// and object storage into the router the way zenithd serve does.
func startServer(t *testing.T, pool *pgxpool.Pool, s3Client *storage.S3Client, rc *redis.Client, port int) (string, func()) {
	logger := zap.NewNop()
	m := metrics.New()

	knowledgeRepo := repository.NewKnowledgeRepository(pool)
	orgRepo := repository.NewOrgRepository(pool)
	apiKeyRepo := repository.NewAPIKeyRepository(pool)
	answerLogRepo := repository.NewAnswerLogRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	queryEmbedder := cache.NewEmbeddingCache(topicEmbedder{}, cache.NewRedisBackend(rc), "e2e-topics", time.Hour, logger).WithHitRecorder(m)

	knowledgeSvc := service.NewKnowledgeService(knowledgeRepo, knowledgeRepo, topicEmbedder{}, txRunner, logger).WithMetrics(m)
	retriever := service.NewRetriever(queryEmbedder, knowledgeSvc, logger).WithMetrics(m)
	composer := service.NewAnswerComposer(retriever, citingGenerator{}, answerLogRepo, logger).WithMetrics(m)
	authSvc := service.NewAuthService(orgRepo, apiKeyRepo, nil)
	importSvc := service.NewImportService(s3Client, knowledgeSvc, logger)

	if err := authSvc.EnsureAPIKey(context.Background(), service.CreateAPIKeyInput{Name: "platform", IsAdmin: true}, platformToken); err != nil {
		t.Fatalf("failed to create platform key: %v", err)
	}

	router := server.NewRouter(server.RouterConfig{
		AuthValidator:    authSvc,
		KnowledgeHandler: handlers.NewKnowledgeHandler(knowledgeSvc).WithImports(importSvc),
		AnswerHandler:    handlers.NewAnswerHandler(composer, retriever, service.NewAnswerFeedbackService(answerLogRepo)),
		AuthHandler:      handlers.NewAuthHandler(authSvc),
		Metrics:          m,
		Logger:           logger,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, serverURL, 10*time.Second)

	return serverURL, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
