//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ethnolens/ethnolens/internal/analysis"
	"github.com/ethnolens/ethnolens/internal/api"
	"github.com/ethnolens/ethnolens/internal/config"
	"github.com/ethnolens/ethnolens/internal/genai"
	"github.com/ethnolens/ethnolens/internal/pending"
	"github.com/ethnolens/ethnolens/internal/quota"
)

type TestEnv struct {
	Pool        *pgxpool.Pool
	RedisClient *redis.Client
	Server      *httptest.Server
	QuotaSvc    *quota.Service
	PendingRepo pending.Repository
}

var (
	testEnv  *TestEnv
	userSeq  atomic.Int64
	modelOut = "The design is broadly appropriate.\n\nSCORE: 88"
)

func SetupTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	if testEnv != nil {
		return testEnv
	}

	ctx := context.Background()

	// Start PostgreSQL container
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "ethnolens_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() { pgContainer.Terminate(ctx) })

	pgHost, _ := pgContainer.Host(ctx)
	pgPort, _ := pgContainer.MappedPort(ctx, "5432")

	// Start Redis container
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting redis container: %v", err)
	}
	t.Cleanup(func() { redisContainer.Terminate(ctx) })

	redisHost, _ := redisContainer.Host(ctx)
	redisPort, _ := redisContainer.MappedPort(ctx, "6379")

	// Connect to PostgreSQL
	dsn := fmt.Sprintf("postgres://test:test@%s:%s/ethnolens_test?sslmode=disable", pgHost, pgPort.Port())
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connecting to postgres: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	// Run migrations
	m, err := migrate.New(fmt.Sprintf("file://%s", getMigrationsPath()), dsn)
	if err != nil {
		t.Fatalf("creating migrator: %v", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("running migrations: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", redisHost, redisPort.Port()),
	})
	t.Cleanup(func() { redisClient.Close() })

	// Stub model: a fixed generateContent endpoint in place of the real API
	modelServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": modelOut}}}},
			},
		})
	}))
	t.Cleanup(modelServer.Close)

	// Setup services
	quotaRepo := quota.NewRepository(pool)
	quotaSvc := quota.NewService(quotaRepo, quota.Policy{MaxOperations: 3, Period: 24 * time.Hour})
	pendingRepo := pending.NewRepository(pool)

	gemini := genai.NewClient(config.GeminiConfig{
		APIKey:  "test-key",
		Model:   "gemini-2.5-flash",
		BaseURL: modelServer.URL,
	})
	analysisSvc := analysis.NewService(quotaSvc, pendingRepo, gemini)
	analysisHandler := analysis.NewHandler(analysisSvc)

	router := api.NewRouter(pool, api.RouterConfig{}, api.HandlerSet{
		Analyze:         analysisHandler.Analyze,
		AnalyzeImage:    analysisHandler.AnalyzeImage,
		Confirm:         analysisHandler.Confirm,
		GetUsage:        analysisHandler.GetUsage,
		LogPremiumClick: analysisHandler.LogPremiumClick,
	})

	server := httptest.NewServer(router)
	t.Cleanup(func() { server.Close() })

	testEnv = &TestEnv{
		Pool:        pool,
		RedisClient: redisClient,
		Server:      server,
		QuotaSvc:    quotaSvc,
		PendingRepo: pendingRepo,
	}

	return testEnv
}

func getMigrationsPath() string {
	paths := []string{
		"../../migrations",
		"../../../migrations",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	log.Fatal("migrations directory not found")
	return ""
}

// Helper functions

func uniqueUserID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, os.Getpid(), userSeq.Add(1))
}

func DoRequest(t *testing.T, env *TestEnv, method, path string, body any) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, env.Server.URL+path, bodyReader)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("doing request: %v", err)
	}
	return resp
}

func ParseResponse(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	return result
}

// Analyze runs one analyze call and returns the response data map.
func Analyze(t *testing.T, env *TestEnv, userID, prompt string) map[string]any {
	t.Helper()
	resp := DoRequest(t, env, "POST", "/api/v1/analyze", map[string]string{
		"prompt": prompt,
		"userId": userID,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("analyze failed: status %d", resp.StatusCode)
	}
	return ParseResponse(t, resp)["data"].(map[string]any)
}

// Confirm acknowledges one pending op and returns the HTTP status.
func Confirm(t *testing.T, env *TestEnv, userID, opID string) int {
	t.Helper()
	resp := DoRequest(t, env, "POST", "/api/v1/confirm", map[string]string{
		"userId": userID,
		"opId":   opID,
	})
	resp.Body.Close()
	return resp.StatusCode
}

// GetUsage reads the usage report for a user.
func GetUsage(t *testing.T, env *TestEnv, userID string) (used, limit int) {
	t.Helper()
	resp := DoRequest(t, env, "GET", "/api/v1/usage?userId="+userID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("usage failed: status %d", resp.StatusCode)
	}
	data := ParseResponse(t, resp)["data"].(map[string]any)
	return int(data["used"].(float64)), int(data["limit"].(float64))
}
