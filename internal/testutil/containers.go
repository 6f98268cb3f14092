// Package testutil starts the containers the integration tests run against.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	postgresImage = "pgvector/pgvector:0.8.1-pg18"
	redisImage    = "redis:7-alpine"
	rustfsImage   = "rustfs/rustfs:latest"

	dbCredentials = "zenith"
)

// container is a started container and its mapped endpoint.
type container struct {
	Container testcontainers.Container
	Host      string
	Port      string
}

// Terminate stops and removes the container
func (c *container) Terminate(ctx context.Context) error {
	return testcontainers.TerminateContainer(c.Container)
}

func startContainer(ctx context.Context, t *testing.T, req testcontainers.ContainerRequest, port string) container {
	t.Helper()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start %s: %v", req.Image, err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get %s host: %v", req.Image, err)
	}

	mapped, err := c.MappedPort(ctx, nat.Port(port))
	if err != nil {
		t.Fatalf("failed to get %s port: %v", req.Image, err)
	}

	return container{Container: c, Host: host, Port: mapped.Port()}
}

// PostgresContainer is a Postgres server with the pgvector extension.
type PostgresContainer struct {
	container
	User     string
	Password string
	Database string
}

func NewPostgresContainer(ctx context.Context, t *testing.T) *PostgresContainer {
	c := startContainer(ctx, t, testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     dbCredentials,
			"POSTGRES_PASSWORD": dbCredentials,
			"POSTGRES_DB":       dbCredentials,
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithStartupTimeout(60 * time.Second),
	}, "5432")

	return &PostgresContainer{
		container: c,
		User:      dbCredentials,
		Password:  dbCredentials,
		Database:  dbCredentials,
	}
}

// ConnectionString returns the PostgreSQL connection string
func (pc *PostgresContainer) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		pc.User, pc.Password, pc.Host, pc.Port, pc.Database)
}

// RedisContainer backs the embedding cache tests.
type RedisContainer struct {
	container
}

func NewRedisContainer(ctx context.Context, t *testing.T) *RedisContainer {
	c := startContainer(ctx, t, testcontainers.ContainerRequest{
		Image:        redisImage,
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}, "6379")
	return &RedisContainer{container: c}
}

// URL returns a redis:// URL for the container.
func (rc *RedisContainer) URL() string {
	return fmt.Sprintf("redis://%s:%s/0", rc.Host, rc.Port)
}

// RustFSContainer is an S3-compatible object store for storage tests.
type RustFSContainer struct {
	container
	AccessKey string
	SecretKey string
}

func NewRustFSContainer(ctx context.Context, t *testing.T) *RustFSContainer {
	c := startContainer(ctx, t, testcontainers.ContainerRequest{
		Image:        rustfsImage,
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"RUSTFS_ACCESS_KEY": "rustfsadmin",
			"RUSTFS_SECRET_KEY": "rustfsadmin",
		},
		WaitingFor: wait.ForListeningPort("9000/tcp").WithStartupTimeout(30 * time.Second),
	}, "9000")
	return &RustFSContainer{container: c, AccessKey: "rustfsadmin", SecretKey: "rustfsadmin"}
}

// Endpoint returns the S3 endpoint URL
func (rc *RustFSContainer) Endpoint() string {
	return fmt.Sprintf("http://%s:%s", rc.Host, rc.Port)
}

// NewTestPool connects to the container, retrying while Postgres finishes
// starting, and applies the migrations in migrationsDir.
func NewTestPool(ctx context.Context, t *testing.T, pc *PostgresContainer, migrationsDir string) *pgxpool.Pool {
	var pool *pgxpool.Pool
	var err error
	for i := 0; i < 5; i++ {
		pool, err = pgxpool.New(ctx, pc.ConnectionString())
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				break
			}
			pool.Close()
		}
		time.Sleep(time.Duration(i+1) * 500 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("failed to create pool after retries: %v", err)
	}

	if err := RunMigrations(ctx, pool, migrationsDir); err != nil {
		pool.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	return pool
}

// RunMigrations applies every *.up.sql file of migrationsDir in name order.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrationsDir string) error {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("failed to read migrations dir: %w", err)
	}

	var upMigrations []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".up.sql") {
			upMigrations = append(upMigrations, entry.Name())
		}
	}
	sort.Strings(upMigrations)

	for _, migration := range upMigrations {
		content, err := os.ReadFile(filepath.Join(migrationsDir, migration))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", migration, err)
		}

		if _, err := pool.Exec(ctx, string(content)); err != nil {
			return fmt.Errorf("failed to run migration %s: %w", migration, err)
		}
	}

	return nil
}

// TruncateAll empties every table between tests sharing a container.
func TruncateAll(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx,
		`TRUNCATE TABLE answer_logs, embedding_jobs, knowledge_entries, api_keys, organizations RESTART IDENTITY CASCADE`)
	if err != nil {
		return fmt.Errorf("failed to truncate tables: %w", err)
	}
	return nil
}
