// Package testhelpers starts throwaway Postgres and Redis containers for integration tests
package testhelpers

import (
	"context"
	"net"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/redis"
)

const (
	postgresImage = "postgres:16-alpine"
	redisImage    = "redis:7-alpine"
)

// Logger discards every message
func Logger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

// MigrationsDir is the absolute path of db/pg
func MigrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "db", "pg")
}

// start runs the container and returns the host and port of its single exposed port
func start(t *testing.T, req testcontainers.ContainerRequest) (string, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start %s: %v", req.Image, err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate %s: %v", req.Image, err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("failed to get container endpoint: %v", err)
	}
	host, port, err := net.SplitHostPort(endpoint)
	if err != nil {
		t.Fatalf("invalid container endpoint %q: %v", endpoint, err)
	}
	return host, port
}

// Postgres starts PostgreSQL, applies the migrations and returns a connected DB
func Postgres(t *testing.T) database.DB {
	t.Helper()

	host, port := start(t, testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "clover_test",
			"POSTGRES_USER":     "clover",
			"POSTGRES_PASSWORD": "test_password",
		},
		// postgres logs readiness twice; the first is the init server
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	})

	cfg := database.Config{
		Host:            host,
		Port:            port,
		User:            "clover",
		Password:        "test_password",
		Name:            "clover_test",
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
	}

	logger := Logger()
	ctx := context.Background()
	db, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	migrations := database.NewMigrationService(logger, &database.MigrationConfig{MigrationFolderPath: MigrationsDir()})
	if err := migrations.MigratePostgres(cfg.Name, db.SQL()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	return db
}

// Redis starts Redis and returns a connected client
func Redis(t *testing.T) *redis.Client {
	t.Helper()

	host, port := start(t, testcontainers.ContainerRequest{
		Image:        redisImage,
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	})

	portNum, err := strconv.Atoi(port)
	if err != nil {
		t.Fatalf("invalid redis port %q: %v", port, err)
	}

	client, err := redis.NewClient(context.Background(), redis.Config{Host: host, Port: portNum}, Logger())
	if err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}
