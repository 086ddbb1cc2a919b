package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/poyrazK/adminguard/internal/adapters/cache"
	"github.com/poyrazK/adminguard/internal/adapters/repository"
)

// runScaleTest starts throwaway Postgres and Redis containers, seeds them and
// runs both workloads cold and then warm.
func runScaleTest(ctx context.Context, count, concurrency, users, adminEvery, limit int, logger *slog.Logger) error {
	fmt.Println("Starting PostgreSQL Container...")
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "postgres",
				"POSTGRES_PASSWORD": "password",
				"POSTGRES_DB":       "adminguard",
			},
			WaitingFor: wait.ForListeningPort("5432/tcp"),
		},
		Started: true,
	})
	if err != nil {
		return err
	}
	defer func() { _ = pgContainer.Terminate(ctx) }()

	fmt.Println("Starting Redis Container...")
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	if err != nil {
		return err
	}
	defer func() { _ = redisContainer.Terminate(ctx) }()

	pgHost, _ := pgContainer.Host(ctx)
	pgPort, _ := pgContainer.MappedPort(ctx, "5432")
	redisHost, _ := redisContainer.Host(ctx)
	redisPort, _ := redisContainer.MappedPort(ctx, "6379")

	db, err := sql.Open("pgx", fmt.Sprintf("postgres://postgres:password@%s:%s/adminguard?sslmode=disable", pgHost, pgPort.Port()))
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	schema, err := os.ReadFile("internal/adapters/repository/schema.sql")
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, string(schema)); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	if err := seedAdmins(ctx, db, users, adminEvery, os.Stdout); err != nil {
		return err
	}

	redisCache := cache.NewRedisCache(fmt.Sprintf("%s:%s", redisHost, redisPort.Port()), "", 0)
	defer func() { _ = redisCache.Close() }()
	repo := repository.NewPostgresRepository(db)

	for _, mode := range []string{"authority", "ratelimit"} {
		work, err := workloadFor(mode, repo, redisCache, limit, logger)
		if err != nil {
			return err
		}
		for _, phase := range []string{"COLD", "WARM"} {
			fmt.Printf("\n--- %s: %s RUN ---\n", mode, phase)
			runBenchmark(ctx, os.Stdout, mode, work, count, concurrency, uint64(users), 1.1, 100)
		}
	}
	return nil
}
