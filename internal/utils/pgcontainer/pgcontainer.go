// Package pgcontainer runs a disposable postgres in docker for integration
// tests.
package pgcontainer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	"github.com/talx-hub/sky-loyalty/internal/model"
)

const (
	postgresImage   = "postgres"
	postgresVersion = "16-alpine"
	dbName          = "loyalty_test"
	dbUser          = "loyalty"
	dbPassword      = "loyalty"

	containerLifetimeSec = 180
)

type PGContainer struct {
	log      *slog.Logger
	pool     *dockertest.Pool
	resource *dockertest.Resource
	dsn      string
}

func New(log *slog.Logger) *PGContainer {
	return &PGContainer{log: log}
}

func (c *PGContainer) RunContainer() error {
	pool, err := dockertest.NewPool("")
	if err != nil {
		return fmt.Errorf("failed to construct docker pool: %w", err)
	}
	if err = pool.Client.Ping(); err != nil {
		return fmt.Errorf("failed to connect to docker: %w", err)
	}
	c.pool = pool

	resource, err := pool.RunWithOptions(
		&dockertest.RunOptions{
			Repository: postgresImage,
			Tag:        postgresVersion,
			Env: []string{
				"POSTGRES_DB=" + dbName,
				"POSTGRES_USER=" + dbUser,
				"POSTGRES_PASSWORD=" + dbPassword,
				"listen_addresses = '*'",
			},
		},
		func(config *docker.HostConfig) {
			config.AutoRemove = true
			config.RestartPolicy = docker.RestartPolicy{Name: "no"}
		},
	)
	if err != nil {
		return fmt.Errorf("failed to start postgres container: %w", err)
	}
	c.resource = resource
	if err = resource.Expire(containerLifetimeSec); err != nil {
		return fmt.Errorf("failed to set container expiration: %w", err)
	}

	c.dsn = fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable",
		dbUser, dbPassword, resource.GetHostPort("5432/tcp"), dbName)

	pool.MaxWait = 60 * time.Second
	if err = pool.Retry(c.tryConnect); err != nil {
		return fmt.Errorf("failed to wait for postgres readiness: %w", err)
	}

	c.log.LogAttrs(context.TODO(),
		slog.LevelInfo,
		"test postgres container is up",
		slog.String("dsn", c.dsn),
	)
	return nil
}

func (c *PGContainer) tryConnect() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := pgxpool.New(ctx, c.dsn)
	if err != nil {
		return fmt.Errorf("failed to open test pool: %w", err)
	}
	defer conn.Close()
	if err = conn.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping test DB: %w", err)
	}
	return nil
}

func (c *PGContainer) GetDSN() string {
	return c.dsn
}

func (c *PGContainer) Close() {
	if c.pool == nil || c.resource == nil {
		return
	}
	if err := c.pool.Purge(c.resource); err != nil {
		c.log.LogAttrs(context.TODO(),
			slog.LevelError,
			"failed to purge postgres container",
			slog.Any(model.KeyLoggerError, err),
		)
	}
}
