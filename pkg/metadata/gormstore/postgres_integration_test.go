//go:build integration

package gormstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/marmos91/relaystream/pkg/metadata"
	"github.com/marmos91/relaystream/pkg/metadata/metadatatest"
)

func TestIntegration_PostgresConformance(t *testing.T) {
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("relaystream_test"),
		postgres.WithUsername("relaystream_test"),
		postgres.WithPassword("relaystream_test"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg := &Config{
		Type: DatabaseTypePostgres,
		Postgres: PostgresConfig{
			Host:     host,
			Port:     port.Int(),
			Database: "relaystream_test",
			User:     "relaystream_test",
			Password: "relaystream_test",
			SSLMode:  "disable",
		},
	}

	metadatatest.RunConformanceSuite(t, func(t *testing.T) metadata.Store {
		s, err := New(cfg)
		require.NoError(t, err)
		require.NoError(t, s.DB().Exec("DELETE FROM file_records").Error)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}
