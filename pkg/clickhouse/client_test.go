package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions(t *testing.T) {
	opts := Options(ClientConfig{
		Host:        "ch.internal",
		Port:        9440,
		Database:    "qless",
		User:        "writer",
		Password:    "secret",
		DialTimeout: 2 * time.Second,
	})

	assert.Equal(t, []string{"ch.internal:9440"}, opts.Addr)
	assert.Equal(t, clickhouse.Native, opts.Protocol)
	assert.Equal(t, "qless", opts.Auth.Database)
	assert.Equal(t, "writer", opts.Auth.Username)
	assert.Equal(t, 2*time.Second, opts.DialTimeout)

	opts = Options(ClientConfig{Host: "::1", Port: 8123, UseHTTP: true})
	assert.Equal(t, []string{"[::1]:8123"}, opts.Addr)
	assert.Equal(t, clickhouse.HTTP, opts.Protocol)
}

func TestNewClientRequiresHost(t *testing.T) {
	_, err := NewClient(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host is required")
}
