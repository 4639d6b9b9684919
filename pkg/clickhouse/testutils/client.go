package testutils

import (
	"context"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

// Client mirrors the interface from pkg/clickhouse so unit tests can inject
// a mocked connection without a real ClickHouse instance.
type Client interface {
	Conn() driver.Conn
	Ping(ctx context.Context) error
	Close() error
}

// NewTestClient creates a client backed by the provided connection.
func NewTestClient(conn driver.Conn, sugar *zap.SugaredLogger) Client {
	return &testClient{conn: conn, logger: sugar}
}

type testClient struct {
	conn   driver.Conn
	logger *zap.SugaredLogger
}

func (c *testClient) Conn() driver.Conn {
	return c.conn
}

func (c *testClient) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *testClient) Close() error {
	return c.conn.Close()
}
