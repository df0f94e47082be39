package clickhouse

import "time"

// ClientConfig is everything DSN and the pool need.
type ClientConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	UseHTTP  bool

	Pool PoolConfig

	DialTimeout time.Duration
	ReadTimeout time.Duration
	MaxExecTime time.Duration

	// async_insert lets the server buffer small inserts such as one candle per minute per market.
	AsyncInsert  bool
	WaitForAsync bool
}

type PoolConfig struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
}

func defaultClientConfig() ClientConfig {
	return ClientConfig{
		Port:        9000,
		Database:    "default",
		User:        "default",
		Pool:        PoolConfig{MaxOpen: 10, MaxIdle: 5, MaxLifetime: 5 * time.Minute},
		DialTimeout: 5 * time.Second,
		ReadTimeout: 10 * time.Second,
	}
}

// ClientOption configures Client.
type ClientOption func(*ClientConfig)

// WithAddr sets the server address; a zero port keeps the native default.
func WithAddr(host string, port int) ClientOption {
	return func(c *ClientConfig) {
		c.Host = host
		if port > 0 {
			c.Port = port
		}
	}
}

func WithAuth(database, user, password string) ClientOption {
	return func(c *ClientConfig) {
		c.Database, c.User, c.Password = database, user, password
	}
}

// WithHTTP switches from the native protocol to HTTP.
func WithHTTP(enabled bool) ClientOption {
	return func(c *ClientConfig) { c.UseHTTP = enabled }
}

func WithPool(p PoolConfig) ClientOption {
	return func(c *ClientConfig) { c.Pool = p }
}

// WithTimeouts sets dial and read timeouts and the server-side max_execution_time.
func WithTimeouts(dial, read, maxExec time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.DialTimeout, c.ReadTimeout, c.MaxExecTime = dial, read, maxExec
	}
}

func WithAsyncInsert(enabled, wait bool) ClientOption {
	return func(c *ClientConfig) {
		c.AsyncInsert, c.WaitForAsync = enabled, wait
	}
}
