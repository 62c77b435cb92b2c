// Package redis implements the queue and document repositories on Redis. All keys of one queue or
// container share a hash tag so they land on the same cluster slot and can be written atomically.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options locate and tune the Redis server holding queues & document containers.
type Options struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	// PoolSize caps the client's connections, 0 lets go-redis pick (10 per CPU).
	PoolSize int `json:"pool_size"`
	// DialTimeout bounds connecting and the reachability check of OpenConnection.
	DialTimeout time.Duration `json:"dial_timeout"`
	TLSConfig   *tls.Config   `json:"-"`
}

// DefaultOptions targets a local server, default DB.
func DefaultOptions() Options {
	return Options{
		Address:     "localhost:6379",
		DialTimeout: 5 * time.Second,
	}
}

// Connection is the global client and the Options it was opened with.
type Connection struct {
	Client  *redis.Client
	Options Options
}

var connection *Connection
var mux sync.Mutex

// IsConnectionInstantiated reports whether the global Connection is open.
func IsConnectionInstantiated() bool {
	return connection != nil
}

// OpenConnection opens the global Connection, or returns it when already open. The server must answer
// a PING within the dial timeout.
func OpenConnection(options Options) (*Connection, error) {
	if connection != nil {
		return connection, nil
	}
	mux.Lock()
	defer mux.Unlock()

	if connection != nil {
		return connection, nil
	}
	if options.Address == "" {
		return nil, fmt.Errorf("can't open a Redis connection without an address")
	}
	if options.DialTimeout <= 0 {
		options.DialTimeout = DefaultOptions().DialTimeout
	}
	client := redis.NewClient(&redis.Options{
		Addr:        options.Address,
		Password:    options.Password,
		DB:          options.DB,
		PoolSize:    options.PoolSize,
		DialTimeout: options.DialTimeout,
		TLSConfig:   options.TLSConfig,
	})
	ctx, cancel := context.WithTimeout(context.Background(), options.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("Redis server %s is not reachable: %w", options.Address, err)
	}
	connection = &Connection{
		Client:  client,
		Options: options,
	}
	return connection, nil
}

// CloseConnection closes and clears the global Connection, if open.
func CloseConnection() error {
	if connection == nil {
		return nil
	}
	mux.Lock()
	defer mux.Unlock()
	if connection == nil {
		return nil
	}
	err := connection.Client.Close()
	connection = nil
	return err
}

func getClient() (*redis.Client, error) {
	c := connection
	if c == nil {
		return nil, fmt.Errorf("Redis connection is not open, call OpenConnection(options) to open it")
	}
	return c.Client, nil
}
