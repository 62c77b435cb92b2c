// Package cassandra implements the table repository on a Cassandra keyspace. Each table has the
// partition key / row key shape of a partitioned table store; entity properties live in a map column.
package cassandra

import (
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/gocql/gocql"
)

// Config locates the Cassandra cluster and the keyspace holding the tables.
type Config struct {
	ClusterHosts []string `json:"cluster_hosts"`
	// Keyspace defaults to DefaultKeyspace.
	Keyspace string `json:"keyspace"`
	// Consistency of every query the ConsistencyBook does not override, LocalQuorum when unset.
	Consistency gocql.Consistency `json:"-"`
	// SerialConsistency of the conditional batches, LocalSerial when unset.
	SerialConsistency gocql.SerialConsistency `json:"-"`
	ConnectionTimeout time.Duration           `json:"connection_timeout"`
	Authenticator     gocql.Authenticator     `json:"-"`
	// ReplicationClause is used when the keyspace gets created, SimpleStrategy with 1 replica when unset.
	ReplicationClause string `json:"replication_clause"`

	ConsistencyBook ConsistencyBook `json:"-"`
}

// ConsistencyBook overrides the consistency level per kind of call.
type ConsistencyBook struct {
	TableManage gocql.Consistency
	EntityWrite gocql.Consistency
	EntityGet   gocql.Consistency
	Query       gocql.Consistency
}

// Connection is the global session and the Config it was opened with.
type Connection struct {
	Session *gocql.Session
	Config
}

var connection *Connection
var mux sync.Mutex

// DefaultKeyspace is used when Config.Keyspace is not set.
const DefaultKeyspace = "azrepo"

var keyspacePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,47}$`)

// IsConnectionInstantiated reports whether the global Connection is open.
func IsConnectionInstantiated() bool {
	return connection != nil
}

// OpenConnection opens the global Connection, or returns it when already open. The keyspace is created
// if missing.
func OpenConnection(config Config) (*Connection, error) {
	if connection != nil {
		return connection, nil
	}
	mux.Lock()
	defer mux.Unlock()

	if connection != nil {
		return connection, nil
	}
	config, err := normalizeConfig(config)
	if err != nil {
		return nil, err
	}
	s, err := newCluster(config).CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to open Cassandra session on %v: %w", config.ClusterHosts, err)
	}
	if err := s.Query(fmt.Sprintf("CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = %s;", config.Keyspace, config.ReplicationClause)).Exec(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create keyspace %s: %w", config.Keyspace, err)
	}
	// The authenticator is only needed to connect.
	config.Authenticator = nil
	connection = &Connection{
		Session: s,
		Config:  config,
	}
	return connection, nil
}

func normalizeConfig(config Config) (Config, error) {
	if len(config.ClusterHosts) == 0 {
		return config, fmt.Errorf("can't open a Cassandra connection without cluster hosts")
	}
	if config.Keyspace == "" {
		config.Keyspace = DefaultKeyspace
	}
	if !keyspacePattern.MatchString(config.Keyspace) {
		return config, fmt.Errorf("keyspace '%s' is not a valid Cassandra identifier", config.Keyspace)
	}
	if config.Consistency == gocql.Any {
		config.Consistency = gocql.LocalQuorum
	}
	if config.SerialConsistency == 0 {
		config.SerialConsistency = gocql.LocalSerial
	}
	if config.ReplicationClause == "" {
		config.ReplicationClause = "{'class':'SimpleStrategy', 'replication_factor':1}"
	}
	return config, nil
}

func newCluster(config Config) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(config.ClusterHosts...)
	cluster.Consistency = config.Consistency
	cluster.SerialConsistency = config.SerialConsistency
	if config.ConnectionTimeout > 0 {
		cluster.ConnectTimeout = config.ConnectionTimeout
		cluster.Timeout = config.ConnectionTimeout
	}
	if config.Authenticator != nil {
		cluster.Authenticator = config.Authenticator
	}
	return cluster
}

// CloseConnection closes and clears the global Connection, if open.
func CloseConnection() {
	if connection == nil {
		return
	}
	mux.Lock()
	defer mux.Unlock()
	if connection == nil {
		return
	}
	connection.Session.Close()
	connection = nil
}

func getConnection() (*Connection, error) {
	c := connection
	if c == nil {
		return nil, fmt.Errorf("Cassandra connection is not open, call OpenConnection(config) to open it")
	}
	return c, nil
}

func consistencyOr(c, fallback gocql.Consistency) gocql.Consistency {
	if c > gocql.Any {
		return c
	}
	return fallback
}
