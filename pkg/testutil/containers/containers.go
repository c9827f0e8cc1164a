//go:build integration

// Package containers starts the Postgres, Redpanda and Redis dependencies of the
// integration suites. Each container starts on first use and is shared by every
// suite in the test binary.
package containers

import (
	"sync"
	"testing"
)

type Manager struct {
	postgres lazy[PostgresContainer]
	kafka    lazy[KafkaContainer]
	redis    lazy[RedisContainer]
}

var manager = &Manager{}

// GetManager returns the process-wide manager.
func GetManager() *Manager { return manager }

// GetPostgres returns a migrated Postgres instance.
func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	return m.postgres.get(t, "postgres", NewPostgresContainer)
}

// GetKafka returns a Kafka-compatible Redpanda broker.
func (m *Manager) GetKafka(t *testing.T) *KafkaContainer {
	t.Helper()
	return m.kafka.get(t, "kafka", NewKafkaContainer)
}

func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	t.Helper()
	return m.redis.get(t, "redis", NewRedisContainer)
}

// lazy starts a container once. A failed start is not retried; later callers
// fail fast instead of waiting on another startup timeout.
type lazy[T any] struct {
	once sync.Once
	v    *T
}

func (l *lazy[T]) get(t *testing.T, name string, start func(*testing.T) *T) *T {
	t.Helper()
	l.once.Do(func() { l.v = start(t) })
	if l.v == nil {
		t.Fatalf("%s container failed to start in an earlier test", name)
	}
	return l.v
}
