// Package testsupport holds fixtures shared by package tests.
package testsupport

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenDB returns an isolated in-memory database migrated with models. The pool
// holds a single connection, so code under test must run every statement of a
// transaction on the transaction handle.
func OpenDB(t testing.TB, models ...any) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			t.Fatalf("migrate: %v", err)
		}
	}
	return db
}

// Redis starts an in-memory Redis server and a client bound to it.
func Redis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return srv, client
}

var (
	nodeOnce sync.Once
	node     *snowflake.Node
	nodeErr  error
)

// Node returns the process-wide snowflake node used by tests. Sharing one
// node keeps ids unique across fixtures created in the same millisecond.
func Node(t testing.TB) *snowflake.Node {
	t.Helper()

	nodeOnce.Do(func() {
		node, nodeErr = snowflake.NewNode(1)
	})
	if nodeErr != nil {
		t.Fatalf("snowflake node: %v", nodeErr)
	}
	return node
}
