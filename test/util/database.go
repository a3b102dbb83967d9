// Package util provides test utilities for integration testing against a
// real MongoDB instance.
package util

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"

	"github.com/redive-tools/newswatch/pkg/config"
	"github.com/redive-tools/newswatch/pkg/store"
)

var (
	// Shared connection string for all tests in local dev
	sharedConnStr string
	containerOnce sync.Once
	containerErr  error
)

// SetupTestStore connects a store client to a per-test database.
// - CI: connects to an external MongoDB service container via CI_MONGO_URL.
// - Local: uses a shared testcontainer, started once per package; the test
//   is skipped when Docker is unavailable.
// The database is dropped and the client closed when the test ends.
func SetupTestStore(t *testing.T) *store.Client {
	t.Helper()
	ctx := context.Background()

	connStr := getOrCreateSharedMongo(t)
	dbName := GenerateDatabaseName(t)

	client, err := store.Connect(ctx, config.MongoConfig{
		ConnectionString: connStr,
		Database:         dbName,
	})
	require.NoError(t, err)
	t.Logf("Created test database: %s", dbName)

	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.DropDatabase(cleanupCtx); err != nil {
			t.Logf("Warning: failed to drop database %s: %v", dbName, err)
		}
		_ = client.Close(cleanupCtx)
	})

	return client
}

// getOrCreateSharedMongo returns a connection string to the shared server.
// In CI, uses CI_MONGO_URL. In local dev, starts a shared testcontainer once.
func getOrCreateSharedMongo(t *testing.T) string {
	if ciMongoURL := os.Getenv("CI_MONGO_URL"); ciMongoURL != "" {
		t.Log("Using external MongoDB from CI_MONGO_URL")
		return ciMongoURL
	}

	containerOnce.Do(func() {
		ctx := context.Background()
		t.Log("Starting shared MongoDB testcontainer for all tests")

		container, err := mongodb.Run(ctx, "mongo:7")
		if err != nil {
			containerErr = fmt.Errorf("failed to start mongodb container: %w", err)
			return
		}

		connStr, err := container.ConnectionString(ctx)
		if err != nil {
			containerErr = fmt.Errorf("failed to get connection string: %w", err)
			return
		}

		sharedConnStr = connStr
		t.Logf("Shared container ready: %s", sharedConnStr)
	})

	if containerErr != nil {
		t.Skipf("Skipping: MongoDB unavailable (%v); set CI_MONGO_URL or start Docker", containerErr)
	}
	return sharedConnStr
}

// GenerateDatabaseName creates a unique database name for the test.
// Format: test_<sanitized_test_name>_<random_hex>
func GenerateDatabaseName(t *testing.T) string {
	testName := strings.ToLower(t.Name())
	testName = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, testName)

	// Stay well under MongoDB's 64 byte database name limit.
	if len(testName) > 40 {
		testName = testName[:40]
	}

	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		t.Fatalf("failed to generate random bytes for database name: %v", err)
	}

	return fmt.Sprintf("test_%s_%s", testName, hex.EncodeToString(randomBytes))
}
