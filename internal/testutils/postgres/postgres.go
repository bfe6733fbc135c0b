// Package postgres prepares PostgreSQL for integration tests.
//
// Tests using it are skipped unless KNITFLEET_TEST_PG_URI is set.
package postgres

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"testing"
	"time"

	kpool "github.com/opst/knitfleet/pkg/conn/db/postgres/pool"
	kstrings "github.com/opst/knitfleet/pkg/utils/strings"
)

const EnvURI = "KNITFLEET_TEST_PG_URI"

// Connect returns a pool whose search_path is a schema created for the test.
//
// The schema is dropped on cleanup.
func Connect(t *testing.T) kpool.Pool {
	t.Helper()
	base := os.Getenv(EnvURI)
	if base == "" {
		t.Skipf("set %s to run tests with PostgreSQL", EnvURI)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	admin, err := kpool.Connect(ctx, kpool.Config{URI: base})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(admin.Close)

	suffix, err := kstrings.RandomHex(12)
	if err != nil {
		t.Fatal(err)
	}
	schema := "test_" + suffix
	if _, err := admin.Exec(ctx, fmt.Sprintf(`create schema "%s"`, schema)); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		admin.Exec(context.Background(), fmt.Sprintf(`drop schema "%s" cascade`, schema))
	})

	u, err := url.Parse(base)
	if err != nil {
		t.Fatal(err)
	}
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()

	p, err := kpool.Connect(ctx, kpool.Config{URI: u.String(), MaxConns: 4})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(p.Close)
	return p
}
