package postgres_test

import (
	"context"
	"testing"
	"time"

	testpg "github.com/opst/knitfleet/internal/testutils/postgres"
	"github.com/opst/knitfleet/pkg/audit"
	auditpg "github.com/opst/knitfleet/pkg/audit/postgres"
	"github.com/opst/knitfleet/pkg/domain"
)

func TestWriter(t *testing.T) {
	ctx := context.Background()
	testee := auditpg.New(testpg.Connect(t))
	if err := testee.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	// migration is idempotent
	if err := testee.Migrate(ctx); err != nil {
		t.Fatal(err)
	}

	first := audit.NewRecord("alice", "clicks", domain.Feed, audit.Suspend)
	first.At = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	second := audit.NewRecord("bob", "clicks", domain.Feed, audit.Resume)
	second.At = time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)
	other := audit.NewRecord("alice", "clicks", domain.Process, audit.Scheduled)

	for _, rec := range []audit.Record{second, first, first, other} {
		if err := testee.Write(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	actual, err := testee.Find(ctx, "feed", "clicks")
	if err != nil {
		t.Fatal(err)
	}
	if len(actual) != 2 {
		t.Fatalf("unexpected records: %+v", actual)
	}
	for i, expected := range []audit.Record{first, second} {
		a := actual[i]
		if a.ID != expected.ID || a.Actor != expected.Actor || a.Action != expected.Action ||
			a.EntityType != expected.EntityType || !a.At.Equal(expected.At) {
			t.Errorf("#%d: actual = %+v, expected = %+v", i, a, expected)
		}
	}
}
