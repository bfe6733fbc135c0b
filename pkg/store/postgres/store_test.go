package postgres_test

import (
	"context"
	"testing"

	testpg "github.com/opst/knitfleet/internal/testutils/postgres"
	"github.com/opst/knitfleet/pkg/store/postgres"
	"github.com/opst/knitfleet/pkg/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Store {
		s := postgres.New(testpg.Connect(t))
		if err := s.Migrate(context.Background()); err != nil {
			t.Fatal(err)
		}
		return s
	})
}
