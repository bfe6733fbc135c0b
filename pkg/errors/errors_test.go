package errors_test

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"testing"

	xe "github.com/opst/knitfleet/pkg/errors"
)

var errRoot = errors.New("connection refused")

func wrapHere(err error) error {
	return xe.WrapWithNote("connecting", err)
}

func TestWrap(t *testing.T) {
	t.Run("it knows location where it is wrapped", func(t *testing.T) {
		message := wrapHere(errRoot).Error()
		_, thisFile, _, _ := runtime.Caller(0)

		for _, expected := range []string{"wrapHere", thisFile, "(connecting)", "<- connection refused"} {
			if !strings.Contains(message, expected) {
				t.Errorf("message does not contain %s: %s", expected, message)
			}
		}
	})

	t.Run("it supports errors protocol", func(t *testing.T) {
		err := xe.Wrap(fmt.Errorf("dial: %w", errRoot))
		if !errors.Is(err, errRoot) {
			t.Error("it does not support unwrapping.")
		}
	})

	t.Run("nil is kept nil", func(t *testing.T) {
		if err := xe.Wrap(nil); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
