package auth_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/opst/knitfleet/pkg/audit"
	"github.com/opst/knitfleet/pkg/auth"
	"github.com/opst/knitfleet/pkg/utils/try"
)

func TestVerify(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	testee := try.To(auth.NewVerifier([]byte("secret"), auth.WithIssuer("knitfleet"), auth.WithClock(clock))).OrFatal(t)

	t.Run("it accepts a token it signed", func(t *testing.T) {
		token := try.To(testee.Sign("alice", time.Hour)).OrFatal(t)
		claims, err := testee.Verify(token)
		if err != nil {
			t.Fatal(err)
		}
		if claims.Subject != "alice" {
			t.Errorf("subject: %s", claims.Subject)
		}
	})

	for name, token := range map[string]func(t *testing.T) string{
		"malformed token": func(*testing.T) string { return "not-a-token" },
		"expired token": func(t *testing.T) string {
			past := try.To(auth.NewVerifier(
				[]byte("secret"), auth.WithIssuer("knitfleet"),
				auth.WithClock(func() time.Time { return now.Add(-2 * time.Hour) }),
			)).OrFatal(t)
			return try.To(past.Sign("alice", time.Hour)).OrFatal(t)
		},
		"token signed with other secret": func(t *testing.T) string {
			other := try.To(auth.NewVerifier([]byte("other"), auth.WithIssuer("knitfleet"), auth.WithClock(clock))).OrFatal(t)
			return try.To(other.Sign("alice", time.Hour)).OrFatal(t)
		},
		"token of other issuer": func(t *testing.T) string {
			other := try.To(auth.NewVerifier([]byte("secret"), auth.WithIssuer("someone"), auth.WithClock(clock))).OrFatal(t)
			return try.To(other.Sign("alice", time.Hour)).OrFatal(t)
		},
		"token without subject": func(t *testing.T) string {
			return try.To(testee.Sign("", time.Hour)).OrFatal(t)
		},
	} {
		t.Run("it rejects "+name, func(t *testing.T) {
			if _, err := testee.Verify(token(t)); !errors.Is(err, auth.ErrInvalidToken) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}

	t.Run("empty secret is an error", func(t *testing.T) {
		if _, err := auth.NewVerifier(nil); err == nil {
			t.Error("no error")
		}
	})
}

func TestMiddleware(t *testing.T) {
	verifier := try.To(auth.NewVerifier([]byte("secret"))).OrFatal(t)
	token := try.To(verifier.Sign("bob", time.Hour)).OrFatal(t)

	type when struct {
		header   string
		required bool
	}
	type then struct {
		code  int
		actor string
	}

	for name, testcase := range map[string]struct {
		when
		then
	}{
		"bearer token sets the actor": {
			when{header: "Bearer " + token},
			then{code: http.StatusOK, actor: "bob"},
		},
		"scheme is case-insensitive": {
			when{header: "bearer " + token, required: true},
			then{code: http.StatusOK, actor: "bob"},
		},
		"missing header is anonymous when optional": {
			when{},
			then{code: http.StatusOK, actor: "anonymous"},
		},
		"missing header is rejected when required": {
			when{required: true},
			then{code: http.StatusUnauthorized},
		},
		"other scheme is rejected": {
			when{header: "Basic Ym9iOnNlY3JldA=="},
			then{code: http.StatusUnauthorized},
		},
		"broken token is rejected": {
			when{header: "Bearer broken"},
			then{code: http.StatusUnauthorized},
		},
	} {
		t.Run(name, func(t *testing.T) {
			e := echo.New()
			actor := ""
			e.GET("/", func(c echo.Context) error {
				actor = audit.ActorOf(c.Request().Context())
				return c.NoContent(http.StatusOK)
			}, auth.Middleware(verifier, testcase.when.required))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if testcase.when.header != "" {
				req.Header.Set(echo.HeaderAuthorization, testcase.when.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != testcase.then.code {
				t.Errorf("code: actual = %d, expected = %d", rec.Code, testcase.then.code)
			}
			if actor != testcase.then.actor {
				t.Errorf("actor: actual = %q, expected = %q", actor, testcase.then.actor)
			}
		})
	}
}
