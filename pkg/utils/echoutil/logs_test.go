package echoutil_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/opst/knitfleet/pkg/utils/echoutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogHandler(t *testing.T) {
	type then struct {
		status int
		level  zapcore.Level
	}

	for name, testcase := range map[string]struct {
		handler echo.HandlerFunc
		then
	}{
		"when handler succeeds, it logs response as info": {
			handler: func(c echo.Context) error { return c.String(http.StatusOK, "ok") },
			then:    then{status: http.StatusOK, level: zapcore.InfoLevel},
		},
		"when handler returns 4xx error, it logs response as warn": {
			handler: func(c echo.Context) error { return echo.NewHTTPError(http.StatusNotFound) },
			then:    then{status: http.StatusNotFound, level: zapcore.WarnLevel},
		},
		"when handler returns unknown error, it logs response as error": {
			handler: func(c echo.Context) error { return echo.ErrInternalServerError },
			then:    then{status: http.StatusInternalServerError, level: zapcore.ErrorLevel},
		},
	} {
		t.Run(name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			e := echo.New()
			e.Use(echoutil.LogHandler(zap.New(core)))
			e.GET("/target", testcase.handler)

			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/target?q=1", nil))

			if rec.Code != testcase.then.status {
				t.Errorf("status: actual = %d, expected = %d", rec.Code, testcase.then.status)
			}

			responses := logs.FilterMessage("> response").All()
			if len(responses) != 1 {
				t.Fatalf("response logs: %d", len(responses))
			}
			entry := responses[0]
			if entry.Level != testcase.then.level {
				t.Errorf("level: actual = %s, expected = %s", entry.Level, testcase.then.level)
			}
			fields := entry.ContextMap()
			if fields["uri"] != "/target?q=1" {
				t.Errorf("uri: %v", fields["uri"])
			}
			if fields["status"] != int64(testcase.then.status) {
				t.Errorf("status field: %v", fields["status"])
			}
			if n := logs.FilterMessage("< request").Len(); n != 1 {
				t.Errorf("request logs: %d", n)
			}
		})
	}
}

func TestSetLevel(t *testing.T) {
	for in, expected := range map[string]log.Lvl{
		"debug":   log.DEBUG,
		"INFO":    log.INFO,
		"warn":    log.WARN,
		"":        log.WARN,
		"error":   log.ERROR,
		"off":     log.OFF,
		"verbose": log.WARN,
	} {
		e := echo.New()
		echoutil.SetLevel(e, in)
		if actual := e.Logger.Level(); actual != expected {
			t.Errorf("%q: actual = %v, expected = %v", in, actual, expected)
		}
	}
}
