// Copyright (C) 2017 ScyllaDB

package httplog

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/scylladb/go-log"
)

// TraceID tags the incoming request context with a fresh trace id.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(log.WithTraceID(r.Context())))
	})
}

// RequestLogger emits one log line per request on completion.
func RequestLogger(logger log.Logger) func(next http.Handler) http.Handler {
	return middleware.RequestLogger(formatter{logger: logger})
}

// RequestLoggerSetRequestError attaches err to the request log line.
func RequestLoggerSetRequestError(r *http.Request, err error) {
	if e, ok := middleware.GetLogEntry(r).(*entry); ok {
		e.err = err
	}
}

type formatter struct {
	logger log.Logger
}

func (f formatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	return &entry{
		r:      r,
		logger: f.logger,
	}
}

type entry struct {
	r      *http.Request
	logger log.Logger
	err    error
}

func (e *entry) Write(status, bytes int, header http.Header, elapsed time.Duration, extra interface{}) {
	keyvals := []interface{}{
		"from", e.r.RemoteAddr,
		"status", status,
		"bytes", bytes,
		"duration", elapsed.Round(time.Millisecond).String(),
	}
	if e.err != nil {
		keyvals = append(keyvals, "error", e.err)
	}
	e.logger.Info(e.r.Context(), e.r.Method+" "+e.r.URL.RequestURI(), keyvals...)
}

func (e *entry) Panic(v interface{}, stack []byte) {
	e.logger.Error(e.r.Context(), "Panic", "panic", v, "stack", stack)
}
