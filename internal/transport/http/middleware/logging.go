package middleware

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// log is set once by SetLogger from main; the standard logger is the
// fallback so middleware never nil-checks.
var log = logrus.StandardLogger()

// SetLogger points the middleware package at the application logger.
func SetLogger(l *logrus.Logger) {
	if l != nil {
		log = l
	}
}

func logger() *logrus.Logger {
	return log
}

// statusRecorder captures the response status for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Logging writes one structured access-log line per request.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		logger().WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.status,
			"duration":   time.Since(start).String(),
			"request_id": GetRequestID(r.Context()),
			"remote":     r.RemoteAddr,
		}).Info("request completed")
	})
}
