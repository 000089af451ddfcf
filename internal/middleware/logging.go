// internal/middleware/logging.go
package middleware

import (
	"net/http"

	"github.com/sirupsen/logrus"
)

// LogConnectionOpen logs a message when a WebSocket client connects.
func LogConnectionOpen(logger *logrus.Logger, connectionID, remoteAddr string) {
	logger.WithFields(logrus.Fields{
		"connection_id": connectionID,
		"remote":        remoteAddr,
	}).Info("ws connection accepted")
}

// LogConnectionClose logs a message when a WebSocket client disconnects.
func LogConnectionClose(logger *logrus.Logger, connectionID string, err error) {
	fields := logrus.Fields{"connection_id": connectionID}
	if err != nil {
		fields["error"] = err
	}
	logger.WithFields(fields).Info("ws connection closed")
}

// Recover wraps an HTTP handler so a panic inside it is logged and turned
// into a 500 instead of crashing the process. Per-connection panics inside
// the websocket read pump are recovered separately in the endpoint itself
// so only that one connection is affected.
func Recover(logger *logrus.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.WithField("panic", rec).Error("recovered panic in http handler")
					http.Error(w, "internal error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
