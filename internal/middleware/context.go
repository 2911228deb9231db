package middleware

import (
	"context"
	"net/http"

	"github.com/custodia-pay/custodia/internal/logger"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"
)

const (
	PartyIDKey = "party_id"
	LoggerKey  = "logger"
)

type ContextEnhancer struct {
	logger *zerolog.Logger
}

func NewContextEnhancer(log *zerolog.Logger) *ContextEnhancer {
	return &ContextEnhancer{
		logger: log,
	}
}

func (ce *ContextEnhancer) EnhanceContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := GetRequestID(r)

		//enhance logger with context
		contextLogger := ce.logger.With().
			Str("request_id", requestID).
			Str("ip", r.RemoteAddr).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()

		if txn := newrelic.FromContext(r.Context()); txn != nil {
			contextLogger = logger.WithTraceContext(contextLogger, txn)
		}

		if partyID := ce.extractPartyID(r); partyID != "" {
			contextLogger = contextLogger.With().Str("party_id", partyID).Logger()
		}

		//set enhanced logger in context
		ctx := r.Context()
		ctx = context.WithValue(ctx, LoggerKey, &contextLogger)
		r = r.WithContext(ctx)

		next.ServeHTTP(w, r)
	})

}

func (ce *ContextEnhancer) extractPartyID(r *http.Request) string {
	if partyID, ok := r.Context().Value(PartyIDKey).(string); ok {
		return partyID
	}
	return ""
}

// GetLogger retrieves the logger from the context.
func GetLogger(ctx context.Context) *zerolog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(*zerolog.Logger); ok {
		return logger
	}
	logger := zerolog.Nop()
	return &logger
}
