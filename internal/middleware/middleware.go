package middleware

import (
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"
)

type Middlewares struct {
	Global          *Global
	ContextEnhancer *ContextEnhancer
	Tracing         *Tracing
	RateLimit       *RateLimit
}

func NewMiddlewares(logger *zerolog.Logger, nrApp *newrelic.Application, limiter Limiter) *Middlewares {
	return &Middlewares{
		Global:          NewGlobal(logger),
		ContextEnhancer: NewContextEnhancer(logger),
		Tracing:         NewTracing(nrApp),
		RateLimit:       NewRateLimit(limiter, 120, time.Minute),
	}
}
