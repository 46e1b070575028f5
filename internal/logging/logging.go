// Package logging builds the service-wide zerolog.Logger and the
// per-request field enrichers device and operator handlers attach to it —
// device_id and tenant_id — so every audited request is greppable
// by the identifiers fleet operators actually search on.
package logging

import (
	"context"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type loggerContextKey struct {
	name string
}

var loggerCtxKey = &loggerContextKey{"logger"}

// environment defaults to "dev" so local runs and tests don't need to set
// TOON_ENVIRONMENT just to get a logger.
func environment() string {
	if env := os.Getenv("TOON_ENVIRONMENT"); env != "" {
		return env
	}
	return "dev"
}

func NewLogger(ctx context.Context, serviceName, serviceVersion string) (context.Context, zerolog.Logger) {
	logger := log.With().
		Str("service", strings.ToLower(serviceName)).
		Str("version", serviceVersion).
		Str("environment", environment()).
		Logger()
	ctx = NewContextWithLogger(ctx, logger)
	return ctx, logger
}

// WithDeviceID returns logger enriched with the device_id field every
// device-facing handler logs failures against.
func WithDeviceID(logger zerolog.Logger, deviceID string) zerolog.Logger {
	return logger.With().Str("device_id", deviceID).Logger()
}

// WithTenantID returns logger enriched with the tenant_id field, used by
// operator-facing handlers once a request has been tenant-scoped.
func WithTenantID(logger zerolog.Logger, tenantID string) zerolog.Logger {
	return logger.With().Str("tenant_id", tenantID).Logger()
}

func NewContextWithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	ctx = context.WithValue(ctx, loggerCtxKey, logger)
	return ctx
}

func GetLoggerFromContext(ctx context.Context) zerolog.Logger {
	logger, ok := ctx.Value(loggerCtxKey).(zerolog.Logger)

	if !ok {
		return log.Logger
	}

	return logger
}
