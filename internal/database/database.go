package database

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-pay/custodia/internal/config"
	"github.com/custodia-pay/custodia/internal/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
)

type Database struct {
	Pool *pgxpool.Pool
	log  *zerolog.Logger
}

func New(cfg *config.Config, log *zerolog.Logger) (*Database, error) {
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.Database.MaxIdleConns)
	poolConfig.MaxConnLifetime = time.Duration(cfg.Database.ConnMaxLifetime) * time.Second
	poolConfig.MaxConnIdleTime = time.Duration(cfg.Database.ConnMaxIdleTime) * time.Second

	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(cfg.Observability.GetLogLevel()); err == nil {
		level = parsed
	}
	pgxLogger := logger.NewPgxLogger(level)
	poolConfig.ConnConfig.Tracer = &tracelog.TraceLog{
		Logger:   &zerologTracer{log: pgxLogger},
		LogLevel: tracelog.LogLevel(logger.GetPgxTraceLogLevel(level)),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info().
		Str("host", cfg.Database.Host).
		Str("database", cfg.Database.Name).
		Msg("Connected to database successfully")

	return &Database{Pool: pool, log: log}, nil
}

func (d *Database) Ping(ctx context.Context) error {
	return d.Pool.Ping(ctx)
}

func (d *Database) Close() {
	d.log.Info().Msg("Closing database connection pool")
	d.Pool.Close()
}

// zerologTracer bridges pgx tracelog output into zerolog.
type zerologTracer struct {
	log zerolog.Logger
}

func (t *zerologTracer) Log(_ context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	var event *zerolog.Event
	switch level {
	case tracelog.LogLevelError:
		event = t.log.Error()
	case tracelog.LogLevelWarn:
		event = t.log.Warn()
	case tracelog.LogLevelInfo:
		event = t.log.Info()
	default:
		event = t.log.Debug()
	}
	for k, v := range data {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}
