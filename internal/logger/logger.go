package logger

import (
	"context"
	"log/slog"
	"os"

	"github.com/asmbly/membersync/internal/config"
	"github.com/asmbly/membersync/internal/monitoring"
)

// New builds the service logger: JSON to stdout in production, text in
// development, always mirrored to the OpenTelemetry bridge so records
// ship with the rest of the telemetry when an exporter is configured.
func New(cfg *config.Config) *slog.Logger {
	var consoleHandler slog.Handler
	level := slog.LevelDebug
	if cfg.Server.Environment == "production" {
		level = slog.LevelInfo
		consoleHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		consoleHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}

	otelHandler := monitoring.NewOTelHandler(&slog.HandlerOptions{Level: level})

	logger := slog.New(NewMultiHandler(consoleHandler, otelHandler)).With(
		"service", cfg.Telemetry.ServiceName,
		"version", cfg.Telemetry.ServiceVersion,
		"environment", cfg.Telemetry.Environment,
	)

	slog.SetDefault(logger)
	return logger
}

// MultiHandler sends records to every handler that accepts the level.
type MultiHandler struct {
	handlers []slog.Handler
}

func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: handlers}
}

func (h *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *MultiHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, record.Level) {
			if err := handler.Handle(ctx, record); err != nil {
				slog.Error("Failed to handle log record", "error", err)
			}
		}
	}
	return nil
}

func (h *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newHandlers := make([]slog.Handler, 0, len(h.handlers))
	for _, handler := range h.handlers {
		newHandlers = append(newHandlers, handler.WithAttrs(attrs))
	}
	return &MultiHandler{handlers: newHandlers}
}

func (h *MultiHandler) WithGroup(name string) slog.Handler {
	newHandlers := make([]slog.Handler, 0, len(h.handlers))
	for _, handler := range h.handlers {
		newHandlers = append(newHandlers, handler.WithGroup(name))
	}
	return &MultiHandler{handlers: newHandlers}
}
