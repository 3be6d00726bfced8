package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes trace events to an slog.Logger at Debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates an adapter writing to logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}
	if event.SessionID != "" {
		attrs = append(attrs, slog.String("session", event.SessionID))
	}
	if event.Interface != "" {
		attrs = append(attrs, slog.String("iface", event.Interface))
	}

	switch {
	case event.Command != nil:
		c := event.Command
		attrs = append(attrs,
			slog.String("op", c.Op),
			slog.String("result", c.Result),
			slog.Duration("duration", c.Duration),
		)
		if c.SSID != "" {
			attrs = append(attrs, slog.String("ssid", c.SSID))
		}
		if c.NetworkID != "" {
			attrs = append(attrs, slog.String("network_id", c.NetworkID))
		}
		if c.Detail != "" {
			attrs = append(attrs, slog.String("detail", c.Detail))
		}
	case event.Notify != nil:
		attrs = append(attrs, slog.String("kind", event.Notify.Kind))
		if event.Notify.State != "" {
			attrs = append(attrs, slog.String("state", event.Notify.State))
		}
		if event.Notify.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.Notify.Reason))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "trace", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
