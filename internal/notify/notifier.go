// Package notify delivers operator alerts to chat channels. Every Sender
// receives each notification; a Notifier can be restricted to a subset of
// event types so operators only hear about what they care about.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Event types accepted by Notify and by the notify.events config list.
const (
	EventPositionOpened     = "position_opened"
	EventPositionClosed     = "position_closed"
	EventPartialClose       = "partial_close"
	EventBreakEven          = "break_even"
	EventCooldown           = "cooldown"
	EventSignalDropped      = "signal_dropped"
	EventKillSwitch         = "kill_switch"
	EventHeartbeatCritical  = "heartbeat_critical"
	EventHeartbeatRecovered = "heartbeat_recovered"
)

// critical events are delivered even when filtered out by configuration.
var critical = map[string]bool{
	EventKillSwitch:         true,
	EventHeartbeatCritical:  true,
	EventHeartbeatRecovered: true,
}

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans a notification out to every Sender.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty events list allows every event.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return len(n.senders) > 0
}

// Notify delivers the message when event passes the filter. Kill-switch and
// heartbeat events always pass.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] && !critical[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, event, title, message)
}

// dispatch sends to every sender; one failing sender does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, event, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("event", event),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
