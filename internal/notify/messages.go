package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/signalguard/internal/domain"
)

// Message is a rendered notification.
type Message struct {
	Event string
	Title string
	Body  string
}

func PositionOpened(pos domain.Position, expected float64) Message {
	return Message{
		Event: EventPositionOpened,
		Title: fmt.Sprintf("%s %s opened", pos.Side, pos.Ticker),
		Body: fmt.Sprintf("Account %d\nQty %s @ %s (signal %s)\nPosition %s",
			pos.AccountID, num(pos.Quantity), num(pos.EntryPrice), num(expected), pos.ID),
	}
}

func PartialClosed(pos domain.Position, reason string, qty, price, pnl float64) Message {
	return Message{
		Event: EventPartialClose,
		Title: fmt.Sprintf("%s %s: %s hit", pos.Side, pos.Ticker, reason),
		Body: fmt.Sprintf("Closed %s @ %s, PnL %s\nRemaining %s",
			num(qty), num(price), signed(pnl), num(pos.RemainingQuantity)),
	}
}

func BreakEven(pos domain.Position) Message {
	return Message{
		Event: EventBreakEven,
		Title: fmt.Sprintf("%s %s: break-even armed", pos.Side, pos.Ticker),
		Body:  fmt.Sprintf("Stop moved to %s (entry %s)", num(pos.TrailingStop), num(pos.EntryPrice)),
	}
}

func PositionClosed(pos domain.Position) Message {
	return Message{
		Event: EventPositionClosed,
		Title: fmt.Sprintf("%s %s closed: %s", pos.Side, pos.Ticker, pos.CloseReason),
		Body: fmt.Sprintf("Account %d\nEntry %s exit %s\nRealized PnL %s",
			pos.AccountID, num(pos.EntryPrice), num(pos.ExitPrice), signed(pos.RealizedPnL)),
	}
}

func CooldownActivated(ticker string, until time.Time, reason string) Message {
	return Message{
		Event: EventCooldown,
		Title: fmt.Sprintf("%s in cooldown", ticker),
		Body:  fmt.Sprintf("New entries blocked until %s\n%s", until.UTC().Format(time.RFC3339), reason),
	}
}

func SignalDropped(ticker, action string, until time.Time) Message {
	return Message{
		Event: EventSignalDropped,
		Title: fmt.Sprintf("%s %s ignored", action, ticker),
		Body:  fmt.Sprintf("Ticker cooldown active until %s", until.UTC().Format(time.RFC3339)),
	}
}

func KillSwitch(accountID int64, reason string, closed int, errs []string) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Account %d\nReason: %s\nPositions closed: %d", accountID, reason, closed)
	if len(errs) > 0 {
		fmt.Fprintf(&b, "\nErrors (%d):\n- %s", len(errs), strings.Join(errs, "\n- "))
	}
	return Message{Event: EventKillSwitch, Title: "KILL SWITCH ACTIVATED", Body: b.String()}
}

func HeartbeatCritical(open int64, stale time.Duration) Message {
	return Message{
		Event: EventHeartbeatCritical,
		Title: "Price updates stalled",
		Body: fmt.Sprintf("%d open position(s), last price update %s ago.\nRisk rules are not being evaluated.",
			open, stale.Round(time.Second)),
	}
}

func HeartbeatRecovered() Message {
	return Message{
		Event: EventHeartbeatRecovered,
		Title: "Price updates recovered",
		Body:  "System is healthy again.",
	}
}

func num(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.6f", v), "0"), ".")
}

func signed(v float64) string {
	if v >= 0 {
		return "+" + fmt.Sprintf("%.2f", v)
	}
	return fmt.Sprintf("%.2f", v)
}

func EntryDisabledGlobally(accounts int64) Message {
	return Message{
		Event: EventKillSwitch,
		Title: "AUTOMATED ENTRY DISABLED",
		Body:  fmt.Sprintf("Webhook entries disabled on %d account(s). Open positions are still managed.", accounts),
	}
}
