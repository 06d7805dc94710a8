package guard

import (
	"context"
	"time"
)

// AlertLevel classifies alerts for the notifier.
type AlertLevel string

const (
	AlertInfo    AlertLevel = "info"
	AlertSuccess AlertLevel = "success"
	AlertWarning AlertLevel = "warning"
	AlertError   AlertLevel = "error"
)

// Alert is one operator-visible notification.
type Alert struct {
	ID      string
	Level   AlertLevel
	Title   string
	Message string
	Time    time.Time
}

// Notifier delivers alerts to the operator channel. Delivery failures are
// logged and swallowed; alerting must never take down a handler.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// Alerter builds and delivers alerts. A nil notifier degrades to log-only.
// Repeat alerts for the same throttle key are suppressed through the
// generic rate tier so one abuser cannot flood the alert channel.
type Alerter struct {
	notifier Notifier
	limiter  *Limiter
	clock    Clock
	idgen    IDGenerator
	log      Logger

	throttleLimit  int
	throttleWindow time.Duration
}

// NewAlerter creates an Alerter. notifier may be nil.
func NewAlerter(notifier Notifier, limiter *Limiter, clock Clock, idgen IDGenerator, log Logger) *Alerter {
	return &Alerter{
		notifier:       notifier,
		limiter:        limiter,
		clock:          clock,
		idgen:          idgen,
		log:            log,
		throttleLimit:  AlertLimit,
		throttleWindow: AlertWindow,
	}
}

// SetThrottle overrides the delivery throttle rate. Zero values keep the
// current setting.
func (a *Alerter) SetThrottle(limit int, window time.Duration) {
	if limit > 0 {
		a.throttleLimit = limit
	}
	if window > 0 {
		a.throttleWindow = window
	}
}

// Emit logs and delivers one alert.
func (a *Alerter) Emit(ctx context.Context, level AlertLevel, title, message string) {
	alert := Alert{
		ID:      a.idgen.New(),
		Level:   level,
		Title:   title,
		Message: message,
		Time:    a.clock.Now(),
	}

	switch level {
	case AlertError:
		a.log.Error(title, "alert", alert.ID, "detail", message)
	case AlertWarning:
		a.log.Warn(title, "alert", alert.ID, "detail", message)
	default:
		a.log.Info(title, "alert", alert.ID, "detail", message)
	}

	if a.notifier == nil {
		return
	}
	if err := a.notifier.Notify(ctx, alert); err != nil {
		a.log.Warn("alert delivery failed", "alert", alert.ID, "error", err)
	}
}

// EmitThrottled behaves like Emit but drops delivery (keeping the log line)
// once the throttle key exceeds the generic rate tier inside its window.
func (a *Alerter) EmitThrottled(ctx context.Context, key string, level AlertLevel, title, message string) {
	if a.limiter != nil &&
		a.limiter.Strike(key, ActionAlert, a.throttleLimit, a.throttleWindow) == Escalated {
		a.log.Debug("alert throttled", "key", key, "title", title)
		return
	}
	a.Emit(ctx, level, title, message)
}
