package workflow

import (
	"context"
	"fmt"
	"time"

	"sitemigrate/internal/notifications"
)

// NotifyAction sends a templated message to the record's recipients.
type NotifyAction struct {
	Sender notifications.Sender
}

// Run implements Action.
func (a NotifyAction) Run(ctx context.Context, ac *ActionContext) error {
	template := ac.Param("template")
	if template == "" {
		return fmt.Errorf("notify: template parameter is required")
	}
	if a.Sender == nil {
		ac.Notef("%s skipped: no sender", template)
		return nil
	}
	values := make(map[string]any, len(ac.Fields))
	for k, v := range ac.Fields {
		values[k] = v
	}
	msg := notifications.Message{
		Template:   template,
		Recipients: ac.Record.Notification,
		StartedBy:  ac.Record.StartedBy,
		Values:     values,
	}
	if err := a.Sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify %s: %w", template, err)
	}
	ac.Notef("sent %s", template)
	return nil
}

// DelayAction waits for the "seconds" parameter.
type DelayAction struct {
	Sleep func(ctx context.Context, d time.Duration) error
}

// Run implements Action.
func (a DelayAction) Run(ctx context.Context, ac *ActionContext) error {
	d := time.Duration(ac.ParamInt("seconds", 0)) * time.Second
	sleep := a.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	if err := sleep(ctx, d); err != nil {
		return err
	}
	ac.Notef("waited %s", d)
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RegisterBuiltins adds notify and delay to reg.
func RegisterBuiltins(reg *Registry, sender notifications.Sender) error {
	if err := reg.Register("notify", NotifyAction{Sender: sender}); err != nil {
		return err
	}
	return reg.Register("delay", DelayAction{})
}
