package events

import (
	"log/slog"
	"sync"

	"github.com/stello/stello-api/internal/domain"
	"github.com/stello/stello-api/internal/infrastructure/smtp"
)

// Dispatcher decouples "OTP issued" from "email sent". Services call Dispatch
// strictly after their transaction commits; a consumer goroutine turns the
// payload into an outbound email. Send failures are logged and swallowed —
// the committed state must never be undone by a notifier problem.
type Dispatcher struct {
	mailer smtp.Mailer
	ch     chan domain.Notification
	wg     sync.WaitGroup
	once   sync.Once
}

func NewDispatcher(mailer smtp.Mailer) *Dispatcher {
	return &Dispatcher{
		mailer: mailer,
		ch:     make(chan domain.Notification, 64),
	}
}

// Start launches the consumer goroutine.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for n := range d.ch {
			d.deliver(n)
		}
	}()
}

// Dispatch queues a notification without blocking the request path. If the
// buffer is full the notification is dropped with a log line; the caller has
// already committed and must not be failed.
func (d *Dispatcher) Dispatch(n domain.Notification) {
	select {
	case d.ch <- n:
	default:
		slog.Warn("notification queue full, dropping", "email", n.Email, "purpose", n.Purpose)
	}
}

// Close stops accepting notifications and waits for in-flight sends.
func (d *Dispatcher) Close() {
	d.once.Do(func() { close(d.ch) })
	d.wg.Wait()
}

func (d *Dispatcher) deliver(n domain.Notification) {
	var subject, body string
	switch n.Purpose {
	case domain.PurposePasswordReset:
		subject = "Password reset code"
		body = "Your password reset code is: " + n.Code + "\r\nThis code expires in 15 minutes."
	default:
		subject = "Email verification code"
		body = "Your verification code is: " + n.Code + "\r\nThis code expires in 15 minutes."
	}
	if err := d.mailer.SendEmail(n.Email, subject, body); err != nil {
		slog.Error("failed to send OTP email", "email", n.Email, "purpose", n.Purpose, "err", err)
		return
	}
	slog.Info("OTP email sent", "email", n.Email, "purpose", n.Purpose)
}
