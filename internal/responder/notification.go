package responder

import (
	"context"
	"fmt"
	"time"

	"ecodesk/internal/guard"
	"ecodesk/internal/logging"
	"ecodesk/internal/notify"
)

const welcomeTemplate = "Welcome %s! We're excited to have you join our community. We hope you'll find everything you need here."

// Receipt reports what the notification responder did.
type Receipt struct {
	Status    string    `json:"status"`
	Recipient string    `json:"recipient"`
	Message   string    `json:"message"`
	SentAt    time.Time `json:"sent_at"`
}

// String formats the receipt as the dispatcher's final output.
func (r Receipt) String() string {
	return fmt.Sprintf("%s (sent to %s at %s)", r.Message, r.Recipient, r.SentAt.Format(time.RFC3339))
}

// NotificationResponder validates a recipient name, builds the fixed welcome
// message, and dispatches it fire-and-forget.
type NotificationResponder struct {
	denylist []string
	notifier notify.Notifier
	clock    func() time.Time
}

// NewNotification creates the notification responder. A nil denylist uses
// the default; a nil clock uses time.Now.
func NewNotification(notifier notify.Notifier, denylist []string, clock func() time.Time) *NotificationResponder {
	if clock == nil {
		clock = time.Now
	}
	return &NotificationResponder{
		denylist: denylist,
		notifier: notifier,
		clock:    clock,
	}
}

// Handle validates the name and sends the welcome message. Validation
// failure returns ErrValidationFailed with no send. Channel failure is
// logged and ignored: exactly one attempt, and the receipt still reports
// success.
func (r *NotificationResponder) Handle(ctx context.Context, name string) (Receipt, error) {
	log := logging.Get(logging.CategoryResponder)

	if err := guard.ValidateName(name, r.denylist); err != nil {
		log.Info("[notification] name rejected: %v", err)
		return Receipt{}, err
	}

	message := fmt.Sprintf(welcomeTemplate, name)

	if r.notifier != nil {
		if err := r.notifier.Send(ctx, name, message); err != nil {
			// Fire-and-forget: one attempt, no retry, delivery failure
			// never fails the interaction.
			log.Warn("[notification] send failed (ignored): %v", err)
		}
	}

	receipt := Receipt{
		Status:    "success",
		Recipient: name,
		Message:   message,
		SentAt:    r.clock().UTC(),
	}
	log.Info("[notification] welcome message processed for %s", name)
	return receipt, nil
}
