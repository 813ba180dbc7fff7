package domain

import "context"

// NotificationKind identifies the lifecycle transition that triggered a
// notification.
type NotificationKind string

const (
	// NotificationSchedulingStarted fires when the roster reaches
	// min_players and the session moves to scheduling.
	NotificationSchedulingStarted NotificationKind = "scheduling_started"
	// NotificationRecruitingReopened fires when the roster drops below
	// min_players and the session reverts to recruiting.
	NotificationRecruitingReopened NotificationKind = "recruiting_reopened"
	// NotificationDateConfirmed fires when the GM fixes the final date.
	NotificationDateConfirmed NotificationKind = "date_confirmed"
)

// Notification is an event emitted by the scheduler at a lifecycle
// transition. The core only constructs and emits these; delivery, retries
// and channel selection belong entirely to the Notifier implementation.
type Notification struct {
	Kind       NotificationKind
	SessionID  string
	Recipients []string
	Message    string
}

// Notifier delivers lifecycle notifications. Implementations must not block
// session operations on delivery; the scheduler treats Notify as fire and
// forget and only logs failures.
type Notifier interface {
	Notify(ctx context.Context, n *Notification) error
}

// Mailer defines the contract for sending emails (infrastructure port).
type Mailer interface {
	Send(to, subject, html, text string) error
}

// NotificationTemplateRenderer renders notification email content from a
// named template with the given data.
type NotificationTemplateRenderer interface {
	Render(templateName string, data any) (subject, htmlBody, textBody string, err error)
}
