package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"trpgscheduler/internal/domain"
)

type emailNotifier struct {
	store       domain.SessionStore
	profileRepo domain.ProfileRepository
	mailer      domain.Mailer
	renderer    domain.NotificationTemplateRenderer
	logger      *slog.Logger
}

// NewEmailNotifier returns a Notifier that logs every lifecycle event and
// delivers it to the session's notification address using the given Mailer
// and template renderer.
func NewEmailNotifier(
	store domain.SessionStore,
	profileRepo domain.ProfileRepository,
	mailer domain.Mailer,
	renderer domain.NotificationTemplateRenderer,
	logger *slog.Logger,
) domain.Notifier {
	return &emailNotifier{
		store:       store,
		profileRepo: profileRepo,
		mailer:      mailer,
		renderer:    renderer,
		logger:      logger,
	}
}

// notificationEmailData is the payload handed to the notification templates.
type notificationEmailData struct {
	ScenarioName string
	TRPGType     string
	Message      string
	FinalDate    string
	Recipients   []string
}

func (n *emailNotifier) Notify(ctx context.Context, event *domain.Notification) error {
	if event == nil {
		return fmt.Errorf("notification is nil")
	}
	n.logger.InfoContext(ctx, "session notification",
		"kind", string(event.Kind),
		"session_id", event.SessionID,
		"recipients", len(event.Recipients),
		"message", event.Message,
	)

	session, err := n.store.GetByID(ctx, event.SessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Session deleted between commit and delivery; nothing to send.
			return nil
		}
		return fmt.Errorf("load session for notification: %w", err)
	}
	if session.NotificationEmail == "" {
		return nil
	}

	data := &notificationEmailData{
		ScenarioName: session.ScenarioName,
		TRPGType:     session.TRPGType,
		Message:      event.Message,
		FinalDate:    session.FinalDate.Display(),
		Recipients:   n.displayNames(ctx, event.Recipients),
	}
	subject, htmlBody, textBody, err := n.renderer.Render(string(event.Kind), data)
	if err != nil {
		return fmt.Errorf("render %s template: %w", event.Kind, err)
	}
	if err := n.mailer.Send(session.NotificationEmail, subject, htmlBody, textBody); err != nil {
		return fmt.Errorf("send %s email: %w", event.Kind, err)
	}
	return nil
}

// displayNames resolves member ids to usernames, falling back to a
// shortened id for members who never set one.
func (n *emailNotifier) displayNames(ctx context.Context, memberIDs []string) []string {
	names := make([]string, 0, len(memberIDs))
	for _, id := range memberIDs {
		if n.profileRepo != nil {
			if profile, err := n.profileRepo.GetByID(ctx, id); err == nil && profile.Username != "" {
				names = append(names, profile.Username)
				continue
			}
		}
		short := id
		if len(short) > 8 {
			short = short[:8]
		}
		names = append(names, short)
	}
	return names
}
