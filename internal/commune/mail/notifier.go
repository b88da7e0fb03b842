package mail

import (
	"context"
	"log/slog"

	"github.com/communehq/commune/internal/commune/domain"
)

// Notifier composes and sends the event-driven messages.
type Notifier struct {
	Sender  Sender
	Logger  *slog.Logger
	BaseURL string
}

// NotifyNewUser tells ambassadors and admins about a fresh signup, using
// the first admin-configured template of the newUser group when one
// exists. Failures are logged and swallowed.
func (n *Notifier) NotifyNewUser(ctx context.Context, recipients []domain.User, user domain.User, templates []domain.EmailTemplate) {
	addrs := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if r.Profile.Email != "" {
			addrs = append(addrs, r.Profile.Email)
		}
	}
	if len(addrs) == 0 {
		return
	}

	cityName := user.City
	if c, ok := domain.CityByKey(user.City); ok {
		cityName = c.Name
	}
	vars := map[string]string{
		"NAME":        user.Profile.Name,
		"EMAIL":       user.Profile.Email,
		"CITY_KEY":    user.City,
		"CITY_NAME":   cityName,
		"PROFILE_URL": n.BaseURL + "/v1/admin/users/" + user.ID,
	}

	subject := "New member signup"
	body := "A new member just signed up.\n\nName: {{NAME}}\nCity: {{CITY_NAME}}\n"
	for _, t := range templates {
		if hasGroup(t, "newUser") {
			subject = t.Subject
			body = t.Body
			break
		}
	}

	if err := n.Sender.Send(ctx, addrs, Render(subject, vars), Render(body, vars)); err != nil {
		n.Logger.Warn("signup notification failed", "user_id", user.ID, "error", err)
	}
}

func hasGroup(t domain.EmailTemplate, group string) bool {
	for _, g := range t.Groups {
		if g == group {
			return true
		}
	}
	return false
}

// SendVerification mails a verification link for one of the user's
// addresses.
func (n *Notifier) SendVerification(ctx context.Context, user domain.User, address, token string) error {
	body := Render(
		"Hi {{USER_NAME}},\n\nplease confirm your email address:\n\n{{VERIFY_URL}}\n",
		map[string]string{
			"USER_NAME":  user.Profile.Name,
			"VERIFY_URL": n.BaseURL + "/v1/emails/verify?token=" + token,
		})
	return n.Sender.Send(ctx, []string{address}, "Confirm your email address", body)
}
