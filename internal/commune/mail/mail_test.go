package mail

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/communehq/commune/internal/commune/domain"
)

func TestRender(t *testing.T) {
	t.Parallel()

	body := Render("Hi {{NAME}}, welcome to {{CITY}}!", map[string]string{
		"NAME": "Alice",
		"CITY": "Utrecht",
	})
	require.Equal(t, "Hi Alice, welcome to Utrecht!", body)

	// Unknown placeholders stay untouched.
	require.Equal(t, "Hi {{NAME}}", Render("Hi {{NAME}}", nil))
}

func TestLogSender(t *testing.T) {
	t.Parallel()

	s := &LogSender{}
	require.NoError(t, s.Send(context.Background(), []string{"a@x.com"}, "subject", "body"))
	require.Len(t, s.Sent, 1)
	require.Equal(t, "subject", s.Sent[0].Subject)

	// Notifications fan out from their own goroutines, none may be lost.
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Send(context.Background(), []string{"b@x.com"}, "s", "b")
		}()
	}
	wg.Wait()
	require.Len(t, s.Sent, 17)
}

func TestNotifyNewUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	user := domain.User{
		ID:      "u1",
		City:    "utrecht",
		Profile: domain.Profile{Name: "Alice", Email: "a@x.com"},
	}
	recipients := []domain.User{
		{Profile: domain.Profile{Email: "admin@x.com"}},
		{Profile: domain.Profile{}}, // no address, skipped
	}

	t.Run("falls back to the built-in message", func(t *testing.T) {
		sender := &LogSender{}
		n := &Notifier{Sender: sender, Logger: slog.Default(), BaseURL: "https://example.io"}

		n.NotifyNewUser(ctx, recipients, user, nil)

		require.Len(t, sender.Sent, 1)
		require.Equal(t, []string{"admin@x.com"}, sender.Sent[0].To)
		require.Contains(t, sender.Sent[0].Body, "Alice")
		require.Contains(t, sender.Sent[0].Body, "Utrecht")
	})

	t.Run("prefers a configured newUser template", func(t *testing.T) {
		sender := &LogSender{}
		n := &Notifier{Sender: sender, Logger: slog.Default(), BaseURL: "https://example.io"}

		n.NotifyNewUser(ctx, recipients, user, []domain.EmailTemplate{
			{Identifier: "other", Subject: "x", Body: "y", Groups: []string{"growthGithub"}},
			{Identifier: "signup", Subject: "{{NAME}} joined", Body: "See {{PROFILE_URL}}", Groups: []string{"newUser"}},
		})

		require.Len(t, sender.Sent, 1)
		require.Equal(t, "Alice joined", sender.Sent[0].Subject)
		require.Equal(t, "See https://example.io/v1/admin/users/u1", sender.Sent[0].Body)
	})

	t.Run("no recipients sends nothing", func(t *testing.T) {
		sender := &LogSender{}
		n := &Notifier{Sender: sender, Logger: slog.Default()}

		n.NotifyNewUser(ctx, nil, user, nil)
		require.Empty(t, sender.Sent)
	})
}
