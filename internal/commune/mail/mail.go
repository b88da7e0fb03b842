// Package mail sends the transactional emails the community triggers:
// signup notifications to ambassadors and email verification messages.
// Delivery is best effort, a mail failure never blocks the action that
// triggered it.
package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"sync"
)

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

// SMTPSender delivers through a plain SMTP relay.
type SMTPSender struct {
	Addr string // host:port
	From string
	Auth smtp.Auth
}

func (s *SMTPSender) Send(_ context.Context, to []string, subject, body string) error {
	if len(to) == 0 {
		return nil
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body)

	return smtp.SendMail(s.Addr, s.Auth, s.From, to, []byte(msg.String()))
}

// LogSender drops messages into the log instead of delivering them.
// Used in development and tests. Notifications are sent from their own
// goroutines, so appends are guarded.
type LogSender struct {
	mu   sync.Mutex
	Sent []Message
}

type Message struct {
	To      []string
	Subject string
	Body    string
}

func (s *LogSender) Send(_ context.Context, to []string, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sent = append(s.Sent, Message{To: to, Subject: subject, Body: body})
	return nil
}

// Render substitutes {{VAR}} placeholders in a template string.
func Render(template string, vars map[string]string) string {
	if len(vars) == 0 {
		return template
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
