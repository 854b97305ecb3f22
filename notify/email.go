package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/resend/resend-go/v3"
)

// EmailNotifier sends notifications through the Resend API.
type EmailNotifier struct {
	client   *resend.Client
	from     string
	fromName string
}

func NewEmailNotifier(apiKey, fromEmail, fromName string) (*EmailNotifier, error) {
	if apiKey == "" {
		return nil, errors.New("resend: api key is required")
	}
	if fromEmail == "" {
		return nil, errors.New("resend: from address is required")
	}
	return &EmailNotifier{
		client:   resend.NewClient(apiKey),
		from:     fromEmail,
		fromName: fromName,
	}, nil
}

func (n *EmailNotifier) Send(ctx context.Context, msg Message) error {
	from := n.from
	if n.fromName != "" {
		from = fmt.Sprintf("%s <%s>", n.fromName, n.from)
	}
	params := &resend.SendEmailRequest{
		From:    from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    BodyHTML(msg.Body),
		Text:    BodyText(msg.Body),
	}

	if _, err := n.client.Emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("resend: send to %s: %w", msg.To, err)
	}
	return nil
}

var boldPattern = regexp.MustCompile(`\*\*(.+?)\*\*`)

// BodyHTML renders a template body as HTML: text is escaped, **x** becomes
// <strong>x</strong> and newlines become <br>.
func BodyHTML(body string) string {
	escaped := html.EscapeString(body)
	escaped = boldPattern.ReplaceAllString(escaped, "<strong>$1</strong>")
	return strings.ReplaceAll(escaped, "\n", "<br>\n")
}

// BodyText strips the bold markers for the plain-text part.
func BodyText(body string) string {
	return boldPattern.ReplaceAllString(body, "$1")
}
