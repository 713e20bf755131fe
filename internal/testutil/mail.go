package testutil

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"studyhub/profiles/internal/mail"
)

// Outbox records sent mail instead of delivering it.
type Outbox struct {
	mu       sync.Mutex
	messages []mail.Message
	Err      error
}

func (o *Outbox) Send(_ context.Context, msg mail.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return o.Err
	}
	o.messages = append(o.messages, msg)
	return nil
}

func (o *Outbox) Messages() []mail.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]mail.Message(nil), o.messages...)
}

// LastToken pulls the token query parameter out of the newest message sent
// to recipient.
func (o *Outbox) LastToken(recipient string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.messages) - 1; i >= 0; i-- {
		msg := o.messages[i]
		if msg.To != recipient {
			continue
		}
		for _, field := range strings.Fields(msg.Body) {
			if !strings.HasPrefix(field, "http") {
				continue
			}
			link, err := url.Parse(field)
			if err != nil {
				continue
			}
			if token := link.Query().Get("token"); token != "" {
				return token
			}
		}
	}
	return ""
}
