// Package notify delivers outbound push notifications. The production
// channel is Pushover; tests use LogNotifier.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"ecodesk/internal/logging"
)

// Notifier sends a message to a recipient over an external channel.
type Notifier interface {
	Send(ctx context.Context, recipient, message string) error
}

// Pushover sends notifications through the Pushover API.
type Pushover struct {
	token   string
	user    string
	apiURL  string
	client  *http.Client
	timeout time.Duration
}

// NewPushover creates a Pushover notifier. Empty credentials are allowed:
// sends become logged no-ops so the assistant keeps working without a
// configured channel.
func NewPushover(token, user string, timeout time.Duration) *Pushover {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Pushover{
		token:   token,
		user:    user,
		apiURL:  "https://api.pushover.net/1/messages.json",
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Send posts one message. Unset credentials skip the send and return nil.
func (p *Pushover) Send(ctx context.Context, recipient, message string) error {
	log := logging.Get(logging.CategoryNotify)

	if p.token == "" || p.user == "" {
		log.Info("Pushover credentials not configured, skipping send to %s", recipient)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	form := url.Values{}
	form.Set("token", p.token)
	form.Set("user", p.user)
	form.Set("title", fmt.Sprintf("Welcome message for %s", recipient))
	form.Set("message", message)

	req, err := http.NewRequestWithContext(ctx, "POST", p.apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create pushover request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("pushover request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pushover returned status %d", resp.StatusCode)
	}

	log.Info("Pushover notification sent to %s", recipient)
	return nil
}

// LogNotifier records sends in memory. Used by tests and dry runs.
type LogNotifier struct {
	mu    sync.Mutex
	sends []LoggedSend
	err   error
}

// LoggedSend is one recorded Send call.
type LoggedSend struct {
	Recipient string
	Message   string
}

// NewLogNotifier creates an in-memory notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// FailWith makes subsequent sends return err.
func (l *LogNotifier) FailWith(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

// Send records the message.
func (l *LogNotifier) Send(ctx context.Context, recipient, message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.sends = append(l.sends, LoggedSend{Recipient: recipient, Message: message})
	return nil
}

// Sends returns a copy of everything recorded so far.
func (l *LogNotifier) Sends() []LoggedSend {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LoggedSend, len(l.sends))
	copy(out, l.sends)
	return out
}
