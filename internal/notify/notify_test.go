package notify

import (
	"bytes"
	"errors"
	"log"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	slackapi "github.com/slack-go/slack"
)

type mockSlackClient struct {
	mu       sync.Mutex
	channels []string
	calls    int
	errs     []error // returned in order, then nil
}

func (m *mockSlackClient) PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return "", "", err
		}
	}
	m.channels = append(m.channels, channelID)
	return channelID, "1234567890.123456", nil
}

func TestNewSlackRequiresToken(t *testing.T) {
	if _, err := NewSlack("", "C1"); err == nil {
		t.Error("expected error without token")
	}
	if _, err := NewSlack("xoxb-1", ""); err == nil {
		t.Error("expected error without channel")
	}
}

func TestSlackPostsQueuedMessages(t *testing.T) {
	client := &mockSlackClient{}
	s := newSlack(client, "C123")

	s.Notify("Left Door", "latch disconnected")
	s.Notify("Right Door", "opener power removed")
	s.Close()

	if len(client.channels) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(client.channels))
	}
	for _, ch := range client.channels {
		if ch != "C123" {
			t.Errorf("posted to %q, want C123", ch)
		}
	}
}

func TestSlackCloseIsIdempotent(t *testing.T) {
	s := newSlack(&mockSlackClient{}, "C1")
	s.Close()
	s.Close()
}

func TestSlackPostErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	client := &mockSlackClient{errs: []error{errors.New("channel_not_found")}}
	s := newSlack(client, "C1")
	s.Notify("Garage", "check the door")
	s.Close()

	if !strings.Contains(buf.String(), "channel_not_found") {
		t.Errorf("expected post error in log, got %q", buf.String())
	}
	if client.calls != 1 {
		t.Errorf("non rate-limit errors should not be retried, got %d calls", client.calls)
	}
}

func TestRetryOnRateLimit(t *testing.T) {
	client := &mockSlackClient{errs: []error{&slackapi.RateLimitedError{RetryAfter: time.Millisecond}}}
	s := newSlack(client, "C1")
	s.Notify("Garage", "retry me")
	s.Close()

	if client.calls != 2 {
		t.Errorf("expected one retry, got %d calls", client.calls)
	}
	if len(client.channels) != 1 {
		t.Errorf("expected message posted after retry, got %d", len(client.channels))
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	Log{Logger: log.New(&buf, "", 0)}.Notify("Left Door", "lock disengaged automatically")

	want := "notify: Left Door: lock disengaged automatically\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}
