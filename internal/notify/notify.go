// Package notify delivers door warnings that need someone to look at the
// door: a lock thrown while the door was moving, a disconnected latch, lost
// opener power, activity while locked.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	slackapi "github.com/slack-go/slack"
)

const (
	// queueSize bounds notifications waiting to be posted.
	queueSize = 32
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// postTimeout bounds one notification including retries.
	postTimeout = 30 * time.Second
)

// Log writes notifications to a logger.
type Log struct {
	Logger *log.Logger
}

// Notify logs the message.
func (l Log) Notify(door, message string) {
	logger := l.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("notify: %s", formatMessage(door, message))
}

// slackClient abstracts the Slack API method we use, enabling test mocks.
type slackClient interface {
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
}

type message struct {
	door, text string
}

// Slack posts notifications to a Slack channel from a background worker so
// the door loop never blocks on the network.
type Slack struct {
	client  slackClient
	channel string
	queue   chan message
	done    chan struct{}
	once    sync.Once
}

// NewSlack creates a Slack notifier and starts its worker.
func NewSlack(token, channel string) (*Slack, error) {
	if token == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if channel == "" {
		return nil, fmt.Errorf("slack: channel is required")
	}
	return newSlack(slackapi.New(token), channel), nil
}

func newSlack(client slackClient, channel string) *Slack {
	s := &Slack{
		client:  client,
		channel: channel,
		queue:   make(chan message, queueSize),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Notify queues a message. It never blocks; when the queue is full the
// message is logged and dropped.
func (s *Slack) Notify(door, text string) {
	select {
	case s.queue <- message{door: door, text: text}:
	default:
		log.Printf("slack: queue full, dropping notification: %s", formatMessage(door, text))
	}
}

// Close stops accepting messages and waits for queued ones to be posted.
func (s *Slack) Close() error {
	s.once.Do(func() { close(s.queue) })
	<-s.done
	return nil
}

func (s *Slack) run() {
	defer close(s.done)
	for m := range s.queue {
		if err := s.post(m); err != nil {
			log.Printf("slack: %v", err)
		}
	}
}

func (s *Slack) post(m message) error {
	ctx, cancel := context.WithTimeout(context.Background(), postTimeout)
	defer cancel()

	text := formatMessage(m.door, m.text)
	err := retryOnRateLimit(ctx, func() error {
		_, _, postErr := s.client.PostMessage(s.channel, slackapi.MsgOptionText(text, false))
		return postErr
	})
	if err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	return nil
}

// retryOnRateLimit calls fn and retries with backoff on Slack rate limit errors.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) || attempt == maxRetries {
			return err
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * time.Second
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil
}

func formatMessage(door, text string) string {
	return fmt.Sprintf("%s: %s", door, text)
}
