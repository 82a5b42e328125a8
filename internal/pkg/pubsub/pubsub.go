package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/lautwerk/speech_go_server/internal/model"
)

const ChannelJobProgress = "job_progress"

// ProgressMessage is pushed on every job status transition.
type ProgressMessage struct {
	Type     string `json:"type"`
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Error    string `json:"error,omitempty"`
}

// statusProgress maps each lifecycle state to a percentage for client
// progress bars. Terminal states are 100.
var statusProgress = map[model.Status]int{
	model.StatusUploaded:          5,
	model.StatusPending:           10,
	model.StatusTranscribing:      25,
	model.StatusTranscribed:       45,
	model.StatusPhonemeProcessing: 55,
	model.StatusPhonemeComplete:   65,
	model.StatusAnalyzing:         80,
	model.StatusComplete:          100,
	model.StatusFailed:            100,
}

// ProgressFor returns the percentage for a status, 0 if unknown.
func ProgressFor(status model.Status) int {
	return statusProgress[status]
}

// Publisher pushes progress messages over Redis.
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishProgress publishes one transition. A nil Publisher is a no-op
// so the pipeline can run without Redis.
func (p *Publisher) PublishProgress(ctx context.Context, jobID string, status model.Status, errMsg string) error {
	if p == nil || p.client == nil {
		return nil
	}

	msg := &ProgressMessage{
		Type:     "job_progress",
		JobID:    jobID,
		Status:   string(status),
		Progress: ProgressFor(status),
		Error:    errMsg,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal progress message: %w", err)
	}

	return p.client.Publish(ctx, ChannelJobProgress, data).Err()
}

// Subscriber consumes progress messages.
type Subscriber struct {
	client *redis.Client
}

func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe blocks, invoking handler for each message until ctx is done.
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*ProgressMessage)) error {
	pubsub := s.client.Subscribe(ctx, ChannelJobProgress)
	defer pubsub.Close()

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var progressMsg ProgressMessage
			if err := json.Unmarshal([]byte(msg.Payload), &progressMsg); err != nil {
				continue // skip unparsable payloads
			}

			handler(&progressMsg)
		}
	}
}
