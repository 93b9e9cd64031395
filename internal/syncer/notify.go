package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

const (
	defaultPublishTimeout = 15 * time.Second
	eventSyncCompleted    = "sync.completed"
)

// Notifier is told about every finished run.
type Notifier interface {
	Notify(ctx context.Context, summary Summary) error
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// PubSubNotifier publishes a sync.completed message per run.
type PubSubNotifier struct {
	pub     publisher
	timeout time.Duration
}

// NewPubSubNotifier wraps a topic publisher. A nil publisher returns nil.
func NewPubSubNotifier(p *gcppubsub.Publisher) *PubSubNotifier {
	if p == nil {
		return nil
	}
	return &PubSubNotifier{pub: &gcpPublisher{Publisher: p}, timeout: defaultPublishTimeout}
}

func (n *PubSubNotifier) Notify(ctx context.Context, summary Summary) error {
	if n == nil || n.pub == nil {
		return nil
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode sync summary: %w", err)
	}
	msg := &gcppubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"event_type":  eventSyncCompleted,
			"run_id":      summary.RunID,
			"status":      string(summary.Status),
			"trigger":     string(summary.Trigger),
			"finished_at": summary.FinishedAt.Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	result := n.pub.Publish(publishCtx, msg)
	if result == nil {
		return errors.New("publisher returned nil result")
	}
	if _, err := result.Get(publishCtx); err != nil {
		return fmt.Errorf("publish %s: %w", eventSyncCompleted, err)
	}
	return nil
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
