// Package pubsub implements a Google Cloud Pub/Sub publisher.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
)

// Publisher routes pipeline topics to Pub/Sub topics on one client.
type Publisher struct {
	client   *pubsub.Client
	topicIDs map[string]string

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// New creates a Publisher. topicIDs maps pipeline topic names such as
// "channel.scored" to Pub/Sub topic IDs.
func New(client *pubsub.Client, topicIDs map[string]string) *Publisher {
	ids := make(map[string]string, len(topicIDs))
	for k, v := range topicIDs {
		ids[k] = v
	}
	return &Publisher{client: client, topicIDs: ids, topics: make(map[string]*pubsub.Topic)}
}

// Publish marshals the payload to JSON and publishes it to the mapped topic.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	id, ok := p.topicIDs[topic]
	if !ok || id == "" {
		return "", fmt.Errorf("no pubsub topic configured for %q", topic)
	}
	if p.client == nil {
		return "", fmt.Errorf("pubsub client is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	msg := &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"event": topic},
	}
	result := p.topic(id).Publish(ctx, msg)
	serverID, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return serverID, nil
}

func (p *Publisher) topic(id string) *pubsub.Topic {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.topics[id]
	if !ok {
		t = p.client.Topic(id)
		p.topics[id] = t
	}
	return t
}

// Close flushes pending messages and closes the client.
func (p *Publisher) Close() error {
	p.mu.Lock()
	for _, t := range p.topics {
		t.Stop()
	}
	p.topics = make(map[string]*pubsub.Topic)
	p.mu.Unlock()
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}
