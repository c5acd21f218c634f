package mocks

import (
	"context"
	"sync"

	"marketplace-chat/internal/fabric"
	"marketplace-chat/internal/models"
)

// Published is one event recorded by RecordingFabric.
type Published struct {
	Group string
	Event models.Event
}

// RecordingFabric records every publish and forwards to an optional inner fabric.
type RecordingFabric struct {
	Inner fabric.Fabric

	mu        sync.Mutex
	published []Published
}

func (f *RecordingFabric) Join(ctx context.Context, group string, sub fabric.Subscriber) error {
	if f.Inner == nil {
		return nil
	}
	return f.Inner.Join(ctx, group, sub)
}

func (f *RecordingFabric) Leave(ctx context.Context, group string, sub fabric.Subscriber) error {
	if f.Inner == nil {
		return nil
	}
	return f.Inner.Leave(ctx, group, sub)
}

func (f *RecordingFabric) Publish(ctx context.Context, group string, event models.Event) error {
	f.mu.Lock()
	f.published = append(f.published, Published{Group: group, Event: event})
	f.mu.Unlock()
	if f.Inner == nil {
		return nil
	}
	return f.Inner.Publish(ctx, group, event)
}

func (f *RecordingFabric) Close() error {
	if f.Inner == nil {
		return nil
	}
	return f.Inner.Close()
}

// Published returns a copy of everything published so far.
func (f *RecordingFabric) Published() []Published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Published(nil), f.published...)
}

// PublishedTo filters recorded events by group.
func (f *RecordingFabric) PublishedTo(group string) []models.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Event
	for _, p := range f.published {
		if p.Group == group {
			out = append(out, p.Event)
		}
	}
	return out
}
