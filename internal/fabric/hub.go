package fabric

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"marketplace-chat/internal/models"
	"marketplace-chat/internal/observability"
)

// DefaultMailboxSize bounds the events queued for one subscriber.
const DefaultMailboxSize = 256

var ErrClosed = errors.New("fabric closed")

type delivery struct {
	group string
	event models.Event
}

// mailbox serializes deliveries to one subscriber across all of its groups.
// The events channel is never closed; quit stops the worker instead, so a
// publisher holding a stale snapshot can still send without panicking.
type mailbox struct {
	sub    Subscriber
	events chan delivery
	quit   chan struct{}
	groups int
}

// Hub is the in-process Fabric.
type Hub struct {
	mu        sync.RWMutex
	groups    map[string]map[string]*mailbox
	mailboxes map[string]*mailbox
	size      int
	closed    bool
	logger    zerolog.Logger
}

// NewHub creates an empty hub. A non-positive size selects DefaultMailboxSize.
func NewHub(logger zerolog.Logger, size int) *Hub {
	if size <= 0 {
		size = DefaultMailboxSize
	}
	return &Hub{
		groups:    make(map[string]map[string]*mailbox),
		mailboxes: make(map[string]*mailbox),
		size:      size,
		logger:    logger,
	}
}

// Join adds sub to group. Joining twice is a no-op.
func (h *Hub) Join(_ context.Context, group string, sub Subscriber) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}

	members, ok := h.groups[group]
	if !ok {
		members = make(map[string]*mailbox)
		h.groups[group] = members
	}
	if _, ok := members[sub.ID()]; ok {
		return nil
	}

	mb, ok := h.mailboxes[sub.ID()]
	if !ok {
		mb = &mailbox{
			sub:    sub,
			events: make(chan delivery, h.size),
			quit:   make(chan struct{}),
		}
		h.mailboxes[sub.ID()] = mb
		go h.run(mb)
	}
	mb.groups++
	members[sub.ID()] = mb
	return nil
}

// Leave removes sub from group. Leaving a group never joined is a no-op.
func (h *Hub) Leave(_ context.Context, group string, sub Subscriber) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.groups[group]
	if !ok {
		return nil
	}
	mb, ok := members[sub.ID()]
	if !ok {
		return nil
	}
	delete(members, sub.ID())
	if len(members) == 0 {
		delete(h.groups, group)
	}

	mb.groups--
	if mb.groups == 0 {
		close(mb.quit)
		delete(h.mailboxes, sub.ID())
	}
	return nil
}

// Publish queues event for every current member of group. A member whose
// mailbox is full loses this event; other members are unaffected.
func (h *Hub) Publish(_ context.Context, group string, event models.Event) error {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrClosed
	}
	members := make([]*mailbox, 0, len(h.groups[group]))
	for _, mb := range h.groups[group] {
		members = append(members, mb)
	}
	h.mu.RUnlock()

	namespace := Namespace(group)
	observability.IncFabricPublished(namespace)

	d := delivery{group: group, event: event}
	for _, mb := range members {
		select {
		case mb.events <- d:
		default:
			observability.IncFabricDropped(namespace)
			h.logger.Warn().Str("group", group).Str("subscriber", mb.sub.ID()).Str("event", event.Type).Msg("subscriber mailbox full, event dropped")
		}
	}
	return nil
}

// Members reports the number of subscribers in group.
func (h *Hub) Members(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}

// Close stops every mailbox. Further joins and publishes fail with ErrClosed.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for id, mb := range h.mailboxes {
		close(mb.quit)
		delete(h.mailboxes, id)
	}
	h.groups = make(map[string]map[string]*mailbox)
	return nil
}

func (h *Hub) run(mb *mailbox) {
	for {
		select {
		case <-mb.quit:
			return
		case d := <-mb.events:
			namespace := Namespace(d.group)
			if err := mb.sub.Deliver(d.event); err != nil {
				observability.IncFabricDropped(namespace)
				h.logger.Debug().Err(err).Str("group", d.group).Str("subscriber", mb.sub.ID()).Msg("delivery failed")
				continue
			}
			observability.IncFabricDelivered(namespace)
		}
	}
}
