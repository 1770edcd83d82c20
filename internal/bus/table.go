package bus

import (
	"encoding/json"
	"sync"
)

// subscriberTable holds the local channel → owner → handler mapping and
// performs the per-message delivery filtering: exact channel equality and
// differing sender id. It carries no Redis state so the filter semantics
// are testable in isolation.
type subscriberTable struct {
	mu       sync.RWMutex
	channels map[string]map[string]DeliverFunc
}

func newSubscriberTable() subscriberTable {
	return subscriberTable{channels: make(map[string]map[string]DeliverFunc)}
}

// add registers deliver under (channel, owner). first reports whether this
// is the channel's first local subscriber; added is false when the pair
// was already held.
func (t *subscriberTable) add(channel, owner string, deliver DeliverFunc) (first, added bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	owners, ok := t.channels[channel]
	if !ok {
		owners = make(map[string]DeliverFunc)
		t.channels[channel] = owners
	}
	if _, held := owners[owner]; held {
		return false, false
	}
	owners[owner] = deliver
	return len(owners) == 1, true
}

// remove drops the (channel, owner) registration. last reports whether the
// channel has no local subscribers left; removed is false when the pair
// was not held.
func (t *subscriberTable) remove(channel, owner string) (last, removed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	owners, ok := t.channels[channel]
	if !ok {
		return false, false
	}
	if _, held := owners[owner]; !held {
		return false, false
	}
	delete(owners, owner)
	if len(owners) == 0 {
		delete(t.channels, channel)
		return true, true
	}
	return false, true
}

// dispatch delivers payload to every subscriber of exactly this channel
// whose owner id differs from the payload's embedded sender id. Messages
// without a sender id pass the self-filter (the private floor snapshot
// relies on this). Returns the number of deliveries made.
func (t *subscriberTable) dispatch(channel string, payload []byte) int {
	var sender struct {
		ID string `json:"id"`
	}
	// A payload that is not JSON, or has no id, simply has no sender.
	_ = json.Unmarshal(payload, &sender)

	t.mu.RLock()
	targets := make([]DeliverFunc, 0, len(t.channels[channel]))
	for owner, deliver := range t.channels[channel] {
		if sender.ID != "" && sender.ID == owner {
			continue
		}
		targets = append(targets, deliver)
	}
	t.mu.RUnlock()

	for _, deliver := range targets {
		deliver(channel, payload)
	}
	return len(targets)
}

// held reports whether (channel, owner) is currently subscribed.
func (t *subscriberTable) held(channel, owner string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.channels[channel][owner]
	return ok
}
