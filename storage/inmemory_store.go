package storage

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const UpdateBufferSize = 255

type subKey struct {
	owner uint64
	sid   uint64
}

// InmemoryStore is a Store that keeps every subscription in memory.
type InmemoryStore struct {
	mu   sync.Mutex
	subs map[subKey]*Subscription

	updateChans []chan *Update

	// stop will be closed when Close() is called
	stop      chan struct{}
	closeOnce sync.Once
}

func NewInmemoryStore() *InmemoryStore {
	return &InmemoryStore{
		subs:        make(map[subKey]*Subscription),
		stop:        make(chan struct{}),
		updateChans: make([]chan *Update, 0),
	}
}

func (i *InmemoryStore) Close() error {
	i.closeOnce.Do(func() {
		close(i.stop)

		i.mu.Lock()
		defer i.mu.Unlock()

		for _, updateChan := range i.updateChans {
			close(updateChan)
		}

		i.updateChans = nil
	})

	return nil
}

func (i *InmemoryStore) Subscribe(ctx context.Context, sub Subscription) error {
	if !i.isRunning() {
		return ErrStoreClosed
	}

	if !ValidSubject(sub.Subject, true) {
		return fmt.Errorf("Failed to subscribe to '%s': %w", sub.Subject, ErrInvalidSubject)
	}

	if sub.Queue != "" && !ValidSubject(sub.Queue, false) {
		return fmt.Errorf("Failed to subscribe queue '%s': %w", sub.Queue, ErrInvalidSubject)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	key := subKey{owner: sub.Owner, sid: sub.SID}
	if _, ok := i.subs[key]; ok {
		return fmt.Errorf("Failed to subscribe sid %d: %w", sub.SID, ErrDuplicateSID)
	}

	i.subs[key] = &sub
	i.notify(UpdateSubscribed, key)

	return nil
}

// Unsubscribe drops a subscription. With max > 0 the subscription is kept
// until it has seen max deliveries in total, or dropped now if it already has.
func (i *InmemoryStore) Unsubscribe(ctx context.Context, owner, sid, max uint64) error {
	if !i.isRunning() {
		return ErrStoreClosed
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	key := subKey{owner: owner, sid: sid}

	sub, ok := i.subs[key]
	if !ok {
		return fmt.Errorf("Failed to unsubscribe sid %d: %w", sid, ErrUnknownSID)
	}

	if max > 0 && sub.Delivered < max {
		sub.Max = max
		return nil
	}

	i.remove(key)

	return nil
}

// RemoveOwner drops every subscription of owner and returns how many there were.
func (i *InmemoryStore) RemoveOwner(owner uint64) int {
	i.mu.Lock()
	defer i.mu.Unlock()

	removed := 0
	for key := range i.subs {
		if key.owner == owner {
			i.remove(key)
			removed++
		}
	}

	return removed
}

// Match returns copies of the subscriptions a message on subject would be
// delivered to. Of each queue group only one member, picked at random, is
// returned. Nothing is counted as delivered.
func (i *InmemoryStore) Match(subject string) []Subscription {
	i.mu.Lock()
	defer i.mu.Unlock()

	return copySubscriptions(i.match(subject))
}

// Deliver is Match that also counts one delivery against every returned
// subscription. A subscription reaching its max is removed in the same step,
// so concurrent publishers can never deliver past max.
func (i *InmemoryStore) Deliver(subject string) []Subscription {
	i.mu.Lock()
	defer i.mu.Unlock()

	matched := i.match(subject)

	for _, sub := range matched {
		sub.Delivered++

		if sub.Max > 0 && sub.Delivered >= sub.Max {
			i.remove(subKey{owner: sub.Owner, sid: sub.SID})
		}
	}

	return copySubscriptions(matched)
}

// match must be called with mu held.
func (i *InmemoryStore) match(subject string) []*Subscription {
	var (
		matched []*Subscription
		queues  map[string][]*Subscription
	)

	for _, sub := range i.subs {
		if !MatchSubject(sub.Subject, subject) {
			continue
		}

		if sub.Queue == "" {
			matched = append(matched, sub)
			continue
		}

		if queues == nil {
			queues = make(map[string][]*Subscription)
		}

		queues[sub.Queue] = append(queues[sub.Queue], sub)
	}

	for _, members := range queues {
		matched = append(matched, members[rand.Intn(len(members))])
	}

	return matched
}

func copySubscriptions(subs []*Subscription) []Subscription {
	out := make([]Subscription, 0, len(subs))
	for _, sub := range subs {
		out = append(out, *sub)
	}

	return out
}

func (i *InmemoryStore) Count() int {
	i.mu.Lock()
	defer i.mu.Unlock()

	return len(i.subs)
}

func (i *InmemoryStore) ListenToUpdates() <-chan *Update {
	i.mu.Lock()
	defer i.mu.Unlock()

	updateChan := make(chan *Update, UpdateBufferSize)
	if !i.isRunning() {
		close(updateChan)
		return updateChan
	}

	i.updateChans = append(i.updateChans, updateChan)

	return updateChan
}

// Backup renders every subscription as a JSON document:
//
//   {"subscriptions":[{"owner":1,"sid":1,"subject":"foo","queue":"","max":0,"delivered":0}]}
func (i *InmemoryStore) Backup() ([]byte, error) {
	i.mu.Lock()
	subs := make([]Subscription, 0, len(i.subs))
	for _, sub := range i.subs {
		subs = append(subs, *sub)
	}
	i.mu.Unlock()

	sort.Slice(subs, func(a, b int) bool {
		if subs[a].Owner != subs[b].Owner {
			return subs[a].Owner < subs[b].Owner
		}

		return subs[a].SID < subs[b].SID
	})

	values, err := sjson.SetRawBytes([]byte("{}"), "subscriptions", []byte("[]"))
	if err != nil {
		return nil, err
	}

	for idx, sub := range subs {
		prefix := fmt.Sprintf("subscriptions.%d.", idx)

		fields := []struct {
			key   string
			value interface{}
		}{
			{"owner", sub.Owner},
			{"sid", sub.SID},
			{"subject", sub.Subject},
			{"queue", sub.Queue},
			{"max", sub.Max},
			{"delivered", sub.Delivered},
		}

		for _, field := range fields {
			values, err = sjson.SetBytes(values, prefix+field.key, field.value)
			if err != nil {
				return nil, fmt.Errorf("Failed to back up sid %d: %w", sub.SID, err)
			}
		}
	}

	return values, nil
}

// Restore replaces the content of the store with a document produced by Backup.
func (i *InmemoryStore) Restore(values []byte) error {
	if !gjson.ValidBytes(values) {
		return ErrInvalidSnapshot
	}

	list := gjson.GetBytes(values, "subscriptions")
	if list.Exists() && !list.IsArray() {
		return ErrInvalidSnapshot
	}

	subs := make(map[subKey]*Subscription)

	var err error
	list.ForEach(func(_, value gjson.Result) bool {
		sub := &Subscription{
			Owner:     value.Get("owner").Uint(),
			SID:       value.Get("sid").Uint(),
			Subject:   value.Get("subject").String(),
			Queue:     value.Get("queue").String(),
			Max:       value.Get("max").Uint(),
			Delivered: value.Get("delivered").Uint(),
		}

		if !ValidSubject(sub.Subject, true) {
			err = fmt.Errorf("Failed to restore '%s': %w", sub.Subject, ErrInvalidSubject)
			return false
		}

		subs[subKey{owner: sub.Owner, sid: sub.SID}] = sub
		return true
	})

	if err != nil {
		return err
	}

	i.mu.Lock()
	i.subs = subs
	i.mu.Unlock()

	return nil
}

// remove must be called with mu held.
func (i *InmemoryStore) remove(key subKey) {
	delete(i.subs, key)
	i.notify(UpdateUnsubscribed, key)
}

// notify must be called with mu held. Listeners that fall behind miss updates.
func (i *InmemoryStore) notify(kind UpdateKind, key subKey) {
	for _, updateChan := range i.updateChans {
		select {
		case updateChan <- &Update{Kind: kind, Owner: key.owner, SID: key.sid, Count: len(i.subs)}:
		default:
		}
	}
}

// isRunning returns true if Close has not been called
func (i *InmemoryStore) isRunning() bool {
	select {
	case <-i.stop:
		return false

	default:
		return true
	}
}

var _ Store = (*InmemoryStore)(nil)
