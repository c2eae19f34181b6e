package storage

import (
	"context"
	"errors"
)

var (
	ErrInvalidSubject  = errors.New("Subject is not a valid subscription subject")
	ErrDuplicateSID    = errors.New("Subscription id is already in use by this connection")
	ErrUnknownSID      = errors.New("Subscription id does not name a subscription of this connection")
	ErrInvalidSnapshot = errors.New("Snapshot is not a valid subscription backup")
	ErrStoreClosed     = errors.New("Store has been closed")
)

// Subscription is the interest of one connection (Owner) in a subject.
type Subscription struct {
	Owner   uint64
	SID     uint64
	Subject string

	// Queue is empty for a plain subscription.
	Queue string

	// Max is the number of deliveries after which the subscription is
	// dropped, zero means unlimited.
	Max       uint64
	Delivered uint64
}

type UpdateKind uint8

const (
	UpdateSubscribed UpdateKind = iota
	UpdateUnsubscribed
)

// Update is emitted whenever a subscription is added or removed.
type Update struct {
	Kind  UpdateKind
	Owner uint64
	SID   uint64

	// Count is the number of subscriptions in the store after the change.
	Count int
}

type Store interface {
	Subscribe(ctx context.Context, sub Subscription) error
	Unsubscribe(ctx context.Context, owner, sid, max uint64) error
	RemoveOwner(owner uint64) int

	Match(subject string) []Subscription
	Deliver(subject string) []Subscription
	Count() int

	Restore(values []byte) error
	Backup() ([]byte, error)

	ListenToUpdates() <-chan *Update

	Close() error
}
