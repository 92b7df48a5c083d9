package ycrdt

import (
	"github.com/rs/xid"
)

// Subscription is the opaque token every Observe/ObserveDeep/OnUpdate-style
// registration returns. Unsubscribe is idempotent, matching how Node-tion's
// own xid-backed handles behave.
type Subscription struct {
	id     xid.ID
	cancel func(xid.ID)
	done   bool
}

// Unsubscribe detaches the callback this subscription was returned for.
// Calling it more than once, or on a nil Subscription, is a no-op.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.done {
		return
	}
	s.done = true
	s.cancel(s.id)
}

func newSubscription(cancel func(xid.ID)) (xid.ID, *Subscription) {
	id := xid.New()
	return id, &Subscription{id: id, cancel: cancel}
}

// observerEntry keeps registration order even across unsubscribes: removal
// tombstones the slot (fn set to nil) instead of compacting the slice, so a
// callback registered after another one never fires before it because of a
// slice shift.
type observerEntry struct {
	id xid.ID
	fn func(Event)
}

type deepObserverEntry struct {
	id xid.ID
	fn func([]Event)
}
