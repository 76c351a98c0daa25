package poll

type patch[T any] struct {
	stamp uint64
	fn    func(T) T
}

// Collection is a polled list of records keyed by id, with optimistic patches
// layered on top.
//
// A patch is stamped with the newest generation issued when it is made. When
// a snapshot from generation g is applied, patches stamped at or after g are
// re-applied to it: that fetch was already in flight when the mutation
// happened and may predate it. Older patches are dropped because the snapshot
// was fetched after the mutation and is authoritative. Patch functions must
// set absolute values taken from the server's mutation response so that
// applying one to a snapshot that already reflects it changes nothing.
type Collection[T any] struct {
	*Resource[[]T]
	key      func(T) int64
	patches  map[int64][]patch[T]
	removals map[int64]uint64
}

// NewCollection creates a keyed collection around fetch
func NewCollection[T any](name string, fetch Fetcher[[]T], key func(T) int64, opts ...Option) *Collection[T] {
	c := &Collection[T]{
		Resource: NewResource(name, fetch, opts...),
		key:      key,
		patches:  make(map[int64][]patch[T]),
		removals: make(map[int64]uint64),
	}
	c.Resource.merge = c.merge
	return c
}

// Patch applies fn to the record with id now and keeps it for re-application
// over snapshots that may predate it. It reports whether the record exists.
func (c *Collection[T]) Patch(id int64, fn func(T) T) bool {
	c.mu.Lock()

	found := false
	next := make([]T, len(c.state.Value))
	for i, item := range c.state.Value {
		if c.key(item) == id {
			item = fn(item)
			found = true
		}
		next[i] = item
	}
	if !found {
		c.mu.Unlock()
		return false
	}

	c.state.Value = next
	c.patches[id] = append(c.patches[id], patch[T]{stamp: c.issued, fn: fn})
	notify := c.onChange
	c.mu.Unlock()

	if notify != nil {
		notify()
	}
	return true
}

// Remove drops the record with id now and keeps it hidden from snapshots
// that may predate the removal
func (c *Collection[T]) Remove(id int64) bool {
	c.mu.Lock()

	next := make([]T, 0, len(c.state.Value))
	for _, item := range c.state.Value {
		if c.key(item) != id {
			next = append(next, item)
		}
	}
	if len(next) == len(c.state.Value) {
		c.mu.Unlock()
		return false
	}

	c.state.Value = next
	c.removals[id] = c.issued
	delete(c.patches, id)
	notify := c.onChange
	c.mu.Unlock()

	if notify != nil {
		notify()
	}
	return true
}

// Item returns the record with id from the current snapshot
func (c *Collection[T]) Item(id int64) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, item := range c.state.Value {
		if c.key(item) == id {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// Pending returns how many records carry unconfirmed patches or removals
func (c *Collection[T]) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.patches) + len(c.removals)
}

// merge runs with the resource lock held
func (c *Collection[T]) merge(gen uint64, snapshot []T) []T {
	for id, list := range c.patches {
		kept := list[:0]
		for _, p := range list {
			if p.stamp >= gen {
				kept = append(kept, p)
			}
		}
		if len(kept) == 0 {
			delete(c.patches, id)
		} else {
			c.patches[id] = kept
		}
	}
	for id, stamp := range c.removals {
		if stamp < gen {
			delete(c.removals, id)
		}
	}

	if len(c.patches) == 0 && len(c.removals) == 0 {
		return snapshot
	}

	out := make([]T, 0, len(snapshot))
	for _, item := range snapshot {
		id := c.key(item)
		if _, removed := c.removals[id]; removed {
			continue
		}
		for _, p := range c.patches[id] {
			item = p.fn(item)
		}
		out = append(out, item)
	}
	return out
}
