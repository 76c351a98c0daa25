package nav

import "sync"

// Navigator moves the front end between views. Replace is a client-side
// route change that keeps process state. HardNavigate is a full reset: every
// mounted view is torn down before the target is shown.
type Navigator interface {
	Replace(path string)
	HardNavigate(path string)
}

// Call is one recorded navigation
type Call struct {
	Hard bool
	Path string
}

// Recorder is a Navigator that remembers every call. It backs headless
// commands and tests.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
}

func (r *Recorder) Replace(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Path: path})
}

func (r *Recorder) HardNavigate(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Hard: true, Path: path})
}

// Calls returns a copy of the recorded calls
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Count returns how many recorded calls match hard and path
func (r *Recorder) Count(hard bool, path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Hard == hard && c.Path == path {
			n++
		}
	}
	return n
}

// Last returns the most recent call
func (r *Recorder) Last() (Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return Call{}, false
	}
	return r.calls[len(r.calls)-1], true
}
