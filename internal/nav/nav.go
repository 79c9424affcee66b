// Package nav holds the addressable navigation state of the board: a query
// string such as repo=octo/cat&q=login&page=2 that can be shared, persisted
// and changed from outside the program.
package nav

import (
	"net/url"
	"sync"
)

// Location is the navigation state.
type Location interface {
	// Query returns a copy of the current parameters.
	Query() url.Values
	// Replace is a write by the program itself. Listeners are not called.
	Replace(values url.Values)
	// Navigate is a change from outside (back/forward, a pasted link, another
	// process). Listeners are called when the state actually changed.
	Navigate(values url.Values)
	// Subscribe registers fn for external changes.
	Subscribe(fn func(url.Values)) (cancel func())
	// Encode returns the canonical query string.
	Encode() string
}

// Memory is an in-process Location.
type Memory struct {
	mu        sync.Mutex
	values    url.Values
	listeners map[int]func(url.Values)
	nextID    int
}

// NewMemory returns a Location starting at values.
func NewMemory(values url.Values) *Memory {
	return &Memory{values: clone(values), listeners: make(map[int]func(url.Values))}
}

// Parse returns a Location from a query string (a leading '?' is allowed).
func Parse(raw string) (*Memory, error) {
	v, err := ParseQuery(raw)
	if err != nil {
		return nil, err
	}
	return NewMemory(v), nil
}

// ParseQuery parses a query string, tolerating a leading '?'.
func ParseQuery(raw string) (url.Values, error) {
	if len(raw) > 0 && raw[0] == '?' {
		raw = raw[1:]
	}
	return url.ParseQuery(raw)
}

func (m *Memory) Query() url.Values {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.values)
}

func (m *Memory) Encode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values.Encode()
}

func (m *Memory) Replace(values url.Values) {
	m.mu.Lock()
	m.values = clone(values)
	m.mu.Unlock()
}

func (m *Memory) Navigate(values url.Values) {
	m.mu.Lock()
	if m.values.Encode() == values.Encode() {
		m.mu.Unlock()
		return
	}
	m.values = clone(values)
	fns := make([]func(url.Values), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(clone(values))
	}
}

func (m *Memory) Subscribe(fn func(url.Values)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

func clone(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
