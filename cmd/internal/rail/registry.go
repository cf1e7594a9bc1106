package rail

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownKind is returned when no Connector is registered for a Kind.
var ErrUnknownKind = errors.New("rail: unknown provider kind")

// Registry maps provider kinds to connectors.
type Registry struct {
	mu         sync.RWMutex
	connectors map[Kind]Connector
}

// NewRegistry constructs a Registry holding the given connectors.
func NewRegistry(connectors ...Connector) *Registry {
	r := &Registry{connectors: make(map[Kind]Connector, len(connectors))}
	for _, c := range connectors {
		r.Register(c)
	}
	return r
}

// Register adds or replaces the connector for c.Kind().
func (r *Registry) Register(c Connector) {
	if c == nil {
		return
	}
	r.mu.Lock()
	r.connectors[c.Kind()] = c
	r.mu.Unlock()
}

// Connector returns the connector for kind.
func (r *Registry) Connector(kind Kind) (Connector, error) {
	r.mu.RLock()
	c, ok := r.connectors[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return c, nil
}

// Kinds lists registered kinds in sorted order.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	out := make([]Kind, 0, len(r.connectors))
	for k := range r.connectors {
		out = append(out, k)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
