package streams

import (
	"context"
	"fmt"
)

// Route is the dispatch key of a processor. An empty Subtype matches every
// subtype of the entity type.
type Route struct {
	EntityType string
	EventName  EventName
	Subtype    string
}

func (r Route) String() string {
	if r.Subtype == "" {
		return fmt.Sprintf("%s/%s/*", r.EntityType, r.EventName)
	}
	return fmt.Sprintf("%s/%s/%s", r.EntityType, r.EventName, r.Subtype)
}

// Processor reacts to one class of change record.
type Processor interface {
	Name() string
	Route() Route

	// Supports must be pure: it may only look at the record.
	Supports(record ChangeRecord) bool

	Process(ctx context.Context, record ChangeRecord) error
}

// Selector implements Route and Supports for processors bound to one table.
type Selector struct {
	tableName string
	route     Route
}

// NewSelector creates a Selector for records of tableName matching route.
func NewSelector(tableName string, route Route) Selector {
	return Selector{tableName: tableName, route: route}
}

// Route returns the dispatch key
func (s Selector) Route() Route { return s.route }

// Supports reports whether the record comes from the selector's table and
// matches its entity type, event name and subtype.
func (s Selector) Supports(record ChangeRecord) bool {
	if record.TableName != s.tableName {
		return false
	}
	if record.EntityType() != s.route.EntityType || record.EventName != s.route.EventName {
		return false
	}
	return s.route.Subtype == "" || record.Subtype() == s.route.Subtype
}

// Registry is the dispatch table. Processors are bucketed by route; a record
// is offered to its exact (entity type, event, subtype) bucket first and then
// to the any-subtype bucket, each in registration order.
type Registry struct {
	routes map[Route][]Processor
	names  map[string]struct{}
	all    []Processor
}

// NewRegistry creates a Registry holding processors.
func NewRegistry(processors ...Processor) (*Registry, error) {
	r := &Registry{
		routes: make(map[Route][]Processor),
		names:  make(map[string]struct{}),
	}
	for _, p := range processors {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a processor. Names must be unique.
func (r *Registry) Register(p Processor) error {
	if _, dup := r.names[p.Name()]; dup {
		return fmt.Errorf("processor %q registered twice", p.Name())
	}
	route := p.Route()
	if route.EntityType == "" || route.EventName == "" {
		return fmt.Errorf("processor %q has an incomplete route %s", p.Name(), route)
	}

	r.names[p.Name()] = struct{}{}
	r.routes[route] = append(r.routes[route], p)
	r.all = append(r.all, p)
	return nil
}

// Match returns every processor that accepts record.
func (r *Registry) Match(record ChangeRecord) []Processor {
	key := Route{EntityType: record.EntityType(), EventName: record.EventName, Subtype: record.Subtype()}

	var candidates []Processor
	candidates = append(candidates, r.routes[key]...)
	if key.Subtype != "" {
		key.Subtype = ""
		candidates = append(candidates, r.routes[key]...)
	}

	matched := candidates[:0:0]
	for _, p := range candidates {
		if p.Supports(record) {
			matched = append(matched, p)
		}
	}
	return matched
}

// Processors returns every registered processor in registration order.
func (r *Registry) Processors() []Processor {
	out := make([]Processor, len(r.all))
	copy(out, r.all)
	return out
}
