package store

import (
	"slices"

	"github.com/mesh-intelligence/closet/pkg/types"
)

// Listener receives change events synchronously.
type Listener func(types.Event)

type subscription struct {
	id     int
	all    bool
	kind   types.Kind
	action types.Action
	fn     Listener
}

// Bus delivers change events to registered listeners in registration order.
// A panicking listener is not isolated.
type Bus struct {
	subs   []subscription
	nextID int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn for events of one kind and action. The returned
// function removes the subscription.
func (b *Bus) Subscribe(k types.Kind, a types.Action, fn Listener) func() {
	return b.add(subscription{kind: k, action: a, fn: fn})
}

// SubscribeAll registers fn for every event.
func (b *Bus) SubscribeAll(fn Listener) func() {
	return b.add(subscription{all: true, fn: fn})
}

func (b *Bus) add(sub subscription) func() {
	b.nextID++
	sub.id = b.nextID
	b.subs = append(b.subs, sub)
	id := sub.id
	return func() {
		b.subs = slices.DeleteFunc(b.subs, func(s subscription) bool { return s.id == id })
	}
}

// Emit delivers ev to every matching listener. Listeners added or removed
// during delivery take effect for the next event.
func (b *Bus) Emit(ev types.Event) {
	for _, sub := range slices.Clone(b.subs) {
		if sub.all || (sub.kind == ev.Kind && sub.action == ev.Action) {
			sub.fn(ev)
		}
	}
}

func (b *Bus) emitAll(events []types.Event) {
	for _, ev := range events {
		b.Emit(ev)
	}
}

// netEvents reduces a journal to one event per touched handle, in order of
// each handle's first write, grouping runs with the same kind and action.
// Collection state changes produce no events.
// With reverse set the journal is read backwards with old and new swapped,
// which yields the events of undoing it.
func netEvents(diffs []diff, reverse bool) []types.Event {
	type key struct {
		kind   types.Kind
		handle types.Handle
	}
	type net struct {
		key
		before, after bool
	}

	var order []key
	states := make(map[key]*net)
	visit := func(k types.Kind, h types.Handle, old, new types.Record) {
		id := key{kind: k, handle: h}
		st, ok := states[id]
		if !ok {
			st = &net{key: id, before: old != nil}
			states[id] = st
			order = append(order, id)
		}
		st.after = new != nil
	}
	if reverse {
		for i := len(diffs) - 1; i >= 0; i-- {
			if d := diffs[i]; d.after == nil {
				visit(d.kind, d.handle, d.new, d.old)
			}
		}
	} else {
		for _, d := range diffs {
			if d.after == nil {
				visit(d.kind, d.handle, d.old, d.new)
			}
		}
	}

	var events []types.Event
	for _, id := range order {
		st := states[id]
		var action types.Action
		switch {
		case !st.before && st.after:
			action = types.ActionAdd
		case st.before && st.after:
			action = types.ActionUpdate
		case st.before && !st.after:
			action = types.ActionDelete
		default:
			continue
		}
		if n := len(events); n > 0 && events[n-1].Kind == id.kind && events[n-1].Action == action {
			events[n-1].Handles = append(events[n-1].Handles, id.handle)
			continue
		}
		events = append(events, types.Event{Kind: id.kind, Action: action, Handles: []types.Handle{id.handle}})
	}
	return events
}
