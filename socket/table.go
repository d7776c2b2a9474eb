package socket

// Handler reacts to one dispatched message.
type Handler func(msg Message)

// Binding maps a (source, event) pair to a handler.
type Binding struct {
	Source  Source
	Event   Event
	Handler Handler
}

// Table is an ordered set of bindings. Dispatch walks it in order, so a
// table can be inspected and exercised without a live connection.
type Table []Binding

// On returns a copy of t with one more binding appended.
func (t Table) On(source Source, event Event, h Handler) Table {
	out := make(Table, len(t), len(t)+1)
	copy(out, t)
	return append(out, Binding{Source: source, Event: event, Handler: h})
}

// Lookup returns the bindings registered for source and event.
func (t Table) Lookup(source Source, event Event) []Binding {
	var out []Binding
	for _, b := range t {
		if b.Source == source && b.Event == event {
			out = append(out, b)
		}
	}
	return out
}

// Dispatch calls every handler bound to msg's source and event, in table
// order, and reports how many ran.
func (t Table) Dispatch(msg Message) int {
	n := 0
	for _, b := range t {
		if b.Source != msg.Source || b.Event != msg.Event || b.Handler == nil {
			continue
		}
		b.Handler(msg)
		n++
	}
	return n
}
