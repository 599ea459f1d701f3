package highlight

// EventKind discriminates highlight events.
type EventKind uint8

const (
	// EventSource covers a byte range of the input. Ranges are emitted in
	// order, without gaps or overlap, so concatenating all Source events
	// reproduces the input.
	EventSource EventKind = iota
	// EventScopeStart opens a named scope. Scopes are well nested.
	EventScopeStart
	// EventScopeEnd closes the most recently opened scope.
	EventScopeEnd
)

// Event is one step of a highlight event stream. Scope is set only for
// EventScopeStart; Start and End only for EventSource.
type Event struct {
	Kind  EventKind
	Scope string
	Start uint32
	End   uint32
}

// Options are the recognized rendering flags. Wire options are an ordered
// list of opaque strings; unrecognized ones are ignored so that clients and
// servers can skew in version without breaking batches.
type Options struct {
	// Injections resolves embedded-language regions (for example script
	// bodies inside HTML) through the injection query, one level deep.
	Injections bool
}

// ParseOptions folds a wire option list into Options. Later entries win.
func ParseOptions(opts []string) Options {
	var o Options
	for _, opt := range opts {
		switch opt {
		case "injections":
			o.Injections = true
		case "no-injections":
			o.Injections = false
		}
	}
	return o
}
