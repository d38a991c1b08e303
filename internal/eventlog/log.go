package eventlog

import "log"

// Log is the façade every component (board, store, assignment, lifecycle,
// progress, advisor, monitor, dispatch) emits through. It combines the
// teacher's bracketed-tag log.Printf convention ([EVENTS], [NATS], ...)
// with durable persistence via Bus/Store.
type Log struct {
	tag string
	bus *Bus
	nc  *NATSPublisher // optional, nil when not configured
}

// New creates a Log with the given bracketed component tag, e.g.
// eventlog.New("ASSIGN", bus, nil).
func New(tag string, bus *Bus, nc *NATSPublisher) *Log {
	return &Log{tag: tag, bus: bus, nc: nc}
}

// Emit records an event: it logs a line in the teacher's [TAG] style,
// publishes to the bus (and its Store, if any), and broadcasts over NATS
// when a publisher is configured.
func (l *Log) Emit(e Event) {
	e = newEvent(e)
	log.Printf("[%s] %s", l.tag, e.Message)
	if l.bus != nil {
		l.bus.Publish(e)
	}
	if l.nc != nil {
		l.nc.Publish(e)
	}
}

// Subscribe proxies to the underlying bus, or returns nil if this Log has
// none (tests may construct a Log with a nil bus).
func (l *Log) Subscribe(types []EventType) <-chan Event {
	if l.bus == nil {
		return nil
	}
	return l.bus.Subscribe(types)
}
