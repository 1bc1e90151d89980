package connectivity

// Network identifies one network path (interface or route) the transfer may
// be bound to. The zero value means no network.
type Network struct {
	Name string
}

// IsZero reports whether no network is set.
func (n Network) IsZero() bool {
	return n.Name == ""
}

// Listener receives default-network transitions from a Source.
type Listener interface {
	Available(network Network)
	Lost(network Network)
}

// Source delivers default-network availability notifications. Register must
// be non-blocking; events are delivered from the source's own goroutine.
type Source interface {
	Register(l Listener)
	Unregister()
}
