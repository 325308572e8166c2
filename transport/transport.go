// Package transport abstracts how the connection manager reaches the
// collector. Concrete transports register themselves by name in init() and
// are pulled in with blank imports.
package transport

import (
	"net"
	"sync"
)

// Transport dials a collector address. Options carry transport-specific
// settings (certificate paths and the like).
type Transport interface {
	Dial(addr string, options map[string]string) (net.Conn, error)
}

var (
	registryMu sync.Mutex
	registry   = make(map[string]Transport)
)

// Register makes a transport available under a name.
func Register(transport Transport, name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = transport
}

// Lookup returns the transport registered under name.
func Lookup(name string) (Transport, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	transport, found := registry[name]
	return transport, found
}
