package framing

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/opentrail/trailship/record"
)

// Policy controls what happens to message bytes that would break the frame.
type Policy string

const (
	// EscapePolicy backslash-escapes offending bytes. This is the default.
	EscapePolicy Policy = "escape"
	// RejectPolicy fails the encode instead.
	RejectPolicy Policy = "reject"
)

const defaultMaxMessageSize = 8 * 1024

// Options configures an encoder. The zero value is usable: escape policy,
// 8KiB message cap, facility 1 (user-level).
type Options struct {
	Policy         Policy
	MaxMessageSize int
	// Syslog-only knobs.
	Hostname    string
	Facility    int
	SDID        string
	OctetCounts bool
}

func (o Options) policy() Policy {
	if o.Policy == "" {
		return EscapePolicy
	}
	return o.Policy
}

func (o Options) maxMessageSize() int {
	if o.MaxMessageSize <= 0 {
		return defaultMaxMessageSize
	}
	return o.MaxMessageSize
}

// Encoder turns one record into its byte-exact wire frame. Implementations
// are pure: the same record always yields the same bytes.
type Encoder interface {
	Encode(r record.Record) ([]byte, error)
}

// EncodeError marks a record the encoder refused. The record is reported and
// skipped, never truncated or silently altered.
type EncodeError struct {
	Reason string
	Err    error
}

func (e *EncodeError) Error() string {
	if e.Err != nil {
		return "encode: " + e.Reason + ": " + e.Err.Error()
	}
	return "encode: " + e.Reason
}

func (e *EncodeError) Unwrap() error { return e.Err }

func encodeErr(format string, args ...interface{}) error {
	return &EncodeError{Reason: fmt.Sprintf(format, args...)}
}

// IsEncodeError reports whether err is a record-level encoding rejection.
func IsEncodeError(err error) bool {
	var e *EncodeError
	return errors.As(err, &e)
}

// Factory builds an Encoder from options.
type Factory func(opts Options) (Encoder, error)

var (
	factoryMu sync.Mutex
	factories = make(map[string]Factory)
)

// Register makes a framing available under a name. Framings register
// themselves in init().
func Register(factory Factory, name string) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[name] = factory
}

// Lookup returns the factory registered under name.
func Lookup(name string) (Factory, bool) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factory, found := factories[name]
	return factory, found
}

// New builds an encoder for a registered framing name.
func New(name string, opts Options) (Encoder, error) {
	factory, found := Lookup(name)
	if !found {
		return nil, errors.New("bad framing: " + name)
	}
	return factory(opts)
}

func timestamp(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}
