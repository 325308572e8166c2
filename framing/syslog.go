package framing

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/crewjam/rfc5424"

	"github.com/opentrail/trailship/record"
)

// Syslog5424 is the name of the RFC5424 framing. Frames are LF-terminated by
// default; Options.OctetCounts switches to RFC6587 octet-counted framing.
const Syslog5424 = "syslog5424"

const (
	defaultFacility = 1 // user-level
	defaultSDID     = "trailship@32473"
)

func init() {
	Register(newSyslogEncoder, Syslog5424)
}

func newSyslogEncoder(opts Options) (Encoder, error) {
	if opts.Facility < 0 || opts.Facility > 23 {
		return nil, fmt.Errorf("syslog: facility out of range: %d", opts.Facility)
	}
	facility := opts.Facility
	if facility == 0 {
		facility = defaultFacility
	}
	hostname := opts.Hostname
	if hostname == "" {
		hostname, _ = os.Hostname()
	}
	sdid := opts.SDID
	if sdid == "" {
		sdid = defaultSDID
	}
	return &syslogEncoder{
		opts:     opts,
		facility: facility,
		hostname: hostname,
		sdid:     sdid,
		procID:   strconv.Itoa(os.Getpid()),
	}, nil
}

type syslogEncoder struct {
	opts     Options
	facility int
	hostname string
	sdid     string
	procID   string
}

func (e *syslogEncoder) Encode(r record.Record) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, &EncodeError{Reason: "invalid record", Err: err}
	}
	if len(r.Message) > e.opts.maxMessageSize() {
		return nil, encodeErr("message exceeds %d bytes", e.opts.maxMessageSize())
	}
	msg := r.Message
	if strings.Contains(msg, "\n") && !e.opts.OctetCounts {
		// Raw newlines would split an LF-delimited frame in two.
		if e.opts.policy() == RejectPolicy {
			return nil, encodeErr("message contains newline")
		}
		msg = escapePlain(msg)
	}

	m := rfc5424.Message{
		Priority:  rfc5424.Priority(e.facility*8 + r.Severity.Code()),
		Timestamp: r.Timestamp,
		Hostname:  e.hostname,
		AppName:   r.Source,
		ProcessID: e.procID,
		Message:   []byte(msg),
	}
	if len(r.Fields) > 0 {
		keys := make([]string, 0, len(r.Fields))
		for k := range r.Fields {
			keys = append(keys, k)
		}
		// Insertion order is irrelevant to callers; sort so encoding
		// stays deterministic.
		sort.Strings(keys)
		for _, k := range keys {
			m.AddDatum(e.sdid, k, r.Fields[k])
		}
	}

	buf, err := m.MarshalBinary()
	if err != nil {
		return nil, &EncodeError{Reason: "rfc5424 marshal", Err: err}
	}
	if e.opts.OctetCounts {
		return append([]byte(fmt.Sprintf("%d ", len(buf))), buf...), nil
	}
	return append(buf, '\n'), nil
}
