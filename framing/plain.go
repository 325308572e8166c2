package framing

import (
	"fmt"
	"strings"
	"time"

	"github.com/opentrail/trailship/record"
)

// Plain is the name of the pipe-delimited line framing:
// timestamp|severity|source|message\n
const Plain = "plain"

func init() {
	Register(newPlainEncoder, Plain)
}

func newPlainEncoder(opts Options) (Encoder, error) {
	return &plainEncoder{opts: opts}, nil
}

type plainEncoder struct {
	opts Options
}

func (e *plainEncoder) Encode(r record.Record) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, &EncodeError{Reason: "invalid record", Err: err}
	}
	if len(r.Message) > e.opts.maxMessageSize() {
		return nil, encodeErr("message exceeds %d bytes", e.opts.maxMessageSize())
	}
	msg := r.Message
	if strings.ContainsAny(msg, "|\n\\") {
		if e.opts.policy() == RejectPolicy {
			return nil, encodeErr("message contains framing bytes")
		}
		msg = escapePlain(msg)
	}
	line := fmt.Sprintf("%s|%s|%s|%s\n", timestamp(r.Timestamp), r.Severity, r.Source, msg)
	return []byte(line), nil
}

var (
	plainEscaper   = strings.NewReplacer(`\`, `\\`, "|", `\|`, "\n", `\n`)
	plainUnescaper = strings.NewReplacer(`\\`, `\`, `\|`, "|", `\n`, "\n")
)

func escapePlain(s string) string {
	return plainEscaper.Replace(s)
}

func unescapePlain(s string) string {
	return plainUnescaper.Replace(s)
}

// DecodePlain reverses the plain framing for a single line (with or without
// the trailing newline). It is the counterpart the collector side applies and
// backs the round-trip guarantee of the encoder.
func DecodePlain(line string) (record.Record, error) {
	line = strings.TrimSuffix(line, "\n")
	parts := strings.SplitN(line, "|", 4)
	if len(parts) != 4 {
		return record.Record{}, encodeErr("malformed plain frame: want 4 fields, got %d", len(parts))
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return record.Record{}, &EncodeError{Reason: "malformed timestamp", Err: err}
	}
	sev, err := record.ParseSeverity(parts[1])
	if err != nil {
		return record.Record{}, &EncodeError{Reason: "malformed severity", Err: err}
	}
	return record.Record{
		Timestamp: ts,
		Severity:  sev,
		Source:    parts[2],
		Message:   unescapePlain(parts[3]),
	}, nil
}
