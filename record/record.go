package record

import (
	"fmt"
	"strings"
	"time"
)

// Severity levels, ordered from most to least urgent. The numeric values
// follow the syslog severity ordinals so PRI computation is a straight
// facility*8 + code.
type Severity int

const (
	Critical Severity = 2
	Error    Severity = 3
	Warn     Severity = 4
	Info     Severity = 6
	Debug    Severity = 7
)

// MaxSourceLen matches the RFC5424 HOSTNAME/APP-NAME ceiling; sources longer
// than this are rejected rather than truncated.
const MaxSourceLen = 255

func (s Severity) String() string {
	switch s {
	case Critical:
		return "CRITICAL"
	case Error:
		return "ERROR"
	case Warn:
		return "WARN"
	case Info:
		return "INFO"
	case Debug:
		return "DEBUG"
	}
	return "UNKNOWN"
}

// Code returns the syslog severity ordinal.
func (s Severity) Code() int {
	return int(s)
}

// ParseSeverity maps a level string to a Severity. It accepts the common
// aliases that show up in real logs (WARNING, ERR, CRIT, ...).
func ParseSeverity(level string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG", "DBG", "D":
		return Debug, nil
	case "INFO", "INF", "I":
		return Info, nil
	case "WARN", "WARNING", "WRN", "W":
		return Warn, nil
	case "ERROR", "ERR", "E":
		return Error, nil
	case "CRITICAL", "CRIT", "FATAL", "F":
		return Critical, nil
	}
	return Info, fmt.Errorf("unknown severity: %q", level)
}

// Record is one observation to ship. Records are passed by value and are
// never mutated after submission.
type Record struct {
	Timestamp time.Time
	Severity  Severity
	Source    string
	Message   string
	Fields    map[string]string
}

// Validate checks the framing-independent constraints. Size limits on the
// message are the encoder's business since they depend on configuration.
func (r Record) Validate() error {
	if r.Source == "" {
		return fmt.Errorf("record: empty source")
	}
	if len(r.Source) > MaxSourceLen {
		return fmt.Errorf("record: source exceeds %d bytes", MaxSourceLen)
	}
	if strings.ContainsAny(r.Source, "| ") {
		return fmt.Errorf("record: source must not contain %q or spaces", "|")
	}
	for _, c := range r.Source {
		if c < 0x21 || c > 0x7e {
			return fmt.Errorf("record: source contains non-printable byte %#x", c)
		}
	}
	if r.Message == "" {
		return fmt.Errorf("record: empty message")
	}
	return nil
}
