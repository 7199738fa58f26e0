// Package parser turns raw log lines into ironcore.LogEntry values,
// dispatching on a format hint the collector supplies (it already
// knows which file/source produced the line; the parser doesn't
// guess).
package parser

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dongwonkwak/ironpost/internal/ironcore"
)

// Format names the wire shape of a raw log line.
type Format string

const (
	FormatSyslog Format = "syslog"
	FormatJSON   Format = "json"
)

// maxLineBytes bounds a single raw log line; anything longer is
// rejected rather than parsed, since a log line that long is either
// misconfigured input or an attempt to exhaust memory on the parser.
const maxLineBytes = 64 * 1024

// Parse dispatches raw to the parser named by format.
func Parse(format Format, source string, raw []byte) (ironcore.LogEntry, error) {
	if len(raw) > maxLineBytes {
		return ironcore.LogEntry{}, &ironcore.ParseError{Format: string(format), Reason: fmt.Sprintf("line exceeds %d bytes", maxLineBytes)}
	}
	switch format {
	case FormatSyslog:
		return parseSyslog(source, raw)
	case FormatJSON:
		return parseJSON(source, raw)
	default:
		return ironcore.LogEntry{}, &ironcore.ParseError{Format: string(format), Reason: "unsupported format"}
	}
}

// parseJSON expects a flat JSON object. Recognized keys populate the
// named LogEntry fields; every other key becomes a generic Field, in
// the object's key order.
func parseJSON(source string, raw []byte) (ironcore.LogEntry, error) {
	var obj map[string]any
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	if err := dec.Decode(&obj); err != nil {
		return ironcore.LogEntry{}, &ironcore.ParseError{Format: "json", Reason: err.Error()}
	}

	entry := ironcore.LogEntry{Source: source, Timestamp: time.Now()}
	for _, key := range orderedKeys(raw) {
		v, ok := obj[key]
		if !ok {
			continue
		}
		str := fmt.Sprintf("%v", v)
		switch key {
		case "hostname":
			entry.Hostname = str
		case "process":
			entry.Process = str
		case "message", "msg":
			entry.Message = str
		case "severity", "level":
			if sev, err := ironcore.ParseSeverity(strings.ToLower(str)); err == nil {
				entry.Severity = sev
			}
		default:
			entry.Fields = append(entry.Fields, ironcore.Field{Key: key, Value: str})
		}
	}
	return entry, nil
}

// orderedKeys re-scans raw with json.Decoder.Token to recover the
// object's original key order, since map[string]any iteration order is
// randomized and LogEntry.Fields must preserve parser-determined order.
func orderedKeys(raw []byte) []string {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	var keys []string
	tok, err := dec.Token() // opening '{'
	if err != nil {
		return nil
	}
	if _, ok := tok.(json.Delim); !ok {
		return nil
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			break
		}
		key, _ := keyTok.(string)
		keys = append(keys, key)

		var skip any
		if err := dec.Decode(&skip); err != nil {
			break
		}
	}
	return keys
}

// parseSyslog implements a minimal RFC3164-shaped reader: "<prio>Mon
// _2 15:04:05 hostname process[pid]: message". Falls back to treating
// the entire line as the message if the expected shape isn't present,
// so a malformed line is still captured rather than dropped.
func parseSyslog(source string, raw []byte) (ironcore.LogEntry, error) {
	line := strings.TrimSpace(string(raw))
	entry := ironcore.LogEntry{Source: source, Timestamp: time.Now(), Message: line}

	if strings.HasPrefix(line, "<") {
		if idx := strings.Index(line, ">"); idx > 0 {
			line = line[idx+1:]
		}
	}

	const layout = "Jan _2 15:04:05"
	if len(line) > len(layout) {
		if ts, err := time.Parse(layout, line[:len(layout)]); err == nil {
			entry.Timestamp = ts
			rest := strings.TrimSpace(line[len(layout):])
			fields := strings.SplitN(rest, " ", 2)
			if len(fields) == 2 {
				entry.Hostname = fields[0]
				procAndMsg := strings.SplitN(fields[1], ": ", 2)
				if len(procAndMsg) == 2 {
					entry.Process = strings.TrimSuffix(procAndMsg[0], "]")
					if idx := strings.Index(entry.Process, "["); idx >= 0 {
						entry.Process = entry.Process[:idx]
					}
					entry.Message = procAndMsg[1]
				} else {
					entry.Message = fields[1]
				}
			}
		}
	}
	return entry, nil
}
