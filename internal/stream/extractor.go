package stream

import (
	"encoding/json"
	"log/slog"

	"tripagent/internal/trip"
)

// scanState is where the scanner is relative to the top-level events array.
type scanState int

const (
	stateScanning scanState = iota // before the first top-level [
	stateInArray                   // between [ and its matching ]
	stateDone                      // array closed, remaining text is inert
)

// Extractor incrementally scans a model output stream for a top-level JSON
// events array and emits each completed event object exactly once, as soon as
// its closing brace arrives. Chunks carry no alignment guarantee, so the scan
// runs byte by byte: string and escape state ensure that braces inside string
// values are never mistaken for structure.
//
// An Extractor is request-scoped and not safe for concurrent use.
type Extractor struct {
	state      scanState
	inString   bool
	escapeNext bool
	braceDepth int
	collecting bool
	buf        []byte

	onEvent func(trip.Event)
	logger  *slog.Logger
	emitted int
	skipped int
}

// Summary reports what a finished stream produced.
type Summary struct {
	EventCount int
	Skipped    int
}

func NewExtractor(onEvent func(trip.Event), logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{onEvent: onEvent, logger: logger}
}

// Feed consumes one chunk. Chunk boundaries may fall anywhere, including
// mid-token and mid-escape.
func (x *Extractor) Feed(chunk string) {
	for i := 0; i < len(chunk); i++ {
		x.step(chunk[i])
	}
}

// Finish reports the stream totals. An event left unclosed at end of stream
// counts as skipped.
func (x *Extractor) Finish() Summary {
	if x.collecting {
		x.collecting = false
		x.skipped++
		x.logger.Warn("stream ended inside an event object", "bytes", len(x.buf))
	}
	return Summary{EventCount: x.emitted, Skipped: x.skipped}
}

func (x *Extractor) step(c byte) {
	if x.collecting {
		x.buf = append(x.buf, c)
	}

	// Escape and string state come first: inside a string every byte is
	// inert, structure-wise.
	if x.escapeNext {
		x.escapeNext = false
		return
	}
	switch c {
	case '\\':
		if x.inString {
			x.escapeNext = true
		}
		return
	case '"':
		x.inString = !x.inString
		return
	}
	if x.inString {
		return
	}

	switch x.state {
	case stateScanning:
		if c == '[' {
			x.state = stateInArray
		}
	case stateInArray:
		switch c {
		case '{':
			if x.braceDepth == 0 {
				x.collecting = true
				x.buf = append(x.buf[:0], c)
			}
			x.braceDepth++
		case '}':
			if x.braceDepth == 0 {
				return
			}
			x.braceDepth--
			if x.braceDepth == 0 && x.collecting {
				x.collecting = false
				x.emit(x.buf)
			}
		case ']':
			if x.braceDepth == 0 {
				x.state = stateDone
			}
		}
	case stateDone:
	}
}

// emit parses one sliced event object, expands the lean schema and hands the
// canonical event to the callback. A parse failure skips this event only.
func (x *Extractor) emit(raw []byte) {
	var record map[string]any
	if err := json.Unmarshal(raw, &record); err != nil {
		x.skipped++
		x.logger.Warn("skipping malformed event in stream", "error", err)
		return
	}
	event := trip.Normalize(expandLean(record))
	x.emitted++
	if x.onEvent != nil {
		x.onEvent(event)
	}
}

// Lean schema: generated events arrive with flat {date, name, city, country}
// legs and flat place fields. expandLean rebuilds the canonical nested shape
// before normalization so the flat fields are not quarantined into notes.
func expandLean(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = v
	}

	switch out["category"] {
	case "travel":
		out["departure"] = expandLeanLeg(out["departure"])
		out["arrival"] = expandLeanLeg(out["arrival"])
	case "accommodation":
		out["checkIn"] = expandLeanLeg(out["checkIn"])
		out["checkOut"] = expandLeanLeg(out["checkOut"])
	default:
		if _, ok := out["location"]; !ok {
			loc := map[string]any{}
			for _, f := range []string{"name", "city", "country"} {
				if v, ok := out[f]; ok {
					loc[f] = v
					delete(out, f)
				}
			}
			if len(loc) > 0 {
				out["location"] = loc
			}
		}
	}
	return out
}

func expandLeanLeg(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	if _, nested := m["location"]; nested {
		return m
	}
	loc := map[string]any{}
	for _, f := range []string{"name", "city", "country"} {
		if val, ok := m[f]; ok {
			loc[f] = val
		}
	}
	return map[string]any{"date": m["date"], "location": loc}
}
