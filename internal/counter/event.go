package counter

import (
	"strings"

	"github.com/titanous/json5"
)

// DefaultBoundary separates parts of the camera event stream.
const DefaultBoundary = "--myboundary"

// ObjectClass is what a line-crossing event detected.
type ObjectClass int

const (
	ClassOther ObjectClass = iota
	ClassPeople
	ClassVehicle
)

func (c ObjectClass) String() string {
	switch c {
	case ClassPeople:
		return "people"
	case ClassVehicle:
		return "vehicle"
	default:
		return "other"
	}
}

// Event is one parsed event part.
type Event struct {
	Code   string
	Action string
	Index  string
	Data   map[string]any
}

// IsLineCrossingStart reports whether e opens a line-crossing detection.
func (e Event) IsLineCrossingStart() bool {
	return strings.EqualFold(e.Code, "CrossLineDetection") && strings.EqualFold(e.Action, "Start")
}

// Class maps the detected object type to a counter.
func (e Event) Class() ObjectClass {
	return classify(objectType(e.Data))
}

func objectType(data map[string]any) string {
	if data == nil {
		return ""
	}
	if obj, ok := data["Object"].(map[string]any); ok {
		if t, ok := obj["ObjectType"].(string); ok {
			return t
		}
	}
	if t, ok := data["ObjectType"].(string); ok {
		return t
	}
	if objs, ok := data["Objects"].([]any); ok && len(objs) > 0 {
		if obj, ok := objs[0].(map[string]any); ok {
			if t, ok := obj["ObjectType"].(string); ok {
				return t
			}
		}
	}
	return ""
}

func classify(objectType string) ObjectClass {
	switch strings.ToLower(strings.TrimSpace(objectType)) {
	case "human", "person", "people", "pedestrian":
		return ClassPeople
	case "vehicle", "motorvehicle", "car", "bus", "truck", "motorcycle":
		return ClassVehicle
	}
	return ClassOther
}

// ParsePart extracts the event of one multipart body. ok is false when the
// part carries no Code= line.
func ParsePart(part string) (Event, bool) {
	i := strings.Index(part, "Code=")
	if i < 0 {
		return Event{}, false
	}
	body := part[i:]

	var ev Event
	head := body
	if d := strings.Index(body, "data="); d >= 0 {
		head = body[:d]
		ev.Data = parseLenientObject(body[d+len("data="):])
	}
	for _, field := range strings.Split(head, ";") {
		k, v, found := strings.Cut(strings.TrimSpace(field), "=")
		if !found {
			continue
		}
		v = strings.TrimSpace(v)
		switch strings.ToLower(k) {
		case "code":
			ev.Code = v
		case "action":
			ev.Action = v
		case "index":
			ev.Index = v
		}
	}
	return ev, true
}

// parseLenientObject decodes a JSON5 object: unquoted keys, single-quoted
// strings and trailing commas are accepted. Returns nil when it cannot.
func parseLenientObject(s string) map[string]any {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil
	}
	var out map[string]any
	if err := json5.Unmarshal([]byte(s[start:end+1]), &out); err != nil {
		return nil
	}
	return out
}

// PartSplitter cuts the event stream on the boundary marker, keeping
// incomplete parts between reads.
type PartSplitter struct {
	boundary string
	buf      strings.Builder
}

// NewPartSplitter creates a splitter for boundary.
func NewPartSplitter(boundary string) *PartSplitter {
	if boundary == "" {
		boundary = DefaultBoundary
	}
	return &PartSplitter{boundary: boundary}
}

// Feed appends chunk and returns every part completed by a boundary.
func (p *PartSplitter) Feed(chunk []byte) []string {
	p.buf.Write(chunk)
	text := p.buf.String()
	pieces := strings.Split(text, p.boundary)
	rest := pieces[len(pieces)-1]
	var parts []string
	for _, piece := range pieces[:len(pieces)-1] {
		if strings.TrimSpace(piece) != "" {
			parts = append(parts, piece)
		}
	}
	p.buf.Reset()
	p.buf.WriteString(rest)
	return parts
}
