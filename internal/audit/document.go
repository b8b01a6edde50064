package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Shape names a stored document layout.
type Shape string

const (
	// ShapeCurrent is the structured-logging layout:
	//   {"_id":{"$oid":..},"Level":..,"UtcTimeStamp":{"$date":..},
	//    "Properties":{"LogInfo":{"Operation":..,"User":..,"Timestamp":..}}}
	ShapeCurrent Shape = "current"
	// ShapeLegacy is the historical flat layout:
	//   {"_id":..,"Operation":..,"User":..,"Timestamp":..}
	ShapeLegacy Shape = "legacy"
)

const messageTemplate = "{Operation} {Path} {@LogInfo}"

type oidField struct {
	OID string `json:"$oid"`
}

type dateField struct {
	Date string `json:"$date"`
}

type logInfo struct {
	Operation string         `json:"Operation"`
	User      string         `json:"User"`
	Timestamp string         `json:"Timestamp"`
	Path      string         `json:"Path,omitempty"`
	Payload   map[string]any `json:"Payload,omitempty"`
}

type storedDocument struct {
	ID              oidField  `json:"_id"`
	Level           string    `json:"Level"`
	UtcTimeStamp    dateField `json:"UtcTimeStamp"`
	MessageTemplate string    `json:"MessageTemplate"`
	Properties      struct {
		LogInfo logInfo `json:"LogInfo"`
	} `json:"Properties"`
}

// Encode renders event in the current stored layout.
func Encode(event *Event) ([]byte, error) {
	if event == nil {
		return nil, ErrNilEvent
	}

	ts := event.Timestamp.UTC().Format(time.RFC3339Nano)
	level := event.Level
	if level == "" {
		level = LevelInformation
	}

	var doc storedDocument
	doc.ID.OID = event.ID
	doc.Level = level
	doc.UtcTimeStamp.Date = ts
	doc.MessageTemplate = messageTemplate
	doc.Properties.LogInfo = logInfo{
		Operation: string(event.Operation),
		User:      event.Actor,
		Timestamp: ts,
		Path:      event.Path,
		Payload:   event.Payload,
	}
	return json.Marshal(doc)
}

// shapeDecoder turns one raw document into an Event. It returns
// errShapeMismatch when the document is not of its layout.
type shapeDecoder struct {
	shape  Shape
	decode func(raw []byte) (Event, error)
}

var errShapeMismatch = errors.New("shape mismatch")

// decoders are tried in order: newest layout first.
var decoders = []shapeDecoder{
	{shape: ShapeCurrent, decode: decodeCurrent},
	{shape: ShapeLegacy, decode: decodeLegacy},
}

// Decode maps a stored document of any supported layout onto the canonical
// Event. key is the store key, used when the document carries no id.
func Decode(key string, raw []byte) (Event, Shape, error) {
	var lastErr error
	for _, d := range decoders {
		event, err := d.decode(raw)
		if err == nil {
			if event.ID == "" {
				event.ID = key
			}
			if event.Level == "" {
				event.Level = LevelInformation
			}
			return event, d.shape, nil
		}
		if !errors.Is(err, errShapeMismatch) {
			lastErr = err
		}
	}
	if lastErr != nil {
		return Event{}, "", fmt.Errorf("%w: %v", ErrUnknownShape, lastErr)
	}
	return Event{}, "", ErrUnknownShape
}

func decodeCurrent(raw []byte) (Event, error) {
	var doc struct {
		ID           json.RawMessage `json:"_id"`
		Level        string          `json:"Level"`
		UtcTimeStamp json.RawMessage `json:"UtcTimeStamp"`
		Properties   *struct {
			LogInfo *struct {
				Operation string          `json:"Operation"`
				User      string          `json:"User"`
				Timestamp json.RawMessage `json:"Timestamp"`
				Path      string          `json:"Path"`
				Payload   map[string]any  `json:"Payload"`
			} `json:"LogInfo"`
		} `json:"Properties"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Event{}, errShapeMismatch
	}
	if doc.Properties == nil || doc.Properties.LogInfo == nil || doc.Properties.LogInfo.Operation == "" {
		return Event{}, errShapeMismatch
	}
	info := doc.Properties.LogInfo

	op, err := ParseOperation(info.Operation)
	if err != nil {
		return Event{}, err
	}

	ts, err := decodeTime(info.Timestamp)
	if err != nil {
		// The envelope timestamp is written at the same instant
		ts, err = decodeTime(doc.UtcTimeStamp)
		if err != nil {
			return Event{}, fmt.Errorf("current document without timestamp: %w", err)
		}
	}

	return Event{
		ID:        decodeID(doc.ID),
		Level:     doc.Level,
		Timestamp: ts,
		Operation: op,
		Actor:     info.User,
		Path:      info.Path,
		Payload:   info.Payload,
	}, nil
}

func decodeLegacy(raw []byte) (Event, error) {
	var doc struct {
		ID        json.RawMessage `json:"_id"`
		Level     string          `json:"Level"`
		Operation string          `json:"Operation"`
		User      string          `json:"User"`
		Timestamp json.RawMessage `json:"Timestamp"`
		Path      string          `json:"Path"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Event{}, errShapeMismatch
	}
	if doc.Operation == "" || len(doc.Timestamp) == 0 {
		return Event{}, errShapeMismatch
	}

	op, err := ParseOperation(doc.Operation)
	if err != nil {
		return Event{}, err
	}
	ts, err := decodeTime(doc.Timestamp)
	if err != nil {
		return Event{}, err
	}

	return Event{
		ID:        decodeID(doc.ID),
		Level:     doc.Level,
		Timestamp: ts,
		Operation: op,
		Actor:     doc.User,
		Path:      doc.Path,
	}, nil
}

// decodeID accepts a bare string or an {"$oid": ...} object.
func decodeID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var o oidField
	if err := json.Unmarshal(raw, &o); err == nil {
		return o.OID
	}
	return ""
}

// decodeTime accepts a timestamp string or an {"$date": "..."} object.
func decodeTime(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, errors.New("missing timestamp")
	}

	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, err
		}
	} else {
		var d dateField
		if err := json.Unmarshal(raw, &d); err != nil {
			return time.Time{}, err
		}
		s = d.Date
	}
	return ParseTimestamp(s)
}

// timestampLayouts are tried in order. Zone-less values are taken as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02 15:04:05.9999999",
	"2006-01-02",
}

// ParseTimestamp parses an RFC 3339 instant, also accepting the zone-less
// forms found in older records. The result is in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}
