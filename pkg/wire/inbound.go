package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Wire format versions.
const (
	VersionLegacy = 1
	VersionStrict = 2
)

var (
	// ErrNotObject is returned for frames that are not JSON objects.
	ErrNotObject = errors.New("frame is not a JSON object")
	// ErrMissingSender is returned for typed frames without a sender.
	ErrMissingSender = errors.New("frame has no sender")
	// ErrUnsupportedVersion is returned for frames newer than this decoder.
	ErrUnsupportedVersion = errors.New("unsupported frame version")
)

// legacyNames lists, per canonical field, the older names tried in order.
var legacyNames = map[string][]string{
	"type":      {"message_type"},
	"message":   {"text_message"},
	"file":      {"file_url", "file_message"},
	"sender_id": {"sender"},
}

// InboundMessage is a decoded chat frame.
type InboundMessage struct {
	Version    int    `json:"v,omitempty"`
	ID         string `json:"id,omitempty"`
	Type       string `json:"type"`
	Message    string `json:"message,omitempty"`
	File       string `json:"file,omitempty"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name,omitempty"`
	GroupID    string `json:"group_id,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`

	// Raw is the frame as received.
	Raw json.RawMessage `json:"-"`
}

// IsControl reports whether the frame carries no message type.
func (m *InboundMessage) IsControl() bool {
	return m.Type == ""
}

// IsFile reports whether the message carries an attachment.
func (m *InboundMessage) IsFile() bool {
	return m.File != ""
}

// Decode parses one inbound frame.
func Decode(data []byte) (*InboundMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("invalid frame: %w", err)
	}

	if fields == nil {
		return nil, ErrNotObject
	}

	version, err := frameVersion(fields)
	if err != nil {
		return nil, err
	}

	d := decoder{fields: fields, legacy: version < VersionStrict}

	msg := &InboundMessage{
		Version:    version,
		ID:         d.text("id"),
		Type:       d.text("type"),
		Message:    d.text("message"),
		File:       d.text("file"),
		SenderID:   d.text("sender_id"),
		SenderName: d.text("sender_name"),
		GroupID:    d.text("group_id"),
		Timestamp:  d.text("timestamp"),
		Raw:        append(json.RawMessage(nil), data...),
	}

	if d.err != nil {
		return nil, d.err
	}

	if msg.IsControl() {
		return msg, nil
	}

	if msg.SenderID == "" {
		return nil, ErrMissingSender
	}

	return msg, nil
}

func frameVersion(fields map[string]json.RawMessage) (int, error) {
	raw, ok := fields["v"]
	if !ok {
		return VersionLegacy, nil
	}

	var v int
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("invalid version marker: %w", err)
	}

	switch {
	case v < VersionLegacy:
		return VersionLegacy, nil
	case v > VersionStrict:
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	default:
		return v, nil
	}
}

type decoder struct {
	fields map[string]json.RawMessage
	legacy bool
	err    error
}

// text returns the canonical field, falling back to legacy names for unversioned frames.
func (d *decoder) text(name string) string {
	if raw, ok := d.fields[name]; ok {
		return d.scalar(name, raw)
	}

	if !d.legacy {
		return ""
	}

	for _, alt := range legacyNames[name] {
		if raw, ok := d.fields[alt]; ok {
			if v := d.scalar(alt, raw); v != "" {
				return v
			}
		}
	}

	return ""
}

// scalar renders a JSON string or number as text. null is empty; anything else is an error.
func (d *decoder) scalar(name string, raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ""
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			d.fail(name, err)

			return ""
		}

		return s
	case '{', '[', 't', 'f':
		d.fail(name, errors.New("expected string or number"))

		return ""
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			d.fail(name, err)

			return ""
		}

		if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			return strconv.FormatInt(i, 10)
		}

		return n.String()
	}
}

func (d *decoder) fail(name string, err error) {
	if d.err == nil {
		d.err = fmt.Errorf("invalid field %q: %w", name, err)
	}
}
