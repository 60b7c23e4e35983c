package core

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Millis is a unix-milliseconds timestamp. The tracker API returns these as
// quoted decimal strings; absent or empty values decode to zero.
type Millis int64

func (m *Millis) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*m = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		*m = 0
		return nil
	}
	*m = Millis(v)
	return nil
}

// Status is the tracker's status object, reduced to its label.
type Status struct {
	Status string `json:"status"`
}

// Tag is a tracker tag, reduced to its name.
type Tag struct {
	Name string `json:"name"`
}

// LinkedItem is one entry of a relation field's value list.
type LinkedItem struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// TypeConfig carries the subset of a field's type configuration that
// relation resolution inspects.
type TypeConfig struct {
	SubcategoryInvertedName string `json:"subcategory_inverted_name"`
}

// Field is a custom field attached to a task or epic. Value is polymorphic
// on the wire (free text for text/phone fields, an item list for relation
// fields) and is kept raw until an accessor is asked for a shape.
type Field struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Type       string          `json:"type"`
	Value      json.RawMessage `json:"value"`
	Text       string          `json:"text"`
	TypeConfig TypeConfig      `json:"type_config"`
}

// TextValue returns the field's value as free text. String and numeric
// wire values are accepted; anything else yields "".
func (f Field) TextValue() string {
	if len(f.Value) > 0 {
		var s string
		if err := json.Unmarshal(f.Value, &s); err == nil {
			return s
		}
		var n json.Number
		if err := json.Unmarshal(f.Value, &n); err == nil {
			return n.String()
		}
	}
	return f.Text
}

// Links returns the field's value as a list of linked items, or nil when
// the value is not a relation list.
func (f Field) Links() []LinkedItem {
	if len(f.Value) == 0 {
		return nil
	}
	var items []LinkedItem
	if err := json.Unmarshal(f.Value, &items); err != nil {
		return nil
	}
	return items
}

// Task is an immutable snapshot of a tracker task as returned by one fetch.
type Task struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Status      Status  `json:"status"`
	Tags        []Tag   `json:"tags"`
	UpdatedAt   Millis  `json:"date_updated"`
	ClosedAt    Millis  `json:"date_closed"`
	Fields      []Field `json:"custom_fields"`
}

// Updated returns the task's effective last-update time in unix millis,
// falling back to the close time when the update time is absent.
func (t Task) Updated() int64 {
	if t.UpdatedAt != 0 {
		return int64(t.UpdatedAt)
	}
	return int64(t.ClosedAt)
}

// Epic is the parent record a task inherits contact details from.
type Epic struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Fields []Field `json:"custom_fields"`
}

// Client is one notification recipient, keyed by phone. The token embeds
// the resolved epic id and is appended to outgoing deep links.
type Client struct {
	ID        string
	Phone     string
	Token     string
	EpicID    string
	CreatedAt time.Time
}
