package custody

import "fmt"

// Metadata field names used by the built-in path entries.
const (
	FieldSHA1  = "sha1"
	FieldMTime = "m_time"
	FieldSize  = "size"
)

// Entry holds custody info for a single resource at one point in time. The
// metadata shape is type-specific and opaque to the graph itself.
type Entry struct {
	Type string
	Key  string
	Meta map[string]any
}

// NewEntry constructs an Entry, normalizing a nil metadata map.
func NewEntry(entryType, key string, meta map[string]any) Entry {
	if meta == nil {
		meta = map[string]any{}
	}
	return Entry{Type: entryType, Key: key, Meta: meta}
}

// Field returns a metadata field, erroring if absent.
func (e Entry) Field(name string) (any, error) {
	v, ok := e.Meta[name]
	if !ok {
		return nil, fmt.Errorf("custody entry %s has no field %q", e, name)
	}
	return v, nil
}

// StringField returns a metadata field that must be a string. Checkers use
// this for checksum and validator-token fields.
func (e Entry) StringField(name string) (string, error) {
	v, err := e.Field(name)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("custody entry %s field %q is %T, want string", e, name, v)
	}
	return s, nil
}

func (e Entry) String() string {
	return e.Type + ":" + e.Key
}
