package survey

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Ratings maps item names to raw interest answers, keeping source order so
// rollups can break score ties by encounter order. Blank answers are never stored.
type Ratings struct {
	keys   []string
	values map[string]string
}

func NewRatings() *Ratings {
	return &Ratings{values: make(map[string]string)}
}

func (r *Ratings) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

func (r *Ratings) Keys() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.keys...)
}

func (r *Ratings) Get(name string) (string, bool) {
	if r == nil {
		return "", false
	}
	v, ok := r.values[name]
	return v, ok
}

// Level reports the parsed level for name; unknown answers report false.
func (r *Ratings) Level(name string) (Level, bool) {
	v, ok := r.Get(name)
	if !ok {
		return 0, false
	}
	return ParseLevel(v)
}

// Set stores value under name. A blank value removes the key.
func (r *Ratings) Set(name, value string) {
	if strings.TrimSpace(value) == "" {
		r.Delete(name)
		return
	}
	if r.values == nil {
		r.values = make(map[string]string)
	}
	if _, ok := r.values[name]; !ok {
		r.keys = append(r.keys, name)
	}
	r.values[name] = value
}

func (r *Ratings) Delete(name string) {
	if r == nil || r.values == nil {
		return
	}
	if _, ok := r.values[name]; !ok {
		return
	}
	delete(r.values, name)
	for i, k := range r.keys {
		if k == name {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
}

// Each visits entries in insertion order.
func (r *Ratings) Each(fn func(name, value string)) {
	if r == nil {
		return
	}
	for _, k := range r.keys {
		fn(k, r.values[k])
	}
}

// Overlay copies every entry of other into r, key by key. It never removes a
// key from r; blank incoming answers are ignored.
func (r *Ratings) Overlay(other *Ratings) {
	other.Each(func(name, value string) {
		if strings.TrimSpace(value) != "" {
			r.Set(name, value)
		}
	})
}

func (r *Ratings) Clone() *Ratings {
	if r == nil {
		return nil
	}
	out := &Ratings{
		keys:   append([]string(nil), r.keys...),
		values: make(map[string]string, len(r.values)),
	}
	for k, v := range r.values {
		out.values[k] = v
	}
	return out
}

func (r *Ratings) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if r != nil {
		for i, k := range r.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			val, err := json.Marshal(r.values[k])
			if err != nil {
				return nil, err
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(val)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON keeps string answers in document order. Non-string and blank
// answers are dropped; a non-object value decodes to an empty map.
func (r *Ratings) UnmarshalJSON(data []byte) error {
	r.keys = nil
	r.values = make(map[string]string)

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("failed to read ratings: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("failed to read rating key: %w", err)
		}
		key, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("failed to read rating %q: %w", key, err)
		}
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			continue
		}
		r.Set(key, value)
	}
	return nil
}
