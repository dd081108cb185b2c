package module

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Field is one named reading.
type Field struct {
	Name  string
	Value string
}

// DataPoints is an ordered set of readings; order is display order.
type DataPoints []Field

// Add appends a field and returns the extended slice.
func (d DataPoints) Add(name, value string) DataPoints {
	return append(d, Field{Name: name, Value: value})
}

func (d DataPoints) Get(name string) (string, bool) {
	for _, f := range d {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Map loses the ordering.
func (d DataPoints) Map() map[string]string {
	m := make(map[string]string, len(d))
	for _, f := range d {
		m[f.Name] = f.Value
	}
	return m
}

// MarshalJSON encodes an object whose keys keep insertion order.
func (d DataPoints) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object preserving key order. Non-string
// values are kept in their JSON text form.
func (d *DataPoints) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("datapoints: expected object, got %v", tok)
	}
	out := DataPoints{}
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := kt.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			s = string(raw)
		}
		out = append(out, Field{Name: key, Value: s})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*d = out
	return nil
}
