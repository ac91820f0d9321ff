package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Property is a single member of a feature's properties object. Value holds
// the member's JSON text exactly as it appeared in the source.
type Property struct {
	Key   string
	Value json.RawMessage
}

// Properties is an ordered string-keyed mapping of JSON values. Member order and
// value text survive a decode/encode round trip unchanged.
type Properties struct {
	items []Property
	index map[string]int
}

// NewProperties builds a Properties value from ordered members. A repeated key
// replaces the earlier value in place.
func NewProperties(members ...Property) Properties {
	var p Properties
	for _, m := range members {
		p.Set(m.Key, m.Value)
	}
	return p
}

// Len returns the number of members.
func (p Properties) Len() int { return len(p.items) }

// Keys returns the member keys in source order.
func (p Properties) Keys() []string {
	keys := make([]string, len(p.items))
	for i, it := range p.items {
		keys[i] = it.Key
	}
	return keys
}

// Get returns the raw JSON value for key.
func (p Properties) Get(key string) (json.RawMessage, bool) {
	i, ok := p.index[key]
	if !ok {
		return nil, false
	}
	return p.items[i].Value, true
}

// Set stores value under key, keeping the original position of an existing key.
func (p *Properties) Set(key string, value json.RawMessage) {
	if p.index == nil {
		p.index = make(map[string]int)
	}
	v := append(json.RawMessage(nil), value...)
	if i, ok := p.index[key]; ok {
		p.items[i].Value = v
		return
	}
	p.index[key] = len(p.items)
	p.items = append(p.items, Property{Key: key, Value: v})
}

// Members returns a copy of the ordered members.
func (p Properties) Members() []Property {
	out := make([]Property, len(p.items))
	copy(out, p.items)
	return out
}

// MarshalJSON writes the members in order.
func (p Properties) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, it := range p.items {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(it.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if len(it.Value) == 0 {
			buf.WriteString("null")
			continue
		}
		buf.Write(it.Value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object keeping member order. null yields an empty
// mapping; any other non-object value is an error.
func (p *Properties) UnmarshalJSON(data []byte) error {
	*p = Properties{}
	if isJSONNull(data) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("properties must be a JSON object")
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected property key %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("property %q: %w", key, err)
		}
		p.Set(key, value)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
