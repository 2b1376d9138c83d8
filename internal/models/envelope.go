// Package models defines the record types that ride the consistency
// envelope and the identity/membership types used by the rest of the
// module.
package models

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// HistoryEntry records the value a field held before the edit that
// produced the FieldMeta.Count it is stored under.
type HistoryEntry struct {
	Prev any    `json:"prev"`
	Peer string `json:"peer"`
}

// FieldMeta is the per-field versioning metadata that makes a field
// mergeable under last-writer-wins discipline. Count never decreases
// for a given field on a given peer; History is allowed to be shorter
// than Count (truncation-tolerant) but its prefix must stay contiguous.
type FieldMeta struct {
	Peer    string         `json:"peer"`
	History []HistoryEntry `json:"history"`
	Count   uint32         `json:"count"`
}

// Envelope wraps a record's field values with per-field consistency
// metadata. Immutable carries identity fields (record id, event sku)
// that never participate in merge and must agree byte-for-byte between
// any two envelopes sharing an id. Fields carries the mergeable values.
type Envelope struct {
	Immutable   map[string]any        `json:"immutable"`
	Fields      map[string]any        `json:"fields"`
	Consistency map[string]*FieldMeta `json:"consistency"`
}

// NewEnvelope initializes an envelope for a freshly created record:
// every mutable field starts at Count 0 with empty history.
func NewEnvelope(immutable, fields map[string]any, peer string) *Envelope {
	consistency := make(map[string]*FieldMeta, len(fields))
	for k := range fields {
		consistency[k] = &FieldMeta{Count: 0, Peer: peer, History: nil}
	}
	return &Envelope{
		Immutable:   cloneMap(immutable),
		Fields:      cloneMap(fields),
		Consistency: consistency,
	}
}

// Update sets Fields[key] to value if it differs from the current
// value, recording the prior value in history and advancing Count. It
// reports whether a change was actually made.
func (e *Envelope) Update(key string, value any, peer string) bool {
	current, existed := e.Fields[key]
	if existed && valuesEqual(current, value) {
		return false
	}
	meta, ok := e.Consistency[key]
	if !ok {
		meta = &FieldMeta{Peer: peer}
		e.Consistency[key] = meta
	}
	meta.History = append(meta.History, HistoryEntry{Prev: current, Peer: meta.Peer})
	meta.Count++
	meta.Peer = peer
	e.Fields[key] = value
	return true
}

// Clone produces a deep copy safe to mutate independently of e.
func (e *Envelope) Clone() *Envelope {
	if e == nil {
		return nil
	}
	consistency := make(map[string]*FieldMeta, len(e.Consistency))
	for k, v := range e.Consistency {
		history := make([]HistoryEntry, len(v.History))
		copy(history, v.History)
		consistency[k] = &FieldMeta{Count: v.Count, Peer: v.Peer, History: history}
	}
	return &Envelope{
		Immutable:   cloneMap(e.Immutable),
		Fields:      cloneMap(e.Fields),
		Consistency: consistency,
	}
}

// ImmutableEqual reports whether e and other agree, by valuesEqual, on
// every immutable key present in both envelopes. A key present in only
// one of them is not compared, and a nil envelope agrees with any.
func (e *Envelope) ImmutableEqual(other *Envelope) bool {
	if e == nil || other == nil {
		return true
	}
	for k, v := range e.Immutable {
		if ov, ok := other.Immutable[k]; ok && !valuesEqual(v, ov) {
			return false
		}
	}
	return true
}

// ValuesEqual reports whether two field values are equal, tolerating
// the type differences JSON round-tripping introduces (e.g. float64
// vs int).
func ValuesEqual(a, b any) bool {
	return valuesEqual(a, b)
}

func valuesEqual(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	// Values round-tripped through JSON (e.g. after wire transfer) can
	// differ in Go type (float64 vs int) while being equal in content;
	// fall back to a JSON-normalized comparison.
	aj, err1 := json.Marshal(a)
	bj, err2 := json.Marshal(b)
	if err1 != nil || err2 != nil {
		return false
	}
	var an, bn any
	if json.Unmarshal(aj, &an) != nil || json.Unmarshal(bj, &bn) != nil {
		return false
	}
	return reflect.DeepEqual(an, bn)
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ToFieldMap marshals v through JSON into a map[string]any, splitting
// off the keys named in immutableKeys. It is how concrete record types
// (Incident, Scratchpad) are lifted onto an Envelope.
func ToFieldMap(v any, immutableKeys []string) (immutable, fields map[string]any, err error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal record: %w", err)
	}
	var all map[string]any
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, nil, fmt.Errorf("unmarshal record into field map: %w", err)
	}
	immutableSet := make(map[string]bool, len(immutableKeys))
	for _, k := range immutableKeys {
		immutableSet[k] = true
	}
	immutable = map[string]any{}
	fields = map[string]any{}
	for k, v := range all {
		if immutableSet[k] {
			immutable[k] = v
		} else {
			fields[k] = v
		}
	}
	return immutable, fields, nil
}

// FromFieldMap reconstructs a concrete record of type *out from an
// envelope's immutable and mutable field maps.
func FromFieldMap(immutable, fields map[string]any, out any) error {
	merged := make(map[string]any, len(immutable)+len(fields))
	for k, v := range immutable {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	raw, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("marshal merged field map: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unmarshal field map into record: %w", err)
	}
	return nil
}
