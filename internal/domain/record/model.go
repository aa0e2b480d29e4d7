package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Payload is the JSON object body of a record. Numbers are kept as
// json.Number so quantities survive storage without float rounding.
type Payload map[string]any

// Record is one row of a synced entity table held in the local replica.
type Record struct {
	Table         Table     `json:"table"`
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	Payload       Payload   `json:"payload"`
	RemoteVersion int64     `json:"remote_version"`
	Tombstone     bool      `json:"tombstone"`
	ModifiedAt    time.Time `json:"modified_at"`
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Payload = r.Payload.Clone()
	return &cp
}

// Clone deep-copies the payload through a JSON round trip.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		cp := make(Payload, len(p))
		for k, v := range p {
			cp[k] = v
		}
		return cp
	}
	out, err := DecodePayload(data)
	if err != nil {
		return nil
	}
	return out
}

// Merge returns a copy of p with every key of patch applied on top.
func (p Payload) Merge(patch Payload) Payload {
	out := p.Clone()
	if out == nil {
		out = Payload{}
	}
	for k, v := range patch.Clone() {
		out[k] = v
	}
	return out
}

// Equal reports whether both payloads encode to the same JSON.
func (p Payload) Equal(other Payload) bool {
	a, errA := json.Marshal(p)
	b, errB := json.Marshal(other)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// EncodePayload serializes a payload for storage or transport.
func EncodePayload(p Payload) ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}

// DecodePayload parses a stored payload, keeping numbers exact.
func DecodePayload(data []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if p == nil {
		p = Payload{}
	}
	return p, nil
}
