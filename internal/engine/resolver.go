package engine

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/tillpoint/possync/internal/domain/mutation"
	"github.com/tillpoint/possync/internal/domain/record"
	"github.com/tillpoint/possync/internal/domain/synclog"
)

// Resolution is the merged state for a conflicted mutation.
type Resolution struct {
	Payload   record.Payload
	Tombstone bool
	Status    synclog.Status
	// Fields lists the keys where local and remote both changed.
	Fields []string
	// Quantity is set when a quantity delta was reapplied.
	Quantity bool
}

// Resolver merges a local mutation with the latest remote row.
//
// Scalar fields use last-writer-wins: the local value is kept when the
// mutation was made after the remote row was last modified. Quantity and
// balance fields reapply the local delta (payload minus base) on top of the
// remote value. A remote tombstone always wins.
type Resolver struct{}

// Resolve merges m onto latest.
func (Resolver) Resolve(m *mutation.Mutation, latest *record.Record) Resolution {
	if latest == nil {
		return Resolution{Payload: m.Payload.Clone(), Status: synclog.StatusSuccess}
	}
	if latest.Tombstone {
		return Resolution{Payload: latest.Payload.Clone(), Tombstone: true, Status: synclog.StatusPartial}
	}
	if m.Op == mutation.OpDelete {
		// Local delete against a remote edit: the delete is replayed.
		return Resolution{Payload: latest.Payload.Clone(), Tombstone: true, Status: synclog.StatusPartial}
	}

	policy := m.Table.Policy()
	localWins := m.CreatedAt.After(latest.ModifiedAt)
	out := latest.Payload.Clone()
	if out == nil {
		out = record.Payload{}
	}
	res := Resolution{Status: synclog.StatusSuccess}

	for _, key := range changedKeys(m.Payload, m.BasePayload) {
		local, hasLocal := m.Payload[key]
		remoteVal, hasRemote := latest.Payload[key]
		base, hasBase := m.BasePayload[key]
		remoteChanged := !hasBase || !hasRemote || !sameValue(base, remoteVal)
		if remoteChanged {
			res.Fields = append(res.Fields, key)
		}

		if policy.IsQuantity(key) && hasLocal && hasBase && hasRemote {
			merged, ok := reapplyDelta(local, base, remoteVal)
			if ok {
				out[key] = merged
				if remoteChanged {
					res.Quantity = true
				}
				continue
			}
		}

		if remoteChanged && !localWins {
			continue
		}
		if hasLocal {
			out[key] = local
		} else {
			delete(out, key)
		}
	}

	if res.Quantity {
		res.Status = synclog.StatusPartial
	}
	res.Payload = out
	return res
}

// Rebase moves a queued mutation onto a newly acknowledged payload: keys
// the mutation did not touch take the acknowledged value, quantity keys
// carry their delta forward and other touched keys keep the local value.
func (Resolver) Rebase(m *mutation.Mutation, onto record.Payload) record.Payload {
	policy := m.Table.Policy()
	out := onto.Clone()
	if out == nil {
		out = record.Payload{}
	}
	for _, key := range changedKeys(m.Payload, m.BasePayload) {
		local, hasLocal := m.Payload[key]
		base, hasBase := m.BasePayload[key]
		acked, hasAcked := onto[key]
		if policy.IsQuantity(key) && hasLocal && hasBase && hasAcked {
			if merged, ok := reapplyDelta(local, base, acked); ok {
				out[key] = merged
				continue
			}
		}
		if hasLocal {
			out[key] = local
		} else {
			delete(out, key)
		}
	}
	return out
}

// changedKeys lists keys whose value differs between payload and base.
func changedKeys(payload, base record.Payload) []string {
	seen := make(map[string]bool, len(payload)+len(base))
	var keys []string
	visit := func(k string) {
		if seen[k] {
			return
		}
		seen[k] = true
		a, okA := payload[k]
		b, okB := base[k]
		if okA != okB || !sameValue(a, b) {
			keys = append(keys, k)
		}
	}
	for k := range payload {
		visit(k)
	}
	for k := range base {
		visit(k)
	}
	sort.Strings(keys)
	return keys
}

func reapplyDelta(local, base, remote any) (json.Number, bool) {
	l, okL := toDecimal(local)
	b, okB := toDecimal(base)
	r, okR := toDecimal(remote)
	if !okL || !okB || !okR {
		return "", false
	}
	return json.Number(r.Add(l.Sub(b)).String()), true
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(n)
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case int32:
		return decimal.NewFromInt32(n), true
	default:
		return decimal.Decimal{}, false
	}
}

func sameValue(a, b any) bool {
	if da, ok := toDecimal(a); ok {
		if _, isString := a.(string); !isString {
			if db, ok := toDecimal(b); ok {
				if _, isString := b.(string); !isString {
					return da.Equal(db)
				}
			}
		}
	}
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return fmt.Sprint(a) == fmt.Sprint(b)
	}
	return string(ja) == string(jb)
}
