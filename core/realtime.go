package core

import (
	"context"
	"encoding/json"
	"fmt"
)

type ChangeOp string

const (
	OpInsert ChangeOp = "INSERT"
	OpUpdate ChangeOp = "UPDATE"
	OpDelete ChangeOp = "DELETE"
)

// Change is one row-change delivered by a push channel.
// Delivery is at-least-once and unordered relative to other subscriptions.
type Change struct {
	Table string          `json:"table"`
	Op    ChangeOp        `json:"op"`
	Row   json.RawMessage `json:"row"`
}

// Decode unmarshals the changed row into dst.
func (c Change) Decode(dst interface{}) error {
	if len(c.Row) == 0 {
		return fmt.Errorf("%s %s: empty row", c.Op, c.Table)
	}
	return json.Unmarshal(c.Row, dst)
}

// Filter is an equality match on row columns, e.g. {"coach_id": "42"}.
// An empty Filter matches every row.
type Filter map[string]string

// Match reports whether every filtered column of the JSON row equals the wanted value.
func (f Filter) Match(row json.RawMessage) bool {
	if len(f) == 0 {
		return true
	}
	var cols map[string]interface{}
	if err := json.Unmarshal(row, &cols); err != nil {
		return false
	}
	for col, want := range f {
		got, ok := cols[col]
		if !ok || fmt.Sprint(got) != want {
			return false
		}
	}
	return true
}

// Subscriber is the push primitive of the persistence layer.
// The returned unsubscribe func must be safe to call more than once.
type Subscriber interface {
	Subscribe(ctx context.Context, table string, filter Filter, onChange func(Change)) (unsubscribe func(), err error)
}

// ReconnectNotifier is implemented by push channels that drop changes while reconnecting.
// fn is called once the channel is back; anything derived from it should be refetched.
type ReconnectNotifier interface {
	OnReconnect(fn func())
}
