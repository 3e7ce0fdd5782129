package pgnotify

import (
	"context"
	"testing"
	"time"

	"github.com/lib/pq"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/coachdesk/core"
)

func TestSubscriber_dispatch(t *testing.T) {
	s := newSubscriber(nil)
	ctx := context.Background()

	var mine, all, appts []core.Change
	unsubMine, err := s.Subscribe(ctx, "alerts", core.Filter{"coach_id": "c1"}, func(c core.Change) { mine = append(mine, c) })
	require.NoError(t, err)
	_, err = s.Subscribe(ctx, "alerts", nil, func(c core.Change) { all = append(all, c) })
	require.NoError(t, err)
	_, err = s.Subscribe(ctx, "appointments", nil, func(c core.Change) { appts = append(appts, c) })
	require.NoError(t, err)

	s.dispatch([]byte(`{"table":"alerts","op":"INSERT","row":{"id":"a1","coach_id":"c1","message":"hi","is_read":false,"created_at":"2026-10-15T10:00:00.123456+00:00"}}`))
	s.dispatch([]byte(`{"table":"alerts","op":"DELETE","row":{"id":"a2","coach_id":"c2"}}`))
	s.dispatch([]byte(`not json`))
	s.dispatch([]byte(`{"table":"alerts","op":"INSERT"}`))

	require.Len(t, mine, 1)
	assert.Equal(t, core.OpInsert, mine[0].Op)
	assert.Len(t, all, 2)
	assert.Empty(t, appts)

	var row struct {
		ID      string `json:"id"`
		CoachID string `json:"coach_id"`
	}
	require.NoError(t, mine[0].Decode(&row))
	assert.Equal(t, "a1", row.ID)

	unsubMine()
	unsubMine()
	assert.Equal(t, 2, s.Subscriptions())
	s.dispatch([]byte(`{"table":"alerts","op":"UPDATE","row":{"id":"a1","coach_id":"c1","is_read":true}}`))
	assert.Len(t, mine, 1)
	assert.Len(t, all, 3)
}

func TestSubscriber_Close(t *testing.T) {
	s := newSubscriber(nil)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Subscribe(context.Background(), "alerts", nil, func(core.Change) {})
	assert.Error(t, err)
}

func TestSubscriber_OnReconnect(t *testing.T) {
	s := newSubscriber(nil)
	called := make(chan struct{}, 2)
	s.OnReconnect(func() { called <- struct{}{} })

	s.onListenerEvent(pq.ListenerEventDisconnected, nil)
	s.onListenerEvent(pq.ListenerEventReconnected, nil)

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("reconnect hook not called")
	}
	assert.Empty(t, called, "called once per reconnect")
}
