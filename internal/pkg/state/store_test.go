package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_DeclareIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.Declare(ctx, Property{Path: "a.b", Name: "b", Type: TypeNumber, Unit: "°C"}))
	require.NoError(t, s.Write(ctx, "a.b", 21))
	// a second declaration keeps the original property and its value.
	require.NoError(t, s.Declare(ctx, Property{Path: "a.b", Name: "b", Type: TypeString}))

	entry, ok := s.Get("a.b")
	require.True(t, ok)
	assert.Equal(t, TypeNumber, entry.Type)
	assert.Equal(t, float64(21), entry.Value)
	assert.True(t, entry.Ack)
}

func TestStore_Write(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.Declare(ctx, Property{Path: "on", Type: TypeBoolean}))

	assert.ErrorIs(t, s.Write(ctx, "missing", 1), ErrUnknownProperty)
	assert.ErrorIs(t, s.Write(ctx, "on", struct{}{}), ErrInvalidValue)

	require.NoError(t, s.Write(ctx, "on", true))
	assert.Equal(t, true, s.Value("on"))

	require.NoError(t, s.Write(ctx, "on", nil))
	assert.Nil(t, s.Value("on"))
}

func TestStore_SetDispatchesOnce(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.Declare(ctx, Property{Path: "zone.target_temperature", Type: TypeNumber, Write: true}))

	calls := 0
	var got any
	require.NoError(t, s.Subscribe("zone.target_temperature", func(_ context.Context, path string, value any) {
		calls++
		got = value
		assert.Equal(t, "zone.target_temperature", path)
	}))

	require.NoError(t, s.Set(ctx, "zone.target_temperature", 22))
	assert.Equal(t, 1, calls)
	assert.Equal(t, float64(22), got)

	entry, _ := s.Get("zone.target_temperature")
	assert.False(t, entry.Ack)
}

func TestStore_SetReadOnly(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.Declare(ctx, Property{Path: "zone.current_temperature", Type: TypeNumber}))

	assert.ErrorIs(t, s.Set(ctx, "zone.current_temperature", 22), ErrReadOnly)
	assert.ErrorIs(t, s.Subscribe("zone.current_temperature", func(context.Context, string, any) {}), ErrReadOnly)
	assert.ErrorIs(t, s.Set(ctx, "nope", 1), ErrUnknownProperty)
}

func TestStore_Events(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	ch := make(chan Event, 8)
	s.Events().Subscribe(ch)
	defer s.Events().Unsubscribe(ch)

	require.NoError(t, s.Declare(ctx, Property{Path: "x", Type: TypeString, Write: true}))
	require.NoError(t, s.Write(ctx, "x", "a"))
	require.NoError(t, s.Set(ctx, "x", "b"))

	kinds := []EventKind{}
	for i := 0; i < 3; i++ {
		select {
		case e := <-ch:
			kinds = append(kinds, e.Kind)
		case <-time.After(time.Second):
			t.Fatal("missing event")
		}
	}
	assert.Equal(t, []EventKind{EventDeclared, EventWritten, EventRequested}, kinds)
}

func TestStore_ListSorted(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	for _, p := range []string{"b", "a.c", "a"} {
		require.NoError(t, s.Declare(ctx, Property{Path: p, Type: TypeString}))
	}
	list := s.List()
	require.Len(t, list, 3)
	assert.Equal(t, "a", list[0].Path)
	assert.Equal(t, "a.c", list[1].Path)
	assert.Equal(t, "b", list[2].Path)
}

func TestCoerce(t *testing.T) {
	v, err := Coerce(TypeBoolean, "on")
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = Coerce(TypeNumber, true)
	require.NoError(t, err)
	assert.Equal(t, float64(1), v)

	v, err = Coerce(TypeString, 3.5)
	require.NoError(t, err)
	assert.Equal(t, "3.5", v)

	_, err = Coerce(TypeNumber, "warm")
	assert.ErrorIs(t, err, ErrInvalidValue)

	assert.Equal(t, "a.b.c", Join("a", "", "b", "c"))
}
