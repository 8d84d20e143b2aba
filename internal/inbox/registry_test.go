package inbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sumithjoshi99/medconnect/internal/store"
)

type fakeLister struct {
	inboxes []store.Inbox
	err     error
}

func (f *fakeLister) ListActiveInboxes(context.Context) ([]store.Inbox, error) {
	return f.inboxes, f.err
}

var (
	mountVernon = store.Inbox{ID: 1, PhoneAddress: "+19145550001", DisplayName: "Mount Vernon", Active: true, CreatedAt: 10}
	newRochelle = store.Inbox{ID: 2, PhoneAddress: "+19145550002", DisplayName: "New Rochelle", Active: true, Primary: true, CreatedAt: 20}
	yonkers     = store.Inbox{ID: 3, PhoneAddress: "+19145550003", DisplayName: "Yonkers", Active: true, CreatedAt: 5}
)

func TestLoadOrdersPrimaryFirstAndAutoSelects(t *testing.T) {
	r := NewRegistry(&fakeLister{inboxes: []store.Inbox{mountVernon, newRochelle, yonkers}}, nil)
	require.NoError(t, r.Load(context.Background()))

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, []int64{2, 3, 1}, []int64{list[0].ID, list[1].ID, list[2].ID})

	sel, ok := r.Selected()
	require.True(t, ok)
	assert.Equal(t, newRochelle.ID, sel.ID)

	p, ok := r.Primary()
	require.True(t, ok)
	assert.Equal(t, "New Rochelle", p.DisplayName)
}

func TestLoadKeepsExistingSelection(t *testing.T) {
	l := &fakeLister{inboxes: []store.Inbox{mountVernon, newRochelle}}
	r := NewRegistry(l, nil)
	require.NoError(t, r.Load(context.Background()))
	require.NoError(t, r.Select(mountVernon.ID))

	require.NoError(t, r.Load(context.Background()))
	sel, _ := r.Selected()
	assert.Equal(t, mountVernon.ID, sel.ID)

	// Selected inbox deactivated: fall back to the primary.
	l.inboxes = []store.Inbox{newRochelle}
	require.NoError(t, r.Load(context.Background()))
	sel, _ = r.Selected()
	assert.Equal(t, newRochelle.ID, sel.ID)
}

func TestLoadFailureEmptiesRegistry(t *testing.T) {
	l := &fakeLister{inboxes: []store.Inbox{mountVernon, newRochelle}}
	r := NewRegistry(l, nil)
	require.NoError(t, r.Load(context.Background()))

	l.err = errors.New("db down")
	err := r.Load(context.Background())
	require.Error(t, err)
	assert.Empty(t, r.List())
	_, ok := r.Selected()
	assert.False(t, ok, "failed load must leave nothing selected")
}

func TestLookupAndByAddress(t *testing.T) {
	r := NewRegistry(&fakeLister{inboxes: []store.Inbox{mountVernon, newRochelle}}, nil)
	require.NoError(t, r.Load(context.Background()))

	in, ok := r.Lookup(mountVernon.ID)
	require.True(t, ok)
	assert.Equal(t, "Mount Vernon", in.Label())

	in, ok = r.ByAddress("+19145550002")
	require.True(t, ok)
	assert.Equal(t, newRochelle.ID, in.ID)

	_, ok = r.ByAddress("")
	assert.False(t, ok)
	_, ok = r.Lookup(99)
	assert.False(t, ok)
	assert.Error(t, r.Select(99))
}

func TestEffectivePrimaryPolicy(t *testing.T) {
	a := store.Inbox{ID: 7, Primary: true, CreatedAt: 300}
	b := store.Inbox{ID: 4, Primary: true, CreatedAt: 100}
	c := store.Inbox{ID: 2, Primary: true, CreatedAt: 100}

	p, ok := EffectivePrimary([]store.Inbox{a, b, c})
	require.True(t, ok)
	assert.Equal(t, int64(2), p.ID, "earliest created wins, ties by lowest id")

	_, ok = EffectivePrimary([]store.Inbox{mountVernon, yonkers})
	assert.False(t, ok)

	r := NewRegistry(&fakeLister{inboxes: []store.Inbox{mountVernon, yonkers}}, nil)
	require.NoError(t, r.Load(context.Background()))
	_, ok = r.Selected()
	assert.False(t, ok, "no primary means nothing auto-selected")
	assert.Equal(t, yonkers.ID, r.List()[0].ID)
}
