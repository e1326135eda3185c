package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingBackend struct {
	*Memory
	err error
}

func (f *failingBackend) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, f.err
}

func (f *failingBackend) Put(ctx context.Context, key string, value []byte) error {
	return f.err
}

func TestGatewaySaveLoad(t *testing.T) {
	ctx := context.Background()
	g := NewGateway(NewMemory())

	data, ok, err := g.Load(ctx, g.AutosaveKey())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, data)

	require.NoError(t, g.Save(ctx, g.AutosaveKey(), []byte("state")))
	data, ok, err = g.Load(ctx, g.AutosaveKey())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "state", string(data))

	require.NoError(t, g.Delete(ctx, g.AutosaveKey()))
	_, ok, err = g.Load(ctx, g.AutosaveKey())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGatewayNamespacesIsolate(t *testing.T) {
	ctx := context.Background()
	backend := NewMemory()
	alice := NewGateway(backend, WithNamespace("alice"))
	bob := NewGateway(backend, WithNamespace("/bob/"))
	plain := NewGateway(backend)

	require.NoError(t, alice.Save(ctx, DefaultAutosaveKey, []byte("a")))
	require.NoError(t, bob.Save(ctx, DefaultAutosaveKey, []byte("b")))
	require.NoError(t, plain.Save(ctx, DefaultAutosaveKey, []byte("p")))

	got, _, _ := alice.Load(ctx, DefaultAutosaveKey)
	assert.Equal(t, "a", string(got))
	got, _, _ = bob.Load(ctx, DefaultAutosaveKey)
	assert.Equal(t, "b", string(got))

	raw, err := backend.Get(ctx, "alice/rpg_autosave")
	require.NoError(t, err)
	assert.Equal(t, "a", string(raw))
	assert.Equal(t, "bob", bob.Namespace())

	require.NoError(t, alice.Save(ctx, DefaultLedgerKey, []byte("[]")))
	ns, err := Namespaces(ctx, backend, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"", "alice", "bob"}, ns)
}

func TestGatewaySlots(t *testing.T) {
	g := NewGateway(NewMemory(), WithSlots("auto", ""))
	assert.Equal(t, "auto", g.AutosaveKey())
	assert.Equal(t, DefaultLedgerKey, g.LedgerKey())
	assert.Equal(t, DefaultLegacyKey, g.LegacyKey())

	g = NewGateway(NewMemory(), WithLegacySlot("hall"), WithLegacySlot(""))
	assert.Equal(t, "hall", g.LegacyKey())
}

func TestGatewayWrapsBackendErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk on fire")
	g := NewGateway(&failingBackend{Memory: NewMemory(), err: boom})

	err := g.Save(ctx, "slot", []byte("x"))
	assert.ErrorIs(t, err, boom)

	_, ok, err := g.Load(ctx, "slot")
	assert.ErrorIs(t, err, boom)
	assert.False(t, ok)
}
