package trust

import (
	"crypto/rand"
	"math"
	"testing"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/storagenet/storage/leveldbkv"
)

func TestNewLedger_RejectsAlphaOutsideUnitInterval(t *testing.T) {
	for _, a := range []float64{0, 1, -0.1, 1.5, math.NaN()} {
		_, err := NewLedger(a)
		assert.Error(t, err, "alpha=%v", a)
	}
	l, err := NewLedger(0.9)
	require.NoError(t, err)
	assert.Equal(t, 0.9, l.Alpha())
}

func TestEMA_Deterministic(t *testing.T) {
	assert.InDelta(t, 0.9, EMA(0.9, 1, 0), 1e-12)
	assert.InDelta(t, 1.0, EMA(0.9, 1, 1), 1e-12)
	assert.InDelta(t, 0.1, EMA(0.9, 0, 1), 1e-12)
	assert.Equal(t, EMA(0.9, 0.37, 1), EMA(0.9, 0.37, 1))
}

func TestLedger_ThreePeerScenario(t *testing.T) {
	l, err := NewLedger(0.9)
	require.NoError(t, err)
	ids := []peer.ID{"a", "b", "c"}
	l.Set("a", 1.0)
	l.Set("b", 0.5)
	l.Set("c", 0.0)

	l.Observe("a", 1)
	l.Observe("b", 0)
	l.Observe("c", 1)

	got := l.Scores(ids)
	assert.InDelta(t, 1.0, got[0], 1e-12)
	assert.InDelta(t, 0.45, got[1], 1e-12)
	assert.InDelta(t, 0.1, got[2], 1e-12)
}

func TestLedger_LazyDefault(t *testing.T) {
	l, err := NewLedger(0.9)
	require.NoError(t, err)
	assert.Empty(t, l.Known())
	assert.Equal(t, InitialScore, l.Score("new"))
	assert.Equal(t, []peer.ID{"new"}, l.Known())
	assert.InDelta(t, 0.9, l.Observe("other", 0), 1e-12)
}

func TestLedger_Convergence(t *testing.T) {
	l, err := NewLedger(0.9)
	require.NoError(t, err)
	prev := l.Score("bad")
	for i := 0; i < 500; i++ {
		s := l.Observe("bad", 0)
		require.GreaterOrEqual(t, s, 0.0)
		require.LessOrEqual(t, s, prev)
		prev = s
		require.Equal(t, 1.0, l.Observe("good", 1))
	}
	assert.Less(t, l.Score("bad"), 1e-6)
	assert.Equal(t, 1.0, l.Score("good"))
}

func TestNormalize(t *testing.T) {
	w := Normalize([]float64{1.0, 0.45, 0.1})
	var sum float64
	for _, x := range w {
		sum += x
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
	assert.Greater(t, w[0], w[1])
	assert.Greater(t, w[1], w[2])
	assert.InDelta(t, 1.0/1.55, w[0], 1e-12)

	assert.Equal(t, []float64{0.25, 0.25, 0.25, 0.25}, Normalize([]float64{0, 0, 0, 0}))
	assert.Equal(t, []float64{0.5, 0.5}, Normalize([]float64{-1, math.NaN()}))
	assert.Equal(t, []float64{0, 1}, Normalize([]float64{-3, 2}))
	assert.Empty(t, Normalize(nil))
}

func TestLedger_Weights(t *testing.T) {
	l, err := NewLedger(0.9)
	require.NoError(t, err)
	l.Set("a", 3)
	w := l.Weights([]peer.ID{"a", "b"})
	assert.InDelta(t, 0.75, w[0], 1e-12)
	assert.InDelta(t, 0.25, w[1], 1e-12)
}

func newID(t *testing.T) peer.ID {
	t.Helper()
	sk, _, err := crypto.GenerateEd25519Key(rand.Reader)
	require.NoError(t, err)
	id, err := peer.IDFromPrivateKey(sk)
	require.NoError(t, err)
	return id
}

func TestSaveLoad(t *testing.T) {
	kv, err := leveldbkv.OpenMemory()
	require.NoError(t, err)
	defer kv.Close()

	empty, err := Load(kv, 0.9)
	require.NoError(t, err)
	assert.Empty(t, empty.Known())

	a, b := newID(t), newID(t)
	l, err := NewLedger(0.9)
	require.NoError(t, err)
	l.Observe(a, 0)
	l.Observe(b, 1)
	require.NoError(t, Save(kv, l))

	got, err := Load(kv, 0.8)
	require.NoError(t, err)
	assert.Equal(t, 0.8, got.Alpha())
	assert.Equal(t, l.Snapshot(), got.Snapshot())

	require.NoError(t, kv.Put(SnapshotKey, []byte("{not json")))
	_, err = Load(kv, 0.9)
	assert.Error(t, err)
}
