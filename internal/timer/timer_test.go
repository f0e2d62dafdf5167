package timer

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(sec int) time.Time {
	return base.Add(time.Duration(sec) * time.Second)
}

func expiries(r *Registry) []time.Time {
	var out []time.Time
	r.Each(func(e Entry) bool {
		out = append(out, e.Expire)
		return true
	})
	return out
}

func slots(r *Registry) []int32 {
	var out []int32
	r.Each(func(e Entry) bool {
		out = append(out, e.Data.Slot)
		return true
	})
	return out
}

func requireSorted(t *testing.T, r *Registry) {
	t.Helper()
	var list = expiries(r)
	require.Len(t, list, r.Len())
	for i := 1; i < len(list); i++ {
		require.False(t, list[i].Before(list[i-1]), "entry %d expires before entry %d", i, i-1)
	}
}

func TestAdd(t *testing.T) {
	t.Run("KeepsAscendingOrder", func(t *testing.T) {
		var r = New(4)
		r.Add(Entry{Expire: at(30), Data: ClientData{Slot: 3}})
		r.Add(Entry{Expire: at(10), Data: ClientData{Slot: 1}})
		r.Add(Entry{Expire: at(20), Data: ClientData{Slot: 2}})
		r.Add(Entry{Expire: at(40), Data: ClientData{Slot: 4}})

		assert.Equal(t, []int32{1, 2, 3, 4}, slots(r))
		assert.Equal(t, 4, r.Len())
	})

	t.Run("EqualExpiriesKeepInsertionOrder", func(t *testing.T) {
		var r = New(0)
		r.Add(Entry{Expire: at(10), Data: ClientData{Slot: 1}})
		r.Add(Entry{Expire: at(10), Data: ClientData{Slot: 2}})
		r.Add(Entry{Expire: at(10), Data: ClientData{Slot: 3}})

		assert.Equal(t, []int32{1, 2, 3}, slots(r))
	})

	t.Run("EarlierThanHeadBecomesHead", func(t *testing.T) {
		var r = New(0)
		r.Add(Entry{Expire: at(10), Data: ClientData{Slot: 1}})
		r.Add(Entry{Expire: at(5), Data: ClientData{Slot: 0}})

		next, ok := r.Next()
		require.True(t, ok)
		assert.Equal(t, at(5), next)
	})
}

func TestAdjust(t *testing.T) {
	t.Run("ForwardMovesPastLaterEntries", func(t *testing.T) {
		var r = New(0)
		var h1 = r.Add(Entry{Expire: at(10), Data: ClientData{Slot: 1}})
		r.Add(Entry{Expire: at(20), Data: ClientData{Slot: 2}})
		r.Add(Entry{Expire: at(30), Data: ClientData{Slot: 3}})

		require.True(t, r.Adjust(h1, at(25)))
		assert.Equal(t, []int32{2, 1, 3}, slots(r))

		require.True(t, r.Adjust(h1, at(35)))
		assert.Equal(t, []int32{2, 3, 1}, slots(r))
	})

	t.Run("ForwardWithinGapStaysInPlace", func(t *testing.T) {
		var r = New(0)
		var h1 = r.Add(Entry{Expire: at(10), Data: ClientData{Slot: 1}})
		r.Add(Entry{Expire: at(20), Data: ClientData{Slot: 2}})

		require.True(t, r.Adjust(h1, at(15)))
		assert.Equal(t, []int32{1, 2}, slots(r))

		e, ok := r.Get(h1)
		require.True(t, ok)
		assert.Equal(t, at(15), e.Expire)
	})

	t.Run("BackwardReinsertsFromHead", func(t *testing.T) {
		var r = New(0)
		r.Add(Entry{Expire: at(10), Data: ClientData{Slot: 1}})
		r.Add(Entry{Expire: at(20), Data: ClientData{Slot: 2}})
		var h3 = r.Add(Entry{Expire: at(30), Data: ClientData{Slot: 3}})

		require.True(t, r.Adjust(h3, at(5)))
		assert.Equal(t, []int32{3, 1, 2}, slots(r))
		requireSorted(t, r)
	})

	t.Run("StaleHandleIgnored", func(t *testing.T) {
		var r = New(0)
		var h = r.Add(Entry{Expire: at(10)})
		require.True(t, r.Delete(h))
		r.Add(Entry{Expire: at(20)})

		assert.False(t, r.Adjust(h, at(50)))
		assert.Equal(t, []time.Time{at(20)}, expiries(r))
	})
}

func TestDelete(t *testing.T) {
	var r = New(0)
	var h1 = r.Add(Entry{Expire: at(10), Data: ClientData{Slot: 1}})
	var h2 = r.Add(Entry{Expire: at(20), Data: ClientData{Slot: 2}})
	var h3 = r.Add(Entry{Expire: at(30), Data: ClientData{Slot: 3}})

	require.True(t, r.Delete(h2))
	assert.Equal(t, []int32{1, 3}, slots(r))

	require.True(t, r.Delete(h1))
	require.True(t, r.Delete(h3))
	assert.Equal(t, 0, r.Len())
	_, ok := r.Next()
	assert.False(t, ok)

	assert.False(t, r.Delete(h1), "double delete")
	assert.False(t, r.Delete(Handle{}), "zero handle")
}

func TestTick(t *testing.T) {
	t.Run("StopsAtFirstFutureEntry", func(t *testing.T) {
		var r = New(0)
		var evicted []int32
		var cb = func(d ClientData) { evicted = append(evicted, d.Slot) }
		r.Add(Entry{Expire: at(10), Callback: cb, Data: ClientData{Slot: 1}})
		r.Add(Entry{Expire: at(20), Callback: cb, Data: ClientData{Slot: 2}})
		r.Add(Entry{Expire: at(30), Callback: cb, Data: ClientData{Slot: 3}})

		assert.Equal(t, 2, r.Tick(at(20)))
		assert.Equal(t, []int32{1, 2}, evicted)
		assert.Equal(t, []int32{3}, slots(r))

		assert.Equal(t, 0, r.Tick(at(29)))
		assert.Equal(t, 1, r.Len())
	})

	t.Run("AdjustedEntrySurvives", func(t *testing.T) {
		var r = New(0)
		var evicted []int32
		var cb = func(d ClientData) { evicted = append(evicted, d.Slot) }
		r.Add(Entry{Expire: at(15), Callback: cb, Data: ClientData{Slot: 1}})
		var h2 = r.Add(Entry{Expire: at(15), Callback: cb, Data: ClientData{Slot: 2}})

		r.Adjust(h2, at(45))
		r.Tick(at(20))

		assert.Equal(t, []int32{1}, evicted)
		_, ok := r.Get(h2)
		assert.True(t, ok)
	})

	t.Run("CallbackMayReenter", func(t *testing.T) {
		var r = New(0)
		var other Handle
		var cb = func(d ClientData) {
			r.Delete(other)
			r.Add(Entry{Expire: at(100), Data: ClientData{Slot: 9}})
		}
		r.Add(Entry{Expire: at(10), Callback: cb, Data: ClientData{Slot: 1}})
		other = r.Add(Entry{Expire: at(50), Data: ClientData{Slot: 2}})

		assert.Equal(t, 1, r.Tick(at(10)))
		assert.Equal(t, []int32{9}, slots(r))
	})
}

func TestRandomOperationsStaySorted(t *testing.T) {
	var rng = rand.New(rand.NewSource(42))
	var r = New(16)
	var live []Handle

	for i := 0; i < 5000; i++ {
		switch op := rng.Intn(10); {
		case op < 4 || len(live) == 0:
			live = append(live, r.Add(Entry{Expire: at(rng.Intn(1000))}))
		case op < 7:
			var h = live[rng.Intn(len(live))]
			e, ok := r.Get(h)
			require.True(t, ok)
			require.True(t, r.Adjust(h, e.Expire.Add(time.Duration(rng.Intn(200))*time.Second)))
		case op < 9:
			var k = rng.Intn(len(live))
			require.True(t, r.Delete(live[k]))
			live = append(live[:k], live[k+1:]...)
		default:
			var h = live[rng.Intn(len(live))]
			require.True(t, r.Adjust(h, at(rng.Intn(1000))))
		}
		requireSorted(t, r)
	}
	assert.Equal(t, len(live), r.Len())
}
