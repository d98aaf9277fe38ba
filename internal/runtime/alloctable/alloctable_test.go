package alloctable

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInsertLookupRemove(t *testing.T) {
	tbl := New()

	ok := tbl.Insert(0x1000, 8, 16, "main.c:1:1", MallocLike)
	require.True(t, ok)
	require.Equal(t, 1, tbl.LiveCount())

	entry, found := tbl.Lookup(0x1000)
	require.True(t, found)
	require.Equal(t, Used, entry.State)
	require.EqualValues(t, 8, entry.ReqSize)
	require.EqualValues(t, 16, entry.RealSize)

	result, freed := tbl.Remove(0x1000)
	require.Equal(t, 1, result)
	require.EqualValues(t, 16, freed.RealSize)
	require.Equal(t, 0, tbl.LiveCount())

	// Second free of the same pointer is a double-free (-1), the entry
	// remains a tombstone per spec.md §3.
	result, _ = tbl.Remove(0x1000)
	require.Equal(t, -1, result)

	// Unknown pointer.
	result, _ = tbl.Remove(0xdead)
	require.Equal(t, 0, result)
}

// TestUniquenessInvariant exercises spec.md §8's table-uniqueness
// property: at most one Used entry exists per pointer at any time, even
// after the address is reused following a free.
func TestUniquenessInvariant(t *testing.T) {
	tbl := New()
	require.True(t, tbl.Insert(0x2000, 4, 8, "a.c:1:1", MallocLike))
	tbl.Remove(0x2000)
	require.True(t, tbl.Insert(0x2000, 4, 8, "a.c:2:1", MallocLike))

	entry, found := tbl.Lookup(0x2000)
	require.True(t, found)
	require.Equal(t, Used, entry.State)
	require.Equal(t, "a.c:2:1", entry.Site)
	require.Equal(t, 1, tbl.LiveCount())
}

// TestGrowthNoTableFull inserts more entries than the initial 2^16
// capacity to exercise spec.md scenario 8.4: no "alloc table full"
// (Insert returning false) should occur before max_bits is reached.
func TestGrowthNoTableFull(t *testing.T) {
	tbl := New()
	const n = 70_000

	for i := 0; i < n; i++ {
		ptr := uintptr(0x10000 + i*16)
		require.True(t, tbl.Insert(ptr, 16, 16, "t.c:1:1", MallocLike), "insert %d failed", i)
	}
	require.Equal(t, n, tbl.LiveCount())

	for i := 0; i < n; i++ {
		ptr := uintptr(0x10000 + i*16)
		result, _ := tbl.Remove(ptr)
		require.Equal(t, 1, result)
	}
	require.Equal(t, 0, tbl.LiveCount())
}

func TestLookupContaining(t *testing.T) {
	tbl := New()
	require.True(t, tbl.Insert(0x3000, 32, 32, "b.c:1:1", MallocLike))

	entry, found := tbl.LookupContaining(0x3010)
	require.True(t, found)
	require.EqualValues(t, 0x3000, entry.Ptr)

	_, found = tbl.LookupContaining(0x4000)
	require.False(t, found)
}

func TestMarkAndSweep(t *testing.T) {
	tbl := New()
	tbl.Insert(0x5000, 8, 8, "c.c:1:1", MallocLike)
	tbl.Insert(0x5100, 8, 8, "c.c:2:1", MallocLike)

	tbl.ClearMarks()
	tbl.Mark(0x5000)

	swept := tbl.Sweep()
	require.Len(t, swept, 1)
	require.EqualValues(t, 0x5100, swept[0].Ptr)
	require.Equal(t, 1, tbl.LiveCount())

	entry, found := tbl.Lookup(0x5100)
	require.True(t, found)
	require.Equal(t, Autofreed, entry.State)
}

func TestLeakReportTruncation(t *testing.T) {
	tbl := New()
	for i := 0; i < 40; i++ {
		tbl.Insert(uintptr(0x9000+i), 1, 1, "leak.c:1:1", MallocLike)
	}
	entries, truncated := tbl.LeakReport(32)
	require.Len(t, entries, 32)
	require.True(t, truncated)
}
