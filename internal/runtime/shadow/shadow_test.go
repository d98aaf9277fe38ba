package shadow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestRoundTrip exercises spec.md §8's shadow round-trip law:
// unpoison(addr, n); check_access(addr, n) never reports, and
// poison(addr, n); check_access(addr, 1) reports for every byte in range.
func TestRoundTrip(t *testing.T) {
	m := New()
	const addr = uintptr(0x400000)
	const n = 24

	m.PoisonRange(addr, n)
	for i := uintptr(0); i < n; i++ {
		require.True(t, m.CheckAccess(addr+i, 1), "byte %d should be poisoned", i)
	}

	m.UnpoisonRange(addr, n)
	require.False(t, m.CheckAccess(addr, n))
	for i := uintptr(0); i < n; i++ {
		require.False(t, m.CheckAccess(addr+i, 1))
	}
}

// TestPartialTailWord verifies the padding-tail semantics from spec.md
// §3: an allocation of reqSize accessible bytes followed by poisoned
// padding up to the next 8-byte boundary.
func TestPartialTailWord(t *testing.T) {
	m := New()
	const addr = uintptr(0x500000)

	m.UnpoisonRange(addr, 5) // reqSize=5: shadow byte 5 leaves bytes 5..7 poisoned
	m.PoisonRange(addr+8, 8) // padding from the next 8-byte boundary up to realSize=16

	require.False(t, m.CheckAccess(addr, 5))
	require.True(t, m.CheckAccess(addr+5, 1))
	require.True(t, m.CheckAccess(addr+7, 1))
}

func TestUnmappedWordReadsPoisoned(t *testing.T) {
	m := New()
	require.True(t, m.CheckAccess(0x999999, 1))
}

func TestGrowthAcrossManyPages(t *testing.T) {
	m := New()
	for i := 0; i < 1<<17; i++ {
		addr := uintptr(i) << pageBits
		m.UnpoisonRange(addr, 8)
	}
	require.False(t, m.CheckAccess(uintptr(123)<<pageBits, 8))
}

func TestMaxBytesStopsNewPageAllocation(t *testing.T) {
	m := New()
	m.SetMaxBytes(pageSize) // exactly one page's worth

	// One shadow page covers pageSize<<shadowShift bytes of heap.
	const span = uintptr(pageSize) << shadowShift

	m.UnpoisonRange(span, 8) // first page, should succeed
	require.False(t, m.CheckAccess(span, 8))

	// A second page's worth of addresses can't allocate once the byte
	// budget is exhausted, so it reads as poisoned (the safe default).
	m.UnpoisonRange(2*span, 8)
	require.True(t, m.CheckAccess(2*span, 8))
}
