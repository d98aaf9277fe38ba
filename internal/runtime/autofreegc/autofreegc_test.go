package autofreegc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coretrace/coretrace/internal/runtime/alloctable"
)

type fakeScanner struct {
	roots     []uintptr
	suspended int
}

func (f *fakeScanner) Suspend(ctx context.Context) (func(), error) {
	f.suspended++
	return func() {}, nil
}

func (f *fakeScanner) Roots() []uintptr { return f.roots }

type fakeDealloc struct {
	freed   []uintptr
	munmaps []uintptr
}

func (f *fakeDealloc) Free(ptr uintptr)                    { f.freed = append(f.freed, ptr) }
func (f *fakeDealloc) Munmap(ptr uintptr, length uint64) int { f.munmaps = append(f.munmaps, ptr); return 0 }

func TestCycleSweepsUnmarkedAllocations(t *testing.T) {
	table := alloctable.New()
	table.Insert(0x1000, 16, 16, "main.c:1:1", alloctable.MallocLike)
	table.Insert(0x2000, 16, 16, "main.c:2:1", alloctable.MallocLike)

	scanner := &fakeScanner{roots: []uintptr{0x1000}} // only 0x1000 is still referenced
	dealloc := &fakeDealloc{}
	gc := New(table, scanner, dealloc)

	require.NoError(t, gc.Cycle(context.Background()))

	require.Equal(t, 1, scanner.suspended)
	require.Equal(t, []uintptr{0x2000}, dealloc.freed)

	_, ok := table.Lookup(0x1000)
	require.True(t, ok, "referenced allocation must survive the sweep")
	// A swept entry stays in the table as an Autofreed tombstone.
	swept, ok := table.Lookup(0x2000)
	require.True(t, ok)
	require.Equal(t, alloctable.Autofreed, swept.State, "unreferenced allocation must be swept")
}

func TestCycleFreesMmapThroughMunmap(t *testing.T) {
	table := alloctable.New()
	table.Insert(0x3000, 4096, 4096, "main.c:3:1", alloctable.MmapLike)

	scanner := &fakeScanner{}
	dealloc := &fakeDealloc{}
	gc := New(table, scanner, dealloc)

	require.NoError(t, gc.Cycle(context.Background()))
	require.Equal(t, []uintptr{0x3000}, dealloc.munmaps)
	require.Empty(t, dealloc.freed)
}

func TestScanPointerFindsLiveRoot(t *testing.T) {
	table := alloctable.New()
	scanner := &fakeScanner{roots: []uintptr{0x1000, 0x4000}}
	gc := New(table, scanner, &fakeDealloc{})

	found, err := gc.ScanPointer(context.Background(), 0x4000)
	require.NoError(t, err)
	require.True(t, found)

	found, err = gc.ScanPointer(context.Background(), 0x9999)
	require.NoError(t, err)
	require.False(t, found)
}

func TestScanInteriorMarksContainingAllocation(t *testing.T) {
	table := alloctable.New()
	table.Insert(0x5000, 64, 64, "main.c:5:1", alloctable.MallocLike)

	scanner := &fakeScanner{roots: []uintptr{0x5000 + 8}} // interior pointer
	dealloc := &fakeDealloc{}
	gc := New(table, scanner, dealloc)
	gc.ScanInterior = true

	require.NoError(t, gc.Cycle(context.Background()))
	_, ok := table.Lookup(0x5000)
	require.True(t, ok, "interior-pointer root must keep the allocation alive")
}
