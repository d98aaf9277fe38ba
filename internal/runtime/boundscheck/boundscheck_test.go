package boundscheck

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coretrace/coretrace/internal/runtime/alloctable"
	"github.com/coretrace/coretrace/internal/runtime/features"
	"github.com/coretrace/coretrace/internal/runtime/logger"
	"github.com/coretrace/coretrace/internal/runtime/shadow"
)

func newChecker(t *testing.T) *Checker {
	t.Cleanup(func() {
		features.Reset()
		features.SetBoundsAbort(true)
		SetAbortHookForTest(nil)
		logger.Disable()
	})
	logger.Enable()
	features.Reset()
	return &Checker{Table: alloctable.New(), Shadow: shadow.New()}
}

// TestOverflowAborts reproduces spec.md §8 scenario 2: char *p =
// malloc(4); p[4] = 1; must report heap-buffer-overflow and abort.
func TestOverflowAborts(t *testing.T) {
	c := newChecker(t)
	c.Table.Insert(0x1000, 4, 4, "main.c:1:1", alloctable.MallocLike)

	var buf bytes.Buffer
	logger.SetOutput(&buf)

	aborted := false
	SetAbortHookForTest(func() { aborted = true })

	c.Check(0x1000, 0x1004, 1, "main.c:2:1", true)

	require.True(t, aborted)
	require.Contains(t, buf.String(), "heap-buffer-overflow")
	require.Contains(t, buf.String(), "WRITE of size 1")
	require.Contains(t, buf.String(), "offset=4")
	require.Contains(t, buf.String(), "alloc_size=4")
}

// TestBoundsNoAbortContinues verifies CT_BOUNDS_NO_ABORT behavior: the
// violation is still reported but the process is not aborted.
func TestBoundsNoAbortContinues(t *testing.T) {
	c := newChecker(t)
	features.SetBoundsAbort(false)
	c.Table.Insert(0x2000, 4, 4, "main.c:1:1", alloctable.MallocLike)

	var buf bytes.Buffer
	logger.SetOutput(&buf)
	aborted := false
	SetAbortHookForTest(func() { aborted = true })

	c.Check(0x2000, 0x2004, 1, "main.c:2:1", true)

	require.False(t, aborted)
	require.Contains(t, buf.String(), "heap-buffer-overflow")
}

// TestUseAfterFree reproduces spec.md §8 scenario 3.
func TestUseAfterFree(t *testing.T) {
	c := newChecker(t)
	c.Table.Insert(0x3000, 4, 4, "main.c:1:1", alloctable.MallocLike)
	c.Table.Remove(0x3000)

	var buf bytes.Buffer
	logger.SetOutput(&buf)
	SetAbortHookForTest(func() {})

	c.Check(0x3000, 0x3000, 1, "main.c:3:1", true)

	require.Contains(t, buf.String(), "heap-use-after-free")
	require.Contains(t, buf.String(), "WRITE of size 1")
}

func TestInBoundsAccessDoesNotReport(t *testing.T) {
	c := newChecker(t)
	c.Table.Insert(0x4000, 8, 8, "main.c:1:1", alloctable.MallocLike)

	var buf bytes.Buffer
	logger.SetOutput(&buf)

	c.Check(0x4000, 0x4004, 4, "main.c:2:1", false)
	require.Empty(t, buf.String())
}

func TestDisabledFeatureSkipsCheck(t *testing.T) {
	c := newChecker(t)
	features.SetEnabled(features.Bounds, false)
	c.Table.Insert(0x5000, 4, 4, "main.c:1:1", alloctable.MallocLike)

	var buf bytes.Buffer
	logger.SetOutput(&buf)
	c.Check(0x5000, 0x5004, 1, "main.c:2:1", true)
	require.Empty(t, buf.String())
}
