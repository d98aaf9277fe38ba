package main

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestWriteTruncatedNulTerminatesShortString(t *testing.T) {
	buf := make([]byte, 16)
	writeTruncatedPtr(unsafe.Pointer(&buf[0]), len(buf), "ok")
	require.Equal(t, byte('o'), buf[0])
	require.Equal(t, byte('k'), buf[1])
	require.Equal(t, byte(0), buf[2])
}

func TestWriteTruncatedTruncatesLongString(t *testing.T) {
	buf := make([]byte, 4)
	writeTruncatedPtr(unsafe.Pointer(&buf[0]), len(buf), "abcdefgh")
	require.Equal(t, []byte("abc"), buf[:3])
	require.Equal(t, byte(0), buf[3])
}

func TestWriteTruncatedIgnoresNilBuffer(t *testing.T) {
	require.NotPanics(t, func() {
		writeTruncatedPtr(nil, 16, "ok")
	})
}
