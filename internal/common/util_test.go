package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------- WipeByteArray ----------

func TestWipeByteArray_ZerosBuffer(t *testing.T) {
	buf := []byte{1, 2, 3, 4, 5}
	WipeByteArray(buf)
	for i, v := range buf {
		if v != 0 {
			t.Fatalf("expected buf[%d]==0, got %d", i, v)
		}
	}
}

func TestWipeByteArray_NilSafe(t *testing.T) {
	WipeByteArray(nil)
}

// ---------- GenerateRandByteArray ----------

func TestGenerateRandByteArray_Basic(t *testing.T) {
	const n = 24
	buf := GenerateRandByteArray(n)
	if len(buf) != n {
		t.Fatalf("expected length %d, got %d", n, len(buf))
	}
}

func TestGenerateRandByteArray_EntropyHint(t *testing.T) {
	const n = 32
	a := GenerateRandByteArray(n)
	b := GenerateRandByteArray(n)

	if string(a) == string(b) {
		t.Logf("warning: two GenerateRandByteArray(%d) results are identical; extremely unlikely", n)
	}
}

// ---------- Error ----------

func TestError_MatchesKindAndCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := &Error{Op: "userfs.Sync", Workspace: "w1", Kind: ErrBackendOffline, Err: cause}

	require.ErrorIs(t, err, ErrBackendOffline)
	require.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrSync)

	wrapped := fmt.Errorf("outer: %w", err)
	var target *Error
	require.ErrorAs(t, wrapped, &target)
	assert.Equal(t, "w1", target.Workspace)
}

func TestError_Message(t *testing.T) {
	err := &Error{Op: "userfs.WorkspaceShare", Workspace: "w1", Item: "bob", Kind: ErrSharingNotAllowed}
	assert.Equal(t, "userfs.WorkspaceShare: workspace w1: bob: sharing not allowed", err.Error())

	bare := &Error{Op: "op"}
	assert.Equal(t, "op", bare.Error())
}
