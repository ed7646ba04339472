package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(dir, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGet_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(context.Background(), "PK", "SK")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutThenGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "PK", "SK", []byte("hello")))
	v, err := s.Get(ctx, "PK", "SK")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), v)
}

func TestPutIfAbsent_ConflictOnSecondWrite(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutIfAbsent(ctx, "PK", "SK", []byte("first")))
	err := s.PutIfAbsent(ctx, "PK", "SK", []byte("second"))
	assert.ErrorIs(t, err, ErrAlreadyExists)
	v, err := s.Get(ctx, "PK", "SK")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), v)
}

func TestIncrement_StartsFromZeroImplicitly(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	v1, err := s.Increment(ctx, "PK", "COUNTER")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v1)
	v2, err := s.Increment(ctx, "PK", "COUNTER")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v2)
}

func TestIncrement_ContiguousUnderRepeatedCalls(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	var last uint64
	for i := 0; i < 50; i++ {
		v, err := s.Increment(ctx, "PK", "COUNTER")
		require.NoError(t, err)
		assert.Greater(t, v, last)
		last = v
	}
	assert.Equal(t, uint64(50), last)
}

func TestRangeAfter_OrderedAndBounded(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		sk := sequenceSK(uint64(i))
		require.NoError(t, s.Put(ctx, "PK", sk, []byte{byte(i)}))
	}
	rows, err := s.RangeAfter(ctx, "PK", sequenceSK(2), 10)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []byte{3}, rows[0].Value)
	assert.Equal(t, []byte{4}, rows[1].Value)
	assert.Equal(t, []byte{5}, rows[2].Value)
}

func TestRangeAfter_RespectsLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		require.NoError(t, s.Put(ctx, "PK", sequenceSK(uint64(i)), []byte{byte(i)}))
	}
	rows, err := s.RangeAfter(ctx, "PK", "", 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestScanPrefix_FiltersBySKWhenGiven(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "STREAM#a", "META", []byte("a")))
	require.NoError(t, s.Put(ctx, "STREAM#a", "SUB#x", []byte("sub")))
	require.NoError(t, s.Put(ctx, "STREAM#b", "META", []byte("b")))

	rows, err := s.ScanPrefix(ctx, "STREAM#", "META")
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestDeletePK_RemovesAllRowsUnderExactPK(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Put(ctx, "STREAM#a#P0", sequenceSK(uint64(i)), []byte("x")))
	}
	require.NoError(t, s.Put(ctx, "STREAM#b#P0", sequenceSK(0), []byte("y")))

	require.NoError(t, s.DeletePK(ctx, "STREAM#a#P0", 3))

	rows, err := s.ScanPrefix(ctx, "STREAM#a", "")
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = s.ScanPrefix(ctx, "STREAM#b", "")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestCompareAndPutSequence_MonotonicGuard(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	applied, err := s.CompareAndPutSequence(ctx, "PK", "SK", 2, seqValue(2, "v2"))
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = s.CompareAndPutSequence(ctx, "PK", "SK", 1, seqValue(1, "v1"))
	require.NoError(t, err)
	assert.False(t, applied)

	v, err := s.Get(ctx, "PK", "SK")
	require.NoError(t, err)
	assert.Equal(t, seqValue(2, "v2"), v)

	applied, err = s.CompareAndPutSequence(ctx, "PK", "SK", 5, seqValue(5, "v5"))
	require.NoError(t, err)
	assert.True(t, applied)
}

func sequenceSK(seq uint64) string {
	return "SEQ#" + padSeq(seq)
}

func padSeq(seq uint64) string {
	const width = 20
	s := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		s[i] = byte('0' + seq%10)
		seq /= 10
	}
	return string(s)
}

func seqValue(seq uint64, body string) []byte {
	v := CounterValue(seq)
	return append(v, []byte(body)...)
}
