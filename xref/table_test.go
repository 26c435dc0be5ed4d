package xref

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMergeOldestToNewestWins(t *testing.T) {
	tbl := New()
	tbl.Merge(map[int]Entry{1: {Type: EntryUsed, Offset: 100}})
	tbl.Merge(map[int]Entry{1: {Type: EntryUsed, Offset: 900}, 2: {Type: EntryUsed, Offset: 200}})

	e, ok := tbl.Lookup(1)
	require.True(t, ok)
	require.Equal(t, 900, e.Offset)

	e, ok = tbl.Lookup(2)
	require.True(t, ok)
	require.Equal(t, 200, e.Offset)
}

func TestMarkFreeChainsThroughHead(t *testing.T) {
	tbl := New()
	tbl.MarkUsed(1, 0, 10)
	tbl.MarkUsed(2, 0, 20)

	tbl.MarkFree(1, 1)

	head, ok := tbl.Lookup(0)
	require.True(t, ok)
	require.Equal(t, 1, head.NextFree)

	e, ok := tbl.Lookup(1)
	require.True(t, ok)
	require.Equal(t, EntryFree, e.Type)
	require.Equal(t, 1, e.Generation)

	tbl.MarkFree(2, 1)
	head, ok = tbl.Lookup(0)
	require.True(t, ok)
	require.Equal(t, 2, head.NextFree)

	e, ok = tbl.Lookup(2)
	require.True(t, ok)
	require.Equal(t, 1, e.NextFree)
}

func TestNextFreeOrNewIDReusesFreeSlot(t *testing.T) {
	tbl := New()
	tbl.MarkUsed(1, 0, 10)
	tbl.MarkUsed(2, 0, 20)
	tbl.MarkFree(1, 1)

	id := tbl.NextFreeOrNewID()
	require.Equal(t, 1, id)
}

func TestNextFreeOrNewIDAllocatesPastMax(t *testing.T) {
	tbl := New()
	tbl.MarkUsed(1, 0, 10)
	tbl.MarkUsed(5, 0, 50)

	id := tbl.NextFreeOrNewID()
	require.Equal(t, 6, id)
}

func TestCountAndEach(t *testing.T) {
	tbl := New()
	tbl.MarkUsed(1, 0, 10)
	tbl.MarkUsed(3, 0, 30)

	require.Equal(t, 4, tbl.Count())

	seen := map[int]Entry{}
	tbl.Each(func(id int, e Entry) { seen[id] = e })
	require.Len(t, seen, 2)
	require.Contains(t, seen, 1)
	require.Contains(t, seen, 3)
}

func TestSetOffsetMarksUsed(t *testing.T) {
	tbl := New()
	tbl.SetOffset(7, 700)
	e, ok := tbl.Lookup(7)
	require.True(t, ok)
	require.Equal(t, EntryUsed, e.Type)
	require.Equal(t, 700, e.Offset)
}
