package environment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndexer_HandsOutEachIndexOnce(t *testing.T) {
	ix := newIndexer(5, nil)
	var got []int
	for {
		idx, ok := ix.next()
		if !ok {
			break
		}
		got = append(got, idx)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestIndexer_SkipsResumedIndices(t *testing.T) {
	ix := newIndexer(5, map[int]bool{1: true, 3: true})
	var got []int
	for {
		idx, ok := ix.next()
		if !ok {
			break
		}
		got = append(got, idx)
	}
	assert.Equal(t, []int{0, 2, 4}, got)
}

func TestIndexer_EmptyRangeYieldsNothing(t *testing.T) {
	ix := newIndexer(0, nil)
	_, ok := ix.next()
	assert.False(t, ok)
}

func TestIndexerFrom_StartsAtOffset(t *testing.T) {
	ix := newIndexerFrom(10, 13, nil)
	var got []int
	for {
		idx, ok := ix.next()
		if !ok {
			break
		}
		got = append(got, idx)
	}
	assert.Equal(t, []int{10, 11, 12}, got)
}
