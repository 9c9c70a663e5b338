package quorum

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSize(t *testing.T) {
	cases := map[int]int{
		1: 1,
		2: 2,
		3: 2,
		4: 3,
		5: 3,
		6: 4,
		7: 4,
	}

	for n, want := range cases {
		assert.Equal(t, want, Size(n), "cluster of %d", n)
	}
}

func TestReached_MatchesStrictMajority(t *testing.T) {
	for n := 1; n <= 9; n++ {
		for votes := 0; votes <= n; votes++ {
			assert.Equal(t, votes > n/2, Reached(votes, n), "votes=%d n=%d", votes, n)
		}
	}
}

func TestReached_EmptyGroup(t *testing.T) {
	assert.False(t, Reached(0, 0))
	assert.False(t, Reached(1, 0))
	assert.False(t, Reached(1, -3))
}

func TestReached_SingleNode(t *testing.T) {
	// A lone node's self-vote is already a majority (1 > 0).
	assert.True(t, Reached(1, 1))
}
