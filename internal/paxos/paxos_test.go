package paxos

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newAcceptors(n int) ([]*Acceptor, []Voter) {
	acceptors := make([]*Acceptor, n)
	voters := make([]Voter, n)
	for i := range acceptors {
		acceptors[i] = NewAcceptor()
		voters[i] = acceptors[i]
	}
	return acceptors, voters
}

func TestAcceptor_Prepare(t *testing.T) {
	a := NewAcceptor()

	assert.True(t, a.Prepare(1))
	assert.False(t, a.Prepare(1), "a number must be strictly higher than the last promise")
	assert.True(t, a.Prepare(5))
	assert.False(t, a.Prepare(3))
}

func TestAcceptor_Accept(t *testing.T) {
	a := NewAcceptor()

	_, ok := a.Accepted()
	assert.False(t, ok)

	require.True(t, a.Prepare(2))
	assert.False(t, a.Accept(Proposal{Number: 1, Value: "old"}))
	assert.True(t, a.Accept(Proposal{Number: 2, Value: "v"}))

	got, ok := a.Accepted()
	require.True(t, ok)
	assert.Equal(t, Proposal{Number: 2, Value: "v"}, got)

	// Accepting without a prior promise is allowed for numbers at or above the promise
	assert.True(t, a.Accept(Proposal{Number: 3, Value: "w"}))
}

func TestAcceptor_Concurrent(t *testing.T) {
	a := NewAcceptor()

	var wg sync.WaitGroup
	var mu sync.Mutex
	promised := 0
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(n uint64) {
			defer wg.Done()
			if a.Prepare(n) {
				mu.Lock()
				promised++
				mu.Unlock()
			}
		}(uint64(i))
	}
	wg.Wait()

	assert.GreaterOrEqual(t, promised, 1)
	assert.False(t, a.Prepare(100))
}

func TestProposer_Propose(t *testing.T) {
	acceptors, voters := newAcceptors(3)
	p := NewProposer("Value1", voters, zaptest.NewLogger(t))

	result, err := p.Propose()
	require.NoError(t, err)
	assert.Equal(t, Accepted, result)
	assert.Equal(t, uint64(1), p.Number())

	for _, a := range acceptors {
		got, ok := a.Accepted()
		require.True(t, ok)
		assert.Equal(t, Proposal{Number: 1, Value: "Value1"}, got)
	}
}

func TestProposer_RejectedAtPrepare(t *testing.T) {
	acceptors, voters := newAcceptors(3)
	// Two acceptors already promised a higher number to someone else
	acceptors[0].Prepare(10)
	acceptors[1].Prepare(10)

	p := NewProposer("v", voters, nil)
	result, err := p.Propose()
	require.NoError(t, err)
	assert.Equal(t, RejectedAtPrepare, result)

	_, ok := acceptors[2].Accepted()
	assert.False(t, ok)
}

// racingVoter promises, then sees a competing prepare before the accept arrives
type racingVoter struct {
	*Acceptor
}

func (r racingVoter) Prepare(n uint64) bool {
	ok := r.Acceptor.Prepare(n)
	r.Acceptor.Prepare(n + 100)
	return ok
}

func TestProposer_RejectedAtAccept(t *testing.T) {
	acceptors, voters := newAcceptors(3)
	voters[0] = racingVoter{acceptors[0]}
	voters[1] = racingVoter{acceptors[1]}

	p := NewProposer("v", voters, nil)
	result, err := p.Propose()
	require.NoError(t, err)
	assert.Equal(t, RejectedAtAccept, result)
}

func TestProposer_RetriesWithHigherNumber(t *testing.T) {
	acceptors, voters := newAcceptors(3)
	for _, a := range acceptors {
		a.Prepare(1)
	}

	p := NewProposer("v", voters, nil)
	result, err := p.Propose()
	require.NoError(t, err)
	assert.Equal(t, RejectedAtPrepare, result)

	result, err = p.Propose()
	require.NoError(t, err)
	assert.Equal(t, Accepted, result)
	assert.Equal(t, uint64(2), p.Number())
}

func TestProposer_NoAcceptors(t *testing.T) {
	_, err := NewProposer("v", nil, nil).Propose()
	assert.ErrorIs(t, err, ErrNoAcceptors)
}

func TestResult_String(t *testing.T) {
	assert.Equal(t, "Accepted", Accepted.String())
	assert.Equal(t, "RejectedAtAccept", RejectedAtAccept.String())
	assert.Equal(t, "RejectedAtPrepare", RejectedAtPrepare.String())
	assert.Equal(t, "Unknown", Result(9).String())
}
