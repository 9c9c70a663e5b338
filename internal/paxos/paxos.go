// Package paxos is a single-decree Paxos proposer and acceptor. It is a standalone demonstration and shares nothing
// with the Raft node except the quorum arithmetic.
package paxos

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"raft-election/internal/quorum"
)

// ErrNoAcceptors is returned by Propose when there is nobody to propose to
var ErrNoAcceptors = errors.New("paxos: no acceptors")

// Proposal is a numbered value. Numbers start at 1; 0 means "none".
type Proposal struct {
	Number uint64
	Value  string
}

// Result is the outcome of one Propose call
type Result int

const (
	// Accepted means a majority accepted the proposal
	Accepted Result = iota
	// RejectedAtAccept means a majority promised but fewer than a majority accepted
	RejectedAtAccept
	// RejectedAtPrepare means fewer than a majority promised
	RejectedAtPrepare
)

func (r Result) String() string {
	switch r {
	case Accepted:
		return "Accepted"
	case RejectedAtAccept:
		return "RejectedAtAccept"
	case RejectedAtPrepare:
		return "RejectedAtPrepare"
	default:
		return "Unknown"
	}
}

// Voter is what a Proposer needs from an acceptor
type Voter interface {
	Prepare(number uint64) bool
	Accept(p Proposal) bool
}

// Acceptor remembers the highest proposal number it promised and the last proposal it accepted
type Acceptor struct {
	mu       sync.Mutex
	promised uint64
	accepted *Proposal
}

func NewAcceptor() *Acceptor {
	return &Acceptor{}
}

// Prepare promises to ignore proposals numbered below number, if number is higher than any promise made so far
func (a *Acceptor) Prepare(number uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if number > a.promised {
		a.promised = number
		return true
	}
	return false
}

// Accept accepts p unless a higher number has been promised
func (a *Acceptor) Accept(p Proposal) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if p.Number >= a.promised {
		accepted := p
		a.accepted = &accepted
		return true
	}
	return false
}

// Accepted returns the last accepted proposal
func (a *Acceptor) Accepted() (Proposal, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accepted == nil {
		return Proposal{}, false
	}
	return *a.accepted, true
}

// Proposer drives the two phases of Paxos for one value
type Proposer struct {
	number    uint64
	value     string
	acceptors []Voter
	logger    *zap.Logger
}

func NewProposer(value string, acceptors []Voter, logger *zap.Logger) *Proposer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Proposer{
		value:     value,
		acceptors: acceptors,
		logger:    logger,
	}
}

// Number returns the number of the last proposal made
func (p *Proposer) Number() uint64 {
	return p.number
}

// Propose runs a prepare phase and, if a majority promised, an accept phase with a new proposal number. Acceptors
// are asked one after the other.
func (p *Proposer) Propose() (Result, error) {
	if len(p.acceptors) == 0 {
		return RejectedAtPrepare, ErrNoAcceptors
	}

	p.number++
	logger := p.logger.With(zap.Uint64("proposal", p.number), zap.String("value", p.value))

	promises := 0
	for _, a := range p.acceptors {
		if a.Prepare(p.number) {
			promises++
		}
	}
	logger.Debug("Prepare phase done", zap.Int("promises", promises), zap.Int("acceptors", len(p.acceptors)))

	if !quorum.Reached(promises, len(p.acceptors)) {
		logger.Info("Proposal rejected at prepare")
		return RejectedAtPrepare, nil
	}

	proposal := Proposal{Number: p.number, Value: p.value}
	accepts := 0
	for _, a := range p.acceptors {
		if a.Accept(proposal) {
			accepts++
		}
	}
	logger.Debug("Accept phase done", zap.Int("accepts", accepts))

	if !quorum.Reached(accepts, len(p.acceptors)) {
		logger.Info("Proposal rejected at accept")
		return RejectedAtAccept, nil
	}

	logger.Info("Proposal accepted")
	return Accepted, nil
}
