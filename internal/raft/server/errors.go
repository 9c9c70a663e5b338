package server

import "errors"

var (
	// ErrInvalidConfig is returned when a Config fails validation
	ErrInvalidConfig = errors.New("invalid config")
	// ErrUnknownPeer is returned by a transport asked to reach a node outside its topology
	ErrUnknownPeer = errors.New("unknown peer")
	// ErrTopologyFrozen is returned when registering into a topology that has already been handed out
	ErrTopologyFrozen = errors.New("topology is frozen")
	// ErrNodeStopped is returned by RPC handlers of a node that has been stopped
	ErrNodeStopped = errors.New("node is stopped")
	// ErrAlreadyStarted is returned by a second call to Start
	ErrAlreadyStarted = errors.New("node already started")
)
