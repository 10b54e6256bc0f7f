package p2p

import "errors"

var (
	// ErrQueueFull is returned by SendQueue.Send when the normal lane is
	// at capacity.
	ErrQueueFull = errors.New("p2p: send queue full")
	// ErrQueueClosed is returned by SendQueue.Send/SendPriority after Close.
	ErrQueueClosed = errors.New("p2p: send queue closed")

	// ErrAlreadyConnected is returned by Manager.Admit for a duplicate
	// channel to an already-registered node.
	ErrAlreadyConnected = errors.New("p2p: already connected to this node")
	// ErrTooManyPeers is returned by Manager.Admit when the channel table
	// is at MaxConnections.
	ErrTooManyPeers = errors.New("p2p: too many peers")
	// ErrTooManyPeersWithSameIP is returned when a remote IP already has
	// MaxConnectionsWithSameIP live channels.
	ErrTooManyPeersWithSameIP = errors.New("p2p: too many peers with same ip")
	// ErrBannedIP is returned by Manager.Admit for a banned remote IP,
	// unless the manager is shutting down.
	ErrBannedIP = errors.New("p2p: ip is banned")
	// ErrSelfConnect is returned when the remote node ID equals our own.
	ErrSelfConnect = errors.New("p2p: refusing to connect to self")
	// ErrManagerClosed is returned by Admit once the manager has begun
	// shutdown; new channels are rejected but existing ones may linger
	// briefly while bans are suppressed.
	ErrManagerClosed = errors.New("p2p: manager is shutting down")
)
