package p2p

import (
	"math/rand"
	"time"

	"github.com/XDagger/xdagj-p2p-go/message"
)

// DisconnectPolicy decides whether a currently active channel should be
// dropped, returning the reason to send if so. A periodic policy pass
// may prune channels that are technically healthy but undesirable, for
// example over a soft per-subnet cap, or below a minimum protocol version.
type DisconnectPolicy func(p *Peer) (message.ReasonCode, bool)

// PolicyRunner periodically evaluates every registered channel against
// a DisconnectPolicy and disconnects the ones that fail it.
type PolicyRunner struct {
	cfg     *Config
	manager *Manager
	policy  DisconnectPolicy
	onDrop  func(p *Peer, reason message.ReasonCode)

	stop chan struct{}
	done chan struct{}
}

// NewPolicyRunner wires a policy to the manager's channel table.
// onDrop is invoked for every channel the policy rejects, so the
// caller can send DISCONNECT and close the channel.
func NewPolicyRunner(cfg *Config, manager *Manager, policy DisconnectPolicy, onDrop func(*Peer, message.ReasonCode)) *PolicyRunner {
	return &PolicyRunner{cfg: cfg, manager: manager, policy: policy, onDrop: onDrop, stop: make(chan struct{}), done: make(chan struct{})}
}

// Start runs the policy loop until Stop is called. A no-op if the
// sweep is disabled in config. The churn step runs even with no custom
// policy installed.
func (r *PolicyRunner) Start() {
	if !r.cfg.DisconnectPolicyOn {
		close(r.done)
		return
	}
	go r.loop()
}

func (r *PolicyRunner) loop() {
	defer close(r.done)
	ticker := time.NewTicker(r.cfg.DisconnectPolicyPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *PolicyRunner) sweep() {
	peers := r.manager.Peers()

	// Churn: at the connection cap, drop one uniformly random non-trust
	// peer (no ban) to keep room for newly discovered nodes.
	if r.cfg.MaxConnections > 0 && len(peers) >= r.cfg.MaxConnections {
		var candidates []*Peer
		for _, p := range peers {
			if p.State() == StateActive && !p.IsTrustPeer() {
				candidates = append(candidates, p)
			}
		}
		if len(candidates) > 0 {
			r.onDrop(candidates[rand.Intn(len(candidates))], message.ReasonTooManyPeers)
		}
	}

	if r.policy == nil {
		return
	}
	for _, p := range peers {
		if p.State() != StateActive {
			continue
		}
		if reason, drop := r.policy(p); drop {
			r.onDrop(p, reason)
		}
	}
}

// Stop halts the policy loop and waits for it to exit.
func (r *PolicyRunner) Stop() {
	select {
	case <-r.done:
		return // Start() never launched a goroutine (policy disabled)
	default:
	}
	close(r.stop)
	<-r.done
}
