package p2p

import (
	"sync"
	"time"

	"github.com/XDagger/xdagj-p2p-go/message"
)

// banEntry is one IP's current ban state.
type banEntry struct {
	expiry       time.Time
	offenseCount uint32
	reason       message.ReasonCode
}

// BanStore implements the channel manager's ban/whitelist policy.
// All mutation is serialized behind one mutex, which is simple to reason
// about and costs nothing since no operation blocks on I/O while holding
// it.
type BanStore struct {
	mu        sync.Mutex
	entries   map[string]*banEntry
	whitelist map[string]bool
	histogram map[message.ReasonCode]uint64
}

// NewBanStore creates an empty ban store.
func NewBanStore() *BanStore {
	return &BanStore{
		entries:   make(map[string]*banEntry),
		whitelist: make(map[string]bool),
		histogram: make(map[message.ReasonCode]uint64),
	}
}

// AddToWhitelist exempts ip from bans and lifts any existing ban.
func (b *BanStore) AddToWhitelist(ip string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.whitelist[ip] = true
	delete(b.entries, ip)
}

// RemoveFromWhitelist removes ip's exemption.
func (b *BanStore) RemoveFromWhitelist(ip string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.whitelist, ip)
}

// IsWhitelisted reports whether ip is exempt from bans.
func (b *BanStore) IsWhitelisted(ip string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.whitelist[ip]
}

// Ban records an offense for ip and returns the effective ban duration
// actually applied. Repeat offenses double the duration, capped at
// MaxBanDuration. Whitelisted IPs are never
// banned.
func (b *BanStore) Ban(ip string, duration time.Duration, reason message.ReasonCode) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.whitelist[ip] {
		return 0
	}
	e, exists := b.entries[ip]
	if !exists {
		e = &banEntry{}
		b.entries[ip] = e
	}
	e.offenseCount++
	// Double once per prior offense, stopping at the cap so the value can
	// never overflow and wrap back below it.
	effective := duration
	for i := uint32(1); i < e.offenseCount && effective > 0 && effective < message.MaxBanDuration; i++ {
		effective *= 2
	}
	if effective <= 0 || effective > message.MaxBanDuration {
		effective = message.MaxBanDuration
	}
	e.expiry = time.Now().Add(effective)
	e.reason = reason
	b.histogram[reason]++
	return effective
}

// IsBanned reports whether ip currently has a live ban, lazily evicting
// expired entries.
func (b *BanStore) IsBanned(ip string) (message.ReasonCode, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.whitelist[ip] {
		return 0, false
	}
	e, ok := b.entries[ip]
	if !ok {
		return 0, false
	}
	if time.Now().After(e.expiry) {
		delete(b.entries, ip)
		return 0, false
	}
	return e.reason, true
}

// Unban removes ip's ban entry unconditionally (explicit admin operation).
func (b *BanStore) Unban(ip string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, ip)
}

// OffenseCount returns how many times ip has been banned (0 if never).
func (b *BanStore) OffenseCount(ip string) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.entries[ip]; ok {
		return e.offenseCount
	}
	return 0
}

// ReasonHistogram returns a snapshot of per-reason ban counts.
func (b *BanStore) ReasonHistogram() map[message.ReasonCode]uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[message.ReasonCode]uint64, len(b.histogram))
	for k, v := range b.histogram {
		out[k] = v
	}
	return out
}
