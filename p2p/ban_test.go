package p2p

import (
	"testing"
	"time"

	"github.com/XDagger/xdagj-p2p-go/message"
)

// TestBanGraduatedDuration is scenario S4: three offenses from the same IP
// within the base window double the effective ban each time.
func TestBanGraduatedDuration(t *testing.T) {
	bs := NewBanStore()
	base := 5 * time.Minute

	d1 := bs.Ban("10.0.0.1", base, message.ReasonInvalidMessage)
	d2 := bs.Ban("10.0.0.1", base, message.ReasonInvalidMessage)
	d3 := bs.Ban("10.0.0.1", base, message.ReasonInvalidMessage)

	if d1 != 5*time.Minute {
		t.Fatalf("first ban = %s, want 5m", d1)
	}
	if d2 != 10*time.Minute {
		t.Fatalf("second ban = %s, want 10m", d2)
	}
	if d3 != 20*time.Minute {
		t.Fatalf("third ban = %s, want 20m", d3)
	}

	reason, banned := bs.IsBanned("10.0.0.1")
	if !banned || reason != message.ReasonInvalidMessage {
		t.Fatalf("IsBanned = (%v, %v), want (ReasonInvalidMessage, true)", reason, banned)
	}
}

func TestBanCappedAtMax(t *testing.T) {
	bs := NewBanStore()
	for i := 0; i < 20; i++ {
		bs.Ban("10.0.0.2", time.Hour, message.ReasonCriticalAbuse)
	}
	d := bs.Ban("10.0.0.2", time.Hour, message.ReasonCriticalAbuse)
	if d != message.MaxBanDuration {
		t.Fatalf("ban duration = %s, want cap of %s", d, message.MaxBanDuration)
	}
}

func TestBanWhitelistOverride(t *testing.T) {
	bs := NewBanStore()
	bs.AddToWhitelist("10.0.0.3")

	d := bs.Ban("10.0.0.3", time.Minute, message.ReasonBadPeer)
	if d != 0 {
		t.Fatalf("whitelisted ip was banned: %s", d)
	}
	if _, banned := bs.IsBanned("10.0.0.3"); banned {
		t.Fatal("whitelisted ip reported as banned")
	}
}

func TestBanExpiryIsLazilyEvicted(t *testing.T) {
	bs := NewBanStore()
	bs.Ban("10.0.0.4", 10*time.Millisecond, message.ReasonBadPeer)
	time.Sleep(30 * time.Millisecond)

	if _, banned := bs.IsBanned("10.0.0.4"); banned {
		t.Fatal("expired ban still reported as active")
	}
}

func TestBanUnban(t *testing.T) {
	bs := NewBanStore()
	bs.Ban("10.0.0.5", time.Hour, message.ReasonBadPeer)
	bs.Unban("10.0.0.5")
	if _, banned := bs.IsBanned("10.0.0.5"); banned {
		t.Fatal("unbanned ip still reported as active")
	}
}

func TestBanReasonHistogram(t *testing.T) {
	bs := NewBanStore()
	bs.Ban("10.0.0.6", time.Minute, message.ReasonBadPeer)
	bs.Ban("10.0.0.7", time.Minute, message.ReasonBadPeer)
	bs.Ban("10.0.0.8", time.Minute, message.ReasonTimeBanned)

	hist := bs.ReasonHistogram()
	if hist[message.ReasonBadPeer] != 2 {
		t.Fatalf("ReasonBadPeer count = %d, want 2", hist[message.ReasonBadPeer])
	}
	if hist[message.ReasonTimeBanned] != 1 {
		t.Fatalf("ReasonTimeBanned count = %d, want 1", hist[message.ReasonTimeBanned])
	}
}
