package message

import "time"

// ReasonCode is the unified DISCONNECT/ban reason catalog: one code space
// shared by the wire DISCONNECT frame and the ban store, rather than two
// separate disconnect-code and ban-reason enumerations. Duration is data
// here, not logic: callers look up DefaultBanDuration and pass it to the
// ban store; nothing branches on the numeric value.
type ReasonCode byte

const (
	ReasonBadNetwork ReasonCode = iota
	ReasonBadNetworkVersion
	ReasonTooManyPeers
	ReasonInvalidHandshake
	ReasonDuplicatePeer
	ReasonMessageQueueFull
	ReasonValidatorIPLimited
	ReasonHandshakeExists
	ReasonBadPeer
	ReasonTimeBanned
	ReasonMaxConnectionWithSameIP
	ReasonIncompatibleProtocol
	ReasonProtocolViolation
	ReasonInvalidMessage
	ReasonHandshakeTimeout
	ReasonCriticalAbuse
	ReasonRequested // local shutdown / admin-initiated disconnect, never banned
	ReasonPingTimeout
)

// Bucket classifies a reason's severity.
type Bucket int

const (
	BucketNone Bucket = iota // disconnect-only: never auto-bans
	BucketMinor
	BucketModerate
	BucketSevere
	BucketCritical
)

type reasonInfo struct {
	text     string
	bucket   Bucket
	duration time.Duration // default ban duration; 0 if BucketNone
}

var reasonCatalog = map[ReasonCode]reasonInfo{
	ReasonBadNetwork:              {"BAD_NETWORK", BucketNone, 0},
	ReasonBadNetworkVersion:       {"BAD_NETWORK_VERSION", BucketNone, 0},
	ReasonTooManyPeers:            {"TOO_MANY_PEERS", BucketNone, 0},
	ReasonInvalidHandshake:        {"INVALID_HANDSHAKE", BucketSevere, 2 * time.Hour},
	ReasonDuplicatePeer:           {"DUPLICATED_PEER_ID", BucketNone, 0},
	ReasonMessageQueueFull:        {"MESSAGE_QUEUE_FULL", BucketNone, 0},
	ReasonValidatorIPLimited:      {"VALIDATOR_IP_LIMITED", BucketNone, 0},
	ReasonHandshakeExists:         {"HANDSHAKE_EXISTS", BucketNone, 0},
	ReasonBadPeer:                 {"BAD_PEER", BucketModerate, 30 * time.Minute},
	ReasonTimeBanned:              {"TIME_BANNED", BucketNone, 0},
	ReasonMaxConnectionWithSameIP: {"MAX_CONNECTION_WITH_SAME_IP", BucketNone, 0},
	ReasonIncompatibleProtocol:    {"INCOMPATIBLE_PROTOCOL", BucketModerate, 30 * time.Minute},
	ReasonProtocolViolation:       {"PROTOCOL_VIOLATION", BucketSevere, 4 * time.Hour},
	ReasonInvalidMessage:          {"INVALID_MESSAGE", BucketMinor, 5 * time.Minute},
	ReasonHandshakeTimeout:        {"HANDSHAKE_TIMEOUT", BucketModerate, 30 * time.Minute},
	ReasonCriticalAbuse:           {"CRITICAL_ABUSE", BucketCritical, 7 * 24 * time.Hour},
	ReasonRequested:               {"REQUESTED", BucketNone, 0},
	ReasonPingTimeout:             {"PING_TIMEOUT", BucketNone, 0},
}

// MaxBanDuration caps the graduated-backoff ban duration.
const MaxBanDuration = 30 * 24 * time.Hour

// String returns the stable wire/log name of the reason.
func (r ReasonCode) String() string {
	if info, ok := reasonCatalog[r]; ok {
		return info.text
	}
	return "UNKNOWN"
}

// Bucket returns the reason's severity bucket.
func (r ReasonCode) Bucket() Bucket {
	return reasonCatalog[r].bucket
}

// DefaultBanDuration returns the reason's default ban duration, or 0 if
// the reason never triggers an automatic ban (BucketNone).
func (r ReasonCode) DefaultBanDuration() time.Duration {
	return reasonCatalog[r].duration
}

// AutoBans reports whether an occurrence of this reason should trigger an
// automatic ban by itself (vs. being purely a DISCONNECT-frame reason).
func (r ReasonCode) AutoBans() bool {
	return reasonCatalog[r].bucket != BucketNone
}
