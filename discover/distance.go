package discover

import (
	"math/bits"

	"github.com/XDagger/xdagj-p2p-go/enode"
)

// bucketIndex is the leading-zero-bit count of xor(local, remote),
// clamped to [0, numBuckets-1]: 0 is the farthest bucket, numBuckets-1
// the closest.
func bucketIndex(local, remote enode.ID) int {
	lz := 0
	for i := range local {
		x := local[i] ^ remote[i]
		if x == 0 {
			lz += 8
			continue
		}
		lz += bits.LeadingZeros8(x)
		break
	}
	if lz >= numBuckets {
		lz = numBuckets - 1
	}
	return lz
}

// distanceLess reports whether a is closer to target than b, by
// lexicographic comparison of their XOR distances.
func distanceLess(target, a, b enode.ID) bool {
	for i := range target {
		xa := target[i] ^ a[i]
		xb := target[i] ^ b[i]
		if xa != xb {
			return xa < xb
		}
	}
	return false
}
