package conversation

import (
	"math/rand"
	"time"
)

const (
	minResponseDelay = 2 * time.Second
	maxResponseDelay = 12 * time.Second
	typingCharsPerSec = 6.0
)

// HumanizedDelay computes how long to wait before sending a reply so it
// reads as typed by a person: a random thinking pause plus typing time
// proportional to the reply length, jittered and clamped to [2s, 12s].
func HumanizedDelay(replyLen int, rng *rand.Rand) time.Duration {
	thinking := 1.5 + rng.Float64()*2.5
	typing := float64(replyLen) / typingCharsPerSec * (0.8 + rng.Float64()*0.4)

	d := time.Duration((thinking + typing) * float64(time.Second))
	if d < minResponseDelay {
		return minResponseDelay
	}
	if d > maxResponseDelay {
		return maxResponseDelay
	}
	return d
}
