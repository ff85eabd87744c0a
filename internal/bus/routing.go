package bus

import "strings"

// Filter selects which envelopes on a channel a subscriber wants, by
// dot-delimited routing key pattern (e.g. "system.1.*" or "crdt.delta").
// An empty pattern or "*" matches every routing key on the channel.
// Patterns apply to topic channels only; a filter on a fanout or direct
// channel receives every envelope on it.
type Filter struct {
	Channel Channel
	Pattern string
}

func matchRoutingKey(pattern, key string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	pSeg := strings.Split(pattern, ".")
	kSeg := strings.Split(key, ".")
	for i, p := range pSeg {
		if p == "*" {
			return true
		}
		if i >= len(kSeg) || kSeg[i] != p {
			return false
		}
	}
	return len(pSeg) == len(kSeg)
}
