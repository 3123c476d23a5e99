package eventstore

// globalPosition computes the monotone 64-bit ordering key used across the
// runtime: approximate time order first, then a per-stream hash to spread
// collisions, then the event's own version to keep same-millisecond,
// same-stream events ordered.
//
//	timestampMs * 1e6 + streamHash * 1e3 + (version mod 1e3)
//
// streamHash is djb2("{streamType}:{streamId}") mod 1000. The accumulator
// must be 64-bit: timestampMs alone already exceeds 32 bits.
func globalPosition(timestampMs int64, streamType, streamID string, version int) int64 {
	hash := streamHash(streamType, streamID)
	return timestampMs*1_000_000 + hash*1_000 + int64(version%1000)
}

// streamHash is djb2 over "{streamType}:{streamId}", reduced mod 1000.
func streamHash(streamType, streamID string) int64 {
	var h uint64 = 5381
	for _, c := range streamType + ":" + streamID {
		h = h*33 + uint64(c)
	}
	return int64(h % 1000)
}
