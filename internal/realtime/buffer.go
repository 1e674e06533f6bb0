package realtime

// outboundBuffer is a FIFO of encoded frames awaiting an open socket. A positive limit bounds
// it; when full the oldest frame is dropped.
type outboundBuffer struct {
	items [][]byte
	limit int
}

func newOutboundBuffer(limit int) *outboundBuffer {
	return &outboundBuffer{limit: limit}
}

// push appends data and reports whether the oldest frame was dropped to make room.
func (b *outboundBuffer) push(data []byte) bool {
	dropped := false

	if b.limit > 0 && len(b.items) >= b.limit {
		b.items[0] = nil
		b.items = b.items[1:]
		dropped = true
	}

	b.items = append(b.items, data)

	return dropped
}

// requeue puts frames back at the head, ahead of anything buffered since.
func (b *outboundBuffer) requeue(frames [][]byte) {
	if len(frames) == 0 {
		return
	}

	merged := make([][]byte, 0, len(frames)+len(b.items))
	merged = append(merged, frames...)
	merged = append(merged, b.items...)

	if b.limit > 0 && len(merged) > b.limit {
		merged = merged[len(merged)-b.limit:]
	}

	b.items = merged
}

// drain returns every buffered frame in order and empties the buffer.
func (b *outboundBuffer) drain() [][]byte {
	items := b.items
	b.items = nil

	return items
}

func (b *outboundBuffer) reset() {
	b.items = nil
}

func (b *outboundBuffer) len() int {
	return len(b.items)
}
