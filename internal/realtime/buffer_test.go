package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func frames(b *outboundBuffer) []string {
	out := make([]string, 0, b.len())
	for _, f := range b.items {
		out = append(out, string(f))
	}

	return out
}

func TestOutboundBuffer_FIFO(t *testing.T) {
	b := newOutboundBuffer(0)

	for _, s := range []string{"a", "b", "c"} {
		assert.False(t, b.push([]byte(s)))
	}

	assert.Equal(t, []string{"a", "b", "c"}, frames(b))

	drained := b.drain()
	assert.Len(t, drained, 3)
	assert.Equal(t, 0, b.len())
}

func TestOutboundBuffer_DropsOldest(t *testing.T) {
	b := newOutboundBuffer(2)

	b.push([]byte("a"))
	b.push([]byte("b"))
	assert.True(t, b.push([]byte("c")))

	assert.Equal(t, []string{"b", "c"}, frames(b))
}

func TestOutboundBuffer_Requeue(t *testing.T) {
	tests := []struct {
		name    string
		limit   int
		present []string
		requeue []string
		want    []string
	}{
		{name: "prepends", present: []string{"c"}, requeue: []string{"a", "b"}, want: []string{"a", "b", "c"}},
		{name: "empty is noop", present: []string{"c"}, want: []string{"c"}},
		{name: "trims to limit", limit: 2, present: []string{"c"}, requeue: []string{"a", "b"}, want: []string{"b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newOutboundBuffer(tt.limit)
			for _, s := range tt.present {
				b.push([]byte(s))
			}

			var req [][]byte
			for _, s := range tt.requeue {
				req = append(req, []byte(s))
			}

			b.requeue(req)
			assert.Equal(t, tt.want, frames(b))
		})
	}
}

func TestOutboundBuffer_Reset(t *testing.T) {
	b := newOutboundBuffer(0)
	b.push([]byte("a"))
	b.reset()

	assert.Equal(t, 0, b.len())
}
