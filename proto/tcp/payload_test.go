package tcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/terassyi/dgtcp/packet/segment"
)

func TestPayloadSegments(t *testing.T) {
	testCases := []struct {
		name    string
		payload Payload
		size    int
		chunks  []string
	}{
		{name: "exact", payload: Payload{Data: []byte("abcdef")}, size: 3, chunks: []string{"abc", "def"}},
		{name: "tail", payload: Payload{Data: []byte("abcdefg"), FileName: "out.txt"}, size: 3, chunks: []string{"abc", "def", "g"}},
		{name: "empty", payload: Payload{}, size: 3, chunks: []string{}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			segs := tc.payload.Segments(10, 20, tc.size)
			require.Len(t, segs, len(tc.chunks)+1)
			for i, c := range tc.chunks {
				assert.Equal(t, segment.PSH, segs[i].Flags)
				assert.Equal(t, uint32(10+i), segs[i].SeqNum)
				assert.Equal(t, uint32(20), segs[i].AckNum)
				assert.Equal(t, c, string(segs[i].Payload))
			}
			end := segs[len(segs)-1]
			assert.Equal(t, segment.ECE, end.Flags)
			assert.Equal(t, uint32(10+len(tc.chunks)), end.SeqNum)
			assert.Equal(t, tc.payload.FileName, string(end.Payload))

			got, err := Assemble(segs)
			require.NoError(t, err)
			assert.Equal(t, tc.payload.FileName, got.FileName)
			assert.Equal(t, string(tc.payload.Data), string(got.Data))
		})
	}
}

func TestPayloadSegmentsSizeOutOfRange(t *testing.T) {
	p := Payload{Data: []byte("x")}
	for _, size := range []int{0, -1, segment.MaxPayloadSize + 1} {
		segs := p.Segments(1, 1, size)
		require.Len(t, segs, 2, "size %d", size)
		assert.Equal(t, []byte("x"), segs[0].Payload)
	}
}

func TestAssembleErrors(t *testing.T) {
	_, err := Assemble([]segment.Segment{segment.Data(1, 1, []byte("a"))})
	assert.ErrorIs(t, err, ErrIncompleteTransfer)

	_, err = Assemble([]segment.Segment{segment.End(1, 1, "x"), segment.Data(2, 1, []byte("a"))})
	assert.Error(t, err)

	_, err = Assemble([]segment.Segment{segment.Syn(1)})
	assert.Error(t, err)
}
