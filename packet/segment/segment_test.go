package segment

import (
	"encoding/hex"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	testCases := []struct {
		name    string
		segment Segment
		seq     uint32
		ack     uint32
		flags   Flag
	}{
		{name: "syn", segment: Syn(1000), seq: 1000, flags: SYN},
		{name: "ack", segment: Ack(1001, 501), seq: 1001, ack: 501, flags: ACK},
		{name: "syn ack", segment: SynAck(500, 1001), seq: 500, ack: 1001, flags: SYN | ACK},
		{name: "fin", segment: Fin(2000, 7), seq: 2000, ack: 7, flags: FIN},
		{name: "fin ack", segment: FinAck(), flags: FIN | ACK},
		{name: "broadcast", segment: Broadcast(), flags: 0xff},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.seq, tc.segment.SeqNum)
			assert.Equal(t, tc.ack, tc.segment.AckNum)
			assert.Equal(t, tc.flags, tc.segment.Flags)
			assert.Equal(t, uint16(5), tc.segment.DataOffset)
			assert.Nil(t, tc.segment.Payload)
			assert.Zero(t, tc.segment.Checksum)
		})
	}
}

func TestFlagString(t *testing.T) {
	assert.Equal(t, "syn|ack", SYN_ACK.String())
	assert.Equal(t, "ack|fin", FIN_ACK.String())
	assert.Equal(t, "broadcast", BROADCAST.String())
	assert.Equal(t, "psh|ece", (PSH | ECE).String())
	assert.True(t, End(1, 2, "out.txt").Flags.Ece())
	assert.False(t, Data(1, 2, []byte("x")).Flags.Ece())
}

func TestEncodeLayout(t *testing.T) {
	s := WithChecksum(Data(0x01020304, 0x05060708, []byte("abcde")))
	data, err := Encode(s)
	require.NoError(t, err)
	// 20 byte header + 5 byte payload padded to 8
	require.Len(t, data, 28)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, data[0:4])
	assert.Equal(t, []byte{0x05, 0x06, 0x07, 0x08}, data[4:8])
	assert.Equal(t, []byte{0x00, 0x07}, data[8:10], "data offset")
	assert.Equal(t, byte(PSH), data[10])
	assert.Equal(t, byte(3), data[11], "padding")
	assert.Equal(t, []byte("abcde"), data[20:25])
	assert.Equal(t, []byte{0, 0, 0}, data[25:28])
	assert.Equal(t, uint16(7), s.DataOffset)
	assert.Equal(t, 5, s.PayloadSize())
}

func TestRoundTrip(t *testing.T) {
	segments := []Segment{
		Syn(10),
		Ack(4294967295, 0),
		SynAck(500, 1001).WithWindow(8),
		Fin(2000, 801),
		FinAck(),
		Broadcast(),
		Data(1, 2, []byte("a")),
		Data(1, 2, []byte("abcd")),
		Data(3, 4, []byte("hello, world")),
		End(5, 6, "out.txt"),
		End(5, 6, ""),
	}
	for _, s := range segments {
		s = WithChecksum(s)
		data, err := Encode(s)
		require.NoError(t, err)
		decoded, err := Decode(data)
		require.NoError(t, err, hex.Dump(data))
		assert.Equal(t, s, decoded)
		assert.True(t, IsChecksumValid(decoded))
	}
}

func TestDecodeCopiesPayload(t *testing.T) {
	data, err := Encode(Data(1, 1, []byte("abcd")))
	require.NoError(t, err)
	decoded, err := Decode(data)
	require.NoError(t, err)
	data[HeaderLength] = 'z'
	assert.Equal(t, []byte("abcd"), decoded.Payload)
}

func TestChecksumDetectsFieldChange(t *testing.T) {
	base := WithChecksum(Data(1000, 2000, []byte("payload!")).WithWindow(4))
	require.True(t, IsChecksumValid(base))

	for bit := 0; bit < 32; bit++ {
		s := base
		s.SeqNum ^= 1 << bit
		assert.False(t, IsChecksumValid(s), "seq bit %d", bit)
		s = base
		s.AckNum ^= 1 << bit
		assert.False(t, IsChecksumValid(s), "ack bit %d", bit)
	}
	for bit := 0; bit < 8; bit++ {
		s := base
		s.Flags ^= 1 << bit
		assert.False(t, IsChecksumValid(s), "flag bit %d", bit)
	}
	for bit := 0; bit < 16; bit++ {
		s := base
		s.Window ^= 1 << bit
		assert.False(t, IsChecksumValid(s), "window bit %d", bit)
	}
	for bit := 0; bit < 16; bit++ {
		s := base
		s.DataOffset ^= 1 << bit
		assert.False(t, IsChecksumValid(s), "data offset bit %d", bit)
	}
	for i := range base.Payload {
		for bit := 0; bit < 8; bit++ {
			s := base
			s.Payload = append([]byte(nil), base.Payload...)
			s.Payload[i] ^= 1 << bit
			assert.False(t, IsChecksumValid(s), "payload byte %d bit %d", i, bit)
		}
	}
}

func TestChecksumDetectsWireBitFlip(t *testing.T) {
	s := WithChecksum(Data(77, 88, []byte("xyz")))
	data, err := Encode(s)
	require.NoError(t, err)
	for i := range data {
		if i == 14 || i == 15 {
			// checksum field
			continue
		}
		for bit := 0; bit < 8; bit++ {
			flipped := append([]byte(nil), data...)
			flipped[i] ^= 1 << bit
			decoded, err := Decode(flipped)
			if err != nil {
				assert.ErrorIs(t, err, ErrFraming)
				continue
			}
			assert.False(t, IsChecksumValid(decoded), "byte %d bit %d", i, bit)
		}
	}
}

func TestDecodeFraming(t *testing.T) {
	valid, err := Encode(Data(1, 2, []byte("abcdefgh")))
	require.NoError(t, err)

	testCases := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "short header", data: valid[:HeaderLength-1]},
		{name: "truncated payload", data: valid[:len(valid)-4]},
		{name: "trailing bytes", data: append(append([]byte(nil), valid...), 0, 0, 0, 0)},
		{name: "offset below header", data: func() []byte {
			d := append([]byte(nil), valid[:HeaderLength]...)
			d[9] = 4
			return d
		}()},
		{name: "reserved set", data: func() []byte {
			d := append([]byte(nil), valid...)
			d[19] = 1
			return d
		}()},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrFraming)
			var fe *FramingError
			assert.True(t, errors.As(err, &fe))
		})
	}
}

func TestDecodeRandomInput(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 2000; i++ {
		data := make([]byte, r.Intn(64))
		r.Read(data)
		assert.NotPanics(t, func() {
			_, _ = Decode(data)
		})
	}
}

func TestEncodeDataOffset(t *testing.T) {
	// zero is filled in from the payload
	data, err := Encode(Segment{SeqNum: 1, Flags: ACK})
	require.NoError(t, err)
	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, uint16(5), decoded.DataOffset)

	s := Data(1, 1, []byte("abcde"))
	s.DataOffset = 6
	_, err = Encode(s)
	assert.ErrorIs(t, err, ErrFraming)
	var fe *FramingError
	require.ErrorAs(t, err, &fe)

	s.DataOffset = 7
	data, err = Encode(s)
	require.NoError(t, err)
	decoded, err = Decode(data)
	require.NoError(t, err)
	assert.Equal(t, s, decoded)
}

func TestEncodeTooLarge(t *testing.T) {
	_, err := Encode(Data(1, 1, make([]byte, MaxPayloadSize+1)))
	assert.Error(t, err)
	_, err = Encode(Data(1, 1, make([]byte, MaxPayloadSize)))
	assert.NoError(t, err)
}
