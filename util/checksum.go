package util

// Checksum returns the internet checksum of data: the one's complement of the
// one's complement sum of its 16-bit big-endian words. An odd trailing byte is
// padded with zero. init seeds the sum, so partial sums can be chained.
func Checksum(data []byte, init uint32) uint16 {
	sum := init
	size := len(data)
	for i := 0; i < size-1; i += 2 {
		sum += uint32(data[i])<<8 | uint32(data[i+1])
		// fold early so the sum never overflows on large buffers
		if (sum >> 16) > 0 {
			sum = (sum & 0xffff) + (sum >> 16)
		}
	}
	if size&1 != 0 {
		sum += uint32(data[size-1]) << 8
	}
	for (sum >> 16) > 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^(uint16(sum))
}
