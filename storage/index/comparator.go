package index

// Comparator orders two keys the way a SQL column's type would: negative
// if a < b, zero if equal, positive if a > b. The tree never compares
// keys itself — every ordering decision goes through one of these, the
// same way the teacher's hash/skip-list indexes take an external
// comparator rather than assuming a key layout.
type Comparator[K any] func(a, b K) int

// KeyCodec gives the tree a fixed-width on-disk representation for K, so
// leaf/internal slots can be laid out the same way TablePage lays out
// its tuple slots: fixed strides, no length prefixes.
type KeyCodec[K any] struct {
	Size   uint32
	Encode func(K) []byte
	Decode func([]byte) K
}

// IntComparator orders int32 keys numerically. It's the concrete
// instantiation this repo's own tests exercise the tree against,
// standing in for the column-type comparator the spec leaves external.
func IntComparator(a, b int32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// IntKeyCodec serializes int32 keys as 4 little-endian bytes.
var IntKeyCodec = KeyCodec[int32]{
	Size: 4,
	Encode: func(k int32) []byte {
		return []byte{byte(k), byte(k >> 8), byte(k >> 16), byte(k >> 24)}
	},
	Decode: func(data []byte) int32 {
		return int32(data[0]) | int32(data[1])<<8 | int32(data[2])<<16 | int32(data[3])<<24
	},
}
