package vframe

// Limits constrains decode memory use. Zero fields are unlimited.
type Limits struct {
	MaxFrameBytes int
	MaxSlices     uint64
}

// DefaultLimits fits one UDP datagram.
func DefaultLimits() Limits {
	return Limits{
		MaxFrameBytes: 64 * 1024,
		MaxSlices:     4096,
	}
}
