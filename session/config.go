package session

import "github.com/xndrbh/mage/wire"

// Config is the caller-supplied agreement for one Session: the PacketConfig
// it negotiates with the peer out-of-band (mage has no in-band
// capability-negotiation message; both ends must be configured identically)
// plus the reorder window PumpIncoming buffers before delivering.
type Config struct {
	Packet        wire.Config
	ReorderWindow int
}

// DefaultConfig matches the teacher stream.go's own defaults: every
// optional field present, sized to stay well clear of typical MTU-sized
// transport writes.
func DefaultConfig() Config {
	return Config{
		Packet: wire.Config{
			HasID:      true,
			HasSeq:     true,
			HasDataLen: true,
			MaxSize:    1200,
		},
		ReorderWindow: 1,
	}
}
