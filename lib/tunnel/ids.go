package tunnel

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"sync"
)

// TunnelID identifies a tunnel as it is known to a single hop: the
// gateway, a transit participant, or the endpoint. The same logical
// tunnel carries a different TunnelID at each hop.
type TunnelID uint32

// ReplyMessageID identifies a pending variable tunnel build so its
// reply can be matched back to the request that produced it.
type ReplyMessageID uint32

// replyIDCounter hands out ReplyMessageIDs. The original router seeds
// this counter at 555 and increments it non-atomically from the single
// tunnel-management thread; TunnelManager preserves that single-writer
// discipline; the mutex here only protects the rare cross-goroutine
// read from tests.
type replyIDCounter struct {
	mu   sync.Mutex
	next uint32
}

func newReplyIDCounter() *replyIDCounter {
	return &replyIDCounter{next: 555}
}

// Next returns the next ReplyMessageID and advances the counter. Only
// the tunnel manager's worker goroutine should call this in production;
// it is not lock-free.
func (c *replyIDCounter) Next() ReplyMessageID {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.next
	c.next++
	return ReplyMessageID(id)
}

// randomTunnelID draws a random, non-zero TunnelID from the CSPRNG. A
// TunnelID of zero is reserved to mean "no tunnel" in wire records.
func randomTunnelID() (TunnelID, error) {
	for {
		var buf [4]byte
		if _, err := cryptorand.Read(buf[:]); err != nil {
			return 0, err
		}
		id := binary.BigEndian.Uint32(buf[:])
		if id != 0 {
			return TunnelID(id), nil
		}
	}
}

// randomBytes returns n cryptographically random bytes.
func randomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := cryptorand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}
