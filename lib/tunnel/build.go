package tunnel

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// BuildRecordSize is the fixed size of one ElGamal+AES build record.
const BuildRecordSize = 528

// BuildRequest is an assembled variable tunnel build message: a count
// followed by that many fixed-size records, each still ElGamal
// encrypted to its hop's router key except for the pre-decrypt layering
// BuildProtocol.Assemble applies across the tail of the record set.
type BuildRequest struct {
	Records [][]byte // each len == BuildRecordSize
}

// BuildResponse is a parsed (or still-layered) variable tunnel build
// reply message.
type BuildResponse struct {
	Records [][]byte // each len == BuildRecordSize
}

// BuildProtocol assembles build requests and parses build responses.
// It delegates ElGamal record encryption to a Codec collaborator and
// performs the AES-CBC pre-decrypt layering and response unwrap
// itself.
type BuildProtocol struct {
	codec   Codec
	maxHops int
}

// NewBuildProtocol builds a BuildProtocol over the given codec,
// enforcing maxHops as the largest hop count Assemble will accept
// (config.TunnelDefaults.MaxHops in production).
func NewBuildProtocol(codec Codec, maxHops int) *BuildProtocol {
	return &BuildProtocol{codec: codec, maxHops: maxHops}
}

// clearBuildRecord is the plaintext content of one build record before
// ElGamal encryption. Field layout mirrors the reference I2NP
// BuildRequestRecord; only the fields the tunnel engine itself needs
// to populate are represented.
type clearBuildRecord struct {
	tunnelID     TunnelID
	nextTunnelID TunnelID
	layerKey     [32]byte
	ivKey        [32]byte
	replyKey     [32]byte
	replyIV      [16]byte
	sendMsgID    uint32
	isGateway    bool
	isEndpoint   bool
}

func newClearBuildRecord(h HopConfig, sendMsgID uint32) clearBuildRecord {
	r := clearBuildRecord{
		tunnelID:     h.TunnelID,
		nextTunnelID: h.NextTunnelID,
		layerKey:     h.LayerKey,
		ivKey:        h.IVKey,
		replyKey:     h.ReplyKey,
		replyIV:      h.ReplyIV,
		sendMsgID:    sendMsgID,
		isGateway:    h.IsGateway,
		isEndpoint:   h.IsEndpoint,
	}
	return r
}

func (r clearBuildRecord) marshal() []byte {
	buf := make([]byte, 0, 96)
	var tmp [4]byte

	binary.BigEndian.PutUint32(tmp[:], uint32(r.tunnelID))
	buf = append(buf, tmp[:]...)
	binary.BigEndian.PutUint32(tmp[:], uint32(r.nextTunnelID))
	buf = append(buf, tmp[:]...)
	buf = append(buf, r.layerKey[:]...)
	buf = append(buf, r.ivKey[:]...)
	buf = append(buf, r.replyKey[:]...)
	buf = append(buf, r.replyIV[:]...)
	binary.BigEndian.PutUint32(tmp[:], r.sendMsgID)
	buf = append(buf, tmp[:]...)
	flags := byte(0)
	if r.isGateway {
		flags |= 0x1
	}
	if r.isEndpoint {
		flags |= 0x2
	}
	buf = append(buf, flags)
	return buf
}

// Assemble builds the variable tunnel build message for cfg, keyed to
// replyMsgID for the final hop's reply correlation.
//
// Step 1: each hop's clear record is ElGamal-encrypted to a fixed
// 528-byte on-wire record via the Codec collaborator.
//
// Step 2 (pre-decrypt layering): starting from the hop before the
// endpoint and moving backwards to the first hop, each hop's reply
// key/IV AES-CBC-decrypts records[k+1:N] in place as one contiguous
// CBC-chained buffer, so that once every hop has AES-CBC-encrypted the
// records after its own position with its reply key while relaying the
// build, each hop
// still sees its own record in clean ElGamal form when the message
// reaches it. This mirrors the reference implementation's loop
// exactly (hop k decrypts records after k, not from k), which is one
// hop offset from a literal reading of the summary description.
func (p *BuildProtocol) Assemble(cfg *TunnelConfig, replyMsgID ReplyMessageID) (*BuildRequest, error) {
	n := len(cfg.Hops)
	if n == 0 {
		return nil, ErrNoHops
	}
	if n > p.maxHops {
		return nil, ErrTooManyHops
	}

	records := make([][]byte, n)
	for i, h := range cfg.Hops {
		sendMsgID := uint32(replyMsgID)
		if !h.IsEndpoint {
			id, err := randomTunnelID()
			if err != nil {
				return nil, oops.Wrapf(err, "generate send_msg_id for hop %d", i)
			}
			sendMsgID = uint32(id)
		}
		clear := newClearBuildRecord(h, sendMsgID).marshal()

		rec, err := p.codec.EncryptBuildRecord(h.Router, clear)
		if err != nil {
			return nil, oops.Wrapf(err, "encrypt build record for hop %d", i)
		}
		if len(rec) != BuildRecordSize {
			return nil, ErrRecordSize
		}
		records[i] = rec
	}

	for k := n - 2; k >= 0; k-- {
		h := cfg.Hops[k]
		block, err := aes.NewCipher(h.ReplyKey[:])
		if err != nil {
			return nil, oops.Wrapf(err, "reply cipher for hop %d", k)
		}
		tail := concatRecords(records[k+1:])
		cipher.NewCBCDecrypter(block, h.ReplyIV[:]).CryptBlocks(tail, tail)
		splitInto(records[k+1:], tail)
	}

	log.WithFields(logger.Fields{
		"at":       "BuildProtocol.Assemble",
		"num_hops": n,
	}).Debug("assembled variable tunnel build")

	return &BuildRequest{Records: records}, nil
}

// Parse unwraps a variable tunnel build reply against cfg and reports
// whether every hop accepted.
//
// Each hop wrote its reply into its own record and encrypted the block
// with its own reply key before forwarding it, so the reply
// accumulates nested encryptions in forward hop order and record i
// carries the layers of hops i..N-1 only; unwrap runs last-to-first:
// for each hop from endpoint back to the first, AES-CBC-decrypt
// records[0:numRemaining] as one buffer, shrinking numRemaining by one
// after each peel. Once every hop has peeled its layer, record i's
// final byte is hop i's ret code.
func (p *BuildProtocol) Parse(cfg *TunnelConfig, resp *BuildResponse) (accepted bool, err error) {
	n := len(cfg.Hops)
	if len(resp.Records) != n {
		return false, ErrRecordSize
	}
	for _, r := range resp.Records {
		if len(r) != BuildRecordSize {
			return false, ErrRecordSize
		}
	}

	numRemaining := n
	for i := n - 1; i >= 0; i-- {
		h := cfg.Hops[i]
		block, cerr := aes.NewCipher(h.ReplyKey[:])
		if cerr != nil {
			return false, oops.Wrapf(cerr, "reply cipher for hop %d", i)
		}
		buf := concatRecords(resp.Records[:numRemaining])
		cipher.NewCBCDecrypter(block, h.ReplyIV[:]).CryptBlocks(buf, buf)
		splitInto(resp.Records[:numRemaining], buf)
		numRemaining--
	}

	accepted = true
	for i, r := range resp.Records {
		ret := r[len(r)-1]
		if ret != 0 {
			accepted = false
			log.WithFields(logger.Fields{
				"at":  "BuildProtocol.Parse",
				"hop": i,
				"ret": ret,
			}).Info("hop declined tunnel build")
		}
	}
	return accepted, nil
}

func concatRecords(records [][]byte) []byte {
	total := 0
	for _, r := range records {
		total += len(r)
	}
	buf := make([]byte, 0, total)
	for _, r := range records {
		buf = append(buf, r...)
	}
	return buf
}

func splitInto(records [][]byte, buf []byte) {
	off := 0
	for i := range records {
		copy(records[i], buf[off:off+len(records[i])])
		off += len(records[i])
	}
}
