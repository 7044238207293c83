package tunnel

import (
	"crypto/aes"
	"crypto/cipher"

	"github.com/go-i2p/common/session_key"
)

// DataFrameSize is the fixed size of a tunnel data message: a 4-byte
// big-endian tunnel ID followed by a 1024-byte AES-CBC layered
// payload (a 16-byte IV field and a 1008-byte body).
const DataFrameSize = 1028

const (
	tunnelIDFieldSize = 4
	ivFieldSize       = 16
	bodyFieldSize     = 1008
)

// DataFrame is one tunnel data message as it appears on the wire.
type DataFrame [DataFrameSize]byte

// TunnelID reads the frame's big-endian tunnel ID prefix.
func (f *DataFrame) TunnelID() TunnelID {
	b := f[:tunnelIDFieldSize]
	return TunnelID(uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]))
}

// SetTunnelID writes id into the frame's tunnel ID prefix.
func (f *DataFrame) SetTunnelID(id TunnelID) {
	f[0] = byte(id >> 24)
	f[1] = byte(id >> 16)
	f[2] = byte(id >> 8)
	f[3] = byte(id)
}

func (f *DataFrame) iv() []byte {
	return f[tunnelIDFieldSize : tunnelIDFieldSize+ivFieldSize]
}

func (f *DataFrame) body() []byte {
	return f[tunnelIDFieldSize+ivFieldSize:]
}

// DataCipher is the per-hop AES data-plane transform: a dual-key AES-CBC
// scheme with one key masking the frame's IV field and a second key
// encrypting the body under the masked IV, so that neither key alone
// exposes the other layer's plaintext relationship.
type DataCipher struct {
	layerKey cipher.Block
	ivKey    cipher.Block
}

// NewDataCipher builds a DataCipher from a hop's layer and IV keys.
func NewDataCipher(layerKey, ivKey session_key.SessionKey) (*DataCipher, error) {
	lb, err := aes.NewCipher(layerKey[:])
	if err != nil {
		return nil, err
	}
	ib, err := aes.NewCipher(ivKey[:])
	if err != nil {
		return nil, err
	}
	return &DataCipher{layerKey: lb, ivKey: ib}, nil
}

// Encrypt applies this hop's forward transform to frame in place: mask
// the IV field, CBC-encrypt the body under the masked IV, mask the IV
// field again.
func (d *DataCipher) Encrypt(f *DataFrame) {
	iv := f.iv()
	d.ivKey.Encrypt(iv, iv)
	cipher.NewCBCEncrypter(d.layerKey, iv).CryptBlocks(f.body(), f.body())
	d.ivKey.Encrypt(iv, iv)
}

// Decrypt applies this hop's reverse transform to frame in place; the
// exact inverse of Encrypt for the same keys.
func (d *DataCipher) Decrypt(f *DataFrame) {
	iv := f.iv()
	d.ivKey.Decrypt(iv, iv)
	cipher.NewCBCDecrypter(d.layerKey, iv).CryptBlocks(f.body(), f.body())
	d.ivKey.Decrypt(iv, iv)
}

// WrapOutbound applies the tunnel's per-hop data-plane transform to
// frame in the order an outbound tunnel's gateway applies it: from the
// endpoint back to the first hop, decrypting under each hop's cipher
// in turn. Wrap uses the decrypt operation so that each successive
// hop, encrypting again as the frame transits, peels exactly the
// layer this gateway added for it.
func WrapOutbound(ciphers []*DataCipher, f *DataFrame) {
	for i := len(ciphers) - 1; i >= 0; i-- {
		ciphers[i].Decrypt(f)
	}
}

// PeelInbound applies the algebraic inverse of WrapOutbound: from the
// first hop to the last, encrypting under each hop's cipher in turn.
// This is the transform each transit hop and the final inbound
// endpoint apply as a frame moves through the tunnel; composed across
// every hop it exactly undoes WrapOutbound, which is what testable
// property 3 (peel(wrap(msg)) == msg) requires.
func PeelInbound(ciphers []*DataCipher, f *DataFrame) {
	for i := 0; i < len(ciphers); i++ {
		ciphers[i].Encrypt(f)
	}
}
