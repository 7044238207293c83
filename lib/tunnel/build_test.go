package tunnel

import (
	"crypto/aes"
	"crypto/cipher"
	"testing"

	"github.com/go-i2p/common/router_info"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-i2p/tunnel-engine/lib/config"
)

// testMaxHops mirrors config.Defaults().MaxHops; BuildProtocol tests
// exercise the ceiling directly rather than threading a TunnelManager
// through every case.
var testMaxHops = config.Defaults().MaxHops

// stubCodec ElGamal-"encrypts" a build record by padding it to
// BuildRecordSize with zero bytes; it never inspects the router
// argument, since these tests never exercise
// router_info.RouterInfo.IdentHash on a fabricated value.
type stubCodec struct{}

func (stubCodec) EncryptBuildRecord(router router_info.RouterInfo, record []byte) ([]byte, error) {
	if len(record) > BuildRecordSize {
		return nil, ErrRecordSize
	}
	out := make([]byte, BuildRecordSize)
	copy(out, record)
	return out, nil
}

func (stubCodec) EncodeVariableTunnelBuild(firstHop router_info.RouterInfo, records [][]byte) ([]byte, error) {
	return concatRecords(records), nil
}

func buildTestConfig(t *testing.T, n int) *TunnelConfig {
	t.Helper()
	routers := make([]router_info.RouterInfo, n)
	cfg, err := NewTunnelConfig(routers, true)
	require.NoError(t, err)
	return cfg
}

// encryptReply simulates a hop encrypting the full outstanding
// response block with its own reply key before forwarding it back,
// mirroring what Parse must unwind.
func encryptReply(t *testing.T, h HopConfig, records [][]byte, upTo int) {
	t.Helper()
	block, err := aes.NewCipher(h.ReplyKey[:])
	require.NoError(t, err)
	buf := concatRecords(records[:upTo])
	cipher.NewCBCEncrypter(block, h.ReplyIV[:]).CryptBlocks(buf, buf)
	splitInto(records[:upTo], buf)
}

func syntheticResponse(t *testing.T, cfg *TunnelConfig, rets []byte) *BuildResponse {
	t.Helper()
	n := len(cfg.Hops)
	records := make([][]byte, n)
	for i := range records {
		records[i] = make([]byte, BuildRecordSize)
		records[i][BuildRecordSize-1] = rets[i]
	}

	// Each hop, from first to last, encrypts the outstanding block
	// records[0:i+1] with its reply key before forwarding; records of
	// later hops are written by those hops afterwards, so record i
	// carries only the layers of hops i..n-1. This is the forward
	// accumulation Parse's last-to-first, shrinking unwrap must invert.
	for i := 0; i < n; i++ {
		encryptReply(t, cfg.Hops[i], records, i+1)
	}

	return &BuildResponse{Records: records}
}

func TestAssembleProducesFixedSizeRecords(t *testing.T) {
	cfg := buildTestConfig(t, 3)
	bp := NewBuildProtocol(stubCodec{}, testMaxHops)

	req, err := bp.Assemble(cfg, ReplyMessageID(555))
	require.NoError(t, err)
	require.Len(t, req.Records, 3)
	for _, r := range req.Records {
		assert.Len(t, r, BuildRecordSize)
	}
}

func TestAssembleRejectsTooManyHops(t *testing.T) {
	cfg := buildTestConfig(t, testMaxHops+1)
	bp := NewBuildProtocol(stubCodec{}, testMaxHops)

	_, err := bp.Assemble(cfg, ReplyMessageID(1))
	assert.ErrorIs(t, err, ErrTooManyHops)
}

// TestParseAllAccept checks that when every hop accepts, Parse reports
// the build established.
func TestParseAllAccept(t *testing.T) {
	cfg := buildTestConfig(t, 3)
	bp := NewBuildProtocol(stubCodec{}, testMaxHops)

	resp := syntheticResponse(t, cfg, []byte{0, 0, 0})
	accepted, err := bp.Parse(cfg, resp)
	require.NoError(t, err)
	assert.True(t, accepted)
}

// TestParseOneDecline checks that when one hop declines, Parse reports
// the build not established.
func TestParseOneDecline(t *testing.T) {
	cfg := buildTestConfig(t, 3)
	bp := NewBuildProtocol(stubCodec{}, testMaxHops)

	resp := syntheticResponse(t, cfg, []byte{0, 30, 0})
	accepted, err := bp.Parse(cfg, resp)
	require.NoError(t, err)
	assert.False(t, accepted)
}

// TestParseRejectsRecordCountMismatch covers CryptoLengthError: a
// response whose record count doesn't match the config is dropped
// rather than propagated as a crash.
func TestParseRejectsRecordCountMismatch(t *testing.T) {
	cfg := buildTestConfig(t, 3)
	bp := NewBuildProtocol(stubCodec{}, testMaxHops)

	resp := &BuildResponse{Records: [][]byte{make([]byte, BuildRecordSize)}}
	_, err := bp.Parse(cfg, resp)
	assert.ErrorIs(t, err, ErrRecordSize)
}

// TestParseAcrossHopCounts checks that for every valid hop count,
// parsing an all-accept synthetic response yields established=true
// regardless of hop count.
func TestParseAcrossHopCounts(t *testing.T) {
	for n := 1; n <= testMaxHops; n++ {
		cfg := buildTestConfig(t, n)
		bp := NewBuildProtocol(stubCodec{}, testMaxHops)

		rets := make([]byte, n)
		resp := syntheticResponse(t, cfg, rets)

		accepted, err := bp.Parse(cfg, resp)
		require.NoError(t, err)
		assert.True(t, accepted, "n=%d", n)
	}
}
