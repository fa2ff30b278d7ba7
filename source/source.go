// Package source defines the inbound call interface of the indexer and the
// calldata framing used to locate payload bytes inside a raw transaction
// input. The on-chain event source itself is an external collaborator; the
// driver only consumes the CallSource interface.
package source

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Call is one invocation of the oracle contract entry point.
type Call struct {
	TxHash      common.Hash
	Submitter   common.Address
	Payload     []byte
	BlockNumber uint64
}

// CallSource yields calls in on-chain order. Next returns false when the
// source is exhausted.
type CallSource interface {
	Next() (Call, bool, error)
}

// Calldata framing: a 32-byte little-endian length field at offset 36,
// followed by the payload bytes at offset 68.
const (
	lengthFieldOffset = 36
	lengthFieldSize   = 32
	payloadOffset     = 68
)

var errBadFraming = errors.New("malformed calldata framing")

// ExtractPayload locates the oracle payload inside raw calldata.
func ExtractPayload(calldata []byte) ([]byte, error) {
	if len(calldata) < payloadOffset {
		return nil, fmt.Errorf("%w: calldata is %d bytes, need at least %d", errBadFraming, len(calldata), payloadOffset)
	}
	field := calldata[lengthFieldOffset : lengthFieldOffset+lengthFieldSize]
	for _, b := range field[8:] {
		if b != 0 {
			return nil, fmt.Errorf("%w: payload length exceeds 64 bits", errBadFraming)
		}
	}
	length := binary.LittleEndian.Uint64(field[:8])
	if length > uint64(len(calldata)-payloadOffset) {
		return nil, fmt.Errorf("%w: payload length %d exceeds calldata", errBadFraming, length)
	}
	return calldata[payloadOffset : payloadOffset+int(length)], nil
}
