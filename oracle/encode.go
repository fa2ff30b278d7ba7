package oracle

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/edgeandnode/block-oracle/entity"
	"github.com/edgeandnode/block-oracle/utils/fast"
	"github.com/edgeandnode/block-oracle/utils/varint"
)

// MessageSpec describes one message for payload building: the encoder-side
// mirror of the decoded Message variants. Only the fields of the given Kind
// are consulted.
type MessageSpec struct {
	Kind entity.MessageKind `json:"kind"`

	// SetBlockNumbersForEpoch
	MerkleRoot    hexutil.Bytes `json:"merkleRoot,omitempty"`
	Accelerations []int64       `json:"accelerations,omitempty"`

	// UpdateVersions
	Version uint64 `json:"version,omitempty"`

	// RegisterNetworks / RegisterNetworksAndAliases
	RemoveIndexes []uint64 `json:"removeIndexes,omitempty"`
	Add           []string `json:"add,omitempty"`
	Aliases       []string `json:"aliases,omitempty"`

	// ChangePermissions
	Address        common.Address `json:"address,omitempty"`
	ValidThrough   uint64         `json:"validThrough,omitempty"`
	OldPermissions []string       `json:"oldPermissions,omitempty"`
	NewPermissions []string       `json:"newPermissions,omitempty"`
}

func tagForKind(kind entity.MessageKind) (Tag, error) {
	switch kind {
	case entity.MessageSetBlockNumbersForEpoch:
		return TagSetBlockNumbersForEpoch, nil
	case entity.MessageCorrectEpochs:
		return TagCorrectEpochs, nil
	case entity.MessageUpdateVersions:
		return TagUpdateVersions, nil
	case entity.MessageRegisterNetworks:
		return TagRegisterNetworks, nil
	case entity.MessageRegisterNetworksAndAliases:
		return TagRegisterNetworksAndAliases, nil
	case entity.MessageChangePermissions:
		return TagChangePermissions, nil
	case entity.MessageResetState:
		return TagResetState, nil
	}
	return 0, fmt.Errorf("unknown message kind %q", kind)
}

// EncodeMessages builds payload bytes from a message list, chunking messages
// into MessageBlocks of up to TagsPerBlock and packing preamble tags
// low-to-high.
//
// Note the decoder-side constraint: a message with an empty body at the very
// end of the payload is skipped by conforming decoders, because the payload
// is exhausted before its tag slot is dispatched.
func EncodeMessages(msgs []MessageSpec) ([]byte, error) {
	w := fast.NewWriter(make([]byte, 0, 256))
	for start := 0; start < len(msgs); start += TagsPerBlock {
		block := msgs[start:]
		if len(block) > TagsPerBlock {
			block = block[:TagsPerBlock]
		}
		tags := make([]Tag, len(block))
		for i, m := range block {
			tag, err := tagForKind(m.Kind)
			if err != nil {
				return nil, err
			}
			tags[i] = tag
		}
		w.Write(buildPreamble(tags))
		for _, m := range block {
			if err := encodeMessage(w, m); err != nil {
				return nil, err
			}
		}
	}
	return w.Bytes(), nil
}

func encodeMessage(w *fast.Writer, m MessageSpec) error {
	switch m.Kind {
	case entity.MessageSetBlockNumbersForEpoch:
		// The empty-active-set form has no body at all.
		if len(m.MerkleRoot) == 0 && len(m.Accelerations) == 0 {
			return nil
		}
		if len(m.MerkleRoot) != merkleRootSize {
			return fmt.Errorf("merkle root must be %d bytes, got %d", merkleRootSize, len(m.MerkleRoot))
		}
		w.Write(m.MerkleRoot)
		for _, a := range m.Accelerations {
			writeI64(w, a)
		}

	case entity.MessageCorrectEpochs, entity.MessageResetState:
		// Empty body.

	case entity.MessageUpdateVersions:
		writeU64(w, m.Version)

	case entity.MessageRegisterNetworks, entity.MessageRegisterNetworksAndAliases:
		withAliases := m.Kind == entity.MessageRegisterNetworksAndAliases
		if withAliases && len(m.Aliases) != len(m.Add) {
			return fmt.Errorf("aliases must match additions: %d vs %d", len(m.Aliases), len(m.Add))
		}
		writeU64(w, uint64(len(m.RemoveIndexes)))
		for _, idx := range m.RemoveIndexes {
			writeU64(w, idx)
		}
		writeU64(w, uint64(len(m.Add)))
		for i, chainID := range m.Add {
			writeString(w, chainID)
			if withAliases {
				writeString(w, m.Aliases[i])
			}
		}

	case entity.MessageChangePermissions:
		w.Write(m.Address[:])
		writeU64(w, m.ValidThrough)
		writeStringList(w, m.OldPermissions)
		writeStringList(w, m.NewPermissions)

	default:
		return fmt.Errorf("unknown message kind %q", m.Kind)
	}
	return nil
}

func writeU64(w *fast.Writer, v uint64) {
	w.Write(varint.EncodeU64(nil, v))
}

func writeI64(w *fast.Writer, v int64) {
	w.Write(varint.EncodeI64(nil, v))
}

func writeString(w *fast.Writer, s string) {
	writeU64(w, uint64(len(s)))
	w.Write([]byte(s))
}

func writeStringList(w *fast.Writer, list []string) {
	writeU64(w, uint64(len(list)))
	for _, s := range list {
		writeString(w, s)
	}
}
