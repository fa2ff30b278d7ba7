package oracle

import (
	"github.com/edgeandnode/block-oracle/utils/bits"
	"github.com/edgeandnode/block-oracle/utils/fast"
)

// The preamble is a fixed-width little-endian word carrying one 4-bit tag
// per message slot, low-to-high. A MessageBlock is one preamble plus up to
// TagsPerBlock tagged messages.
const (
	PreambleBits = 64
	TagBits      = 4
	TagsPerBlock = PreambleBits / TagBits
	PreambleSize = PreambleBits / 8
)

// Tag identifies a message kind in the preamble.
type Tag uint8

const (
	TagSetBlockNumbersForEpoch Tag = iota
	TagCorrectEpochs
	TagUpdateVersions
	TagRegisterNetworks
	TagRegisterNetworksAndAliases
	TagChangePermissions
	TagResetState

	firstUnknownTag
)

// Known reports whether the tag belongs to the registered encoding set.
// Unknown tags terminate the current MessageBlock without advancing the
// payload cursor.
func (t Tag) Known() bool {
	return t < firstUnknownTag
}

func (t Tag) String() string {
	switch t {
	case TagSetBlockNumbersForEpoch:
		return "SetBlockNumbersForEpoch"
	case TagCorrectEpochs:
		return "CorrectEpochs"
	case TagUpdateVersions:
		return "UpdateVersions"
	case TagRegisterNetworks:
		return "RegisterNetworks"
	case TagRegisterNetworksAndAliases:
		return "RegisterNetworksAndAliases"
	case TagChangePermissions:
		return "ChangePermissions"
	case TagResetState:
		return "ResetState"
	}
	return "Unknown"
}

// Preamble is the ordered list of tag slots of one MessageBlock.
type Preamble struct {
	tags [TagsPerBlock]Tag
}

// parsePreamble consumes PreambleSize bytes from the reader and splits them
// into tag slots.
func parsePreamble(r *fast.Reader) (Preamble, error) {
	raw, err := r.Read(PreambleSize)
	if err != nil {
		return Preamble{}, err
	}
	var p Preamble
	br := bits.NewReader(&bits.Array{Bytes: raw})
	for i := range p.tags {
		p.tags[i] = Tag(br.Read(TagBits))
	}
	return p, nil
}

// Tag returns the tag in slot i.
func (p Preamble) Tag(i int) Tag {
	return p.tags[i]
}

// buildPreamble packs tags into preamble bytes, low slots first. Unused
// slots stay zero, which reads back as TagSetBlockNumbersForEpoch; the
// driver never dispatches them because the payload is exhausted by then.
func buildPreamble(tags []Tag) []byte {
	arr := &bits.Array{Bytes: make([]byte, 0, PreambleSize)}
	bw := bits.NewWriter(arr)
	for i := 0; i < TagsPerBlock; i++ {
		var t Tag
		if i < len(tags) {
			t = tags[i]
		}
		bw.Write(TagBits, uint(t))
	}
	return arr.Bytes
}
