// Package entity defines the persisted data model of the epoch oracle
// indexer. Every entity is keyed by a string id and serialized as JSON
// through the EntityStore; ids are the stable public query interface.
package entity

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Kind discriminates entity tables in the store.
type Kind string

const (
	KindGlobalState             Kind = "GlobalState"
	KindNetwork                 Kind = "Network"
	KindEpoch                   Kind = "Epoch"
	KindNetworkEpochBlockNumber Kind = "NetworkEpochBlockNumber"
	KindPayload                 Kind = "Payload"
	KindMessageBlock            Kind = "MessageBlock"
	KindMessage                 Kind = "Message"
	KindPermissionListEntry     Kind = "PermissionListEntry"
)

// GlobalStateID is the id of the canonical GlobalState entity.
const GlobalStateID = "0"

// AuxGlobalStateID is the id under which a copy of the canonical state is
// re-published when the legacy two-entity scheme is enabled.
const AuxGlobalStateID = "1"

// Entity is implemented by every persisted record.
type Entity interface {
	EntityID() string
	EntityKind() Kind
}

// New constructs an empty entity of the given kind, used by the store to
// unmarshal loaded records.
func New(kind Kind) (Entity, error) {
	switch kind {
	case KindGlobalState:
		return &GlobalState{}, nil
	case KindNetwork:
		return &Network{}, nil
	case KindEpoch:
		return &Epoch{}, nil
	case KindNetworkEpochBlockNumber:
		return &NetworkEpochBlockNumber{}, nil
	case KindPayload:
		return &Payload{}, nil
	case KindMessageBlock:
		return &MessageBlock{}, nil
	case KindMessage:
		return &Message{}, nil
	case KindPermissionListEntry:
		return &PermissionListEntry{}, nil
	}
	return nil, fmt.Errorf("unknown entity kind %q", kind)
}

// GlobalState tracks the oracle-wide counters and the head of the active
// network list. A single canonical instance lives under id "0".
//
// Empty string reference fields mean "unset"; entity ids are never empty.
type GlobalState struct {
	ID                 string   `json:"id"`
	NetworkCount       uint64   `json:"networkCount"`
	ActiveNetworkCount uint64   `json:"activeNetworkCount"`
	NetworkArrayHead   string   `json:"networkArrayHead,omitempty"`
	LatestValidEpoch   *big.Int `json:"latestValidEpoch,omitempty"`
	EncodingVersion    uint64   `json:"encodingVersion"`
	PermissionList     []string `json:"permissionList,omitempty"`
}

func (e *GlobalState) EntityID() string { return e.ID }
func (e *GlobalState) EntityKind() Kind { return KindGlobalState }

// Copy returns a deep copy under the given id, used to snapshot the
// canonical state for the legacy auxiliary entity.
func (e *GlobalState) Copy(id string) *GlobalState {
	cp := *e
	cp.ID = id
	if e.LatestValidEpoch != nil {
		cp.LatestValidEpoch = new(big.Int).Set(e.LatestValidEpoch)
	}
	cp.PermissionList = append([]string(nil), e.PermissionList...)
	return &cp
}

// Network is one tracked chain. Active networks form a singly-linked list
// rooted at GlobalState.NetworkArrayHead; removal is soft (RemovedAt set,
// list fields cleared) and the record persists forever.
type Network struct {
	ID                     string  `json:"id"`
	Alias                  string  `json:"alias,omitempty"`
	AddedAt                string  `json:"addedAt"`
	LastUpdatedAt          string  `json:"lastUpdatedAt"`
	RemovedAt              string  `json:"removedAt,omitempty"`
	NextArrayElement       string  `json:"nextArrayElement,omitempty"`
	ArrayIndex             *uint32 `json:"arrayIndex,omitempty"`
	State                  string  `json:"state,omitempty"`
	LatestValidBlockNumber string  `json:"latestValidBlockNumber,omitempty"`
}

func (e *Network) EntityID() string { return e.ID }
func (e *Network) EntityKind() Kind { return KindNetwork }

// Removed reports whether the network has been soft-removed.
func (e *Network) Removed() bool { return e.RemovedAt != "" }

// Epoch is one numbered time unit for block-number snapshots. Its id is the
// decimal string of the epoch number.
type Epoch struct {
	ID          string   `json:"id"`
	EpochNumber *big.Int `json:"epochNumber"`
}

func (e *Epoch) EntityID() string { return e.ID }
func (e *Epoch) EntityKind() Kind { return KindEpoch }

// EpochID renders an epoch number as its entity id.
func EpochID(number *big.Int) string { return number.String() }

// NetworkEpochBlockNumber records one network's derived block number at one
// epoch, keyed "{epochNumber}-{networkID}". BlockNumber and Delta follow the
// recurrence delta = prev.delta + acceleration, block = prev.block + delta.
type NetworkEpochBlockNumber struct {
	ID                  string   `json:"id"`
	Acceleration        *big.Int `json:"acceleration"`
	Delta               *big.Int `json:"delta"`
	BlockNumber         *big.Int `json:"blockNumber"`
	EpochNumber         *big.Int `json:"epochNumber"`
	Network             string   `json:"network"`
	Epoch               string   `json:"epoch"`
	PreviousBlockNumber string   `json:"previousBlockNumber,omitempty"`
}

func (e *NetworkEpochBlockNumber) EntityID() string { return e.ID }
func (e *NetworkEpochBlockNumber) EntityKind() Kind {
	return KindNetworkEpochBlockNumber
}

// NetworkEpochBlockNumberID renders the "{epochNumber}-{networkID}" key.
func NetworkEpochBlockNumberID(epochNumber *big.Int, networkID string) string {
	return fmt.Sprintf("%s-%s", epochNumber, networkID)
}

// Payload is the audit record of one invocation, keyed by tx hash.
type Payload struct {
	ID           string         `json:"id"`
	Data         hexutil.Bytes  `json:"data"`
	Submitter    common.Address `json:"submitter"`
	Valid        bool           `json:"valid"`
	CreatedAt    *big.Int       `json:"createdAt"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
}

func (e *Payload) EntityID() string { return e.ID }
func (e *Payload) EntityKind() Kind { return KindPayload }

// MessageBlock is the audit record of one preamble plus its tagged messages,
// keyed "{txHash}-{blockIndex}".
type MessageBlock struct {
	ID      string        `json:"id"`
	Data    hexutil.Bytes `json:"data"`
	Payload string        `json:"payload"`
}

func (e *MessageBlock) EntityID() string { return e.ID }
func (e *MessageBlock) EntityKind() Kind { return KindMessageBlock }

// MessageBlockID renders the "{txHash}-{blockIndex}" key.
func MessageBlockID(payloadID string, blockIndex int) string {
	return fmt.Sprintf("%s-%d", payloadID, blockIndex)
}

// MessageKind names the decoded message variant.
type MessageKind string

const (
	MessageSetBlockNumbersForEpoch    MessageKind = "SetBlockNumbersForEpoch"
	MessageCorrectEpochs              MessageKind = "CorrectEpochs"
	MessageUpdateVersions             MessageKind = "UpdateVersions"
	MessageRegisterNetworks           MessageKind = "RegisterNetworks"
	MessageRegisterNetworksAndAliases MessageKind = "RegisterNetworksAndAliases"
	MessageChangePermissions          MessageKind = "ChangePermissions"
	MessageResetState                 MessageKind = "ResetState"
)

// Message is the audit record of one decoded tag slot, keyed
// "{blockID}-{msgIndex}". The Kind field discriminates which variant payload
// is populated; CorrectEpochs and ResetState carry none.
type Message struct {
	ID    string        `json:"id"`
	Block string        `json:"block"`
	Data  hexutil.Bytes `json:"data"`
	Kind  MessageKind   `json:"kind"`

	SetBlockNumbers   *SetBlockNumbersMessage   `json:"setBlockNumbers,omitempty"`
	UpdateVersions    *UpdateVersionsMessage    `json:"updateVersions,omitempty"`
	RegisterNetworks  *RegisterNetworksMessage  `json:"registerNetworks,omitempty"`
	ChangePermissions *ChangePermissionsMessage `json:"changePermissions,omitempty"`
}

func (e *Message) EntityID() string { return e.ID }
func (e *Message) EntityKind() Kind { return KindMessage }

// MessageID renders the "{blockID}-{msgIndex}" key.
func MessageID(blockID string, msgIndex int) string {
	return fmt.Sprintf("%s-%d", blockID, msgIndex)
}

// SetBlockNumbersMessage carries the decoded accelerations vector. An empty
// active set yields a message with no merkle root and no accelerations.
type SetBlockNumbersMessage struct {
	MerkleRoot    hexutil.Bytes `json:"merkleRoot,omitempty"`
	Accelerations []int64       `json:"accelerations,omitempty"`
}

// UpdateVersionsMessage records the version transition.
type UpdateVersionsMessage struct {
	OldVersion uint64 `json:"oldVersion"`
	NewVersion uint64 `json:"newVersion"`
}

// RegisterNetworksMessage records removals (by index and resolved id) and
// additions. Aliases is populated only by RegisterNetworksAndAliases and is
// index-aligned with Added.
type RegisterNetworksMessage struct {
	RemoveIndexes []uint64 `json:"removeIndexes,omitempty"`
	Removed       []string `json:"removed,omitempty"`
	Added         []string `json:"added,omitempty"`
	Aliases       []string `json:"aliases,omitempty"`
}

// ChangePermissionsMessage records a permission list transition for one
// address.
type ChangePermissionsMessage struct {
	Address        common.Address `json:"address"`
	ValidThrough   uint64         `json:"validThrough"`
	OldPermissions []string       `json:"oldPermissions,omitempty"`
	NewPermissions []string       `json:"newPermissions,omitempty"`
}

// PermissionListEntry is the current permission set of one address, keyed by
// the lower-case hex address.
type PermissionListEntry struct {
	ID           string         `json:"id"`
	Address      common.Address `json:"address"`
	ValidThrough uint64         `json:"validThrough"`
	Permissions  []string       `json:"permissions,omitempty"`
	UpdatedAt    string         `json:"updatedAt"`
}

func (e *PermissionListEntry) EntityID() string { return e.ID }
func (e *PermissionListEntry) EntityKind() Kind { return KindPermissionListEntry }

// PermissionListEntryID renders the lower-case hex address key.
func PermissionListEntryID(addr common.Address) string {
	return "0x" + common.Bytes2Hex(addr[:])
}
