package oracle

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"math/rand"
	"testing"

	"github.com/Fantom-foundation/lachesis-base/kvdb/memorydb"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/edgeandnode/block-oracle/entity"
	"github.com/edgeandnode/block-oracle/source"
	"github.com/edgeandnode/block-oracle/store"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestOracle(t *testing.T, rules Rules) (*Oracle, *store.EntityStore) {
	t.Helper()
	es := store.NewEntityStore(memorydb.New(), testLogger())
	o, err := New(es, rules, testLogger(), nil)
	require.NoError(t, err)
	return o, es
}

func testCall(seq byte, payload []byte) source.Call {
	return source.Call{
		TxHash:      common.BytesToHash([]byte{seq}),
		Submitter:   common.BytesToAddress([]byte{0xaa}),
		Payload:     payload,
		BlockNumber: uint64(seq),
	}
}

func process(t *testing.T, o *Oracle, seq byte, payload []byte) source.Call {
	t.Helper()
	call := testCall(seq, payload)
	require.NoError(t, o.ProcessCall(call))
	return call
}

func loadState(t *testing.T, es *store.EntityStore) *entity.GlobalState {
	t.Helper()
	ent, ok, err := es.Load(entity.KindGlobalState, entity.GlobalStateID)
	require.NoError(t, err)
	require.True(t, ok, "canonical global state must exist")
	return ent.(*entity.GlobalState)
}

func loadNetwork(t *testing.T, es *store.EntityStore, id string) *entity.Network {
	t.Helper()
	ent, ok, err := es.Load(entity.KindNetwork, id)
	require.NoError(t, err)
	require.True(t, ok, "network %q must exist", id)
	return ent.(*entity.Network)
}

func loadPayload(t *testing.T, es *store.EntityStore, call source.Call) *entity.Payload {
	t.Helper()
	ent, ok, err := es.Load(entity.KindPayload, call.TxHash.Hex())
	require.NoError(t, err)
	require.True(t, ok, "payload %s must exist", call.TxHash.Hex())
	return ent.(*entity.Payload)
}

func loadNEBN(t *testing.T, es *store.EntityStore, id string) *entity.NetworkEpochBlockNumber {
	t.Helper()
	ent, ok, err := es.Load(entity.KindNetworkEpochBlockNumber, id)
	require.NoError(t, err)
	require.True(t, ok, "block number entity %q must exist", id)
	return ent.(*entity.NetworkEpochBlockNumber)
}

// registerPayload is the raw RegisterNetworks payload of scenario S2:
// preamble with tag 3, no removals, additions "eth" and "gno".
func registerPayload() []byte {
	return []byte{
		0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x01, // removeCount = 0
		0x05, // addCount = 2
		0x07, 'e', 't', 'h',
		0x07, 'g', 'n', 'o',
	}
}

func setBlockNumbersPayload(t *testing.T, root byte, accelerations ...int64) []byte {
	t.Helper()
	merkleRoot := make([]byte, 32)
	for i := range merkleRoot {
		merkleRoot[i] = root
	}
	payload, err := EncodeMessages([]MessageSpec{{
		Kind:          entity.MessageSetBlockNumbersForEpoch,
		MerkleRoot:    merkleRoot,
		Accelerations: accelerations,
	}})
	require.NoError(t, err)
	return payload
}

// S1: an all-zero preamble with nothing behind it is a valid payload that
// changes nothing.
func TestEmptyActiveSetSetBlockNumbers(t *testing.T) {
	require := require.New(t)
	o, es := newTestOracle(t, DefaultRules())

	call := process(t, o, 1, make([]byte, PreambleSize))

	payload := loadPayload(t, es, call)
	require.True(payload.Valid)
	require.Empty(payload.ErrorMessage)

	state := loadState(t, es)
	require.Nil(state.LatestValidEpoch)
	require.Zero(state.ActiveNetworkCount)

	_, ok, err := es.Load(entity.KindEpoch, "1")
	require.NoError(err)
	require.False(ok, "no epoch must be created")
}

// S2: registering two networks builds the linked list eth -> gno.
func TestRegisterNetworks(t *testing.T) {
	require := require.New(t)
	o, es := newTestOracle(t, DefaultRules())

	call := process(t, o, 1, registerPayload())

	state := loadState(t, es)
	require.Equal(uint64(2), state.NetworkCount)
	require.Equal(uint64(2), state.ActiveNetworkCount)
	require.Equal("eth", state.NetworkArrayHead)

	blockID := entity.MessageBlockID(call.TxHash.Hex(), 0)
	msgID := entity.MessageID(blockID, 0)

	eth := loadNetwork(t, es, "eth")
	require.Equal("gno", eth.NextArrayElement)
	require.Equal(uint32(0), *eth.ArrayIndex)
	require.Equal(entity.GlobalStateID, eth.State)
	require.Equal(msgID, eth.AddedAt)
	require.False(eth.Removed())

	gno := loadNetwork(t, es, "gno")
	require.Empty(gno.NextArrayElement)
	require.Equal(uint32(1), *gno.ArrayIndex)
	require.Equal(msgID, gno.AddedAt)

	// Audit log.
	payload := loadPayload(t, es, call)
	require.True(payload.Valid)
	require.Equal(call.Payload, []byte(payload.Data))

	blockEnt, ok, err := es.Load(entity.KindMessageBlock, blockID)
	require.NoError(err)
	require.True(ok)
	require.Equal(call.Payload, []byte(blockEnt.(*entity.MessageBlock).Data))

	msgEnt, ok, err := es.Load(entity.KindMessage, msgID)
	require.NoError(err)
	require.True(ok)
	msg := msgEnt.(*entity.Message)
	require.Equal(entity.MessageRegisterNetworks, msg.Kind)
	require.Equal(call.Payload[PreambleSize:], []byte(msg.Data))
	require.Equal([]string{"eth", "gno"}, msg.RegisterNetworks.Added)
}

// S3 and S4: block numbers accumulate across epochs as double cumulative
// sums of the accelerations.
func TestSetBlockNumbersDerivation(t *testing.T) {
	require := require.New(t)
	o, es := newTestOracle(t, DefaultRules())

	process(t, o, 1, registerPayload())
	process(t, o, 2, setBlockNumbersPayload(t, 0x01, 5, -3))

	state := loadState(t, es)
	require.Equal(big.NewInt(1), state.LatestValidEpoch)

	epochEnt, ok, err := es.Load(entity.KindEpoch, "1")
	require.NoError(err)
	require.True(ok)
	require.Equal(big.NewInt(1), epochEnt.(*entity.Epoch).EpochNumber)

	ethBN := loadNEBN(t, es, "1-eth")
	require.Equal(big.NewInt(5), ethBN.Acceleration)
	require.Equal(big.NewInt(5), ethBN.Delta)
	require.Equal(big.NewInt(5), ethBN.BlockNumber)
	require.Empty(ethBN.PreviousBlockNumber)
	require.Equal("eth", ethBN.Network)
	require.Equal("1", ethBN.Epoch)

	gnoBN := loadNEBN(t, es, "1-gno")
	require.Equal(big.NewInt(-3), gnoBN.Acceleration)
	require.Equal(big.NewInt(-3), gnoBN.Delta)
	require.Equal(big.NewInt(-3), gnoBN.BlockNumber)

	process(t, o, 3, setBlockNumbersPayload(t, 0x02, 2, 4))

	ethBN2 := loadNEBN(t, es, "2-eth")
	require.Equal(big.NewInt(2), ethBN2.Acceleration)
	require.Equal(big.NewInt(7), ethBN2.Delta)
	require.Equal(big.NewInt(12), ethBN2.BlockNumber)
	require.Equal("1-eth", ethBN2.PreviousBlockNumber)

	gnoBN2 := loadNEBN(t, es, "2-gno")
	require.Equal(big.NewInt(4), gnoBN2.Acceleration)
	require.Equal(big.NewInt(1), gnoBN2.Delta)
	require.Equal(big.NewInt(-2), gnoBN2.BlockNumber)

	eth := loadNetwork(t, es, "eth")
	require.Equal("2-eth", eth.LatestValidBlockNumber)
}

// S5: removal by index swaps in the former tail.
func TestSwapAndPopRemoval(t *testing.T) {
	require := require.New(t)
	o, es := newTestOracle(t, DefaultRules())

	process(t, o, 1, registerPayload())

	payload, err := EncodeMessages([]MessageSpec{{
		Kind:          entity.MessageRegisterNetworks,
		RemoveIndexes: []uint64{0},
	}})
	require.NoError(err)
	call := process(t, o, 2, payload)

	state := loadState(t, es)
	require.Equal(uint64(1), state.ActiveNetworkCount)
	require.Equal(uint64(2), state.NetworkCount, "total network count never decreases")
	require.Equal("gno", state.NetworkArrayHead)

	msgID := entity.MessageID(entity.MessageBlockID(call.TxHash.Hex(), 0), 0)
	eth := loadNetwork(t, es, "eth")
	require.Equal(msgID, eth.RemovedAt)
	require.Empty(eth.State)
	require.Empty(eth.NextArrayElement)
	require.Nil(eth.ArrayIndex)

	gno := loadNetwork(t, es, "gno")
	require.Equal(uint32(0), *gno.ArrayIndex)
	require.Empty(gno.NextArrayElement)
	require.False(gno.Removed())
}

// S6 plus property 6: a truncated payload rolls back and leaves the
// canonical state byte-identical.
func TestTruncationRollsBack(t *testing.T) {
	require := require.New(t)
	o, es := newTestOracle(t, DefaultRules())

	process(t, o, 1, registerPayload())
	before, err := json.Marshal(loadState(t, es))
	require.NoError(err)

	// Tag 0 with only 10 bytes of body, far short of the 32-byte root.
	short := append(make([]byte, PreambleSize), []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}...)
	call := process(t, o, 2, short)

	payload := loadPayload(t, es, call)
	require.False(payload.Valid)
	require.Equal("truncation", payload.ErrorMessage)

	after, err := json.Marshal(loadState(t, es))
	require.NoError(err)
	require.Equal(before, after, "canonical state must be untouched by a failed invocation")

	_, ok, err := es.Load(entity.KindEpoch, "1")
	require.NoError(err)
	require.False(ok)
	_, ok, err = es.Load(entity.KindMessage, entity.MessageID(entity.MessageBlockID(call.TxHash.Hex(), 0), 0))
	require.NoError(err)
	require.False(ok, "audit messages of a rolled-back invocation are not persisted")
}

func TestUpdateVersions(t *testing.T) {
	require := require.New(t)
	o, es := newTestOracle(t, DefaultRules())

	payload, err := EncodeMessages([]MessageSpec{{
		Kind:    entity.MessageUpdateVersions,
		Version: 7,
	}})
	require.NoError(err)
	call := process(t, o, 1, payload)

	state := loadState(t, es)
	require.Equal(uint64(7), state.EncodingVersion)

	msgEnt, ok, err := es.Load(entity.KindMessage, entity.MessageID(entity.MessageBlockID(call.TxHash.Hex(), 0), 0))
	require.NoError(err)
	require.True(ok)
	msg := msgEnt.(*entity.Message)
	require.Equal(uint64(0), msg.UpdateVersions.OldVersion)
	require.Equal(uint64(7), msg.UpdateVersions.NewVersion)

	t.Run("non-monotonic version rolls back", func(t *testing.T) {
		payload, err := EncodeMessages([]MessageSpec{{
			Kind:    entity.MessageUpdateVersions,
			Version: 7,
		}})
		require.NoError(err)
		call := process(t, o, 2, payload)

		p := loadPayload(t, es, call)
		require.False(p.Valid)
		require.Equal("invariant violation", p.ErrorMessage)
		require.Equal(uint64(7), loadState(t, es).EncodingVersion)
	})

	t.Run("monotonic within one invocation", func(t *testing.T) {
		payload, err := EncodeMessages([]MessageSpec{
			{Kind: entity.MessageUpdateVersions, Version: 8},
			{Kind: entity.MessageUpdateVersions, Version: 9},
		})
		require.NoError(err)
		process(t, o, 3, payload)
		require.Equal(uint64(9), loadState(t, es).EncodingVersion)
	})
}

// An unknown tag ends the current message block without advancing the
// cursor; the bytes after it parse as the next block.
func TestUnknownTagTerminatesBlock(t *testing.T) {
	require := require.New(t)
	o, es := newTestOracle(t, DefaultRules())

	unknown := buildPreamble([]Tag{9})
	second, err := EncodeMessages([]MessageSpec{{
		Kind:    entity.MessageUpdateVersions,
		Version: 7,
	}})
	require.NoError(err)
	call := process(t, o, 1, append(unknown, second...))

	payload := loadPayload(t, es, call)
	require.True(payload.Valid)
	require.Equal(uint64(7), loadState(t, es).EncodingVersion)

	firstBlockID := entity.MessageBlockID(call.TxHash.Hex(), 0)
	_, ok, err := es.Load(entity.KindMessage, entity.MessageID(firstBlockID, 0))
	require.NoError(err)
	require.False(ok, "no message is recorded for the unknown tag slot")

	blockEnt, ok, err := es.Load(entity.KindMessageBlock, firstBlockID)
	require.NoError(err)
	require.True(ok)
	require.Equal(unknown, []byte(blockEnt.(*entity.MessageBlock).Data))

	msgEnt, ok, err := es.Load(entity.KindMessage, entity.MessageID(entity.MessageBlockID(call.TxHash.Hex(), 1), 0))
	require.NoError(err)
	require.True(ok)
	require.Equal(entity.MessageUpdateVersions, msgEnt.(*entity.Message).Kind)
}

func TestRegisterNetworksAndAliases(t *testing.T) {
	require := require.New(t)
	o, es := newTestOracle(t, DefaultRules())

	payload, err := EncodeMessages([]MessageSpec{{
		Kind:    entity.MessageRegisterNetworksAndAliases,
		Add:     []string{"eth", "gno"},
		Aliases: []string{"mainnet", "gnosis"},
	}})
	require.NoError(err)
	process(t, o, 1, payload)

	require.Equal("mainnet", loadNetwork(t, es, "eth").Alias)
	require.Equal("gnosis", loadNetwork(t, es, "gno").Alias)
	require.Equal(uint64(2), loadState(t, es).ActiveNetworkCount)
}

// The legacy scheme keys networks by the running network counter instead of
// the chain id.
func TestCounterIdentityScheme(t *testing.T) {
	require := require.New(t)
	rules := DefaultRules()
	rules.NetworkIDScheme = NetworkIDByCounter
	o, es := newTestOracle(t, rules)

	process(t, o, 1, registerPayload())

	state := loadState(t, es)
	require.Equal("0", state.NetworkArrayHead)
	require.Equal("1", loadNetwork(t, es, "0").NextArrayElement)
	_, ok, err := es.Load(entity.KindNetwork, "eth")
	require.NoError(err)
	require.False(ok)

	payload, err := EncodeMessages([]MessageSpec{{
		Kind: entity.MessageRegisterNetworks,
		Add:  []string{"avax"},
	}})
	require.NoError(err)
	process(t, o, 2, payload)
	require.Equal(uint64(3), loadState(t, es).NetworkCount)
	_, ok, err = es.Load(entity.KindNetwork, "2")
	require.NoError(err)
	require.True(ok, "counter keying continues from the total network count")
}

func TestKeepAuxGlobalState(t *testing.T) {
	require := require.New(t)
	rules := DefaultRules()
	rules.KeepAuxGlobalState = true
	o, es := newTestOracle(t, rules)

	process(t, o, 1, registerPayload())

	ent, ok, err := es.Load(entity.KindGlobalState, entity.AuxGlobalStateID)
	require.NoError(err)
	require.True(ok)
	aux := ent.(*entity.GlobalState)
	require.Equal(entity.AuxGlobalStateID, aux.ID)
	require.Equal(uint64(2), aux.NetworkCount)
	require.Equal(uint64(2), aux.ActiveNetworkCount)
}

func TestChangePermissionsAndReset(t *testing.T) {
	require := require.New(t)
	o, es := newTestOracle(t, DefaultRules())

	owner := common.BytesToAddress([]byte{0x42})
	grant, err := EncodeMessages([]MessageSpec{{
		Kind:           entity.MessageChangePermissions,
		Address:        owner,
		ValidThrough:   1000,
		NewPermissions: []string{"submit", "reset"},
	}})
	require.NoError(err)
	process(t, o, 1, grant)

	entryID := entity.PermissionListEntryID(owner)
	state := loadState(t, es)
	require.Equal([]string{entryID}, state.PermissionList)

	ent, ok, err := es.Load(entity.KindPermissionListEntry, entryID)
	require.NoError(err)
	require.True(ok)
	entry := ent.(*entity.PermissionListEntry)
	require.Equal(owner, entry.Address)
	require.Equal(uint64(1000), entry.ValidThrough)
	require.Equal([]string{"submit", "reset"}, entry.Permissions)

	t.Run("old permissions are recorded on the message", func(t *testing.T) {
		update, err := EncodeMessages([]MessageSpec{{
			Kind:           entity.MessageChangePermissions,
			Address:        owner,
			ValidThrough:   2000,
			OldPermissions: []string{"submit", "reset"},
			NewPermissions: []string{"submit"},
		}})
		require.NoError(err)
		call := process(t, o, 2, update)

		msgEnt, ok, err := es.Load(entity.KindMessage, entity.MessageID(entity.MessageBlockID(call.TxHash.Hex(), 0), 0))
		require.NoError(err)
		require.True(ok)
		msg := msgEnt.(*entity.Message)
		require.Equal([]string{"submit", "reset"}, msg.ChangePermissions.OldPermissions)
		require.Equal([]string{"submit"}, msg.ChangePermissions.NewPermissions)

		// The permission list keeps a single entry per address.
		require.Equal([]string{entryID}, loadState(t, es).PermissionList)
	})

	t.Run("reset clears permissions and version, keeps networks", func(t *testing.T) {
		setup, err := EncodeMessages([]MessageSpec{
			{Kind: entity.MessageRegisterNetworks, Add: []string{"eth"}},
			{Kind: entity.MessageUpdateVersions, Version: 3},
		})
		require.NoError(err)
		process(t, o, 3, setup)

		// ResetState consumes nothing, so it needs trailing payload bytes
		// to be dispatched at all; follow it with a version bump.
		reset, err := EncodeMessages([]MessageSpec{
			{Kind: entity.MessageResetState},
			{Kind: entity.MessageUpdateVersions, Version: 1},
		})
		require.NoError(err)
		process(t, o, 4, reset)

		state := loadState(t, es)
		require.Empty(state.PermissionList)
		require.Equal(uint64(1), state.EncodingVersion, "reset returns the version to its initial value before the bump")
		require.Equal(uint64(1), state.ActiveNetworkCount, "network data is untouched")
	})
}

// Property 1: for round-trippable messages, re-encoding the observed
// messages yields the original bytes.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	require := require.New(t)
	o, es := newTestOracle(t, DefaultRules())

	process(t, o, 1, registerPayload())

	merkleRoot := make([]byte, 32)
	for i := range merkleRoot {
		merkleRoot[i] = 0x7f
	}
	specs := []MessageSpec{
		{Kind: entity.MessageRegisterNetworks, Add: []string{"avax", "base"}},
		{Kind: entity.MessageCorrectEpochs},
		{Kind: entity.MessageSetBlockNumbersForEpoch, MerkleRoot: merkleRoot, Accelerations: []int64{5, -3, 100, 0}},
		{Kind: entity.MessageUpdateVersions, Version: 12},
	}
	payload, err := EncodeMessages(specs)
	require.NoError(err)
	call := process(t, o, 2, payload)

	require.True(loadPayload(t, es, call).Valid)

	blockID := entity.MessageBlockID(call.TxHash.Hex(), 0)
	var rebuilt []byte
	rebuilt = append(rebuilt, payload[:PreambleSize]...)
	for i, spec := range specs {
		msgEnt, ok, err := es.Load(entity.KindMessage, entity.MessageID(blockID, i))
		require.NoError(err)
		require.True(ok, "message %d must be recorded", i)
		msg := msgEnt.(*entity.Message)

		single, err := EncodeMessages([]MessageSpec{spec})
		require.NoError(err)
		require.Equal(single[PreambleSize:], []byte(msg.Data), "message %d bytes", i)
		rebuilt = append(rebuilt, msg.Data...)
	}
	require.Equal(payload, rebuilt, "concatenated message data reproduces the payload")

	// And the decoded semantics match the specs.
	msgEnt, _, err := es.Load(entity.KindMessage, entity.MessageID(blockID, 2))
	require.NoError(err)
	msg := msgEnt.(*entity.Message)
	require.Equal([]int64{5, -3, 100, 0}, msg.SetBlockNumbers.Accelerations)
	require.Equal(merkleRoot, []byte(msg.SetBlockNumbers.MerkleRoot))
}

// Property 4: after arbitrary register/remove sequences the persisted linked
// list matches the expected model, with a contiguous index bijection.
func TestNetworkListInvariants(t *testing.T) {
	require := require.New(t)
	o, es := newTestOracle(t, DefaultRules())

	r := rand.New(rand.NewSource(5))
	var model []string
	nextID := 0
	seq := byte(1)

	checkList := func() {
		state := loadState(t, es)
		require.Equal(uint64(len(model)), state.ActiveNetworkCount)
		id := state.NetworkArrayHead
		for i, want := range model {
			require.Equal(want, id, "position %d", i)
			net := loadNetwork(t, es, id)
			require.False(net.Removed())
			require.NotNil(net.ArrayIndex)
			require.Equal(uint32(i), *net.ArrayIndex)
			id = net.NextArrayElement
		}
		require.Empty(id, "list must end after %d nodes", len(model))
	}

	for step := 0; step < 60; step++ {
		if len(model) == 0 || r.Intn(2) == 0 {
			count := 1 + r.Intn(3)
			spec := MessageSpec{Kind: entity.MessageRegisterNetworks}
			for i := 0; i < count; i++ {
				id := fmt.Sprintf("net-%d", nextID)
				nextID++
				spec.Add = append(spec.Add, id)
				model = append(model, id)
			}
			payload, err := EncodeMessages([]MessageSpec{spec})
			require.NoError(err)
			process(t, o, seq, payload)
		} else {
			index := r.Intn(len(model))
			payload, err := EncodeMessages([]MessageSpec{{
				Kind:          entity.MessageRegisterNetworks,
				RemoveIndexes: []uint64{uint64(index)},
			}})
			require.NoError(err)
			process(t, o, seq, payload)
			model[index] = model[len(model)-1]
			model = model[:len(model)-1]
		}
		seq++
		checkList()
	}
}

// Property 5: over one network, blockNumber_k is the double cumulative sum
// of the accelerations.
func TestBlockNumberDoubleCumulativeSum(t *testing.T) {
	require := require.New(t)
	o, es := newTestOracle(t, DefaultRules())

	payload, err := EncodeMessages([]MessageSpec{{
		Kind: entity.MessageRegisterNetworks,
		Add:  []string{"eth"},
	}})
	require.NoError(err)
	process(t, o, 1, payload)

	r := rand.New(rand.NewSource(6))
	accelerations := make([]int64, 20)
	for i := range accelerations {
		accelerations[i] = int64(r.Intn(2001) - 1000)
	}

	for k, a := range accelerations {
		process(t, o, byte(2+k), setBlockNumbersPayload(t, byte(k), a))
	}

	for k := range accelerations {
		expected := big.NewInt(0)
		for i := 0; i <= k; i++ {
			weight := big.NewInt(int64(k - i + 1))
			expected.Add(expected, weight.Mul(weight, big.NewInt(accelerations[i])))
		}
		nebn := loadNEBN(t, es, fmt.Sprintf("%d-eth", k+1))
		require.Zero(expected.Cmp(nebn.BlockNumber), "epoch %d: want %s, got %s", k+1, expected, nebn.BlockNumber)
	}
}

// An out-of-range remove index is an invariant violation that rolls the
// whole invocation back.
func TestRemoveIndexOutOfRange(t *testing.T) {
	require := require.New(t)
	o, es := newTestOracle(t, DefaultRules())

	process(t, o, 1, registerPayload())

	payload, err := EncodeMessages([]MessageSpec{{
		Kind:          entity.MessageRegisterNetworks,
		RemoveIndexes: []uint64{2},
	}})
	require.NoError(err)
	call := process(t, o, 2, payload)

	p := loadPayload(t, es, call)
	require.False(p.Valid)
	require.Equal("invariant violation", p.ErrorMessage)
	require.Equal(uint64(2), loadState(t, es).ActiveNetworkCount)
}

// A rolled-back invocation must not leak half-applied registrations even
// when the failing message comes after a successful one.
func TestRollbackDiscardsEarlierMessages(t *testing.T) {
	require := require.New(t)
	o, es := newTestOracle(t, DefaultRules())

	payload, err := EncodeMessages([]MessageSpec{
		{Kind: entity.MessageRegisterNetworks, Add: []string{"eth"}},
		{Kind: entity.MessageUpdateVersions, Version: 0}, // never advances
	})
	require.NoError(err)
	call := process(t, o, 1, payload)

	require.False(loadPayload(t, es, call).Valid)
	_, ok, err := es.Load(entity.KindNetwork, "eth")
	require.NoError(err)
	require.False(ok, "registration from the same invocation must be rolled back")
	_, ok, err = es.Load(entity.KindGlobalState, entity.GlobalStateID)
	require.NoError(err)
	require.False(ok, "the global state was never committed")
}
