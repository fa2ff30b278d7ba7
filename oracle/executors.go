package oracle

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/edgeandnode/block-oracle/entity"
	"github.com/edgeandnode/block-oracle/store"
	"github.com/edgeandnode/block-oracle/utils/fast"
	"github.com/edgeandnode/block-oracle/utils/varint"
)

// merkleRootSize is the byte width of the per-epoch merkle root field.
const merkleRootSize = 32

// addressSize is the byte width of the permission holder address field.
const addressSize = 20

// execContext carries the per-message execution state. The Message entity is
// pre-created by the driver so executors can reference its id from the
// entities they touch; the driver attaches the consumed bytes and saves it
// after the executor returns.
type execContext struct {
	cache *store.Cache
	state *entity.GlobalState
	rules Rules
	msg   *entity.Message
	log   *logrus.Entry
}

// An executor consumes a prefix of the remaining payload, mutates the cached
// state, and returns the number of bytes consumed. On a decoder error it
// returns the error unwrapped so the driver can classify and roll back.
type executor func(ctx *execContext, data []byte) (int, error)

// executorFor dispatches by preamble tag. Callers check Tag.Known first.
func executorFor(tag Tag) executor {
	switch tag {
	case TagSetBlockNumbersForEpoch:
		return execSetBlockNumbers
	case TagCorrectEpochs:
		return execCorrectEpochs
	case TagUpdateVersions:
		return execUpdateVersions
	case TagRegisterNetworks:
		return func(ctx *execContext, data []byte) (int, error) {
			return execRegisterNetworks(ctx, data, false)
		}
	case TagRegisterNetworksAndAliases:
		return func(ctx *execContext, data []byte) (int, error) {
			return execRegisterNetworks(ctx, data, true)
		}
	case TagChangePermissions:
		return execChangePermissions
	case TagResetState:
		return execResetState
	}
	return nil
}

// execSetBlockNumbers advances the epoch and derives one
// NetworkEpochBlockNumber per active network from the signed acceleration
// stream. With no active networks it records an empty message and consumes
// nothing.
func execSetBlockNumbers(ctx *execContext, data []byte) (int, error) {
	body := &entity.SetBlockNumbersMessage{}
	ctx.msg.Kind = entity.MessageSetBlockNumbersForEpoch
	ctx.msg.SetBlockNumbers = body

	if ctx.state.ActiveNetworkCount == 0 {
		return 0, nil
	}

	epoch := new(big.Int)
	if ctx.state.LatestValidEpoch != nil {
		epoch.Set(ctx.state.LatestValidEpoch)
	}
	epoch.Add(epoch, common.Big1)
	ctx.state.LatestValidEpoch = epoch
	ctx.cache.Save(ctx.state)

	epochID := entity.EpochID(epoch)
	if _, err := ctx.cache.GetOrCreate(entity.KindEpoch, epochID, func() entity.Entity {
		return &entity.Epoch{ID: epochID, EpochNumber: new(big.Int).Set(epoch)}
	}); err != nil {
		return 0, err
	}

	r := fast.NewReader(data)
	root, err := r.Read(merkleRootSize)
	if err != nil {
		return 0, err
	}
	body.MerkleRoot = append([]byte(nil), root...)

	nets, err := materializeNetworks(ctx.cache, ctx.state)
	if err != nil {
		return 0, err
	}
	prevEpoch := new(big.Int).Sub(epoch, common.Big1)
	for _, net := range nets {
		accel, n, err := varint.DecodeI64(data, r.Position())
		if err != nil {
			return 0, err
		}
		_ = r.Skip(n)
		body.Accelerations = append(body.Accelerations, accel)
		if err := applyAcceleration(ctx, net, epoch, epochID, prevEpoch, accel); err != nil {
			return 0, err
		}
	}

	ctx.log.WithFields(logrus.Fields{
		"epoch":    epochID,
		"networks": len(nets),
	}).Debug("block numbers set")
	return r.Position(), nil
}

// applyAcceleration creates the NetworkEpochBlockNumber for (epoch, net),
// chaining it to the previous epoch's entry when one exists: the delta is
// the previous delta plus the acceleration, the block number the previous
// block number plus the delta.
func applyAcceleration(ctx *execContext, net *entity.Network, epoch *big.Int, epochID string, prevEpoch *big.Int, accel int64) error {
	acceleration := big.NewInt(accel)
	delta := new(big.Int).Set(acceleration)
	blockNumber := new(big.Int).Set(delta)

	previousID := ""
	if prevEpoch.Sign() > 0 {
		id := entity.NetworkEpochBlockNumberID(prevEpoch, net.ID)
		ent, ok, err := ctx.cache.Load(entity.KindNetworkEpochBlockNumber, id)
		if err != nil {
			return err
		}
		if ok {
			prev := ent.(*entity.NetworkEpochBlockNumber)
			delta.Add(prev.Delta, acceleration)
			blockNumber.Add(prev.BlockNumber, delta)
			previousID = id
		}
	}

	nebn := &entity.NetworkEpochBlockNumber{
		ID:                  entity.NetworkEpochBlockNumberID(epoch, net.ID),
		Acceleration:        acceleration,
		Delta:               delta,
		BlockNumber:         blockNumber,
		EpochNumber:         new(big.Int).Set(epoch),
		Network:             net.ID,
		Epoch:               epochID,
		PreviousBlockNumber: previousID,
	}
	ctx.cache.Save(nebn)

	net.LatestValidBlockNumber = nebn.ID
	net.LastUpdatedAt = ctx.msg.ID
	ctx.cache.Save(net)
	return nil
}

// execCorrectEpochs is reserved in the current encoding: a recorded no-op
// consuming nothing.
func execCorrectEpochs(ctx *execContext, data []byte) (int, error) {
	ctx.msg.Kind = entity.MessageCorrectEpochs
	return 0, nil
}

// execUpdateVersions bumps the encoding version. The version must strictly
// increase.
func execUpdateVersions(ctx *execContext, data []byte) (int, error) {
	ctx.msg.Kind = entity.MessageUpdateVersions
	newVersion, n, err := varint.DecodeU64(data, 0)
	if err != nil {
		return 0, err
	}
	oldVersion := ctx.state.EncodingVersion
	if newVersion <= oldVersion {
		return 0, fmt.Errorf("%w: encoding version %d does not advance current version %d",
			ErrInvariantViolation, newVersion, oldVersion)
	}
	ctx.state.EncodingVersion = newVersion
	ctx.cache.Save(ctx.state)
	ctx.msg.UpdateVersions = &entity.UpdateVersionsMessage{
		OldVersion: oldVersion,
		NewVersion: newVersion,
	}
	return n, nil
}

// execRegisterNetworks removes networks by active-list index (swap-and-pop)
// and registers new ones. With aliases enabled each addition carries a
// second length-prefixed string.
func execRegisterNetworks(ctx *execContext, data []byte, withAliases bool) (int, error) {
	body := &entity.RegisterNetworksMessage{}
	if withAliases {
		ctx.msg.Kind = entity.MessageRegisterNetworksAndAliases
	} else {
		ctx.msg.Kind = entity.MessageRegisterNetworks
	}
	ctx.msg.RegisterNetworks = body

	r := fast.NewReader(data)
	readU64 := func() (uint64, error) {
		v, n, err := varint.DecodeU64(data, r.Position())
		if err != nil {
			return 0, err
		}
		_ = r.Skip(n)
		return v, nil
	}
	readString := func() (string, error) {
		strLen, err := readU64()
		if err != nil {
			return "", err
		}
		s, err := varint.GetString(data, r.Position(), int(strLen))
		if err != nil {
			return "", err
		}
		_ = r.Skip(int(strLen))
		return s, nil
	}

	retained, err := materializeNetworks(ctx.cache, ctx.state)
	if err != nil {
		return 0, err
	}

	removeCount, err := readU64()
	if err != nil {
		return 0, err
	}
	var removed []*entity.Network
	for i := uint64(0); i < removeCount; i++ {
		removeIndex, err := readU64()
		if err != nil {
			return 0, err
		}
		var net *entity.Network
		retained, net, err = swapAndPop(retained, int(removeIndex))
		if err != nil {
			return 0, err
		}
		net.RemovedAt = ctx.msg.ID
		net.LastUpdatedAt = ctx.msg.ID
		removed = append(removed, net)
		body.RemoveIndexes = append(body.RemoveIndexes, removeIndex)
		body.Removed = append(body.Removed, net.ID)
	}

	addCount, err := readU64()
	if err != nil {
		return 0, err
	}
	counter := ctx.state.NetworkCount
	for i := uint64(0); i < addCount; i++ {
		chainID, err := readString()
		if err != nil {
			return 0, err
		}
		alias := ""
		if withAliases {
			if alias, err = readString(); err != nil {
				return 0, err
			}
		}

		id := chainID
		if ctx.rules.NetworkIDScheme == NetworkIDByCounter {
			id = strconv.FormatUint(counter, 10)
		}
		counter++

		ent, err := ctx.cache.GetOrCreate(entity.KindNetwork, id, func() entity.Entity {
			return &entity.Network{ID: id}
		})
		if err != nil {
			return 0, err
		}
		net := ent.(*entity.Network)
		net.Alias = alias
		net.AddedAt = ctx.msg.ID
		net.LastUpdatedAt = ctx.msg.ID
		net.RemovedAt = ""
		ctx.cache.Save(net)

		retained = append(retained, net)
		body.Added = append(body.Added, id)
		if withAliases {
			body.Aliases = append(body.Aliases, alias)
		}
	}

	commitNetworkList(ctx.cache, ctx.state, removed, retained)
	ctx.state.NetworkCount += addCount
	ctx.cache.Save(ctx.state)

	ctx.log.WithFields(logrus.Fields{
		"removed": len(removed),
		"added":   addCount,
		"active":  ctx.state.ActiveNetworkCount,
	}).Debug("networks registered")
	return r.Position(), nil
}

// execChangePermissions replaces the permission set of one address and
// registers the entry in the global permission list.
func execChangePermissions(ctx *execContext, data []byte) (int, error) {
	ctx.msg.Kind = entity.MessageChangePermissions

	r := fast.NewReader(data)
	addrBytes, err := r.Read(addressSize)
	if err != nil {
		return 0, err
	}
	addr := common.BytesToAddress(addrBytes)

	validThrough, n, err := varint.DecodeU64(data, r.Position())
	if err != nil {
		return 0, err
	}
	_ = r.Skip(n)

	oldPermissions, err := readStringList(r)
	if err != nil {
		return 0, err
	}
	newPermissions, err := readStringList(r)
	if err != nil {
		return 0, err
	}

	entryID := entity.PermissionListEntryID(addr)
	ent, err := ctx.cache.GetOrCreate(entity.KindPermissionListEntry, entryID, func() entity.Entity {
		return &entity.PermissionListEntry{ID: entryID, Address: addr}
	})
	if err != nil {
		return 0, err
	}
	entry := ent.(*entity.PermissionListEntry)
	entry.ValidThrough = validThrough
	entry.Permissions = newPermissions
	entry.UpdatedAt = ctx.msg.ID
	ctx.cache.Save(entry)

	registered := false
	for _, id := range ctx.state.PermissionList {
		if id == entryID {
			registered = true
			break
		}
	}
	if !registered {
		ctx.state.PermissionList = append(ctx.state.PermissionList, entryID)
		ctx.cache.Save(ctx.state)
	}

	ctx.msg.ChangePermissions = &entity.ChangePermissionsMessage{
		Address:        addr,
		ValidThrough:   validThrough,
		OldPermissions: oldPermissions,
		NewPermissions: newPermissions,
	}
	return r.Position(), nil
}

// execResetState clears the permission list and restores the initial
// encoding version. Network data is untouched.
func execResetState(ctx *execContext, data []byte) (int, error) {
	ctx.msg.Kind = entity.MessageResetState
	ctx.state.PermissionList = nil
	ctx.state.EncodingVersion = InitialEncodingVersion
	ctx.cache.Save(ctx.state)
	return 0, nil
}

// readStringList decodes a count-prefixed list of length-prefixed strings.
func readStringList(r *fast.Reader) ([]string, error) {
	count, n, err := varint.DecodeU64(r.Bytes(), r.Position())
	if err != nil {
		return nil, err
	}
	_ = r.Skip(n)
	var list []string
	for i := uint64(0); i < count; i++ {
		strLen, n, err := varint.DecodeU64(r.Bytes(), r.Position())
		if err != nil {
			return nil, err
		}
		_ = r.Skip(n)
		s, err := varint.GetString(r.Bytes(), r.Position(), int(strLen))
		if err != nil {
			return nil, err
		}
		_ = r.Skip(int(strLen))
		list = append(list, s)
	}
	return list, nil
}
