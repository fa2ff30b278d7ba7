package oracle

import (
	"fmt"

	"github.com/edgeandnode/block-oracle/entity"
	"github.com/edgeandnode/block-oracle/store"
)

// The active-network set is persisted as a singly-linked list embedded in
// Network entities, rooted at GlobalState.NetworkArrayHead. That shape is
// part of the external query contract. Internally each invocation
// materializes the list into a contiguous slice, mutates the slice, and
// re-serializes the links on commit.

// materializeNetworks walks the list from the head, collecting nodes whose
// RemovedAt is unset. The walk asserts that the collected length equals
// ActiveNetworkCount.
func materializeNetworks(cache *store.Cache, state *entity.GlobalState) ([]*entity.Network, error) {
	var nets []*entity.Network
	for id := state.NetworkArrayHead; id != ""; {
		ent, ok, err := cache.Load(entity.KindNetwork, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: network list references missing network %q", ErrInvariantViolation, id)
		}
		net := ent.(*entity.Network)
		if !net.Removed() {
			nets = append(nets, net)
		}
		id = net.NextArrayElement
	}
	if uint64(len(nets)) != state.ActiveNetworkCount {
		return nil, fmt.Errorf("%w: network list has %d active nodes, state says %d",
			ErrInvariantViolation, len(nets), state.ActiveNetworkCount)
	}
	return nets, nil
}

// swapAndPop removes the element at index in O(1) by swapping it with the
// tail and popping. Relative order of all other elements is preserved,
// except the slot at index now holds the former tail.
func swapAndPop(list []*entity.Network, index int) ([]*entity.Network, *entity.Network, error) {
	if index < 0 || index >= len(list) {
		return list, nil, fmt.Errorf("%w: remove index %d out of range, %d active networks",
			ErrInvariantViolation, index, len(list))
	}
	removed := list[index]
	list[index] = list[len(list)-1]
	return list[:len(list)-1], removed, nil
}

// commitNetworkList re-serializes the materialized list back into entity
// links. Removed nodes lose their state, next pointer, and array index;
// retained nodes are relinked and reindexed in slice order; the state's head
// and active count follow.
func commitNetworkList(cache *store.Cache, state *entity.GlobalState, removed, retained []*entity.Network) {
	for _, net := range removed {
		net.State = ""
		net.NextArrayElement = ""
		net.ArrayIndex = nil
		cache.Save(net)
	}
	for i, net := range retained {
		net.State = state.ID
		if i+1 < len(retained) {
			net.NextArrayElement = retained[i+1].ID
		} else {
			net.NextArrayElement = ""
		}
		idx := uint32(i)
		net.ArrayIndex = &idx
		cache.Save(net)
	}
	if len(retained) > 0 {
		state.NetworkArrayHead = retained[0].ID
	} else {
		state.NetworkArrayHead = ""
	}
	state.ActiveNetworkCount = uint64(len(retained))
	cache.Save(state)
}
