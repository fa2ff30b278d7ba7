// Package oracle implements the payload decoder and message executor of the
// cross-chain epoch oracle: the preamble-tagged wire format, the per-message
// state machine over the global oracle state, and the invocation driver with
// transactional commit and rollback.
package oracle

import (
	"encoding/json"
	"fmt"
)

// NetworkIDScheme selects how newly registered networks are keyed.
type NetworkIDScheme string

const (
	// NetworkIDByChainID keys networks by the decoded chain id string. This
	// is the documented schema shape and the default.
	NetworkIDByChainID NetworkIDScheme = "chainid"

	// NetworkIDByCounter keys networks by the running networkCount, as one
	// legacy encoder revision did.
	NetworkIDByCounter NetworkIDScheme = "counter"
)

// InitialEncodingVersion is the encoding version of a fresh oracle state and
// the value ResetState restores.
const InitialEncodingVersion uint64 = 0

// Rules holds the decoding semantics knobs of one oracle deployment. They
// are consensus-critical: two indexers must run identical Rules to derive
// identical state from the same byte stream.
type Rules struct {
	// NetworkIDScheme picks the network identity scheme for registrations.
	NetworkIDScheme NetworkIDScheme `json:"networkIDScheme"`

	// KeepAuxGlobalState re-publishes a copy of the canonical GlobalState
	// under id "1" at each commit, preserving the legacy two-entity store
	// shape for downstream consumers that query it.
	KeepAuxGlobalState bool `json:"keepAuxGlobalState"`
}

// DefaultRules returns the rules of a current-generation deployment.
func DefaultRules() Rules {
	return Rules{
		NetworkIDScheme:    NetworkIDByChainID,
		KeepAuxGlobalState: false,
	}
}

// Validate rejects unknown scheme names before the driver starts.
func (r Rules) Validate() error {
	switch r.NetworkIDScheme {
	case NetworkIDByChainID, NetworkIDByCounter:
		return nil
	case "":
		return fmt.Errorf("network id scheme is not set")
	}
	return fmt.Errorf("unknown network id scheme %q", r.NetworkIDScheme)
}

// String returns the rules as JSON, for logs and config dumps.
func (r Rules) String() string {
	b, _ := json.Marshal(r)
	return string(b)
}
