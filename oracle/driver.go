package oracle

import (
	"fmt"
	"math/big"

	"github.com/sirupsen/logrus"

	"github.com/edgeandnode/block-oracle/entity"
	"github.com/edgeandnode/block-oracle/metrics"
	"github.com/edgeandnode/block-oracle/source"
	"github.com/edgeandnode/block-oracle/store"
	"github.com/edgeandnode/block-oracle/utils/fast"
)

// Oracle is the invocation driver: it decodes payload bytes call by call and
// derives the replicated oracle state. Invocations are processed strictly
// sequentially in on-chain order; a failed decode rolls every staged
// mutation back, so the canonical GlobalState only ever reflects fully
// successful invocations.
type Oracle struct {
	store   *store.EntityStore
	rules   Rules
	log     *logrus.Logger
	metrics *metrics.Metrics
}

// New creates a driver over the given entity store. The metrics set may be
// nil.
func New(entityStore *store.EntityStore, rules Rules, log *logrus.Logger, m *metrics.Metrics) (*Oracle, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return &Oracle{
		store:   entityStore,
		rules:   rules,
		log:     log,
		metrics: m,
	}, nil
}

// ProcessCall handles one invocation. Decoder errors (truncation, invariant
// violations) are absorbed: the staged state is discarded and the Payload
// audit record is persisted as invalid. Entity store failures are returned
// and leave no trace of the invocation.
func (o *Oracle) ProcessCall(call source.Call) error {
	log := o.log.WithFields(logrus.Fields{
		"tx":    call.TxHash.Hex(),
		"block": call.BlockNumber,
	})

	cache := store.NewCache(o.store, o.log)
	stateEnt, err := cache.GetOrCreate(entity.KindGlobalState, entity.GlobalStateID, func() entity.Entity {
		return &entity.GlobalState{
			ID:              entity.GlobalStateID,
			EncodingVersion: InitialEncodingVersion,
		}
	})
	if err != nil {
		return err
	}
	state := stateEnt.(*entity.GlobalState)

	payload := &entity.Payload{
		ID:        call.TxHash.Hex(),
		Data:      append([]byte(nil), call.Payload...),
		Submitter: call.Submitter,
		CreatedAt: new(big.Int).SetUint64(call.BlockNumber),
	}

	messages, decodeErr := o.decodePayload(cache, state, payload, log)
	if decodeErr != nil {
		if !isDecoderError(decodeErr) {
			return decodeErr
		}
		cache.Discard()
		payload.Valid = false
		payload.ErrorMessage = failureKind(decodeErr)
		if err := o.store.Save(payload); err != nil {
			return err
		}
		log.WithField("error", decodeErr).Warn("payload rolled back")
		if o.metrics != nil {
			o.metrics.PayloadsProcessed.WithLabelValues("invalid").Inc()
			o.metrics.DecodeFailures.WithLabelValues(payload.ErrorMessage).Inc()
		}
		return nil
	}

	payload.Valid = true
	cache.Save(payload)
	if o.rules.KeepAuxGlobalState {
		cache.Save(state.Copy(entity.AuxGlobalStateID))
	}
	if err := cache.Commit(); err != nil {
		return err
	}

	log.WithField("messages", messages).Info("payload processed")
	if o.metrics != nil {
		o.metrics.PayloadsProcessed.WithLabelValues("valid").Inc()
		o.metrics.ActiveNetworks.Set(float64(state.ActiveNetworkCount))
		if state.LatestValidEpoch != nil {
			epoch, _ := new(big.Float).SetInt(state.LatestValidEpoch).Float64()
			o.metrics.LatestValidEpoch.Set(epoch)
		}
	}
	return nil
}

// decodePayload runs the MessageBlock loop: parse a preamble, dispatch
// executors tag by tag over the remaining payload, and stage the audit
// entities. It returns the number of decoded messages.
//
// An exhausted payload ends the current block before the next tag slot is
// dispatched; zero-padded preamble tails are therefore never executed as
// empty SetBlockNumbersForEpoch messages. Unknown tags end the block
// without advancing the cursor.
func (o *Oracle) decodePayload(cache *store.Cache, state *entity.GlobalState, payload *entity.Payload, log *logrus.Entry) (total int, err error) {
	// Backstop against decoder bugs: a panic escaping an executor is
	// converted into a fatal error instead of killing the process, so the
	// caller abandons the invocation with no commit.
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("decoder panic: %v", rec)
		}
	}()

	r := fast.NewReader(payload.Data)
	for blockIndex := 0; !r.Empty(); blockIndex++ {
		blockStart := r.Position()
		preamble, err := parsePreamble(r)
		if err != nil {
			return total, err
		}
		blockID := entity.MessageBlockID(payload.ID, blockIndex)

		for msgIndex := 0; msgIndex < TagsPerBlock; msgIndex++ {
			if r.Empty() {
				break
			}
			tag := preamble.Tag(msgIndex)
			if !tag.Known() {
				log.WithFields(logrus.Fields{
					"tag":   uint8(tag),
					"block": blockID,
					"slot":  msgIndex,
				}).Debug("unknown tag ends message block")
				break
			}

			msg := &entity.Message{
				ID:    entity.MessageID(blockID, msgIndex),
				Block: blockID,
			}
			remaining := payload.Data[r.Position():]
			consumed, err := executorFor(tag)(&execContext{
				cache: cache,
				state: state,
				rules: o.rules,
				msg:   msg,
				log:   log,
			}, remaining)
			if err != nil {
				return total, fmt.Errorf("message %s (%s): %w", msg.ID, tag, err)
			}
			msg.Data = append([]byte(nil), remaining[:consumed]...)
			cache.Save(msg)
			_ = r.Skip(consumed)
			total++
			if o.metrics != nil {
				o.metrics.MessagesDecoded.WithLabelValues(string(msg.Kind)).Inc()
			}
		}

		cache.Save(&entity.MessageBlock{
			ID:      blockID,
			Data:    append([]byte(nil), payload.Data[blockStart:r.Position()]...),
			Payload: payload.ID,
		})
	}
	return total, nil
}
