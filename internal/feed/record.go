package feed

import (
	"encoding/json"
	"fmt"

	"github.com/sugawarayuuta/sonnet"

	"liquiditySim/internal/dex"
	"liquiditySim/internal/model"
)

// Record is the JSONL form of a block update.
type Record struct {
	BlockNumber  uint64                     `json:"block_number"`
	NewPairs     map[string]model.Component `json:"new_pairs,omitempty"`
	States       map[string]StateRecord     `json:"states,omitempty"`
	RemovedPairs []string                   `json:"removed_pairs,omitempty"`
}

// StateRecord tags a pool state with the protocol that decodes it.
type StateRecord struct {
	Protocol string          `json:"protocol"`
	State    json.RawMessage `json:"state"`
}

// EncodeRecord renders a block update as one JSON line (without newline).
func EncodeRecord(update model.BlockUpdate) ([]byte, error) {
	rec := Record{
		BlockNumber:  update.BlockNumber,
		NewPairs:     update.NewPairs,
		RemovedPairs: update.RemovedPairs,
	}
	if len(update.States) > 0 {
		rec.States = make(map[string]StateRecord, len(update.States))
		for id, state := range update.States {
			raw, err := json.Marshal(state)
			if err != nil {
				return nil, fmt.Errorf("encode state %s: %w", id, err)
			}
			rec.States[id] = StateRecord{Protocol: state.Protocol(), State: raw}
		}
	}
	return json.Marshal(rec)
}

// DecodeRecord parses one JSON line into a block update.
func DecodeRecord(line []byte) (model.BlockUpdate, error) {
	var rec Record
	if err := sonnet.Unmarshal(line, &rec); err != nil {
		return model.BlockUpdate{}, fmt.Errorf("decode record: %w", err)
	}

	update := model.BlockUpdate{
		BlockNumber:  rec.BlockNumber,
		NewPairs:     rec.NewPairs,
		States:       make(map[string]model.PoolState, len(rec.States)),
		RemovedPairs: rec.RemovedPairs,
	}
	for id, sr := range rec.States {
		state, err := dex.DecodeState(sr.Protocol, sr.State)
		if err != nil {
			return model.BlockUpdate{}, fmt.Errorf("pool %s: %w", id, err)
		}
		update.States[id] = state
	}
	for id, comp := range update.NewPairs {
		if comp.ID == "" {
			comp.ID = id
			update.NewPairs[id] = comp
		}
	}
	return update, nil
}
