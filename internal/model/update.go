package model

// BlockUpdate is one delta emitted by a feed for a block.
type BlockUpdate struct {
	BlockNumber  uint64
	NewPairs     map[string]Component
	States       map[string]PoolState
	RemovedPairs []string
}

// ClientUpdate is the message pushed to subscribers after each ingest,
// and the shape of a full snapshot.
type ClientUpdate struct {
	BlockNumber  uint64               `json:"block_number"`
	NewPairs     map[string]Component `json:"new_pairs"`
	SpotPrices   map[string]float64   `json:"spot_prices"`
	TVLUpdates   map[string]float64   `json:"tvl_updates"`
	RemovedPairs []string             `json:"removed_pairs,omitempty"`
}
