package cache

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"liquiditySim/internal/broadcast"
	"liquiditySim/internal/model"
)

// Cache is the in-memory view of pools. States and components live in
// separate maps with their own locks, so a reader may briefly observe a
// state without its component (or the reverse) while an ingest is running.
// Ingest is serialized; readers never block each other.
type Cache struct {
	ingestMu sync.Mutex

	statesMu sync.RWMutex
	states   map[string]model.PoolState

	componentsMu sync.RWMutex
	components   map[string]model.Component

	currentBlock atomic.Uint64

	updates *broadcast.Broadcaster[model.ClientUpdate]
	logger  *zap.Logger
}

func New(updates *broadcast.Broadcaster[model.ClientUpdate], logger *zap.Logger) *Cache {
	if updates == nil {
		updates = broadcast.New[model.ClientUpdate](broadcast.DefaultCapacity)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		states:     make(map[string]model.PoolState),
		components: make(map[string]model.Component),
		updates:    updates,
		logger:     logger,
	}
}

// Ingest merges a block update and publishes the resulting ClientUpdate.
// Entries are last-write-wins; the current block follows the latest ingest
// even if it is lower than the previous one.
func (c *Cache) Ingest(update model.BlockUpdate) model.ClientUpdate {
	c.ingestMu.Lock()
	defer c.ingestMu.Unlock()

	c.statesMu.Lock()
	for id, state := range update.States {
		c.states[id] = state
	}
	for _, id := range update.RemovedPairs {
		delete(c.states, id)
	}
	c.statesMu.Unlock()

	newPairs := make(map[string]model.Component, len(update.NewPairs))
	c.componentsMu.Lock()
	for id, comp := range update.NewPairs {
		c.components[id] = comp
		newPairs[id] = comp
	}
	for _, id := range update.RemovedPairs {
		delete(c.components, id)
	}
	c.componentsMu.Unlock()

	c.currentBlock.Store(update.BlockNumber)

	tvl := make(map[string]float64, len(update.States))
	for id := range update.States {
		tvl[id] = 0
	}

	msg := model.ClientUpdate{
		BlockNumber:  update.BlockNumber,
		NewPairs:     newPairs,
		SpotPrices:   c.spotPrices(update.States, c.Component),
		TVLUpdates:   tvl,
		RemovedPairs: update.RemovedPairs,
	}

	delivered := c.updates.Publish(msg)
	c.logger.Debug("block ingested",
		zap.Uint64("block", update.BlockNumber),
		zap.Int("new_pairs", len(update.NewPairs)),
		zap.Int("states", len(update.States)),
		zap.Int("removed", len(update.RemovedPairs)),
		zap.Int("prices", len(msg.SpotPrices)),
		zap.Int("subscribers", delivered),
	)
	return msg
}

// spotPrices prices each state against its component's first two tokens.
// Pools without a resolvable component or with a failing price are left out.
func (c *Cache) spotPrices(states map[string]model.PoolState, component func(string) (model.Component, bool)) map[string]float64 {
	prices := make(map[string]float64, len(states))
	for id, state := range states {
		comp, ok := component(id)
		if !ok || len(comp.Tokens) < 2 {
			continue
		}
		price, err := state.SpotPrice(comp.Tokens[0], comp.Tokens[1])
		if err != nil {
			c.logger.Debug("spot price skipped", zap.String("pool", id), zap.Error(err))
			continue
		}
		prices[id] = price
	}
	return prices
}

// Component returns the component registered under id.
func (c *Cache) Component(id string) (model.Component, bool) {
	c.componentsMu.RLock()
	comp, ok := c.components[id]
	c.componentsMu.RUnlock()
	return comp, ok
}

// State returns the latest pool state registered under id.
func (c *Cache) State(id string) (model.PoolState, bool) {
	c.statesMu.RLock()
	state, ok := c.states[id]
	c.statesMu.RUnlock()
	return state, ok
}

// Lookup returns the component and state for id; either may be absent.
// The two reads are not atomic with respect to a concurrent ingest.
func (c *Cache) Lookup(id string) (*model.Component, model.PoolState) {
	state, _ := c.State(id)
	comp, ok := c.Component(id)
	if !ok {
		return nil, state
	}
	return &comp, state
}

// FullSnapshot copies every component and prices every state. The copies
// are taken under read locks; pricing runs after the locks are released.
func (c *Cache) FullSnapshot() model.ClientUpdate {
	block := c.currentBlock.Load()

	c.statesMu.RLock()
	states := make(map[string]model.PoolState, len(c.states))
	for id, state := range c.states {
		states[id] = state
	}
	c.statesMu.RUnlock()

	c.componentsMu.RLock()
	components := make(map[string]model.Component, len(c.components))
	for id, comp := range c.components {
		components[id] = comp
	}
	c.componentsMu.RUnlock()

	lookup := func(id string) (model.Component, bool) {
		comp, ok := components[id]
		return comp, ok
	}

	return model.ClientUpdate{
		BlockNumber: block,
		NewPairs:    components,
		SpotPrices:  c.spotPrices(states, lookup),
		TVLUpdates:  make(map[string]float64),
	}
}

// Subscribe registers for ClientUpdates published after this call.
func (c *Cache) Subscribe() *broadcast.Subscription[model.ClientUpdate] {
	return c.updates.Subscribe()
}

// CurrentBlock returns the block of the most recent ingest.
func (c *Cache) CurrentBlock() uint64 {
	return c.currentBlock.Load()
}

// Len returns the number of pool states held.
func (c *Cache) Len() int {
	c.statesMu.RLock()
	defer c.statesMu.RUnlock()
	return len(c.states)
}
