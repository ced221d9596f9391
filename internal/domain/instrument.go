package domain

import "sync"

// Instrument describes a tradable symbol on the simulated venue.
// MinOrderSize and MaxOrderSize bound single-order quantity; Sector
// feeds the concentration check in the risk gate.
type Instrument struct {
	Symbol       string
	Name         string
	Sector       string
	Tradable     bool
	MinOrderSize int64
	MaxOrderSize int64
}

// InstrumentRegistry tracks instruments known to the venue in a
// thread-safe manner.
type InstrumentRegistry struct {
	mu          sync.RWMutex
	instruments map[string]*Instrument
}

// NewInstrumentRegistry creates an empty InstrumentRegistry.
func NewInstrumentRegistry() *InstrumentRegistry {
	return &InstrumentRegistry{
		instruments: make(map[string]*Instrument),
	}
}

// Register adds or replaces an instrument. Safe for concurrent use.
func (r *InstrumentRegistry) Register(inst *Instrument) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instruments[inst.Symbol] = inst
}

// Get returns the instrument for the symbol. It returns
// ErrInstrumentNotFound if the symbol has not been registered.
func (r *InstrumentRegistry) Get(symbol string) (*Instrument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instruments[symbol]
	if !ok {
		return nil, ErrInstrumentNotFound
	}
	return inst, nil
}

// Exists returns true if the symbol has been registered. Safe for concurrent use.
func (r *InstrumentRegistry) Exists(symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.instruments[symbol]
	return ok
}

// List returns all registered instruments in unspecified order.
func (r *InstrumentRegistry) List() []*Instrument {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Instrument, 0, len(r.instruments))
	for _, inst := range r.instruments {
		out = append(out, inst)
	}
	return out
}
