package cache

// Metrics receives cache lifecycle events. Methods are called with the store
// lock held and must not call back into the store.
type Metrics interface {
	// Hit is called when Get returns a live entry.
	Hit()

	// Miss is called when Get finds nothing, including after an expiry.
	Miss()

	// Evict is called when the least-recently-used entry is dropped for capacity.
	Evict()

	// Expire is called when Get discards an entry older than the TTL.
	Expire()

	// Size reports the entry count after every mutation.
	Size(n int)
}

// NoopMetrics ignores all events.
type NoopMetrics struct{}

func (NoopMetrics) Hit()     {}
func (NoopMetrics) Miss()    {}
func (NoopMetrics) Evict()   {}
func (NoopMetrics) Expire()  {}
func (NoopMetrics) Size(int) {}
