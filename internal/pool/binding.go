package pool

import (
	"media-dedup/internal/config"
	"media-dedup/internal/logging"
)

// Resizer is the part of a Pool a Binding drives.
type Resizer interface {
	Name() string
	Capacity() int
	Resize(n int) error
}

// Binding keeps a pool sized to an integer configuration key. It is a
// config.Observer; register it on the store's bus.
type Binding struct {
	pool  Resizer
	store *config.Store
	key   string
	def   int
}

// Bind creates a binding between p and key. def is used when the key is
// missing or not an integer.
func Bind(p Resizer, store *config.Store, key string, def int) *Binding {
	return &Binding{pool: p, store: store, key: key, def: def}
}

// Key returns the configuration key the binding follows.
func (b *Binding) Key() string { return b.key }

// Size returns the size the key currently asks for.
func (b *Binding) Size() int {
	return b.store.GetInt(b.key, b.def)
}

// Apply resizes the pool to the configured size.
func (b *Binding) Apply() error {
	n := b.Size()
	if err := b.pool.Resize(n); err != nil {
		logging.Warn("Pool %s: cannot apply %s=%d, keeping %d: %v", b.pool.Name(), b.key, n, b.pool.Capacity(), err)
		return err
	}
	return nil
}

// OnConfigUpdate implements config.Observer.
func (b *Binding) OnConfigUpdate(event config.UpdateEvent) {
	if !event.Has(b.key) {
		return
	}
	_ = b.Apply()
}
