package tokenstore

import "log/slog"

// persisted is the write-through core shared by the Durable, Session and
// Cookie variants. Reads hit the in-process slots; writes update the slots
// first and then the backend.
type persisted struct {
	slots      slots
	backend    Backend
	accessKey  string
	refreshKey string
	logger     *slog.Logger
}

func newPersisted(b Backend, o options) *persisted {
	p := &persisted{
		backend:    b,
		accessKey:  AccessKey(o.namespace),
		refreshKey: RefreshKey(o.namespace),
		logger:     o.logger,
	}
	_ = p.Reload()
	return p
}

func (p *persisted) SetAccessToken(token string) {
	p.slots.set(false, token)
	p.write(p.accessKey, token)
}

func (p *persisted) AccessToken() (string, bool) { return p.slots.get(false) }

func (p *persisted) SetRefreshToken(token string) {
	p.slots.set(true, token)
	p.write(p.refreshKey, token)
}

func (p *persisted) RefreshToken() (string, bool) { return p.slots.get(true) }

// Clear empties the in-process view, then removes both backend items.
func (p *persisted) Clear() {
	p.slots.clear()
	p.write(p.accessKey, "")
	p.write(p.refreshKey, "")
}

// Reload replaces the in-process view with what the backend holds. Use it
// to pick up a pair written by another process.
func (p *persisted) Reload() error {
	access, _, err := p.backend.GetItem(p.accessKey)
	if err != nil {
		p.logger.Warn("token store read failed", "key", p.accessKey, "error", err)
		return err
	}
	refresh, _, err := p.backend.GetItem(p.refreshKey)
	if err != nil {
		p.logger.Warn("token store read failed", "key", p.refreshKey, "error", err)
		return err
	}

	p.slots.mu.Lock()
	p.slots.access = access
	p.slots.refresh = refresh
	p.slots.mu.Unlock()
	return nil
}

func (p *persisted) write(key, token string) {
	var err error
	if token == "" {
		err = p.backend.RemoveItem(key)
	} else {
		err = p.backend.SetItem(key, token)
	}
	if err != nil {
		// Token values are never logged.
		p.logger.Warn("token store write failed", "key", key, "error", err)
	}
}

// Durable keeps tokens in a Backend that survives restarts.
type Durable struct {
	*persisted
}

// NewDurable loads any pair already present in b.
func NewDurable(b Backend, opts ...Option) *Durable {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Durable{persisted: newPersisted(b, o)}
}

func (d *Durable) Kind() Kind { return KindDurable }
