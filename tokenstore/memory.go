package tokenstore

// Memory keeps tokens for the lifetime of the process only.
type Memory struct {
	slots slots
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) SetAccessToken(token string)  { m.slots.set(false, token) }
func (m *Memory) AccessToken() (string, bool)  { return m.slots.get(false) }
func (m *Memory) SetRefreshToken(token string) { m.slots.set(true, token) }
func (m *Memory) RefreshToken() (string, bool) { return m.slots.get(true) }
func (m *Memory) Clear()                       { m.slots.clear() }
func (m *Memory) Kind() Kind                   { return KindMemory }
