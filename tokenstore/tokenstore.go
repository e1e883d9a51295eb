package tokenstore

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// TokenStore holds at most one current token pair. Implementations are safe
// for concurrent use and never panic.
//
// The empty string means absent: setting "" removes that token, and the
// getters report ok only for a non-empty value.
type TokenStore interface {
	SetAccessToken(token string)
	AccessToken() (string, bool)
	SetRefreshToken(token string)
	RefreshToken() (string, bool)
	Clear()
	Kind() Kind
}

// Kind identifies a TokenStore variant for logging and audit.
type Kind uint8

const (
	KindMemory Kind = iota + 1
	KindSession
	KindDurable
	KindCookie
)

var kindNames = map[Kind]string{
	KindMemory:  "memory",
	KindSession: "session",
	KindDurable: "durable",
	KindCookie:  "cookie",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind is the inverse of Kind.String. Matching ignores case.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

const (
	DefaultNamespace = "teamified"

	accessSuffix  = ".access_token"
	refreshSuffix = ".refresh_token"
)

var (
	ErrUnknownKind = errors.New("tokenstore: unknown kind")
	ErrInvalidKey  = errors.New("tokenstore: invalid key")
	ErrNotJWT      = errors.New("tokenstore: token is not a JWT")
	ErrLockTimeout = errors.New("tokenstore: timed out acquiring lock")
)

// AccessKey and RefreshKey return the backend keys used for namespace.
func AccessKey(namespace string) string  { return namespace + accessSuffix }
func RefreshKey(namespace string) string { return namespace + refreshSuffix }

// slots is the in-process view every variant reads from.
type slots struct {
	mu      sync.RWMutex
	access  string
	refresh string
}

func (s *slots) get(refresh bool) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := s.access
	if refresh {
		v = s.refresh
	}
	return v, v != ""
}

func (s *slots) set(refresh bool, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if refresh {
		s.refresh = token
	} else {
		s.access = token
	}
}

func (s *slots) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = ""
	s.refresh = ""
}

// Option customizes the persisted variants.
type Option func(*options)

type options struct {
	namespace string
	logger    *slog.Logger
}

func defaultOptions() options {
	return options{namespace: DefaultNamespace, logger: slog.Default()}
}

// WithNamespace prefixes backend keys. Defaults to DefaultNamespace.
func WithNamespace(ns string) Option {
	return func(o *options) {
		if ns = strings.TrimSpace(ns); ns != "" {
			o.namespace = ns
		}
	}
}

// WithLogger sets the logger that records backend failures.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
