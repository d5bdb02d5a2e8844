package port

// SessionStore persists client-side key/value state. Values are best-effort caches, never sources of truth.
type SessionStore interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
	DeletePrefix(prefix string)
	Keys() []string
}
