package host

import "fmt"

// Service names registered once the language phase is reached.
const (
	ServiceDatabase = "database"
	ServiceCache    = "cache"
	ServiceLock     = "lock"
	ServicePath     = "path"
	ServiceConf     = "conf"
)

// ServiceRegistry allows registration and retrieval of services
type ServiceRegistry map[string]any

// RegisterService adds a service to the registry
func RegisterService[T any](registry ServiceRegistry, name string, service T) {
	registry[name] = service
}

// GetService retrieves a service by name
func GetService[T any](registry ServiceRegistry, name string) (T, bool) {
	var zero T
	if registry == nil {
		return zero, false
	}
	svc, exists := registry[name].(T)
	if !exists {
		return zero, false
	}
	return svc, true
}

// MustService retrieves a service by name, failing when it is absent or of
// another type.
func MustService[T any](registry ServiceRegistry, name string) (T, error) {
	svc, ok := GetService[T](registry, name)
	if !ok {
		return svc, fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	return svc, nil
}
