// Observer pattern interfaces used to broadcast install progress.
// Events use the CloudEvents specification so that external tooling can
// consume them unchanged.
package siteinstaller

import (
	"context"
	"slices"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Observer is notified of install events.
type Observer interface {
	// OnEvent is called for every event the observer subscribed to.
	// Errors are logged by the subject and never abort an install.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier for this observer.
	ObserverID() string
}

// Subject is anything observers can register with.
type Subject interface {
	// RegisterObserver adds an observer. With no eventTypes it receives every event.
	RegisterObserver(observer Observer, eventTypes ...string) error

	// UnregisterObserver removes an observer. Unknown observers are ignored.
	UnregisterObserver(observer Observer) error

	// NotifyObservers delivers event to every interested observer.
	NotifyObservers(ctx context.Context, event cloudevents.Event) error

	// GetObservers lists the registered observers.
	GetObservers() []ObserverInfo
}

// ObserverInfo describes a registered observer.
type ObserverInfo struct {
	ID           string    `json:"id"`
	EventTypes   []string  `json:"eventTypes"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Event types emitted by the installer, in reverse domain notation.
const (
	EventTypeStateChanged     = "com.siteinstaller.install.state_changed"
	EventTypeInstallFailed    = "com.siteinstaller.install.failed"
	EventTypeModuleInstalled  = "com.siteinstaller.module.installed"
	EventTypeModuleSkipped    = "com.siteinstaller.module.skipped"
	EventTypeModulesInstalled = "com.siteinstaller.modules.installed"
	EventTypeModulesEnabled   = "com.siteinstaller.modules.enabled"
)

// EventSource is the CloudEvents source of every installer event.
const EventSource = "siteinstaller"

type observerRegistration struct {
	observer     Observer
	eventTypes   map[string]bool
	registeredAt time.Time
}

// ObserverRegistry is the default Subject implementation. Delivery is
// synchronous and in registration order.
type ObserverRegistry struct {
	mu        sync.RWMutex
	observers []*observerRegistration
	logger    Logger
}

// NewObserverRegistry creates an empty registry.
func NewObserverRegistry(logger Logger) *ObserverRegistry {
	if logger == nil {
		logger = NopLogger{}
	}
	return &ObserverRegistry{logger: logger}
}

// RegisterObserver adds observer, replacing any earlier registration with the same ID.
func (r *ObserverRegistry) RegisterObserver(observer Observer, eventTypes ...string) error {
	if observer == nil {
		return ErrObserverNil
	}
	types := make(map[string]bool, len(eventTypes))
	for _, t := range eventTypes {
		types[t] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = slices.DeleteFunc(r.observers, func(reg *observerRegistration) bool {
		return reg.observer.ObserverID() == observer.ObserverID()
	})
	r.observers = append(r.observers, &observerRegistration{
		observer:     observer,
		eventTypes:   types,
		registeredAt: time.Now(),
	})
	r.logger.Debug("Observer registered", "observerID", observer.ObserverID(), "eventTypes", eventTypes)
	return nil
}

// UnregisterObserver removes observer.
func (r *ObserverRegistry) UnregisterObserver(observer Observer) error {
	if observer == nil {
		return ErrObserverNil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = slices.DeleteFunc(r.observers, func(reg *observerRegistration) bool {
		return reg.observer.ObserverID() == observer.ObserverID()
	})
	return nil
}

// NotifyObservers delivers event. Observer errors are logged, not returned.
func (r *ObserverRegistry) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	r.mu.RLock()
	targets := slices.Clone(r.observers)
	r.mu.RUnlock()

	for _, reg := range targets {
		if len(reg.eventTypes) > 0 && !reg.eventTypes[event.Type()] {
			continue
		}
		if err := reg.observer.OnEvent(ctx, event); err != nil {
			r.logger.Warn("Observer failed to handle event",
				"observerID", reg.observer.ObserverID(), "eventType", event.Type(), "error", err)
		}
	}
	return nil
}

// GetObservers lists the registered observers.
func (r *ObserverRegistry) GetObservers() []ObserverInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ObserverInfo, 0, len(r.observers))
	for _, reg := range r.observers {
		types := make([]string, 0, len(reg.eventTypes))
		for t := range reg.eventTypes {
			types = append(types, t)
		}
		slices.Sort(types)
		infos = append(infos, ObserverInfo{
			ID:           reg.observer.ObserverID(),
			EventTypes:   types,
			RegisteredAt: reg.registeredAt,
		})
	}
	return infos
}

// FunctionalObserver adapts a function to the Observer interface.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates an observer calling handler for each event.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) Observer {
	return &FunctionalObserver{id: id, handler: handler}
}

// OnEvent calls the handler.
func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

// ObserverID returns the observer ID.
func (f *FunctionalObserver) ObserverID() string {
	return f.id
}
