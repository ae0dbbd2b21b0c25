package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/small-frappuccino/discordui/pkg/logging"
)

// State is the lifecycle state of a service.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateRunning       State = "running"
	StateStopped       State = "stopped"
	StateError         State = "error"
)

// Service is a component with a start/stop lifecycle.
type Service interface {
	// Name returns the unique name of the service
	Name() string

	// Dependencies returns the names of services that must start first
	Dependencies() []string

	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Func adapts a pair of functions into a Service.
type Func struct {
	name  string
	deps  []string
	start func(ctx context.Context) error
	stop  func(ctx context.Context) error
}

// NewFunc creates a Service from start and stop functions; either may be nil.
func NewFunc(name string, deps []string, start, stop func(ctx context.Context) error) *Func {
	return &Func{name: name, deps: deps, start: start, stop: stop}
}

func (f *Func) Name() string           { return f.name }
func (f *Func) Dependencies() []string { return f.deps }

func (f *Func) Start(ctx context.Context) error {
	if f.start == nil {
		return nil
	}
	return f.start(ctx)
}

func (f *Func) Stop(ctx context.Context) error {
	if f.stop == nil {
		return nil
	}
	return f.stop(ctx)
}

// Info is a snapshot of one registered service.
type Info struct {
	Name      string
	State     State
	StartTime time.Time
	LastError error
}

type entry struct {
	svc       Service
	state     State
	startTime time.Time
	lastErr   error
}

// Manager starts services in dependency order and stops them in reverse.
type Manager struct {
	mu       sync.Mutex
	services map[string]*entry
	order    []string
	log      *logging.Logger
}

// NewManager creates an empty manager.
func NewManager(l *logging.Logger) *Manager {
	return &Manager{
		services: make(map[string]*entry),
		log:      logging.OrGlobal(l).WithField("component", "service_manager"),
	}
}

// Register adds a service. Names must be unique.
func (m *Manager) Register(svc Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := svc.Name()
	if _, exists := m.services[name]; exists {
		return fmt.Errorf("service '%s' is already registered", name)
	}
	m.services[name] = &entry{svc: svc, state: StateUninitialized}
	m.order = append(m.order, name)

	m.log.WithFields(map[string]any{
		"service":      name,
		"dependencies": svc.Dependencies(),
	}).Debug("Service registered")
	return nil
}

// StartAll starts every service after its dependencies. When one fails, the
// ones already started are stopped again.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, err := m.startOrderLocked()
	if err != nil {
		return fmt.Errorf("failed to calculate start order: %w", err)
	}

	for _, name := range order {
		e := m.services[name]
		if e.state == StateRunning {
			continue
		}
		if err := e.svc.Start(ctx); err != nil {
			e.state = StateError
			e.lastErr = err
			m.log.WithError(err).WithField("service", name).Error("Service failed to start")
			_ = m.stopLocked(ctx)
			return fmt.Errorf("start service '%s': %w", name, err)
		}
		e.state = StateRunning
		e.startTime = time.Now()
		m.log.WithField("service", name).Info("Service started")
	}
	return nil
}

// StopAll stops every running service in reverse start order.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopLocked(ctx)
}

func (m *Manager) stopLocked(ctx context.Context) error {
	order, err := m.startOrderLocked()
	if err != nil {
		return fmt.Errorf("failed to calculate stop order: %w", err)
	}
	slices.Reverse(order)

	var errs []error
	for _, name := range order {
		e := m.services[name]
		if e.state != StateRunning {
			continue
		}
		if err := e.svc.Stop(ctx); err != nil {
			e.state = StateError
			e.lastErr = err
			errs = append(errs, fmt.Errorf("stop service '%s': %w", name, err))
			continue
		}
		e.state = StateStopped
		m.log.WithField("service", name).Info("Service stopped")
	}
	return errors.Join(errs...)
}

// startOrderLocked is a topological sort over dependencies that keeps
// registration order among independent services.
func (m *Manager) startOrderLocked() ([]string, error) {
	visited := make(map[string]bool)
	temp := make(map[string]bool)
	var order []string

	var visit func(string) error
	visit = func(name string) error {
		if temp[name] {
			return fmt.Errorf("circular dependency detected involving service '%s'", name)
		}
		if visited[name] {
			return nil
		}
		temp[name] = true
		for _, dep := range m.services[name].svc.Dependencies() {
			if _, exists := m.services[dep]; !exists {
				return fmt.Errorf("service '%s' depends on unknown service '%s'", name, dep)
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		temp[name] = false
		visited[name] = true
		order = append(order, name)
		return nil
	}

	for _, name := range m.order {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Services reports every registered service in registration order.
func (m *Manager) Services() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Info, 0, len(m.order))
	for _, name := range m.order {
		e := m.services[name]
		out = append(out, Info{Name: name, State: e.state, StartTime: e.startTime, LastError: e.lastErr})
	}
	return out
}

// Running lists the names of running services.
func (m *Manager) Running() []string {
	var out []string
	for _, info := range m.Services() {
		if info.State == StateRunning {
			out = append(out, info.Name)
		}
	}
	return out
}
