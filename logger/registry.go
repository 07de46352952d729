package logger

import (
	"sync"
)

// Component names used by the engine packages.
const (
	ComponentRegistry  = "registry"
	ComponentLoader    = "loader"
	ComponentScheduler = "scheduler"
	ComponentOperation = "operation"
	ComponentEngine    = "engine"
)

// registry is the global named-logger registry.
var registry = &loggerRegistry{
	loggers: make(map[string]*Logger),
}

type loggerRegistry struct {
	mu      sync.RWMutex
	loggers map[string]*Logger
}

// Register stores a named logger in the registry.
func Register(name string, l *Logger) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.loggers[name] = l
}

// Get retrieves a named logger. If the name is not registered it returns the
// global logger tagged with the requested component name.
func Get(name string) *Logger {
	registry.mu.RLock()
	l, ok := registry.loggers[name]
	registry.mu.RUnlock()
	if ok {
		return l
	}
	return GetGlobalLogger().WithComponent(name)
}

// RegisterDefaults registers the engine component loggers derived from base.
// Call it after Init so every component shares the configured output.
func RegisterDefaults(base *Logger) {
	for _, name := range []string{ComponentRegistry, ComponentLoader, ComponentScheduler, ComponentOperation, ComponentEngine} {
		Register(name, base.WithComponent(name))
	}
}
