package showcase

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Registry holds running highlight rotators per session (thread-safe).
type Registry struct {
	mu       sync.RWMutex
	rotators map[uuid.UUID]*Rotator
}

// NewRegistry creates a rotator registry.
func NewRegistry() *Registry {
	return &Registry{rotators: make(map[uuid.UUID]*Rotator)}
}

// Start starts a rotator for the session if not already running.
func (reg *Registry) Start(sessionID, hostID uuid.UUID, coord Highlighter, intervalSec int, logger *zap.Logger) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.rotators[sessionID] != nil {
		return
	}
	rotator := NewRotator(sessionID, hostID, coord, intervalSec, logger)
	reg.rotators[sessionID] = rotator
	rotator.Start()
}

// Stop stops the session's rotator and removes it from the registry.
func (reg *Registry) Stop(sessionID uuid.UUID) {
	reg.mu.Lock()
	rotator := reg.rotators[sessionID]
	delete(reg.rotators, sessionID)
	reg.mu.Unlock()
	if rotator != nil {
		rotator.Stop()
	}
}

// Running reports whether a rotator is active for the session.
func (reg *Registry) Running(sessionID uuid.UUID) bool {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.rotators[sessionID] != nil
}

// StopAll stops every rotator (shutdown).
func (reg *Registry) StopAll() {
	reg.mu.Lock()
	rotators := reg.rotators
	reg.rotators = make(map[uuid.UUID]*Rotator)
	reg.mu.Unlock()
	for _, r := range rotators {
		r.Stop()
	}
}
