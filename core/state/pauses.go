package state

import (
	"fmt"
	"strings"
)

var pausePrefix = []byte("module/paused")

func pauseKey(module string) []byte {
	return kvKey(pausePrefix, []byte(module))
}

// PausePut records whether a module's mutating operations are blocked. The
// record is part of regular state, so it commits and reverts with the
// surrounding operation and survives restarts.
func (m *Manager) PausePut(module string, paused bool) error {
	if strings.TrimSpace(module) == "" {
		return fmt.Errorf("state: module name required")
	}
	if !paused {
		m.delete(pauseKey(module))
		return nil
	}
	m.set(pauseKey(module), []byte{1})
	return nil
}

// IsPaused reports whether the module is currently paused. It satisfies the
// guard's view interface; a read failure counts as not paused.
func (m *Manager) IsPaused(module string) bool {
	data, err := m.get(pauseKey(module))
	if err != nil {
		return false
	}
	return len(data) > 0
}
