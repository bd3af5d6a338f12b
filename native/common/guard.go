package common

import "errors"

// ErrModulePaused is returned by Guard when the named module has been
// administratively halted.
var ErrModulePaused = errors.New("module paused")

// PauseView reports the current pause flag for a module. The marketplace
// state manager implements it over a persisted per-module key.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects a mutating operation while its module is paused. A nil view
// or empty module name disables the check.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
