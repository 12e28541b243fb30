package userman

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Hook actions the orchestrator fans out on.
const (
	ActionDelUser  = "delUser"
	ActionDelGroup = "delGroup"
	ActionWelcome  = "welcome"
)

// Hook receives the id of the affected entity.
type Hook func(id uint64)

// hookSet keeps the registered hooks per action in registration order.
type hookSet struct {
	mu    sync.RWMutex
	hooks map[string][]Hook
}

func newHookSet() *hookSet {
	return &hookSet{hooks: make(map[string][]Hook)}
}

// RegisterHook appends fn to the action's hook list. Hooks run
// synchronously in registration order; a panicking hook is contained
// and logged so the remaining hooks and the operation itself proceed.
func (u *Userman) RegisterHook(action string, fn Hook) {
	u.hooks.mu.Lock()
	defer u.hooks.mu.Unlock()

	u.hooks.hooks[action] = append(u.hooks.hooks[action], fn)
}

func (u *Userman) callHooks(action string, id uint64) {
	u.hooks.mu.RLock()
	fns := u.hooks.hooks[action]
	u.hooks.mu.RUnlock()

	for _, fn := range fns {
		runHook(action, id, fn)
	}
}

func runHook(action string, id uint64, fn Hook) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("action", action).Uint64("id", id).
				Interface("panic", r).Msg("hook panicked")
		}
	}()

	fn(id)
}
