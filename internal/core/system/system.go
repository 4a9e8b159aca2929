package system

import "time"

// Phase defines execution ordering within a single tick. The tick state
// machine is fixed: phases always run in this order, never re-entrantly.
type Phase int

const (
	PhaseEvents     Phase = iota // 0: swap + dispatch last tick's events
	PhaseInput                   // 1: drain session queues, dispatch handlers
	PhaseCommand                 // 2: apply per-player command inboxes
	PhaseIntegrate               // 3: movement integration + timers
	PhaseIndex                   // 4: spatial grid rebuild
	PhaseCollide                 // 5: collision resolution
	PhasePostUpdate              // 6: growth/decay, food respawn
	PhaseScript                  // 7: scripted world events
	PhaseCleanup                 // 8: destroy queued entities, commit tick
	PhaseSync                    // 9: interest management + snapshot build
	PhaseOutput                  // 10: flush session output queues
)

// System is the interface every system implements. Each registered system
// must have a distinct phase; ordering between systems sharing a phase is
// unspecified.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
