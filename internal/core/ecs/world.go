package ecs

// World is the top-level ECS container. It owns the entity pool, the component
// registry, and a deferred destruction queue flushed at tick cleanup.
type World struct {
	pool         *EntityPool
	registry     *Registry
	destroyQueue []EntityID
}

func NewWorld() *World {
	return &World{
		pool:         NewEntityPool(),
		registry:     NewRegistry(),
		destroyQueue: make([]EntityID, 0, 64),
	}
}

func (w *World) Pool() *EntityPool   { return w.pool }
func (w *World) Registry() *Registry { return w.registry }

func (w *World) CreateEntity() EntityID {
	return w.pool.Create()
}

func (w *World) Alive(id EntityID) bool {
	return w.pool.Alive(id)
}

// MarkForDestruction queues an entity for end-of-tick cleanup. Queueing the
// same entity twice is harmless; the pool ignores stale generations.
func (w *World) MarkForDestruction(id EntityID) {
	w.destroyQueue = append(w.destroyQueue, id)
}

// PendingDestroy reports whether an entity is already queued for destruction.
// Collision resolution uses this to skip pairs whose member was consumed by
// an earlier pair in the same tick.
func (w *World) PendingDestroy(id EntityID) bool {
	for _, q := range w.destroyQueue {
		if q == id {
			return true
		}
	}
	return false
}

// FlushDestroyQueue destroys all queued entities and clears their components.
// Called once per tick at the Cleanup phase.
func (w *World) FlushDestroyQueue() {
	for _, id := range w.destroyQueue {
		w.registry.RemoveAll(id)
		w.pool.Destroy(id)
	}
	w.destroyQueue = w.destroyQueue[:0]
}
