package orchestrator

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Container is one pre-provisioned isolated workspace: a filesystem directory
// plus a reserved port. The inventory is fixed at startup.
type Container struct {
	ID       int    `yaml:"id" json:"id"`
	Port     int    `yaml:"port" json:"port"`
	Worktree string `yaml:"worktree" json:"worktree"`
}

// ContainerPool hands out exclusive leases on the fixed container inventory.
// The in-memory allocation map is the source of truth for concurrent
// allocation decisions; the persisted tasks.container_id column is only a
// shadow written after allocation and cleared before release.
type ContainerPool struct {
	mu         sync.Mutex
	containers []Container
	allocated  map[uuid.UUID]int
}

// DefaultContainers builds the compiled-in inventory: ids 1..count, ports
// basePort..basePort+count-1, worktrees {root}/task-{id}.
func DefaultContainers(count, basePort int, worktreeRoot string) []Container {
	out := make([]Container, 0, count)
	for i := 1; i <= count; i++ {
		out = append(out, Container{
			ID:       i,
			Port:     basePort + i - 1,
			Worktree: fmt.Sprintf("%s/task-%d", worktreeRoot, i),
		})
	}
	return out
}

func NewContainerPool(containers []Container) *ContainerPool {
	return &ContainerPool{
		containers: containers,
		allocated:  map[uuid.UUID]int{},
	}
}

// Allocate binds the task to a container. Idempotent: a task that already
// holds a lease gets the same container back. Otherwise the free container
// with the lowest id is leased. Returns false when the pool is exhausted; that
// is backpressure, not an error.
func (p *ContainerPool) Allocate(taskID uuid.UUID) (Container, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if id, ok := p.allocated[taskID]; ok {
		if c, found := p.byID(id); found {
			return c, true
		}
	}

	var picked Container
	found := false
	for _, c := range p.containers {
		if !p.inUse(c.ID) && (!found || c.ID < picked.ID) {
			picked = c
			found = true
		}
	}
	if !found {
		return Container{}, false
	}
	p.allocated[taskID] = picked.ID
	return picked, true
}

// Release drops the task's lease if it holds one. Idempotent.
func (p *ContainerPool) Release(taskID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.allocated, taskID)
}

// Peek reports the task's current lease without side effects.
func (p *ContainerPool) Peek(taskID uuid.UUID) (Container, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id, ok := p.allocated[taskID]; ok {
		return p.byID(id)
	}
	return Container{}, false
}

// Containers returns the fixed inventory.
func (p *ContainerPool) Containers() []Container {
	out := make([]Container, len(p.containers))
	copy(out, p.containers)
	return out
}

func (p *ContainerPool) byID(id int) (Container, bool) {
	for _, c := range p.containers {
		if c.ID == id {
			return c, true
		}
	}
	return Container{}, false
}

func (p *ContainerPool) inUse(id int) bool {
	for _, allocatedID := range p.allocated {
		if allocatedID == id {
			return true
		}
	}
	return false
}
