package orchestrator

import (
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestContainerPoolAllocateIdempotent(t *testing.T) {
	pool := NewContainerPool(DefaultContainers(3, 8081, "/worktrees"))
	taskID := uuid.New()

	first, ok := pool.Allocate(taskID)
	if !ok {
		t.Fatalf("Allocate: expected a container")
	}
	second, ok := pool.Allocate(taskID)
	if !ok {
		t.Fatalf("Allocate #2: expected a container")
	}
	if first.ID != second.ID {
		t.Fatalf("Allocate not idempotent: got %d then %d", first.ID, second.ID)
	}

	// Only one lease should exist for the task.
	other, ok := pool.Allocate(uuid.New())
	if !ok {
		t.Fatalf("Allocate other: expected a container")
	}
	if other.ID == first.ID {
		t.Fatalf("second task got the already-leased container %d", first.ID)
	}
}

func TestContainerPoolCapacity(t *testing.T) {
	pool := NewContainerPool(DefaultContainers(3, 8081, "/worktrees"))

	ids := map[int]bool{}
	for i := 0; i < 3; i++ {
		c, ok := pool.Allocate(uuid.New())
		if !ok {
			t.Fatalf("Allocate #%d: pool exhausted early", i)
		}
		if ids[c.ID] {
			t.Fatalf("container %d leased twice", c.ID)
		}
		ids[c.ID] = true
	}

	if _, ok := pool.Allocate(uuid.New()); ok {
		t.Fatalf("Allocate beyond capacity: expected exhaustion")
	}
}

func TestContainerPoolReleaseFreesLowestID(t *testing.T) {
	pool := NewContainerPool(DefaultContainers(3, 8081, "/worktrees"))

	first := uuid.New()
	c1, _ := pool.Allocate(first)
	pool.Allocate(uuid.New())
	pool.Allocate(uuid.New())

	pool.Release(first)
	pool.Release(first) // idempotent

	if _, held := pool.Peek(first); held {
		t.Fatalf("Peek after release: lease should be gone")
	}

	next, ok := pool.Allocate(uuid.New())
	if !ok {
		t.Fatalf("Allocate after release: expected a container")
	}
	if next.ID != c1.ID {
		t.Fatalf("expected freed container %d, got %d", c1.ID, next.ID)
	}
}

func TestContainerPoolConcurrentExclusivity(t *testing.T) {
	pool := NewContainerPool(DefaultContainers(3, 8081, "/worktrees"))

	const workers = 24
	var wg sync.WaitGroup
	got := make([]int, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if c, ok := pool.Allocate(uuid.New()); ok {
				got[i] = c.ID
			}
		}(i)
	}
	wg.Wait()

	seen := map[int]int{}
	granted := 0
	for _, id := range got {
		if id == 0 {
			continue
		}
		granted++
		seen[id]++
	}
	if granted != 3 {
		t.Fatalf("expected exactly 3 leases, got %d", granted)
	}
	for id, count := range seen {
		if count != 1 {
			t.Fatalf("container %d leased %d times", id, count)
		}
	}
}
