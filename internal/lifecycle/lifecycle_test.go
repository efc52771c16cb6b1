package lifecycle

import (
	"sync"
	"testing"
)

func TestShuttingDownFlag(t *testing.T) {
	defer SetShuttingDown(false)

	if IsShuttingDown() {
		t.Fatal("IsShuttingDown() = true before SetShuttingDown")
	}

	SetShuttingDown(true)
	if !IsShuttingDown() {
		t.Error("IsShuttingDown() = false after SetShuttingDown(true)")
	}

	SetShuttingDown(false)
	if IsShuttingDown() {
		t.Error("IsShuttingDown() = true after SetShuttingDown(false)")
	}
}

func TestShuttingDownConcurrent(t *testing.T) {
	defer SetShuttingDown(false)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v bool) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				SetShuttingDown(v)
				_ = IsShuttingDown()
			}
		}(i%2 == 0)
	}
	wg.Wait()
}
