// Property-based tests for concurrent record safety under per-key locks.
package lock

import (
	"sync"
	"sync/atomic"
	"testing"

	"pgregory.net/rapid"
)

// TestConcurrentBalanceSafetyProperty: for any concurrent balance
// operations on the same user, the final balance is consistent with
// sequential execution of all operations.
func TestConcurrentBalanceSafetyProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		initialBalance := rapid.Int64Range(1000, 100000).Draw(t, "initialBalance")
		numOps := rapid.IntRange(2, 20).Draw(t, "numOps")

		amounts := make([]int64, numOps)
		expectedFinalBalance := initialBalance
		for i := 0; i < numOps; i++ {
			amounts[i] = rapid.Int64Range(-500, 500).Draw(t, "amount")
			expectedFinalBalance += amounts[i]
		}

		userID := rapid.Int64Range(1, 1000000).Draw(t, "userID")
		kl := New[int64]()
		balance := initialBalance

		var wg sync.WaitGroup
		wg.Add(numOps)
		for _, amount := range amounts {
			go func(amount int64) {
				defer wg.Done()
				kl.Lock(userID)
				defer kl.Unlock(userID)
				balance += amount
			}(amount)
		}
		wg.Wait()

		if balance != expectedFinalBalance {
			t.Fatalf("balance mismatch with locking: expected %d, got %d (initial=%d, numOps=%d)",
				expectedFinalBalance, balance, initialBalance, numOps)
		}
	})
}

// TestWithLockFunctionProperty tests that WithLock correctly serializes operations.
func TestWithLockFunctionProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		initialBalance := rapid.Int64Range(1000, 100000).Draw(t, "initialBalance")
		numOps := rapid.IntRange(5, 30).Draw(t, "numOps")
		amountPerOp := rapid.Int64Range(1, 100).Draw(t, "amountPerOp")
		expectedFinalBalance := initialBalance + int64(numOps)*amountPerOp

		userID := rapid.Int64Range(1, 1000000).Draw(t, "userID")
		kl := New[int64]()
		balance := initialBalance

		var wg sync.WaitGroup
		wg.Add(numOps)
		for i := 0; i < numOps; i++ {
			go func() {
				defer wg.Done()
				_ = kl.WithLock(userID, func() error {
					balance += amountPerOp
					return nil
				})
			}()
		}
		wg.Wait()

		if balance != expectedFinalBalance {
			t.Fatalf("balance mismatch with WithLock: expected %d, got %d",
				expectedFinalBalance, balance)
		}
	})
}

// TestStringKeysIndependentLocksProperty tests that locks for different
// lobbies are independent and don't block each other unnecessarily.
func TestStringKeysIndependentLocksProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numLobbies := rapid.IntRange(2, 10).Draw(t, "numLobbies")
		opsPerLobby := rapid.IntRange(5, 20).Draw(t, "opsPerLobby")

		lobbyIDs := make([]string, numLobbies)
		counters := make(map[string]*int64, numLobbies)
		for i := 0; i < numLobbies; i++ {
			id := rapid.StringMatching(`[a-f0-9]{8}`).Draw(t, "lobbyID") + string(rune('a'+i))
			lobbyIDs[i] = id
			var c int64
			counters[id] = &c
		}

		kl := New[string]()

		var wg sync.WaitGroup
		wg.Add(numLobbies * opsPerLobby)
		for _, id := range lobbyIDs {
			for j := 0; j < opsPerLobby; j++ {
				go func(id string) {
					defer wg.Done()
					kl.Lock(id)
					defer kl.Unlock(id)
					*counters[id] += 10
				}(id)
			}
		}
		wg.Wait()

		for _, id := range lobbyIDs {
			expected := int64(opsPerLobby) * 10
			if *counters[id] != expected {
				t.Fatalf("lobby %q counter mismatch: expected %d, got %d", id, expected, *counters[id])
			}
		}
	})
}

// TestTryLockPreventsConcurrentSessionsProperty tests that TryLock
// serializes simultaneous acquisition attempts for the same key.
func TestTryLockPreventsConcurrentSessionsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		userID := rapid.Int64Range(1, 1000000).Draw(t, "userID")
		numAttempts := rapid.IntRange(5, 20).Draw(t, "numAttempts")

		kl := New[int64]()

		var successCount atomic.Int32
		var wg sync.WaitGroup
		wg.Add(numAttempts)
		startCh := make(chan struct{})

		for i := 0; i < numAttempts; i++ {
			go func() {
				defer wg.Done()
				<-startCh

				if kl.TryLock(userID) {
					successCount.Add(1)
					kl.Unlock(userID)
				}
			}()
		}

		close(startCh)
		wg.Wait()

		if successCount.Load() < 1 {
			t.Fatalf("at least one TryLock should succeed, got %d successes", successCount.Load())
		}

		if !kl.TryLock(userID) {
			t.Fatal("lock should be available after all operations complete")
		}
		kl.Unlock(userID)
	})
}

// TestLockUnlockSymmetryProperty tests that every Lock has a corresponding Unlock.
func TestLockUnlockSymmetryProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		userID := rapid.Int64Range(1, 1000000).Draw(t, "userID")
		numCycles := rapid.IntRange(1, 50).Draw(t, "numCycles")

		kl := New[int64]()

		for i := 0; i < numCycles; i++ {
			kl.Lock(userID)
			kl.Unlock(userID)
		}

		if !kl.TryLock(userID) {
			t.Fatal("lock should be available after symmetric lock/unlock cycles")
		}
		kl.Unlock(userID)
	})
}
