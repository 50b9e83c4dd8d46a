package queue

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/skillsync/internal/domain/model"
)

func job(user string) model.RecomputeJob {
	return model.RecomputeJob{UserID: user, Reason: "test", EnqueuedAt: time.Now()}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	if err := q.Enqueue(ctx, job("user1")); err != nil {
		t.Fatalf("expected enqueue to succeed, got %v", err)
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	got := <-q.Dequeue(ctx)
	if got.UserID != "user1" {
		t.Errorf("expected user1, got %v", got.UserID)
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	for _, u := range []string{"user1", "user2"} {
		if err := q.Enqueue(ctx, job(u)); err != nil {
			t.Fatalf("expected enqueue to succeed, got %v", err)
		}
	}

	if err := q.Enqueue(ctx, job("user3")); !errors.Is(err, ErrFull) {
		t.Errorf("expected ErrFull when full, got %v", err)
	}
	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := q.Enqueue(ctx, job("user1")); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(100))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	numProducers := 10
	numJobs := 100

	var consumed atomic.Int64
	for i := 0; i < 4; i++ {
		go func() {
			for range q.Dequeue(ctx) {
				consumed.Add(1)
			}
		}()
	}

	done := make(chan struct{}, numProducers)
	for i := 0; i < numProducers; i++ {
		go func(id int) {
			for j := 0; j < numJobs; j++ {
				for q.Enqueue(ctx, job(fmt.Sprintf("user%d_%d", id, j))) != nil {
					time.Sleep(time.Millisecond)
				}
			}
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < numProducers; i++ {
		<-done
	}

	deadline := time.After(2 * time.Second)
	for consumed.Load() < int64(numProducers*numJobs) {
		select {
		case <-deadline:
			t.Fatalf("consumed %d of %d jobs", consumed.Load(), numProducers*numJobs)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	if err := q.Enqueue(ctx, job("user1")); err != nil {
		t.Fatal(err)
	}
	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}
	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got error: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed after Close()")
	}
	if err := q.Enqueue(ctx, job("user2")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after closing, got %v", err)
	}

	// queued jobs drain before the channel closes
	ch := q.Dequeue(ctx)
	timeout := time.After(100 * time.Millisecond)
	var drained []string
	for {
		select {
		case j, ok := <-ch:
			if !ok {
				if len(drained) != 1 || drained[0] != "user1" {
					t.Errorf("expected to drain user1, got %v", drained)
				}
				if err := q.Close(); err != nil {
					t.Errorf("expected second close to succeed, got error: %v", err)
				}
				return
			}
			drained = append(drained, j.UserID)
		case <-timeout:
			t.Fatal("expected dequeue channel to be closed within timeout")
		}
	}
}
