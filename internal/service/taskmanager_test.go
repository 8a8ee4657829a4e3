package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/berrys-ai/agents/internal/domain"
)

func TestTaskManagerLaunch(t *testing.T) {
	tm := NewTaskManager(2)
	done := make(chan struct{})

	err := tm.Launch("x1", func(ctx context.Context) {
		close(done)
	})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine never ran")
	}
	if err := tm.Wait(context.Background(), "x1"); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if tm.Running("x1") {
		t.Error("handle not released after completion")
	}
}

func TestTaskManagerDuplicateLaunch(t *testing.T) {
	tm := NewTaskManager(2)
	block := make(chan struct{})
	defer close(block)

	if err := tm.Launch("x1", func(ctx context.Context) {
		<-block
	}); err != nil {
		t.Fatalf("launch: %v", err)
	}

	err := tm.Launch("x1", func(ctx context.Context) {})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate launch, got %v", err)
	}
	if tm.Count() != 1 {
		t.Errorf("count = %d, want 1", tm.Count())
	}
}

func TestTaskManagerConcurrencyBound(t *testing.T) {
	tm := NewTaskManager(1)
	block := make(chan struct{})

	if err := tm.Launch("x1", func(ctx context.Context) {
		<-block
	}); err != nil {
		t.Fatalf("launch: %v", err)
	}

	// With the single slot held, a second launch must still return
	// immediately; its goroutine waits for the slot in the background.
	started := make(chan struct{})
	if err := tm.Launch("x2", func(ctx context.Context) {
		close(started)
	}); err != nil {
		t.Fatalf("launch while at capacity: %v", err)
	}

	select {
	case <-started:
		t.Fatal("second execution ran before a slot was free")
	case <-time.After(100 * time.Millisecond):
	}

	close(block)
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("second execution never got the freed slot")
	}
}

func TestTaskManagerCancelWhileAwaitingSlot(t *testing.T) {
	tm := NewTaskManager(1)
	block := make(chan struct{})
	defer close(block)

	if err := tm.Launch("x1", func(ctx context.Context) {
		<-block
	}); err != nil {
		t.Fatalf("launch: %v", err)
	}

	ran := make(chan struct{})
	if err := tm.Launch("x2", func(ctx context.Context) {
		close(ran)
	}); err != nil {
		t.Fatalf("launch: %v", err)
	}

	if !tm.Cancel("x2") {
		t.Fatal("expected Cancel to find the waiting execution")
	}
	if err := tm.Wait(context.Background(), "x2"); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if tm.Running("x2") {
		t.Error("cancelled launch must not leave a handle behind")
	}
	select {
	case <-ran:
		t.Fatal("cancelled execution must never run")
	default:
	}
}

func TestTaskManagerCancel(t *testing.T) {
	tm := NewTaskManager(2)
	stopped := make(chan struct{})

	if err := tm.Launch("x1", func(ctx context.Context) {
		<-ctx.Done()
		close(stopped)
	}); err != nil {
		t.Fatalf("launch: %v", err)
	}

	if !tm.Cancel("x1") {
		t.Fatal("expected Cancel to find the goroutine")
	}
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not observe cancellation")
	}
	if err := tm.Wait(context.Background(), "x1"); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestTaskManagerCancelUnknown(t *testing.T) {
	tm := NewTaskManager(2)
	if tm.Cancel("ghost") {
		t.Error("Cancel of an untracked ID must return false")
	}
}

func TestTaskManagerSlotFreedAfterCancel(t *testing.T) {
	tm := NewTaskManager(1)

	if err := tm.Launch("x1", func(ctx context.Context) {
		<-ctx.Done()
	}); err != nil {
		t.Fatalf("launch: %v", err)
	}
	tm.Clear("x1")
	if err := tm.Wait(context.Background(), "x1"); err != nil {
		t.Fatalf("wait: %v", err)
	}

	// The freed slot must admit the next execution.
	done := make(chan struct{})
	if err := tm.Launch("x2", func(ctx context.Context) {
		close(done)
	}); err != nil {
		t.Fatalf("launch after clear: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second goroutine never ran")
	}
}

func TestTaskManagerWaitUntracked(t *testing.T) {
	tm := NewTaskManager(2)
	if err := tm.Wait(context.Background(), "ghost"); err != nil {
		t.Fatalf("wait on untracked ID must return immediately, got %v", err)
	}
}
