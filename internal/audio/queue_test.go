package audio

import (
	"sync"
	"testing"
	"time"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue(0)
	q.Push([]byte{1})
	q.Push([]byte{2})
	q.Push([]byte{3})

	for want := byte(1); want <= 3; want++ {
		chunk, res := q.Pop(10 * time.Millisecond)
		if res != PopChunk {
			t.Fatalf("Expected chunk, got %s", res)
		}
		if chunk[0] != want {
			t.Errorf("Expected chunk %d, got %d", want, chunk[0])
		}
	}
}

func TestQueue_PopTimeout(t *testing.T) {
	q := NewQueue(0)

	start := time.Now()
	_, res := q.Pop(20 * time.Millisecond)
	if res != PopTimeout {
		t.Errorf("Expected timeout, got %s", res)
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("Pop returned too early: %v", elapsed)
	}
}

func TestQueue_DrainsBeforeEnd(t *testing.T) {
	q := NewQueue(0)
	q.Push([]byte{1})
	q.Push([]byte{2})
	q.Close()

	if _, res := q.Pop(time.Millisecond); res != PopChunk {
		t.Fatalf("Expected first queued chunk after close, got %s", res)
	}
	if _, res := q.Pop(time.Millisecond); res != PopChunk {
		t.Fatalf("Expected second queued chunk after close, got %s", res)
	}
	for i := 0; i < 3; i++ {
		if _, res := q.Pop(time.Millisecond); res != PopEnd {
			t.Errorf("Expected end on call %d, got %s", i, res)
		}
	}
}

func TestQueue_PushAfterClose(t *testing.T) {
	q := NewQueue(0)
	q.Close()
	q.Close()

	if q.Push([]byte{1}) {
		t.Error("Expected push to be rejected after close")
	}
	if q.Len() != 0 {
		t.Errorf("Expected empty queue, got %d", q.Len())
	}
}

func TestQueue_CloseWakesWaitingConsumer(t *testing.T) {
	q := NewQueue(0)

	done := make(chan PopResult, 1)
	go func() {
		_, res := q.Pop(5 * time.Second)
		done <- res
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case res := <-done:
		if res != PopEnd {
			t.Errorf("Expected end, got %s", res)
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not wake the consumer")
	}
}

func TestQueue_PushWakesWaitingConsumer(t *testing.T) {
	q := NewQueue(0)

	done := make(chan []byte, 1)
	go func() {
		chunk, _ := q.Pop(5 * time.Second)
		done <- chunk
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push([]byte{42})

	select {
	case chunk := <-done:
		if len(chunk) != 1 || chunk[0] != 42 {
			t.Errorf("Unexpected chunk %v", chunk)
		}
	case <-time.After(time.Second):
		t.Fatal("Push did not wake the consumer")
	}
}

func TestQueue_BoundedDropsOldest(t *testing.T) {
	q := NewQueue(2)
	q.Push([]byte{1})
	q.Push([]byte{2})
	q.Push([]byte{3})

	if q.Dropped() != 1 {
		t.Errorf("Expected 1 dropped chunk, got %d", q.Dropped())
	}
	chunk, _ := q.Pop(time.Millisecond)
	if chunk[0] != 2 {
		t.Errorf("Expected oldest chunk to be dropped, got %d first", chunk[0])
	}
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := NewQueue(0)

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.Push([]byte{byte(i)})
			}
		}()
	}
	wg.Wait()
	q.Close()

	count := 0
	for {
		_, res := q.Pop(time.Millisecond)
		if res == PopEnd {
			break
		}
		count++
	}
	if count != 400 {
		t.Errorf("Expected 400 chunks, got %d", count)
	}
}
