package connection

import (
	"testing"
	"time"
)

func textEnv(s string) OutboundEnvelope {
	return OutboundEnvelope{Kind: KindText, Payload: []byte(s)}
}

func TestSendQueue_FIFO(t *testing.T) {
	q := newSendQueue(KindText)
	done := make(chan struct{})

	for _, s := range []string{"a", "b", "c", "d"} {
		if err := q.enqueue(textEnv(s)); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	for _, want := range []string{"a", "b", "c", "d"} {
		env, ok := q.next(done)
		if !ok {
			t.Fatal("next returned !ok with items queued")
		}
		if string(env.Payload) != want {
			t.Errorf("dequeued %q, want %q", env.Payload, want)
		}
	}
}

func TestSendQueue_PushFront(t *testing.T) {
	q := newSendQueue(KindText)
	done := make(chan struct{})

	q.enqueue(textEnv("second"))
	q.pushFront(textEnv("first"))

	env, _ := q.next(done)
	if string(env.Payload) != "first" {
		t.Errorf("dequeued %q, want \"first\"", env.Payload)
	}
	env, _ = q.next(done)
	if string(env.Payload) != "second" {
		t.Errorf("dequeued %q, want \"second\"", env.Payload)
	}
}

func TestSendQueue_NextBlocksUntilEnqueue(t *testing.T) {
	q := newSendQueue(KindText)
	done := make(chan struct{})

	got := make(chan OutboundEnvelope, 1)
	go func() {
		env, ok := q.next(done)
		if ok {
			got <- env
		}
	}()

	time.Sleep(20 * time.Millisecond)
	q.enqueue(textEnv("late"))

	select {
	case env := <-got:
		if string(env.Payload) != "late" {
			t.Errorf("dequeued %q, want \"late\"", env.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("next did not wake on enqueue")
	}
}

func TestSendQueue_DoneUnblocksNext(t *testing.T) {
	q := newSendQueue(KindText)
	done := make(chan struct{})

	result := make(chan bool, 1)
	go func() {
		_, ok := q.next(done)
		result <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	close(done)

	select {
	case ok := <-result:
		if ok {
			t.Error("next returned ok after done closed")
		}
	case <-time.After(time.Second):
		t.Fatal("next did not unblock on done")
	}
}

func TestSendQueue_CloseDrainsThenStops(t *testing.T) {
	q := newSendQueue(KindText)
	done := make(chan struct{})

	q.enqueue(textEnv("pending"))
	q.close()

	if err := q.enqueue(textEnv("rejected")); err != ErrQueueClosed {
		t.Errorf("enqueue after close = %v, want ErrQueueClosed", err)
	}

	env, ok := q.next(done)
	if !ok || string(env.Payload) != "pending" {
		t.Errorf("pending item not drained: %q ok=%v", env.Payload, ok)
	}

	if _, ok := q.next(done); ok {
		t.Error("next returned ok on closed empty queue")
	}

	if q.len() != 0 {
		t.Errorf("len = %d, want 0", q.len())
	}
}
