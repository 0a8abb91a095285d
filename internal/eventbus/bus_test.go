package eventbus

import "testing"

func TestPublishFanOutAndHistory(t *testing.T) {
	t.Parallel()
	b := New(2)
	ch1, unsub1 := b.Subscribe(4)
	ch2, unsub2 := b.Subscribe(1)
	defer unsub1()

	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})
	b.Publish(Event{Type: "c"})

	for _, want := range []string{"a", "b", "c"} {
		e := <-ch1
		if e.Type != want {
			t.Fatalf("ch1 got %q, want %q", e.Type, want)
		}
		if e.Time.IsZero() {
			t.Fatal("publish should stamp time")
		}
	}
	if e := <-ch2; e.Type != "a" {
		t.Fatalf("ch2 got %q, want a", e.Type)
	}
	if b.Dropped() != 2 {
		t.Fatalf("Dropped = %d, want 2", b.Dropped())
	}

	recent := b.Recent(10)
	if len(recent) != 2 || recent[0].Type != "b" || recent[1].Type != "c" {
		t.Fatalf("Recent = %+v", recent)
	}

	unsub2()
	unsub2()
	if _, ok := <-ch2; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
	// Publishing after unsubscribe must not panic.
	b.Publish(Event{Type: "d"})
}
