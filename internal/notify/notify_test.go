package notify

import (
	"context"
	"testing"

	"researchdao/internal/model"
)

func TestChannels(t *testing.T) {
	r := NewRedisWithClient(nil, "", nil)
	got := r.Channels(model.IndexedEvent{EventName: "FundsReceived"})
	want := []string{"researchdao:events", "researchdao:events:fundsreceived"}
	if len(got) != len(want) {
		t.Fatalf("channels=%v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("channels=%v, want %v", got, want)
		}
	}
}

func TestNopNotifier(t *testing.T) {
	var n Notifier = Nop{}
	if err := n.Notify(context.Background(), model.IndexedEvent{}); err != nil {
		t.Fatalf("nop notify: %v", err)
	}
}

func TestNewRedisRequiresAddr(t *testing.T) {
	if _, err := NewRedis(context.Background(), RedisConfig{}, nil); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}
