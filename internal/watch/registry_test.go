package watch

import (
	"testing"
	"time"

	"storegate/internal/domain"
)

func TestRegistry_DispatchKV_BucketAndKeyScope(t *testing.T) {
	r := NewRegistry(4)
	bucketSub := r.SubscribeBucket("bucket-sub", "tenant-a", "bucket-1", 0)
	keySub := r.SubscribeKey("key-sub", "tenant-a", "bucket-1", "foo", 0)
	otherKeySub := r.SubscribeKey("other-key-sub", "tenant-a", "bucket-1", "bar", 0)

	r.DispatchKV(domain.WatchEvent{Type: domain.KVOpPut, Tenant: "tenant-a", Bucket: "bucket-1", Key: "foo", Revision: 1, Timestamp: time.Now()})

	select {
	case ev := <-bucketSub.Events():
		if ev.Key != "foo" {
			t.Fatalf("bucket subscriber got wrong key: %s", ev.Key)
		}
	default:
		t.Fatal("bucket subscriber received no event")
	}

	select {
	case ev := <-keySub.Events():
		if ev.Key != "foo" {
			t.Fatalf("key subscriber got wrong key: %s", ev.Key)
		}
	default:
		t.Fatal("key subscriber received no event")
	}

	select {
	case <-otherKeySub.Events():
		t.Fatal("subscriber for a different key should not receive this event")
	default:
	}
}

func TestRegistry_DispatchKV_SkipsEventsBeforeSince(t *testing.T) {
	r := NewRegistry(4)
	sub := r.SubscribeBucket("sub-1", "tenant-a", "bucket-1", 5)

	r.DispatchKV(domain.WatchEvent{Type: domain.KVOpPut, Tenant: "tenant-a", Bucket: "bucket-1", Key: "foo", Revision: 3})
	r.DispatchKV(domain.WatchEvent{Type: domain.KVOpPut, Tenant: "tenant-a", Bucket: "bucket-1", Key: "foo", Revision: 6})

	select {
	case ev := <-sub.Events():
		if ev.Revision != 6 {
			t.Fatalf("expected only revision 6 delivered, got %d", ev.Revision)
		}
	default:
		t.Fatal("expected one event delivered")
	}

	select {
	case ev := <-sub.Events():
		t.Fatalf("expected no further events, got revision %d", ev.Revision)
	default:
	}
}

func TestRegistry_TenantIsolation(t *testing.T) {
	r := NewRegistry(4)
	subA := r.SubscribeBucket("sub-a", "tenant-a", "bucket-1", 0)
	subB := r.SubscribeBucket("sub-b", "tenant-b", "bucket-1", 0)

	r.DispatchKV(domain.WatchEvent{Type: domain.KVOpPut, Tenant: "tenant-a", Bucket: "bucket-1", Key: "foo", Revision: 1})

	select {
	case <-subA.Events():
	default:
		t.Fatal("tenant-a subscriber should have received the event")
	}

	select {
	case <-subB.Events():
		t.Fatal("tenant-b subscriber should not receive a tenant-a event")
	default:
	}
}

func TestRegistry_UnsubscribeRemovesFromEveryIndex(t *testing.T) {
	r := NewRegistry(4)
	sub := r.SubscribeKey("sub-1", "tenant-a", "bucket-1", "foo", 0)
	r.Unsubscribe(sub.ID)

	r.DispatchKV(domain.WatchEvent{Type: domain.KVOpPut, Tenant: "tenant-a", Bucket: "bucket-1", Key: "foo", Revision: 1})

	if !sub.isClosed() {
		t.Fatal("expected subscriber to be closed after Unsubscribe")
	}
	if len(r.subscriptions) != 0 || len(r.keyWatchers) != 0 {
		t.Fatalf("expected every index empty after Unsubscribe, got %d subscriptions and %d key scopes", len(r.subscriptions), len(r.keyWatchers))
	}

	r.Unsubscribe(sub.ID)
}

func TestRegistry_FullQueueDropsAndDisconnects(t *testing.T) {
	r := NewRegistry(1)
	sub := r.SubscribeBucket("sub-1", "tenant-a", "bucket-1", 0)

	r.DispatchKV(domain.WatchEvent{Type: domain.KVOpPut, Tenant: "tenant-a", Bucket: "bucket-1", Key: "foo", Revision: 1})
	r.DispatchKV(domain.WatchEvent{Type: domain.KVOpPut, Tenant: "tenant-a", Bucket: "bucket-1", Key: "foo", Revision: 2})

	if !sub.isClosed() {
		t.Fatal("expected subscriber to be disconnected once its queue filled")
	}
}
