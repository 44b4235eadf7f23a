package watch

import (
	"encoding/base64"
	"testing"
)

func TestFanout_HandleKV_DispatchesToMatchingSubscriber(t *testing.T) {
	kv := NewRegistry(4)
	objects := NewObjRegistry(4)
	f := NewFanout(nil, kv, objects, 1)

	sub := kv.SubscribeBucket("sub-1", "tenant-a", "bucket-1", 0)

	encodedValue := base64.StdEncoding.EncodeToString([]byte("payload"))
	payload := `{"table":"kv_entries","action":"insert","row":{"bucket_id":"b1","bucket":"bucket-1","key":"foo","op":"PUT","revision":1,"value":"` + encodedValue + `","tenant":"tenant-a","created_at":"2026-01-01T00:00:00Z"}}`

	f.handle(payload)

	select {
	case ev := <-sub.Events():
		if ev.Key != "foo" || ev.Revision != 1 || string(ev.Value) != "payload" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatal("expected subscriber to receive the dispatched event")
	}
}

func TestFanout_HandleKV_ResolvesBucketNameFromCache(t *testing.T) {
	kv := NewRegistry(4)
	objects := NewObjRegistry(4)
	f := NewFanout(nil, kv, objects, 1)

	kv.RememberBucket("b1", "bucket-1")
	sub := kv.SubscribeBucket("sub-1", "tenant-a", "bucket-1", 0)

	payload := `{"table":"kv_entries","action":"insert","row":{"bucket_id":"b1","bucket":"","key":"foo","op":"PUT","revision":1,"tenant":"tenant-a","created_at":"2026-01-01T00:00:00Z"}}`
	f.handle(payload)

	select {
	case <-sub.Events():
	default:
		t.Fatal("expected subscriber to receive event resolved via bucket id cache")
	}
}

func TestFanout_HandleKV_UnresolvableBucketIsDropped(t *testing.T) {
	kv := NewRegistry(4)
	objects := NewObjRegistry(4)
	f := NewFanout(nil, kv, objects, 1)

	sub := kv.SubscribeBucket("sub-1", "tenant-a", "bucket-1", 0)

	payload := `{"table":"kv_entries","action":"insert","row":{"bucket_id":"unknown","bucket":"","key":"foo","op":"PUT","revision":1,"tenant":"tenant-a","created_at":"2026-01-01T00:00:00Z"}}`
	f.handle(payload)

	select {
	case <-sub.Events():
		t.Fatal("expected no event when the bucket id cannot be resolved")
	default:
	}
}

func TestFanout_HandleObject_DispatchesToMatchingSubscriber(t *testing.T) {
	kv := NewRegistry(4)
	objects := NewObjRegistry(4)
	f := NewFanout(nil, kv, objects, 1)

	sub := objects.Subscribe("sub-1", "tenant-a", "bucket-1")

	payload := `{"table":"obj_metadata","action":"update","row":{"bucket_id":"b1","bucket":"bucket-1","name":"report.csv","size":42,"digest":"deadbeef","tenant":"tenant-a","status":"COMPLETED"}}`
	f.handle(payload)

	select {
	case ev := <-sub.Events():
		if ev.Name != "report.csv" || ev.Type != "PUT" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatal("expected subscriber to receive the dispatched event")
	}
}

func TestFanout_HandleObject_DeleteActionMapsToDeleteType(t *testing.T) {
	kv := NewRegistry(4)
	objects := NewObjRegistry(4)
	f := NewFanout(nil, kv, objects, 1)

	sub := objects.Subscribe("sub-1", "tenant-a", "bucket-1")
	payload := `{"table":"obj_metadata","action":"delete","row":{"bucket_id":"b1","bucket":"bucket-1","name":"report.csv","tenant":"tenant-a"}}`
	f.handle(payload)

	select {
	case ev := <-sub.Events():
		if ev.Type != "DELETE" {
			t.Fatalf("expected DELETE event type, got %s", ev.Type)
		}
	default:
		t.Fatal("expected subscriber to receive the dispatched event")
	}
}

func TestFanout_Handle_MalformedPayloadIsDiscarded(t *testing.T) {
	kv := NewRegistry(4)
	objects := NewObjRegistry(4)
	f := NewFanout(nil, kv, objects, 1)

	f.handle("not json")
	f.handle(`{"table":"kv_entries","action":"insert","row":"not an object"}`)
}

func TestFanout_Handle_UnknownTableIsIgnored(t *testing.T) {
	kv := NewRegistry(4)
	objects := NewObjRegistry(4)
	f := NewFanout(nil, kv, objects, 1)

	f.handle(`{"table":"some_other_table","action":"insert","row":{}}`)
}
