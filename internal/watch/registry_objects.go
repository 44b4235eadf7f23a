package watch

import (
	"sync"

	"storegate/internal/domain"
	"storegate/internal/metrics"
)

// ObjSubscriber is a bucket-scope object watcher (spec §6: object watch
// has no per-key scope).
type ObjSubscriber struct {
	ID     string
	Tenant string
	Bucket string

	events chan domain.ObjectWatchEvent
	closed chan struct{}
	once   sync.Once
}

func (s *ObjSubscriber) Events() <-chan domain.ObjectWatchEvent { return s.events }

func (s *ObjSubscriber) Close() { s.once.Do(func() { close(s.closed) }) }

func (s *ObjSubscriber) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// ObjRegistry is the object-watch counterpart of Registry, kept separate
// because the event shape and scope rules differ enough that sharing one
// generic map would obscure both (spec §4.5, §6).
type ObjRegistry struct {
	mu             sync.RWMutex
	watchers       map[bucketKey]map[string]*ObjSubscriber
	subscriptions  map[string]*ObjSubscriber
	bucketIDToName map[string]string
	queueSize      int
}

func NewObjRegistry(queueSize int) *ObjRegistry {
	return &ObjRegistry{
		watchers:       make(map[bucketKey]map[string]*ObjSubscriber),
		subscriptions:  make(map[string]*ObjSubscriber),
		bucketIDToName: make(map[string]string),
		queueSize:     queueSize,
	}
}

// RememberBucket seeds or refreshes the object bucket-id to name cache.
func (r *ObjRegistry) RememberBucket(id, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bucketIDToName[id] = name
}

func (r *ObjRegistry) watcherBucketName(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.bucketIDToName[id]
	return name, ok
}

func (r *ObjRegistry) Subscribe(id, tenant, bucket string) *ObjSubscriber {
	queueSize := r.queueSize
	if queueSize <= 0 {
		queueSize = defaultSubscriberQueueSize
	}
	sub := &ObjSubscriber{
		ID: id, Tenant: tenant, Bucket: bucket,
		events: make(chan domain.ObjectWatchEvent, queueSize),
		closed: make(chan struct{}),
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	k := bucketKey{tenant, bucket}
	if r.watchers[k] == nil {
		r.watchers[k] = make(map[string]*ObjSubscriber)
	}
	r.watchers[k][id] = sub
	r.subscriptions[id] = sub
	return sub
}

func (r *ObjRegistry) Unsubscribe(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subscriptions[id]
	if !ok {
		return
	}
	delete(r.subscriptions, id)
	k := bucketKey{sub.Tenant, sub.Bucket}
	delete(r.watchers[k], id)
	if len(r.watchers[k]) == 0 {
		delete(r.watchers, k)
	}
	sub.Close()
}

func (r *ObjRegistry) Dispatch(event domain.ObjectWatchEvent) {
	r.mu.RLock()
	targets := make([]*ObjSubscriber, 0, len(r.watchers[bucketKey{event.Tenant, event.Bucket}]))
	for _, sub := range r.watchers[bucketKey{event.Tenant, event.Bucket}] {
		targets = append(targets, sub)
	}
	r.mu.RUnlock()

	for _, sub := range targets {
		if sub.isClosed() {
			r.Unsubscribe(sub.ID)
			continue
		}
		select {
		case sub.events <- event:
		default:
			metrics.WatchSubscribersDropped.Inc()
			r.Unsubscribe(sub.ID)
		}
	}
}
