package watch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"runtime"
	"time"

	"storegate/internal/domain"
	"storegate/internal/log"
	"storegate/internal/metrics"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"
)

const notifyChannel = "store_changes"

// Fanout owns the one dedicated LISTEN connection and the worker pool that
// decodes and dispatches its notifications (spec §4.5, §5). It never
// touches the pool used to serve requests — a long blocking call on that
// connection would otherwise starve it.
type Fanout struct {
	Conn     *pgx.Conn
	KV       *Registry
	Objects  *ObjRegistry
	Workers  int
	raw      chan *pgconnNotification
}

type pgconnNotification struct {
	payload string
}

func NewFanout(conn *pgx.Conn, kv *Registry, objects *ObjRegistry, workers int) *Fanout {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Fanout{
		Conn:    conn,
		KV:      kv,
		Objects: objects,
		Workers: workers,
		raw:     make(chan *pgconnNotification, 256),
	}
}

// Run blocks until ctx is canceled or the listener connection fails. It
// issues LISTEN once, then runs the receive loop and the worker pool under
// one errgroup so either side failing tears down the other.
func (f *Fanout) Run(ctx context.Context) error {
	if _, err := f.Conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return fmt.Errorf("listen %s: %w", notifyChannel, err)
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return f.receiveLoop(ctx) })
	for i := 0; i < f.Workers; i++ {
		group.Go(func() error { return f.worker(ctx) })
	}
	return group.Wait()
}

func (f *Fanout) receiveLoop(ctx context.Context) error {
	defer close(f.raw)
	for {
		notification, err := f.Conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wait for notification: %w", err)
		}
		select {
		case f.raw <- &pgconnNotification{payload: notification.Payload}:
			metrics.WatchDispatchQueueDepth.Set(float64(len(f.raw)))
		case <-ctx.Done():
			return nil
		}
	}
}

func (f *Fanout) worker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-f.raw:
			if !ok {
				return nil
			}
			metrics.WatchDispatchQueueDepth.Set(float64(len(f.raw)))
			f.handle(n.payload)
		}
	}
}

type notifyEnvelope struct {
	Table  string          `json:"table"`
	Action string          `json:"action"`
	Row    json.RawMessage `json:"row"`
}

type kvRow struct {
	BucketID  string  `json:"bucket_id"`
	Bucket    string  `json:"bucket"`
	Key       string  `json:"key"`
	Op        string  `json:"op"`
	Revision  int64   `json:"revision"`
	Value     *string `json:"value"`
	Tenant    *string `json:"tenant"`
	CreatedAt string  `json:"created_at"`
}

type objRow struct {
	BucketID string  `json:"bucket_id"`
	Bucket   string  `json:"bucket"`
	Name     string  `json:"name"`
	Size     *int64  `json:"size"`
	Digest   string  `json:"digest"`
	Tenant   *string `json:"tenant"`
	Status   string  `json:"status"`
}

func (f *Fanout) handle(payload string) {
	var env notifyEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		log.Warn().Err(err).Msg("discarding malformed watch notification")
		return
	}

	switch env.Table {
	case "kv_entries":
		f.handleKV(env.Row)
	case "obj_metadata":
		f.handleObject(env.Action, env.Row)
	}
}

func (f *Fanout) handleKV(raw json.RawMessage) {
	var row kvRow
	if err := json.Unmarshal(raw, &row); err != nil {
		log.Warn().Err(err).Msg("discarding malformed kv notification row")
		return
	}
	bucket := row.Bucket
	if bucket == "" {
		name, ok := f.KV.bucketName(row.BucketID)
		if !ok {
			return // race with bucket creation; acceptable per spec §4.5 step 2
		}
		bucket = name
	} else {
		f.KV.RememberBucket(row.BucketID, row.Bucket)
	}

	var tenant string
	if row.Tenant != nil {
		tenant = *row.Tenant
	}
	var value []byte
	if row.Value != nil {
		decoded, err := base64.StdEncoding.DecodeString(*row.Value)
		if err == nil {
			value = decoded
		}
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, row.CreatedAt)

	f.KV.DispatchKV(domain.WatchEvent{
		Type:      domain.KVOperation(row.Op),
		Tenant:    tenant,
		Bucket:    bucket,
		Key:       row.Key,
		Value:     value,
		Revision:  row.Revision,
		Timestamp: createdAt,
	})
}

func (f *Fanout) handleObject(action string, raw json.RawMessage) {
	var row objRow
	if err := json.Unmarshal(raw, &row); err != nil {
		log.Warn().Err(err).Msg("discarding malformed object notification row")
		return
	}
	bucket := row.Bucket
	if bucket == "" {
		name, ok := f.Objects.watcherBucketName(row.BucketID)
		if !ok {
			return
		}
		bucket = name
	} else {
		f.Objects.RememberBucket(row.BucketID, row.Bucket)
	}

	var tenant string
	if row.Tenant != nil {
		tenant = *row.Tenant
	}
	eventType := "PUT"
	if action == "delete" {
		eventType = "DELETE"
	}

	f.Objects.Dispatch(domain.ObjectWatchEvent{
		Type:      eventType,
		Tenant:    tenant,
		Bucket:    bucket,
		Name:      row.Name,
		Size:      row.Size,
		Digest:    row.Digest,
		Timestamp: time.Now().UTC(),
	})
}
