package http

import (
	"encoding/base64"
	"net/http"
	"strconv"

	"storegate/internal/domain"
	"storegate/internal/usecase"
	"storegate/internal/watch"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var watchUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type watchHandlers struct {
	engine   *usecase.KVEngine
	registry *watch.Registry
	objects  *watch.ObjRegistry
}

type connectedMessage struct {
	Type   string `json:"type"`
	Bucket string `json:"bucket"`
	Key    string `json:"key,omitempty"`
	Since  int64  `json:"since"`
}

type watchEventMessage struct {
	Type      string `json:"type"`
	Bucket    string `json:"bucket"`
	Key       string `json:"key"`
	Value     string `json:"value,omitempty"`
	Revision  int64  `json:"revision"`
	Timestamp string `json:"timestamp"`
}

func watchEventMsg(e domain.WatchEvent) watchEventMessage {
	out := watchEventMessage{
		Type:      string(e.Type),
		Bucket:    e.Bucket,
		Key:       e.Key,
		Revision:  e.Revision,
		Timestamp: e.Timestamp.UTC().Format(rfc3339),
	}
	if e.Type == domain.KVOpPut {
		out.Value = base64.StdEncoding.EncodeToString(e.Value)
	}
	return out
}

// watchBucket and watchKey serve ws://…/kv/watch/{bucket}[/{key}]. Both
// optionally replay retained history newer than `since` before switching to
// live delivery (spec §6, §8 S6).
func (h *watchHandlers) watchBucket(c *gin.Context) {
	h.serve(c, c.Param("bucket"), "")
}

func (h *watchHandlers) watchKey(c *gin.Context) {
	h.serve(c, c.Param("bucket"), c.Param("key"))
}

func (h *watchHandlers) serve(c *gin.Context, bucket, key string) {
	since, _ := strconv.ParseInt(c.Query("since"), 10, 64)
	replay := c.Query("replay") == "true"
	tenant := TenantFromContext(c)

	if _, err := h.engine.GetBucket(c.Request.Context(), tenant, bucket); err != nil {
		WriteError(c, err)
		return
	}

	conn, err := watchUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	id := uuid.New().String()
	var sub *watch.Subscriber
	if key == "" {
		sub = h.registry.SubscribeBucket(id, tenant, bucket, since)
	} else {
		sub = h.registry.SubscribeKey(id, tenant, bucket, key, since)
	}
	defer h.registry.Unsubscribe(id)

	connected := connectedMessage{Type: "connected", Bucket: bucket, Since: since}
	if key != "" {
		connected.Key = key
	}
	if err := conn.WriteJSON(connected); err != nil {
		return
	}

	if replay {
		if err := h.replay(c, tenant, bucket, key, since, conn); err != nil {
			return
		}
	}

	go readPings(conn)

	for event := range sub.Events() {
		if err := conn.WriteJSON(watchEventMsg(event)); err != nil {
			return
		}
	}
}

func (h *watchHandlers) replay(c *gin.Context, tenant, bucket, key string, since int64, conn *websocket.Conn) error {
	if key == "" {
		keys, err := h.engine.ListKeys(c.Request.Context(), tenant, bucket, "")
		if err != nil {
			return nil
		}
		for _, k := range keys {
			if err := h.replayKey(c, tenant, bucket, k, since, conn); err != nil {
				return err
			}
		}
		return nil
	}
	return h.replayKey(c, tenant, bucket, key, since, conn)
}

func (h *watchHandlers) replayKey(c *gin.Context, tenant, bucket, key string, since int64, conn *websocket.Conn) error {
	history, err := h.engine.History(c.Request.Context(), tenant, bucket, key, 0)
	if err != nil {
		return nil
	}
	// history comes back newest-first; replay in ascending revision order.
	for i := len(history) - 1; i >= 0; i-- {
		entry := history[i]
		if entry.Revision <= since {
			continue
		}
		event := domain.WatchEvent{
			Type: entry.Operation, Tenant: tenant, Bucket: bucket, Key: key,
			Value: entry.Value, Revision: entry.Revision, Timestamp: entry.CreatedAt,
		}
		if err := conn.WriteJSON(watchEventMsg(event)); err != nil {
			return err
		}
	}
	return nil
}

// readPings drains client frames until the connection fails, answering the
// literal string "ping" with "pong"; no read deadline is set.
func readPings(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if string(data) == "ping" {
			_ = conn.WriteMessage(websocket.TextMessage, []byte("pong"))
		}
	}
}

type objWatchEventMessage struct {
	Type      string `json:"type"`
	Bucket    string `json:"bucket"`
	Name      string `json:"name"`
	Size      *int64 `json:"size,omitempty"`
	Digest    string `json:"digest,omitempty"`
	Timestamp string `json:"timestamp"`
}

func (h *watchHandlers) watchObjects(c *gin.Context) {
	bucket := c.Param("bucket")
	tenant := TenantFromContext(c)

	conn, err := watchUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	id := uuid.New().String()
	sub := h.objects.Subscribe(id, tenant, bucket)
	defer h.objects.Unsubscribe(id)

	if err := conn.WriteJSON(connectedMessage{Type: "connected", Bucket: bucket, Since: 0}); err != nil {
		return
	}

	go readPings(conn)

	for event := range sub.Events() {
		msg := objWatchEventMessage{
			Type:      event.Type,
			Bucket:    event.Bucket,
			Name:      event.Name,
			Size:      event.Size,
			Digest:    event.Digest,
			Timestamp: event.Timestamp.UTC().Format(rfc3339),
		}
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}
