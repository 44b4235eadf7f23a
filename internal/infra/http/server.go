package http

import (
	"context"
	"fmt"
	"net/http"

	"storegate/internal/config"
	"storegate/internal/domain"
	"storegate/internal/infra/auth/rbac"
	"storegate/internal/usecase"
	"storegate/internal/watch"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var errNotFoundRoute = fmt.Errorf("%w: route not found", domain.ErrNotFound)

// Server wires the gin engine to the usecase layer and the watch
// registries. It owns no persistent connections of its own — those
// belong to the Store and the Fanout the caller constructs separately.
type Server struct {
	cfg config.Config
	r   *gin.Engine

	kv       *usecase.KVEngine
	objects  *usecase.ObjectPipeline
	registry *watch.Registry
	objWatch *watch.ObjRegistry

	authorizer *rbac.Authorizer
}

func NewServer(cfg config.Config, kv *usecase.KVEngine, objects *usecase.ObjectPipeline, registry *watch.Registry, objWatch *watch.ObjRegistry) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:        cfg,
		r:          r,
		kv:         kv,
		objects:    objects,
		registry:   registry,
		objWatch:   objWatch,
		authorizer: rbac.NewAuthorizer(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.r.Use(TenantMiddleware())

	kvHandler := &kvHandlers{engine: s.kv}
	objHandler := &objectHandlers{pipeline: s.objects}
	watchHandler := &watchHandlers{engine: s.kv, registry: s.registry, objects: s.objWatch}

	kvGroup := s.r.Group("/api/v1/kv/buckets")
	{
		kvGroup.POST("", RequireRole(s.authorizer, rbac.PermissionKVWrite), kvHandler.createBucket)
		kvGroup.GET("", RequireRole(s.authorizer, rbac.PermissionKVRead), kvHandler.listBuckets)
		kvGroup.GET("/:bucket", RequireRole(s.authorizer, rbac.PermissionKVRead), kvHandler.getBucket)
		kvGroup.PUT("/:bucket", RequireRole(s.authorizer, rbac.PermissionKVWrite), kvHandler.putBucket)
		kvGroup.DELETE("/:bucket", RequireRole(s.authorizer, rbac.PermissionKVWrite), kvHandler.deleteBucket)
		kvGroup.DELETE("/:bucket/purge", RequireRole(s.authorizer, rbac.PermissionKVWrite), kvHandler.purgeBucket)

		kvGroup.GET("/:bucket/keys", RequireRole(s.authorizer, rbac.PermissionKVRead), kvHandler.listKeys)
		kvGroup.GET("/:bucket/keys/:key", RequireRole(s.authorizer, rbac.PermissionKVRead), kvHandler.getKey)
		kvGroup.PUT("/:bucket/keys/:key", RequireRole(s.authorizer, rbac.PermissionKVWrite), kvHandler.putKey)
		kvGroup.DELETE("/:bucket/keys/:key", RequireRole(s.authorizer, rbac.PermissionKVWrite), kvHandler.deleteKey)
		kvGroup.DELETE("/:bucket/keys/:key/purge", RequireRole(s.authorizer, rbac.PermissionKVWrite), kvHandler.purgeKey)
		kvGroup.GET("/:bucket/keys/:key/revision/:revision", RequireRole(s.authorizer, rbac.PermissionKVRead), kvHandler.getKeyRevision)
		kvGroup.GET("/:bucket/keys/:key/history", RequireRole(s.authorizer, rbac.PermissionKVRead), kvHandler.getKeyHistory)
	}

	objGroup := s.r.Group("/api/v1/objects/buckets")
	{
		objGroup.POST("", RequireRole(s.authorizer, rbac.PermissionObjectWrite), objHandler.createBucket)
		objGroup.GET("", RequireRole(s.authorizer, rbac.PermissionObjectRead), objHandler.listBuckets)
		objGroup.GET("/:bucket", RequireRole(s.authorizer, rbac.PermissionObjectRead), objHandler.getBucket)
		objGroup.PUT("/:bucket", RequireRole(s.authorizer, rbac.PermissionObjectWrite), objHandler.putBucket)
		objGroup.DELETE("/:bucket", RequireRole(s.authorizer, rbac.PermissionObjectWrite), objHandler.deleteBucket)

		objGroup.GET("/:bucket/objects", RequireRole(s.authorizer, rbac.PermissionObjectRead), objHandler.listObjects)
		objGroup.PUT("/:bucket/objects/:name", RequireRole(s.authorizer, rbac.PermissionObjectWrite), objHandler.putObject)
		objGroup.GET("/:bucket/objects/:name", RequireRole(s.authorizer, rbac.PermissionObjectRead), objHandler.getObject)
		objGroup.GET("/:bucket/objects/:name/metadata", RequireRole(s.authorizer, rbac.PermissionObjectRead), objHandler.getMetadata)
		objGroup.GET("/:bucket/objects/:name/verify", RequireRole(s.authorizer, rbac.PermissionObjectRead), objHandler.verify)
		objGroup.DELETE("/:bucket/objects/:name", RequireRole(s.authorizer, rbac.PermissionObjectWrite), objHandler.deleteObject)
	}

	s.r.GET("/api/v1/objects/_internal/orphan-chunks", RequireRole(s.authorizer, rbac.PermissionAdmin), objHandler.orphanChunks)

	s.r.GET("/api/v1/kv/watch/:bucket", RequireRole(s.authorizer, rbac.PermissionWatch), watchHandler.watchBucket)
	s.r.GET("/api/v1/kv/watch/:bucket/:key", RequireRole(s.authorizer, rbac.PermissionWatch), watchHandler.watchKey)
	s.r.GET("/api/v1/objects/watch/:bucket", RequireRole(s.authorizer, rbac.PermissionWatch), watchHandler.watchObjects)

	s.r.NoRoute(func(c *gin.Context) {
		WriteError(c, errNotFoundRoute)
	})
}

// Run blocks serving HTTP until ctx is canceled or ListenAndServe fails.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.HTTPAddr, Handler: s.r}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
