// Package statusapi exposes a node's cluster view over HTTP: a snapshot of
// every known peer, a single peer's detail, and a readiness probe gossip
// consumers can point a load balancer or orchestrator health check at.
package statusapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/chitchatlabs/chitchat/internal/chitchat"
	"github.com/chitchatlabs/chitchat/pkg/log"
	"github.com/chitchatlabs/chitchat/pkg/status"
)

// Server is the status HTTP server for a chitchat node.
type Server struct {
	state    *chitchat.ClusterState
	registry *prometheus.Registry

	httpServer *http.Server
	router     *gin.Engine

	logger log.Logger
}

// NewServer creates a status server reporting on state. registry may be nil
// to disable the /metrics route.
func NewServer(state *chitchat.ClusterState, registry *prometheus.Registry, logger log.Logger) *Server {
	logger = logger.WithSubsystem("statusapi")

	router := gin.New()
	router.Use(gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, err any) {
		logger.Error("handler panic", zap.String("path", c.FullPath()), zap.Any("err", err))
		c.AbortWithStatus(http.StatusInternalServerError)
	}))

	s := &Server{
		state:    state,
		registry: registry,
		httpServer: &http.Server{
			Handler:  router,
			ErrorLog: logger.StdLogger(zapcore.WarnLevel),
		},
		router: router,
		logger: logger,
	}
	s.registerRoutes(router)
	return s
}

// Serve blocks serving status requests on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting status server", zap.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http serve: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes(router *gin.Engine) {
	router.GET("/health", s.healthRoute)
	router.GET("/ready", s.readyRoute)
	router.GET("/cluster", s.clusterRoute)
	router.GET("/cluster/:node_id", s.nodeRoute)
	router.GET("/digest", s.digestRoute)
	router.PUT("/local/keys/:key", s.setLocalKeyRoute)
	router.DELETE("/local/keys/:key", s.deleteLocalKeyRoute)

	if s.registry != nil {
		h := promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
		router.GET("/metrics", func(c *gin.Context) { h.ServeHTTP(c.Writer, c.Request) })
	}
}

func (s *Server) healthRoute(c *gin.Context) {
	c.Status(http.StatusOK)
}

func (s *Server) readyRoute(c *gin.Context) {
	ready, _ := s.state.WatchReady().Get()
	if !ready {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) clusterRoute(c *gin.Context) {
	c.JSON(http.StatusOK, s.state.Snapshot())
}

// nodeRoute looks up a node by its logical node_id alone, since the status
// API has no way to ask for a specific generation or advertise address; if
// more than one generation of the same node_id is tracked (eg mid-restart),
// the first match is returned.
func (s *Server) nodeRoute(c *gin.Context) {
	nodeID := c.Param("node_id")
	snapshot := s.state.Snapshot()
	for _, node := range snapshot.Nodes {
		if node.ID.NodeID == nodeID {
			c.JSON(http.StatusOK, node)
			return
		}
	}
	info := &status.ErrorInfo{StatusCode: http.StatusNotFound, Message: "node not found"}
	c.JSON(info.StatusCode, gin.H{"error": info.Message})
}

// DigestEntry is one node's digest summary, shaped for JSON transport since
// chitchat.Digest keys its map by the non-string chitchat.ID type.
type DigestEntry struct {
	ID            chitchat.ID        `json:"id"`
	Heartbeat     chitchat.Heartbeat `json:"heartbeat"`
	MaxVersion    chitchat.Version   `json:"max_version"`
	LastGCVersion chitchat.Version   `json:"last_gc_version"`
}

func (s *Server) digestRoute(c *gin.Context) {
	digest := s.state.ComputeDigest()
	entries := make([]DigestEntry, 0, digest.Len())
	for id, entry := range digest.NodeDigests {
		entries = append(entries, DigestEntry{
			ID:            id,
			Heartbeat:     entry.Heartbeat,
			MaxVersion:    entry.MaxVersion,
			LastGCVersion: entry.LastGCVersion,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID.NodeID < entries[j].ID.NodeID })
	c.JSON(http.StatusOK, entries)
}

type setLocalKeyRequest struct {
	Value      string `json:"value" binding:"required"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

// setLocalKeyRoute sets a key on this node's own local state. A node can
// only author its own key-values in Scuttlebutt gossip, so this always acts
// on the node the request was sent to, never a peer.
func (s *Server) setLocalKeyRoute(c *gin.Context) {
	var req setLocalKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		info := &status.ErrorInfo{StatusCode: http.StatusBadRequest, Message: err.Error()}
		c.JSON(info.StatusCode, gin.H{"error": info.Message})
		return
	}

	key := c.Param("key")
	if req.TTLSeconds > 0 {
		s.state.SetLocalWithTTL(key, req.Value, time.Duration(req.TTLSeconds)*time.Second)
	} else {
		s.state.SetLocal(key, req.Value)
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) deleteLocalKeyRoute(c *gin.Context) {
	s.state.DeleteLocal(c.Param("key"))
	c.Status(http.StatusNoContent)
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}
