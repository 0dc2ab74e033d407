// Package api is the HTTP command surface: it parses requests, authorizes
// them through the encounter store, and fans out committed state via the hub.
package api

import (
	"context"
	"hash/fnv"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/dndtracker/dndtracker/pkg/database"
	"github.com/dndtracker/dndtracker/pkg/hub"
	"github.com/dndtracker/dndtracker/pkg/store"
)

// Server wires the store, the push hub, and the optional database client
// (nil when the in-memory store is active).
type Server struct {
	store    store.EncounterStore
	hub      *hub.Hub
	dbClient *database.Client

	// Striped by encounter id: a mutation handler holds its stripe from the
	// store commit through the hub broadcast, so subscribers observe versions
	// in commit order.
	commitLocks [64]sync.Mutex

	httpServer *http.Server
}

// NewServer creates a new API server.
func NewServer(encounterStore store.EncounterStore, pushHub *hub.Hub, dbClient *database.Client) *Server {
	return &Server{
		store:    encounterStore,
		hub:      pushHub,
		dbClient: dbClient,
	}
}

// commitLock returns the ordering lock for an encounter.
func (s *Server) commitLock(encounterID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(encounterID))
	return &s.commitLocks[h.Sum32()%uint32(len(s.commitLocks))]
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", s.healthHandler)

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/encounters", s.createEncounterHandler)
		apiGroup.GET("/encounters/:id", s.getEncounterHandler)
		apiGroup.POST("/encounters/:id/actions", s.applyActionHandler)
		apiGroup.POST("/encounters/:id/rolls", s.appendRollHandler)
		apiGroup.POST("/encounters/:id/chat", s.appendChatHandler)
	}

	router.GET("/ws/encounters/:id", s.wsHandler)

	return router
}

// Start begins serving on addr. Blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
