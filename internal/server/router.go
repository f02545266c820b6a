package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/brosup/gmonitor/internal/command"
	"github.com/brosup/gmonitor/internal/conn"
	"github.com/brosup/gmonitor/internal/export"
	"github.com/brosup/gmonitor/internal/metrics"
	"github.com/brosup/gmonitor/internal/notify"
	"github.com/brosup/gmonitor/internal/session"
	"github.com/brosup/gmonitor/internal/state"
)

// Router exposes the console's mirrored state over a local HTTP API. All
// fleet mutations travel over the websocket; the API is an observer plus a
// thin passthrough for the three fire-and-forget commands.
// Endpoints:
//
//	GET  {basePath}/clients          full fleet, natural order
//	GET  {basePath}/clients/:id      one client
//	GET  {basePath}/stats            fleet aggregates
//	GET  {basePath}/connection       connection lifecycle state
//	GET  {basePath}/session          session identity (token withheld)
//	GET  {basePath}/notification     current transient notification
//	GET  {basePath}/exports          recorded export results
//	POST {basePath}/commands/start   query: target=...
//	POST {basePath}/commands/stop    query: target=...
//	POST {basePath}/commands/export  query: target=...&format=csv
//	GET  {basePath}/metrics          Prometheus metrics
type Router struct {
	store      *state.Store
	supervisor *conn.Supervisor
	sessions   *session.Manager
	notifier   *notify.Notifier
	dispatcher *command.Dispatcher
	exports    *export.Retriever
	basePath   string
}

// Config collects the observed components. Store and Supervisor are
// required; nil optionals disable their endpoints with 404s.
type Config struct {
	Store      *state.Store
	Supervisor *conn.Supervisor
	Sessions   *session.Manager
	Notifier   *notify.Notifier
	Dispatcher *command.Dispatcher
	Exports    *export.Retriever
	BasePath   string
}

// NewRouter constructs a Router with a configurable basePath.
func NewRouter(cfg Config) *Router {
	return &Router{
		store:      cfg.Store,
		supervisor: cfg.Supervisor,
		sessions:   cfg.Sessions,
		notifier:   cfg.Notifier,
		dispatcher: cfg.Dispatcher,
		exports:    cfg.Exports,
		basePath:   sanitizeBase(cfg.BasePath),
	}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/clients", r.handleClients)
	group.GET("/clients/:id", r.handleClient)
	group.GET("/stats", r.handleStats)
	group.GET("/connection", r.handleConnection)
	group.GET("/session", r.handleSession)
	group.GET("/notification", r.handleNotification)
	group.GET("/exports", r.handleExports)
	group.POST("/commands/:name", r.handleCommand)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr string, cfg Config) *http.Server {
	r := NewRouter(cfg)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleClients(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.store.Sorted())
}

func (r *Router) handleClient(c *gin.Context) {
	id := c.Param("id")
	client, ok := r.store.Get(id)
	if !ok {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "unknown client: " + id})
		return
	}
	writeJSON(c, http.StatusOK, client)
}

func (r *Router) handleStats(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.store.Stats())
}

type connectionResp struct {
	State string `json:"state"`
}

func (r *Router) handleConnection(c *gin.Context) {
	writeJSON(c, http.StatusOK, connectionResp{State: r.supervisor.State().String()})
}

type sessionResp struct {
	FullName  string    `json:"full_name"`
	ExpiresAt time.Time `json:"expires_at"`
	Theme     string    `json:"theme"`
}

func (r *Router) handleSession(c *gin.Context) {
	if r.sessions == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "sessions not configured"})
		return
	}
	s, err := r.sessions.Load()
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	if s == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "no active session"})
		return
	}
	writeJSON(c, http.StatusOK, sessionResp{
		FullName:  s.FullName,
		ExpiresAt: s.ExpiresAt,
		Theme:     r.sessions.Theme(),
	})
}

func (r *Router) handleNotification(c *gin.Context) {
	if r.notifier == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "notifier not configured"})
		return
	}
	cur := r.notifier.Current()
	if cur == nil {
		c.Status(http.StatusNoContent)
		return
	}
	writeJSON(c, http.StatusOK, cur)
}

func (r *Router) handleExports(c *gin.Context) {
	if r.exports == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "exports not configured"})
		return
	}
	writeJSON(c, http.StatusOK, r.exports.Results())
}

func (r *Router) handleCommand(c *gin.Context) {
	if r.dispatcher == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "dispatcher not configured"})
		return
	}
	name := c.Param("name")
	target := c.Query("target")
	if target == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "target required"})
		return
	}
	if err := r.dispatcher.Send(name, target, c.Query("format")); err != nil {
		// fire-and-forget: a refused command is reported, never queued
		writeJSON(c, http.StatusConflict, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
