// Package httpapi exposes a loopback-bound, read-only HTTP surface over
// the supervisor's state: Prometheus metrics and a JSON status snapshot
// per target. It intentionally carries no start/stop/restart endpoints —
// the operator console is this system's sole command path, and adding a
// mutating HTTP surface without the ACL this system declines to build
// would be a foot-gun, not a feature.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fbaster/mcsupervisor/internal/metrics"
	"github.com/fbaster/mcsupervisor/internal/supervisor"
)

// Target is the subset of Supervisor behavior the status surface needs.
type Target interface {
	Nick() string
	Status() supervisor.Snapshot
}

// Router serves /status, /status/:nick, and /metrics.
type Router struct {
	targets map[string]Target
	order   []string
}

// NewRouter builds a Router over the given targets.
func NewRouter(targets []Target) *Router {
	r := &Router{targets: make(map[string]Target, len(targets))}
	for _, t := range targets {
		r.targets[t.Nick()] = t
		r.order = append(r.order, t.Nick())
	}
	return r
}

// Handler returns the http.Handler for this router.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	g.GET("/status", r.handleStatusAll)
	g.GET("/status/:nick", r.handleStatusOne)
	g.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr string, targets []Target) *http.Server {
	r := NewRouter(targets)
	return &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

type statusDoc struct {
	Nick           string    `json:"nick"`
	Desired        bool      `json:"desired"`
	ObservedOnline bool      `json:"observed_online"`
	Responsive     bool      `json:"responsive"`
	Restarts       int       `json:"restarts"`
	LastTick       time.Time `json:"last_tick,omitempty"`
}

func toDoc(s supervisor.Snapshot) statusDoc {
	return statusDoc{
		Nick:           s.Nick,
		Desired:        s.Desired,
		ObservedOnline: s.ObservedOnline,
		Responsive:     s.Responsive,
		Restarts:       s.Restarts,
		LastTick:       s.LastTick,
	}
}

func (r *Router) handleStatusAll(c *gin.Context) {
	docs := make([]statusDoc, 0, len(r.order))
	for _, nick := range r.order {
		docs = append(docs, toDoc(r.targets[nick].Status()))
	}
	c.JSON(http.StatusOK, docs)
}

func (r *Router) handleStatusOne(c *gin.Context) {
	nick := c.Param("nick")
	t, ok := r.targets[nick]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown target " + nick})
		return
	}
	c.JSON(http.StatusOK, toDoc(t.Status()))
}
