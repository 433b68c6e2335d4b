// Package api exposes a SplitLedger over HTTP with gin.
//
// Amounts travel as major-unit decimal strings ("30.00") on the way in and
// as types.Money on the way out. Authentication is left to the host: the
// acting user is taken from the path or the request body.
package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xraph/splitledger"
)

// DefaultBasePath is the route prefix used when none is configured.
const DefaultBasePath = "/splitledger"

// Handler serves the ledger's HTTP routes.
type Handler struct {
	ledger   *splitledger.Ledger
	logger   *slog.Logger
	basePath string
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger used for request failures.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithBasePath sets the route prefix. An empty path mounts at the root.
func WithBasePath(path string) Option {
	return func(h *Handler) { h.basePath = "/" + strings.Trim(path, "/") }
}

// NewHandler creates a Handler for l.
func NewHandler(l *splitledger.Ledger, opts ...Option) *Handler {
	h := &Handler{
		ledger:   l,
		logger:   slog.Default(),
		basePath: DefaultBasePath,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.basePath == "/" {
		h.basePath = ""
	}
	return h
}

// BasePath returns the prefix routes are mounted under.
func (h *Handler) BasePath() string { return h.basePath }

// Engine returns a standalone gin engine with recovery, request IDs and
// error rendering installed and every route registered.
func (h *Handler) Engine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), ErrorHandler(h.logger))
	r.GET("/healthz", h.health)
	h.Register(r)
	return r
}

// Register mounts the ledger routes on r under the base path. The router
// is expected to run ErrorHandler.
func (h *Handler) Register(r gin.IRouter) {
	g := r.Group(h.basePath)

	users := g.Group("/users")
	users.POST("", h.registerUser)
	users.GET("/:userID", h.getUser)
	users.PUT("/:userID/currency", h.setDefaultCurrency)
	users.GET("/:userID/groups", h.listUserGroups)
	users.POST("/:userID/refresh", h.refreshUser)

	friends := users.Group("/:userID/friends")
	friends.GET("", h.fetchFriends)
	friends.POST("", h.addFriend)
	friends.DELETE("/:friendID", h.removeFriend)
	friends.GET("/:friendID", h.getRelationship)
	friends.POST("/:friendID/request", h.requestLink)
	friends.POST("/:friendID/accept", h.acceptLink)
	friends.PUT("/:friendID/balance", h.updateBalance)

	expenses := g.Group("/expenses")
	expenses.POST("", h.addExpense)
	expenses.GET("", h.listExpenses)
	expenses.GET("/:expenseID", h.getExpense)
	expenses.PUT("/:expenseID", h.updateExpense)
	expenses.DELETE("/:expenseID", h.deleteExpense)

	settlements := g.Group("/settlements")
	settlements.POST("", h.recordSettlement)
	settlements.GET("", h.listSettlements)
	settlements.GET("/:settlementID", h.getSettlement)
	settlements.POST("/:settlementID/reverse", h.reverseSettlement)

	groups := g.Group("/groups")
	groups.POST("", h.createGroup)
	groups.GET("/:groupID", h.getGroup)
	groups.POST("/:groupID/members", h.addGroupMember)
	groups.DELETE("/:groupID/members/:userID", h.removeGroupMember)
	groups.GET("/:groupID/balances", h.groupBalances)
	groups.GET("/:groupID/transfers", h.simplifyGroupDebts)

	g.POST("/reconcile", h.reconcile)
}

func (h *Handler) health(c *gin.Context) {
	if err := h.ledger.Store().Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) reconcile(c *gin.Context) {
	if err := h.ledger.Reconcile(c.Request.Context()); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stale": h.ledger.Dirty()})
}
