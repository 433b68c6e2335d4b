package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xraph/splitledger/group"
	"github.com/xraph/splitledger/id"
)

type groupRequest struct {
	Name     string            `json:"name" binding:"required"`
	Currency string            `json:"currency" binding:"required"`
	Members  []string          `json:"members"`
	Metadata map[string]string `json:"metadata"`
}

type memberRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func (h *Handler) createGroup(c *gin.Context) {
	var req groupRequest
	if !bindJSON(c, &req) {
		return
	}

	g := &group.Group{
		Name:     req.Name,
		Currency: req.Currency,
		Members:  req.Members,
		Metadata: req.Metadata,
	}
	if err := h.ledger.CreateGroup(c.Request.Context(), g); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, g)
}

func (h *Handler) getGroup(c *gin.Context) {
	groupID, ok := pathID(c, "groupID", id.PrefixGroup)
	if !ok {
		return
	}

	g, err := h.ledger.GetGroup(c.Request.Context(), groupID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (h *Handler) addGroupMember(c *gin.Context) {
	groupID, ok := pathID(c, "groupID", id.PrefixGroup)
	if !ok {
		return
	}
	var req memberRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.ledger.AddGroupMember(c.Request.Context(), groupID, req.UserID); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) removeGroupMember(c *gin.Context) {
	groupID, ok := pathID(c, "groupID", id.PrefixGroup)
	if !ok {
		return
	}

	if err := h.ledger.RemoveGroupMember(c.Request.Context(), groupID, c.Param("userID")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) groupBalances(c *gin.Context) {
	groupID, ok := pathID(c, "groupID", id.PrefixGroup)
	if !ok {
		return
	}

	positions, err := h.ledger.GroupBalances(c.Request.Context(), groupID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balances": positions})
}

// simplifyGroupDebts returns the transfers that would settle the group.
func (h *Handler) simplifyGroupDebts(c *gin.Context) {
	groupID, ok := pathID(c, "groupID", id.PrefixGroup)
	if !ok {
		return
	}

	transfers, err := h.ledger.SimplifyGroupDebts(c.Request.Context(), groupID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transfers": transfers})
}
