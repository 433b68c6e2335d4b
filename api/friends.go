package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type addFriendRequest struct {
	FriendID string `json:"friend_id" binding:"required"`
}

type balanceRequest struct {
	Amount   string `json:"amount" binding:"required"`
	Currency string `json:"currency"`
}

// fetchFriends lists the user's friends with their cached balances.
func (h *Handler) fetchFriends(c *gin.Context) {
	friends, err := h.ledger.FetchFriends(c.Request.Context(), c.Param("userID"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"friends": friends})
}

func (h *Handler) addFriend(c *gin.Context) {
	var req addFriendRequest
	if !bindJSON(c, &req) {
		return
	}

	receipt, err := h.ledger.AddFriend(c.Request.Context(), c.Param("userID"), req.FriendID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipt": receipt})
}

func (h *Handler) removeFriend(c *gin.Context) {
	receipt, err := h.ledger.RemoveFriend(c.Request.Context(), c.Param("userID"), c.Param("friendID"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipt": receipt})
}

func (h *Handler) getRelationship(c *gin.Context) {
	rel, err := h.ledger.GetRelationship(c.Request.Context(), c.Param("userID"), c.Param("friendID"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, rel)
}

func (h *Handler) requestLink(c *gin.Context) {
	rel, err := h.ledger.RequestLink(c.Request.Context(), c.Param("userID"), c.Param("friendID"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, rel)
}

// acceptLink accepts the friend's pending request to the user.
func (h *Handler) acceptLink(c *gin.Context) {
	receipt, err := h.ledger.AcceptLink(c.Request.Context(), c.Param("userID"), c.Param("friendID"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipt": receipt})
}

// updateBalance overrides the cached balance until the next refresh. The
// amount defaults to the owner's unit of account.
func (h *Handler) updateBalance(c *gin.Context) {
	var req balanceRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	ownerID := c.Param("userID")

	fallback := ""
	if req.Currency == "" {
		owner, err := h.ledger.GetUser(ctx, ownerID)
		if err != nil {
			_ = c.Error(err)
			return
		}
		fallback = owner.DefaultCurrency
	}
	amount, err := money(req.Amount, req.Currency, fallback)
	if err != nil {
		_ = c.Error(err)
		return
	}

	if err := h.ledger.UpdateBalance(ctx, ownerID, c.Param("friendID"), amount); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
