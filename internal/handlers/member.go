package handlers

import (
	"github.com/clubstack/memberhub/internal/middleware"
	"github.com/clubstack/memberhub/internal/models"
	"github.com/clubstack/memberhub/internal/store"
	"github.com/clubstack/memberhub/pkg/response"
	"github.com/gin-gonic/gin"
)

// MemberHandler manages member profile records. Identity provisioning is
// external; this only maintains the record the allocation engine reads.
type MemberHandler struct {
	store store.Store
}

func NewMemberHandler(st store.Store) *MemberHandler {
	return &MemberHandler{store: st}
}

type CreateMemberRequest struct {
	ID    string `json:"id" binding:"required"`
	Name  string `json:"name" binding:"required"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Create registers a member profile. Admin only.
func (h *MemberHandler) Create(c *gin.Context) {
	var req CreateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	member, err := models.NewMemberProfile(req.ID, req.Name, req.Email, req.Role)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	err = h.store.RunTransaction(c.Request.Context(), func(tx store.Txn) error {
		var existing models.MemberProfile
		ok, err := tx.Get(models.MemberKey(member.ID), &existing)
		if err != nil {
			return err
		}
		if ok {
			return response.NewConflict("member id already exists")
		}
		return tx.Set(models.MemberKey(member.ID), member)
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, member)
}

// Get returns a member profile. Members see themselves; admins see anyone.
func (h *MemberHandler) Get(c *gin.Context) {
	memberID := c.Param("id")
	if memberID != middleware.GetMemberID(c) && !middleware.IsAdmin(c) {
		response.Forbidden(c, "cannot view another member's profile")
		return
	}

	var member models.MemberProfile
	ok, err := h.store.Get(c.Request.Context(), models.MemberKey(memberID), &member)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	if !ok {
		response.NotFound(c, "member not found")
		return
	}
	response.Success(c, member)
}

// Me returns the authenticated member's own profile.
func (h *MemberHandler) Me(c *gin.Context) {
	memberID := middleware.GetMemberID(c)

	var member models.MemberProfile
	ok, err := h.store.Get(c.Request.Context(), models.MemberKey(memberID), &member)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	if !ok {
		response.NotFound(c, "member not found")
		return
	}
	response.Success(c, member)
}
