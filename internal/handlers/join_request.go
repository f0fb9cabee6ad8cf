package handlers

import (
	"errors"

	"github.com/clubstack/memberhub/internal/middleware"
	"github.com/clubstack/memberhub/internal/models"
	"github.com/clubstack/memberhub/internal/services"
	"github.com/clubstack/memberhub/internal/store"
	"github.com/clubstack/memberhub/pkg/response"
	"github.com/gin-gonic/gin"
)

// JoinRequestHandler exposes the allocation engine over HTTP: members file
// and cancel requests, admins decide them. It owns no business rules beyond
// mapping the engine's error taxonomy to status codes.
type JoinRequestHandler struct {
	alloc *services.AllocationService
	store store.Store
}

func NewJoinRequestHandler(alloc *services.AllocationService, st store.Store) *JoinRequestHandler {
	return &JoinRequestHandler{alloc: alloc, store: st}
}

type JoinProjectRequest struct {
	Semester string `json:"semester" binding:"required"`
}

type DecideRequest struct{} // approve/reject carry no body today

type ManualAddRequest struct {
	MemberID string `json:"member_id" binding:"required"`
	Role     string `json:"role"`
}

// Join files a join request for the authenticated member.
func (h *JoinRequestHandler) Join(c *gin.Context) {
	projectID := c.Param("id")
	memberID := middleware.GetMemberID(c)

	var req JoinProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	requestID, err := h.alloc.CreateJoinRequest(c.Request.Context(), projectID, memberID, req.Semester)
	if err != nil {
		respondAllocationError(c, err)
		return
	}
	response.Created(c, gin.H{"request_id": requestID})
}

// Cancel withdraws a request. Members may cancel their own; admins any.
func (h *JoinRequestHandler) Cancel(c *gin.Context) {
	requestID := c.Param("id")

	var req models.JoinRequest
	ok, err := h.store.Get(c.Request.Context(), models.JoinRequestKey(requestID), &req)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	if !ok {
		response.NotFound(c, "join request not found")
		return
	}
	if req.MemberID != middleware.GetMemberID(c) && !middleware.IsAdmin(c) {
		response.Forbidden(c, "cannot cancel another member's request")
		return
	}

	if err := h.alloc.CancelJoinRequest(c.Request.Context(), requestID); err != nil {
		respondAllocationError(c, err)
		return
	}
	response.Success(c, gin.H{"request_id": requestID})
}

// Approve grants the seat. Admin only (enforced by the route group).
func (h *JoinRequestHandler) Approve(c *gin.Context) {
	requestID := c.Param("id")
	approverID := middleware.GetMemberID(c)

	if err := h.alloc.ApproveRequest(c.Request.Context(), requestID, approverID); err != nil {
		respondAllocationError(c, err)
		return
	}
	response.Success(c, gin.H{"request_id": requestID, "status": models.RequestStatusAccepted})
}

// Reject declines a pending request. Admin only.
func (h *JoinRequestHandler) Reject(c *gin.Context) {
	requestID := c.Param("id")
	rejecterID := middleware.GetMemberID(c)

	if err := h.alloc.RejectRequest(c.Request.Context(), requestID, rejecterID); err != nil {
		respondAllocationError(c, err)
		return
	}
	response.Success(c, gin.H{"request_id": requestID, "status": models.RequestStatusRejected})
}

// ManualAdd seats a member without a join request. Admin only.
func (h *JoinRequestHandler) ManualAdd(c *gin.Context) {
	projectID := c.Param("id")

	var req ManualAddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.Role == "" {
		req.Role = models.MemberRoleMember
	}

	if err := h.alloc.ManualAddMember(c.Request.Context(), projectID, req.MemberID, req.Role); err != nil {
		respondAllocationError(c, err)
		return
	}
	response.Created(c, gin.H{"project_id": projectID, "member_id": req.MemberID, "role": req.Role})
}

// ListByProject returns all requests for a project. Admin only.
func (h *JoinRequestHandler) ListByProject(c *gin.Context) {
	projectID := c.Param("id")
	ctx := c.Request.Context()

	keys, err := h.store.Keys(ctx, models.JoinRequestKeyPrefix)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	requests := make([]models.JoinRequest, 0)
	for _, key := range keys {
		var req models.JoinRequest
		ok, err := h.store.Get(ctx, key, &req)
		if err != nil {
			response.ServerError(c, err.Error())
			return
		}
		if ok && req.ProjectID == projectID {
			requests = append(requests, req)
		}
	}
	response.Success(c, requests)
}

// respondAllocationError maps the engine's error taxonomy onto HTTP.
func respondAllocationError(c *gin.Context, err error) {
	var notFound *services.NotFoundError
	var invalidState *services.InvalidStateError
	var flagship *services.FlagshipConflictError

	switch {
	case errors.As(err, &notFound):
		response.NotFound(c, notFound.Error())
	case errors.As(err, &invalidState):
		response.BadRequest(c, invalidState.Error())
	case errors.As(err, &flagship):
		response.Conflict(c, flagship.Error())
	case errors.Is(err, services.ErrDuplicateRequest),
		errors.Is(err, services.ErrCapacityExceeded),
		errors.Is(err, services.ErrAlreadyMember):
		response.Conflict(c, err.Error())
	case errors.Is(err, services.ErrNotAcceptingMembers):
		response.BadRequest(c, err.Error())
	case errors.Is(err, store.ErrConflictExhausted):
		response.Unavailable(c, "the project is busy, please try again")
	default:
		response.ServerError(c, err.Error())
	}
}
