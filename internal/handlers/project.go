package handlers

import (
	"github.com/clubstack/memberhub/internal/middleware"
	"github.com/clubstack/memberhub/internal/models"
	"github.com/clubstack/memberhub/internal/store"
	"github.com/clubstack/memberhub/pkg/response"
	"github.com/gin-gonic/gin"
)

// ProjectHandler provides the thin admin CRUD around project records. Seat
// counts are owned by the allocation engine and never writable here.
type ProjectHandler struct {
	store store.Store
}

func NewProjectHandler(st store.Store) *ProjectHandler {
	return &ProjectHandler{store: st}
}

type CreateProjectRequest struct {
	ID       string `json:"id" binding:"required"`
	Title    string `json:"title" binding:"required"`
	Type     string `json:"type" binding:"required"`
	Semester string `json:"semester" binding:"required"`
	Status   string `json:"status"`
	MaxSeats *int   `json:"max_seats"`
}

type UpdateProjectRequest struct {
	Title    *string `json:"title"`
	Status   *string `json:"status"`
	Progress *int    `json:"progress"`
	MaxSeats *int    `json:"max_seats"`
}

// Create registers a new project. Admin only.
func (h *ProjectHandler) Create(c *gin.Context) {
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.Status == "" {
		req.Status = string(models.ProjectStatusPlanning)
	}

	project, err := models.NewProject(req.ID, req.Title, models.ProjectType(req.Type),
		req.Semester, models.ProjectStatus(req.Status), req.MaxSeats, middleware.GetMemberID(c))
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	err = h.store.RunTransaction(c.Request.Context(), func(tx store.Txn) error {
		var existing models.Project
		ok, err := tx.Get(models.ProjectKey(project.ID), &existing)
		if err != nil {
			return err
		}
		if ok {
			return response.NewConflict("project id already exists")
		}
		return tx.Set(models.ProjectKey(project.ID), project)
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, project)
}

// Update edits admin-owned project fields. Seat counts are not touched.
func (h *ProjectHandler) Update(c *gin.Context) {
	projectID := c.Param("id")

	var req UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	var updated models.Project
	err := h.store.RunTransaction(c.Request.Context(), func(tx store.Txn) error {
		var project models.Project
		ok, err := tx.Get(models.ProjectKey(projectID), &project)
		if err != nil {
			return err
		}
		if !ok {
			return response.NewNotFound("project not found")
		}
		if req.Title != nil {
			project.Title = *req.Title
		}
		if req.Status != nil {
			project.Status = models.ProjectStatus(*req.Status)
		}
		if req.Progress != nil {
			project.Progress = *req.Progress
		}
		if req.MaxSeats != nil {
			project.MaxSeats = req.MaxSeats
		}
		if err := project.Validate(); err != nil {
			return response.NewBadRequest(err.Error())
		}
		updated = project
		return tx.Set(models.ProjectKey(projectID), &project)
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, updated)
}

// Get returns one project.
func (h *ProjectHandler) Get(c *gin.Context) {
	var project models.Project
	ok, err := h.store.Get(c.Request.Context(), models.ProjectKey(c.Param("id")), &project)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	if !ok {
		response.NotFound(c, "project not found")
		return
	}
	response.Success(c, project)
}

// List returns all projects.
func (h *ProjectHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	keys, err := h.store.Keys(ctx, models.ProjectKeyPrefix)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	projects := make([]models.Project, 0, len(keys))
	for _, key := range keys {
		var project models.Project
		ok, err := h.store.Get(ctx, key, &project)
		if err != nil {
			response.ServerError(c, err.Error())
			return
		}
		if ok {
			projects = append(projects, project)
		}
	}
	response.Success(c, projects)
}

// Members lists the occupied seats of a project.
func (h *ProjectHandler) Members(c *gin.Context) {
	ctx := c.Request.Context()
	projectID := c.Param("id")

	keys, err := h.store.Keys(ctx, models.ProjectMemberScope(projectID))
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	members := make([]models.ProjectMember, 0, len(keys))
	for _, key := range keys {
		var pm models.ProjectMember
		ok, err := h.store.Get(ctx, key, &pm)
		if err != nil {
			response.ServerError(c, err.Error())
			return
		}
		if ok {
			members = append(members, pm)
		}
	}
	response.Success(c, members)
}
