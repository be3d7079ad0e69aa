package security

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/festeja/festeja/internal/platform/httpx"
)

// Handler exposes the security subsystem as a JSON REST surface.
type Handler struct {
	logger      *slog.Logger
	permissions *PermissionService
	roles       *RoleService
	grants      *RolePermissionService
	assignments *UserRoleService
	access      *AccessService
	guard       Middleware
	validator   *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, permissions *PermissionService, roles *RoleService, grants *RolePermissionService, assignments *UserRoleService, access *AccessService, guard Middleware) *Handler {
	return &Handler{
		logger:      logger,
		permissions: permissions,
		roles:       roles,
		grants:      grants,
		assignments: assignments,
		access:      access,
		guard:       guard,
		validator:   validator.New(),
	}
}

// MountRoutes registers the security routes. Administration requires the
// seguridad permission at ADMINISTRADOR level; the check endpoint only needs
// an authenticated caller.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/verificar", h.check)

	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require("seguridad", LevelAdmin))

		r.Route("/permisos", func(r chi.Router) {
			r.Get("/", h.listPermissions)
			r.Post("/", h.createPermission)
			r.Get("/{id}", h.getPermission)
			r.Put("/{id}", h.updatePermission)
			r.Delete("/{id}", h.deletePermission)
		})
		r.Route("/roles", func(r chi.Router) {
			r.Get("/", h.listRoles)
			r.Post("/", h.createRole)
			r.Get("/{id}", h.getRole)
			r.Put("/{id}", h.updateRole)
			r.Delete("/{id}", h.deleteRole)
		})
		r.Route("/roles-permisos", func(r chi.Router) {
			r.Post("/", h.assignPermission)
			r.Delete("/{id}", h.unassignPermission)
		})
		r.Route("/usuarios-roles", func(r chi.Router) {
			r.Post("/", h.assignRole)
			r.Delete("/{id}", h.unassignRole)
			r.Get("/usuario/{id}", h.listActiveRoles)
		})
	})
}

type createPermissionRequest struct {
	Name        string `json:"nombre" validate:"required,min=2"`
	Module      string `json:"modulo" validate:"required"`
	Description string `json:"descripcion"`
}

type updatePermissionRequest struct {
	Name        *string `json:"nombre" validate:"omitempty,min=2"`
	Module      *string `json:"modulo" validate:"omitempty,min=1"`
	Description *string `json:"descripcion"`
}

type createRoleRequest struct {
	Name        string `json:"nombre" validate:"required,min=2"`
	Description string `json:"descripcion"`
	Active      *bool  `json:"activo"`
}

type updateRoleRequest struct {
	Name        *string `json:"nombre" validate:"omitempty,min=2"`
	Description *string `json:"descripcion"`
	Active      *bool   `json:"activo"`
}

type assignPermissionRequest struct {
	RoleID       string `json:"id_rol" validate:"required"`
	PermissionID string `json:"id_permiso" validate:"required"`
	Level        string `json:"nivel" validate:"required,oneof=LECTURA ESCRITURA ADMINISTRADOR"`
}

type assignRoleRequest struct {
	UserID string `json:"id_usuario" validate:"required"`
	RoleID string `json:"id_rol" validate:"required"`
	Active *bool  `json:"activo"`
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		h.invalid(w, err)
		return false
	}
	return true
}

func (h *Handler) invalid(w http.ResponseWriter, err error) {
	if verrs, ok := err.(validator.ValidationErrors); ok {
		details := make([]string, 0, len(verrs))
		for _, fieldErr := range verrs {
			details = append(details, fieldErr.Field()+" "+fieldErr.Tag())
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", strings.Join(details, ", "))
		return
	}
	httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.permissions.List(r.Context(), r.URL.Query().Get("modulo"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var req createPermissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	perm, err := h.permissions.Create(r.Context(), PermissionInput{
		Name:        req.Name,
		Module:      req.Module,
		Description: req.Description,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, perm)
}

func (h *Handler) getPermission(w http.ResponseWriter, r *http.Request) {
	perm, err := h.permissions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, perm)
}

func (h *Handler) updatePermission(w http.ResponseWriter, r *http.Request) {
	var req updatePermissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	perm, err := h.permissions.Update(r.Context(), chi.URLParam(r, "id"), PermissionPatch{
		Name:        req.Name,
		Module:      req.Module,
		Description: req.Description,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, perm)
}

func (h *Handler) deletePermission(w http.ResponseWriter, r *http.Request) {
	if err := h.permissions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"mensaje": "permiso eliminado"})
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	expand := r.URL.Query().Get("expandir") == "true"
	roles, err := h.roles.List(r.Context(), expand)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, roles)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.roles.Create(r.Context(), RoleInput{
		Name:        req.Name,
		Description: req.Description,
		Active:      req.Active,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	expand := r.URL.Query().Get("expandir") == "true"
	role, err := h.roles.Get(r.Context(), chi.URLParam(r, "id"), expand)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	var req updateRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.roles.Update(r.Context(), chi.URLParam(r, "id"), RolePatch{
		Name:        req.Name,
		Description: req.Description,
		Active:      req.Active,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	if err := h.roles.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"mensaje": "rol eliminado"})
}

func (h *Handler) assignPermission(w http.ResponseWriter, r *http.Request) {
	var req assignPermissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	grant, err := h.grants.Assign(r.Context(), req.RoleID, req.PermissionID, Level(req.Level))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grant)
}

func (h *Handler) unassignPermission(w http.ResponseWriter, r *http.Request) {
	if err := h.grants.Unassign(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"mensaje": "asignación eliminada"})
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	var req assignRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	assignment, err := h.assignments.Assign(r.Context(), req.UserID, req.RoleID, req.Active)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, assignment)
}

func (h *Handler) unassignRole(w http.ResponseWriter, r *http.Request) {
	if err := h.assignments.Unassign(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"mensaje": "asignación eliminada"})
}

func (h *Handler) listActiveRoles(w http.ResponseWriter, r *http.Request) {
	assignments, err := h.assignments.ListActive(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, assignments)
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("usuario")
	permission := r.URL.Query().Get("permiso")
	if userID == "" || permission == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "usuario and permiso are required")
		return
	}
	level := Level(r.URL.Query().Get("nivel"))
	if level != "" && !level.Valid() {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "nivel must be LECTURA, ESCRITURA or ADMINISTRADOR")
		return
	}
	allowed, err := h.access.CheckPermission(r.Context(), userID, permission, level)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"autorizado": allowed})
}
