package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/planlift/backend/internal/services"
)

type CompanyHandler struct {
	service   *services.CompanyService
	validator *services.ValidationHelper
}

func NewCompanyHandler(service *services.CompanyService) *CompanyHandler {
	return &CompanyHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

func (h *CompanyHandler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	if err := h.validator.ValidateStruct(dst); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

// CreateCompany creates a company with the caller as its first admin
// @Summary Create a company
// @Tags companies
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{name=string} true "Company name"
// @Success 201 {object} models.Company
// @Failure 400 {object} services.ErrorResponse
// @Router /companies [post]
func (h *CompanyHandler) CreateCompany(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(w, r)
	if !ok {
		return
	}

	var req struct {
		Name string `json:"name" validate:"required,min=1,max=200"`
	}
	if !h.decodeBody(w, r, &req) {
		return
	}

	company, err := h.service.CreateCompany(r.Context(), userID, req.Name)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(company)
}

// ListMembers returns a company's member roster
// @Summary List company members
// @Tags companies
// @Produce json
// @Security BearerAuth
// @Param companyId path string true "Company ID"
// @Success 200 {object} map[string]any
// @Failure 403 {object} services.ErrorResponse
// @Router /companies/{companyId}/members [get]
func (h *CompanyHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(w, r)
	if !ok {
		return
	}
	companyID := chi.URLParam(r, "companyId")

	members, err := h.service.ListMembers(r.Context(), userID, companyID)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"members": members, "count": len(members)})
}

// AddMember adds or re-roles a company member
// @Summary Add a company member
// @Description Add a member with a role; caller must be a company admin
// @Tags companies
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param companyId path string true "Company ID"
// @Param request body object{user_id=string,role=string} true "Member to add"
// @Success 200 {object} map[string]any
// @Failure 403 {object} services.ErrorResponse
// @Router /companies/{companyId}/members [post]
func (h *CompanyHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(w, r)
	if !ok {
		return
	}
	companyID := chi.URLParam(r, "companyId")

	var req struct {
		UserID string `json:"user_id" validate:"required"`
		Role   string `json:"role" validate:"required,oneof=admin member"`
	}
	if !h.decodeBody(w, r, &req) {
		return
	}

	if err := h.service.AddMember(r.Context(), userID, companyID, req.UserID, req.Role); err != nil {
		services.SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true})
}

// RemoveMember removes a company member
// @Summary Remove a company member
// @Description Remove a member; caller must be a company admin; the last admin cannot be removed
// @Tags companies
// @Produce json
// @Security BearerAuth
// @Param companyId path string true "Company ID"
// @Param userId path string true "User ID"
// @Success 200 {object} map[string]any
// @Failure 403 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /companies/{companyId}/members/{userId} [delete]
func (h *CompanyHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(w, r)
	if !ok {
		return
	}
	companyID := chi.URLParam(r, "companyId")
	memberID := chi.URLParam(r, "userId")

	if err := h.service.RemoveMember(r.Context(), userID, companyID, memberID); err != nil {
		services.SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true})
}
