// Copyright 2026 The Shiplog Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/shiplog/shiplog/internal/observability/logger"
	"github.com/shiplog/shiplog/internal/tenant"
)

// CreateTenantRequest represents tenant creation data
type CreateTenantRequest struct {
	Slug string `json:"slug" binding:"required" example:"my-project"`
	Name string `json:"name" binding:"required" example:"My Project"`
}

// CreateTenant handles tenant creation
// @Summary Create Tenant
// @Description Create a new tenant project with an immutable subdomain slug
// @Tags Tenant
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateTenantRequest true "Tenant Data"
// @Success 201 {object} tenant.Tenant
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /tenants [post]
func (h *Handler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req CreateTenantRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	t, err := h.tenantService.CreateTenant(r.Context(), req.Slug, req.Name, GetUserID(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, tenant.ErrSlugAlreadyTaken):
			respondError(w, http.StatusConflict, "slug already taken")
		default:
			slog.ErrorContext(r.Context(), "failed to create tenant",
				logger.Error(err), logger.Slug(req.Slug))
			respondError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	respondJSON(w, http.StatusCreated, t)
}

// GetTenant retrieves a tenant by id
// @Summary Get Tenant
// @Tags Tenant
// @Produce json
// @Security BearerAuth
// @Param tenantID path string true "Tenant ID"
// @Success 200 {object} tenant.Tenant
// @Failure 404 {object} map[string]string
// @Router /tenants/{tenantID} [get]
func (h *Handler) GetTenant(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenantService.GetTenant(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			respondError(w, http.StatusNotFound, "tenant not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load tenant")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"tenant":          t,
		"features_usable": tenant.CanAccessRestrictedFeatures(t),
	})
}

// ListTenants lists tenants
// @Summary List Tenants
// @Tags Tenant
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {array} tenant.Tenant
// @Router /tenants [get]
func (h *Handler) ListTenants(w http.ResponseWriter, r *http.Request) {
	limit, offset := 50, 0
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		offset = v
	}

	tenants, err := h.tenantService.ListTenants(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list tenants")
		return
	}
	respondJSON(w, http.StatusOK, tenants)
}

// TenantPage serves a tenant's public page payload. The edge router
// rewrites subdomain and custom-domain requests here; the identifier is a
// slug for subdomains and a full hostname for custom domains.
func (h *Handler) TenantPage(w http.ResponseWriter, r *http.Request) {
	ident := chi.URLParam(r, "ident")

	var (
		t   *tenant.Tenant
		err error
	)
	if strings.Contains(ident, ".") {
		t, err = h.tenantService.GetTenantByDomain(r.Context(), ident)
	} else {
		t, err = h.tenantService.GetTenantBySlug(r.Context(), ident)
	}
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			respondError(w, http.StatusNotFound, "page not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load page")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"slug": t.Slug,
		"name": t.Name,
	})
}
