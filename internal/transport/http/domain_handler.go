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

	"github.com/go-chi/chi/v5"

	"github.com/shiplog/shiplog/internal/controlplane"
	"github.com/shiplog/shiplog/internal/domain"
	"github.com/shiplog/shiplog/internal/observability/logger"
	"github.com/shiplog/shiplog/internal/tenant"
)

// SetDomainRequest carries the custom domain to attach.
type SetDomainRequest struct {
	Domain string `json:"domain" binding:"required" example:"updates.example.com"`
}

// SetCustomDomain attaches (or replaces) the tenant's custom domain
// @Summary Set Custom Domain
// @Description Attach a custom domain to the tenant; the domain starts unverified
// @Tags Domain
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param tenantID path string true "Tenant ID"
// @Param request body SetDomainRequest true "Domain"
// @Success 200 {object} tenant.Tenant
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /tenants/{tenantID}/domain [put]
func (h *Handler) SetCustomDomain(w http.ResponseWriter, r *http.Request) {
	var req SetDomainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tenantID := chi.URLParam(r, "tenantID")
	t, err := h.domainManager.SetDomain(r.Context(), tenantID, req.Domain)
	if err != nil {
		switch {
		case errors.Is(err, tenant.ErrTenantNotFound):
			respondError(w, http.StatusNotFound, "tenant not found")
		case errors.Is(err, domain.ErrInvalidDomain), errors.Is(err, domain.ErrBaseDomainClash):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, tenant.ErrDomainAlreadyUsed), errors.Is(err, controlplane.ErrDomainTaken):
			respondError(w, http.StatusConflict, "domain is already in use")
		default:
			// Registration failures surface a generic retry message, not the
			// raw provider error.
			slog.ErrorContext(r.Context(), "failed to attach domain",
				logger.Error(err), logger.TenantID(tenantID), logger.Domain(req.Domain))
			respondError(w, http.StatusBadGateway, "could not register domain, please try again")
		}
		return
	}

	respondJSON(w, http.StatusOK, t)
}

// RemoveCustomDomain detaches the tenant's custom domain
// @Summary Remove Custom Domain
// @Description Detach the custom domain; removing when none is attached is a no-op
// @Tags Domain
// @Produce json
// @Security BearerAuth
// @Param tenantID path string true "Tenant ID"
// @Success 200 {object} tenant.Tenant
// @Failure 404 {object} map[string]string
// @Router /tenants/{tenantID}/domain [delete]
func (h *Handler) RemoveCustomDomain(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	t, err := h.domainManager.RemoveDomain(r.Context(), tenantID)
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			respondError(w, http.StatusNotFound, "tenant not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to remove domain",
			logger.Error(err), logger.TenantID(tenantID))
		respondError(w, http.StatusInternalServerError, "could not remove domain, please try again")
		return
	}

	respondJSON(w, http.StatusOK, t)
}

// VerifyCustomDomain runs a verification attempt now
// @Summary Verify Custom Domain
// @Description Probe DNS/TLS and the hosting control plane; both must agree
// @Tags Domain
// @Produce json
// @Security BearerAuth
// @Param tenantID path string true "Tenant ID"
// @Success 200 {object} domain.VerifyResult
// @Failure 404 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /tenants/{tenantID}/domain/verify [post]
func (h *Handler) VerifyCustomDomain(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	result, err := h.domainManager.Verify(r.Context(), tenantID)
	if err != nil {
		switch {
		case errors.Is(err, tenant.ErrTenantNotFound):
			respondError(w, http.StatusNotFound, "tenant not found")
		case errors.Is(err, domain.ErrNoCustomDomain):
			respondError(w, http.StatusUnprocessableEntity, "no custom domain attached")
		default:
			slog.ErrorContext(r.Context(), "domain verification errored",
				logger.Error(err), logger.TenantID(tenantID))
			respondError(w, http.StatusInternalServerError, "verification pending, please try again")
		}
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// CustomDomainStatus reports the current verification snapshot
// @Summary Custom Domain Status
// @Description Current verification snapshot plus DNS setup instructions while unverified
// @Tags Domain
// @Produce json
// @Security BearerAuth
// @Param tenantID path string true "Tenant ID"
// @Success 200 {object} domain.DomainStatus
// @Failure 404 {object} map[string]string
// @Router /tenants/{tenantID}/domain/status [get]
func (h *Handler) CustomDomainStatus(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	status, err := h.domainManager.Status(r.Context(), tenantID)
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			respondError(w, http.StatusNotFound, "tenant not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to load domain status",
			logger.Error(err), logger.TenantID(tenantID))
		respondError(w, http.StatusInternalServerError, "failed to load domain status")
		return
	}

	respondJSON(w, http.StatusOK, status)
}
