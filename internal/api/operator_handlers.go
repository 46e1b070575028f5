package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	apiauth "github.com/babur-hussain/toon-fleet-server/internal/api/auth"
	"github.com/babur-hussain/toon-fleet-server/internal/commandqueue"
	"github.com/babur-hussain/toon-fleet-server/internal/devicemanagement"
	"github.com/babur-hussain/toon-fleet-server/internal/employees"
	"github.com/babur-hussain/toon-fleet-server/internal/logging"
	"github.com/babur-hussain/toon-fleet-server/internal/reports"
	"github.com/babur-hussain/toon-fleet-server/pkg/types"
)

var tracer = otel.Tracer("toon-fleet-server/api")

// RegisterOperatorRoutes mounts the bearer-authenticated, tenant-scoped
// operator surface (employees, reports, device fleet management) under
// /api/v0. bearer and tenantAuthz are applied in that order, matching the
// attestation.Gate pattern of authenticate-then-authorize.
func RegisterOperatorRoutes(r chi.Router, log zerolog.Logger, bearer, tenantAuthz func(http.Handler) http.Handler, emp *employees.Service, rep *reports.Service, dev *devicemanagement.Service, cmd *commandqueue.Service) {
	r.Route("/api/v0", func(r chi.Router) {
		r.Use(bearer, tenantAuthz)

		r.Route("/employees", func(r chi.Router) {
			r.Get("/list", listEmployeesHandler(log, emp))
			r.Post("/enroll", enrollEmployeeHandler(log, emp))
			r.Post("/update", updateEmployeeHandler(log, emp))
			r.Post("/delete", deleteEmployeeHandler(log, emp))
		})

		r.Route("/reports", func(r chi.Router) {
			r.Post("/attendance", requestReportHandler(log, rep, types.ReportAttendance))
			r.Post("/summary", requestReportHandler(log, rep, types.ReportSummary))
			r.Get("/{id}", getReportHandler(log, rep))
			r.Get("/{id}/download", downloadReportHandler(log, rep))
			r.Delete("/{id}", deleteReportHandler(log, rep))
		})

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", listDevicesHandler(log, dev))
			r.Get("/export", exportDevicesHandler(log, dev))
			r.Get("/{id}", getDeviceHandler(log, dev))
			r.Post("/command", issueCommandHandler(log, cmd))
			r.Post("/revoke", revokeDeviceHandler(log, dev))
			r.Post("/bulk-revoke", bulkRevokeDevicesHandler(log, dev))
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, resp ApiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(resp.Byte())
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func tenantFromRequest(r *http.Request) (string, bool) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		return "", false
	}
	return tenantID, apiauth.TenantAllowed(r.Context(), tenantID)
}

func paginationFromRequest(r *http.Request) (offset, limit uint64) {
	if v, err := strconv.ParseUint(r.URL.Query().Get("offset"), 10, 64); err == nil {
		offset = v
	}
	if v, err := strconv.ParseUint(r.URL.Query().Get("limit"), 10, 64); err == nil {
		limit = v
	}
	return offset, limit
}

func listEmployeesHandler(log zerolog.Logger, emp *employees.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "list-employees")
		defer span.End()

		tenantID, allowed := tenantFromRequest(r)
		if !allowed {
			writeJSONError(w, http.StatusForbidden, "tenant not authorized")
			return
		}
		offset, limit := paginationFromRequest(r)

		page, err := emp.List(ctx, employees.ListParams{TenantID: tenantID, Offset: offset, Limit: limit})
		if err != nil {
			logging.WithTenantID(log, tenantID).Error().Err(err).Msg("unable to list employees")
			writeJSONError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, collectionResponse(page))
	}
}

type enrollEmployeeRequest struct {
	TenantID    string `json:"tenant_id"`
	EmployeeID  string `json:"employee_id"`
	FullName    string `json:"full_name"`
	ExternalRef string `json:"external_ref,omitempty"`
}

func enrollEmployeeHandler(log zerolog.Logger, emp *employees.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "enroll-employee")
		defer span.End()

		var req enrollEmployeeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "malformed request body")
			return
		}
		if !apiauth.TenantAllowed(ctx, req.TenantID) {
			writeJSONError(w, http.StatusForbidden, "tenant not authorized")
			return
		}

		created, err := emp.Enroll(ctx, types.Employee{
			EmployeeID:  req.EmployeeID,
			TenantID:    req.TenantID,
			FullName:    req.FullName,
			ExternalRef: req.ExternalRef,
		})
		if err != nil {
			if err == employees.ErrAlreadyExists {
				writeJSONError(w, http.StatusConflict, err.Error())
				return
			}
			log.Error().Err(err).Msg("unable to enroll employee")
			writeJSONError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusCreated, ApiResponse{Data: created})
	}
}

type updateEmployeeRequest struct {
	TenantID    string `json:"tenant_id"`
	EmployeeID  string `json:"employee_id"`
	FullName    string `json:"full_name,omitempty"`
	ExternalRef string `json:"external_ref,omitempty"`
}

func updateEmployeeHandler(log zerolog.Logger, emp *employees.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "update-employee")
		defer span.End()

		var req updateEmployeeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "malformed request body")
			return
		}
		if !apiauth.TenantAllowed(ctx, req.TenantID) {
			writeJSONError(w, http.StatusForbidden, "tenant not authorized")
			return
		}

		updated, err := emp.Update(ctx, req.EmployeeID, req.TenantID, req.FullName, req.ExternalRef)
		if err != nil {
			if err == employees.ErrNotFound {
				writeJSONError(w, http.StatusNotFound, err.Error())
				return
			}
			log.Error().Err(err).Msg("unable to update employee")
			writeJSONError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, ApiResponse{Data: updated})
	}
}

type deleteEmployeeRequest struct {
	TenantID   string `json:"tenant_id"`
	EmployeeID string `json:"employee_id"`
}

func deleteEmployeeHandler(log zerolog.Logger, emp *employees.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "delete-employee")
		defer span.End()

		var req deleteEmployeeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "malformed request body")
			return
		}
		if !apiauth.TenantAllowed(ctx, req.TenantID) {
			writeJSONError(w, http.StatusForbidden, "tenant not authorized")
			return
		}

		if err := emp.Delete(ctx, req.EmployeeID, req.TenantID); err != nil {
			if err == employees.ErrNotFound {
				writeJSONError(w, http.StatusNotFound, err.Error())
				return
			}
			log.Error().Err(err).Msg("unable to delete employee")
			writeJSONError(w, http.StatusInternalServerError, "internal error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type reportRequest struct {
	TenantID    string `json:"tenant_id"`
	ParamsJSON  string `json:"params_json"`
	Format      string `json:"format"`
	RequestedBy string `json:"requested_by"`
}

func requestReportHandler(log zerolog.Logger, rep *reports.Service, kind types.ReportKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "request-report")
		defer span.End()

		var req reportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "malformed request body")
			return
		}
		if !apiauth.TenantAllowed(ctx, req.TenantID) {
			writeJSONError(w, http.StatusForbidden, "tenant not authorized")
			return
		}

		report, err := rep.Request(ctx, reports.Request{
			TenantID:    req.TenantID,
			Kind:        kind,
			ParamsJSON:  req.ParamsJSON,
			Format:      req.Format,
			RequestedBy: req.RequestedBy,
		})
		if err != nil {
			log.Error().Err(err).Msg("unable to request report")
			writeJSONError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusAccepted, ApiResponse{Data: report})
	}
}

func getReportHandler(log zerolog.Logger, rep *reports.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "get-report")
		defer span.End()

		tenantID, allowed := tenantFromRequest(r)
		if !allowed {
			writeJSONError(w, http.StatusForbidden, "tenant not authorized")
			return
		}

		report, err := rep.Get(ctx, chi.URLParam(r, "id"), tenantID)
		if err != nil {
			if err == reports.ErrNotFound {
				writeJSONError(w, http.StatusNotFound, err.Error())
				return
			}
			log.Error().Err(err).Msg("unable to get report")
			writeJSONError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, ApiResponse{Data: report})
	}
}

func downloadReportHandler(log zerolog.Logger, rep *reports.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "download-report")
		defer span.End()

		tenantID, allowed := tenantFromRequest(r)
		if !allowed {
			writeJSONError(w, http.StatusForbidden, "tenant not authorized")
			return
		}

		storageRef, err := rep.Download(ctx, chi.URLParam(r, "id"), tenantID)
		if err != nil {
			switch err {
			case reports.ErrNotFound:
				writeJSONError(w, http.StatusNotFound, err.Error())
			case reports.ErrNotReady:
				writeJSONError(w, http.StatusConflict, err.Error())
			default:
				log.Error().Err(err).Msg("unable to resolve report download")
				writeJSONError(w, http.StatusInternalServerError, "internal error")
			}
			return
		}
		writeJSON(w, http.StatusOK, ApiResponse{Data: map[string]string{"storage_ref": storageRef}})
	}
}

func deleteReportHandler(log zerolog.Logger, rep *reports.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "delete-report")
		defer span.End()

		tenantID, allowed := tenantFromRequest(r)
		if !allowed {
			writeJSONError(w, http.StatusForbidden, "tenant not authorized")
			return
		}

		if err := rep.Delete(ctx, chi.URLParam(r, "id"), tenantID); err != nil {
			if err == reports.ErrNotFound {
				writeJSONError(w, http.StatusNotFound, err.Error())
				return
			}
			log.Error().Err(err).Msg("unable to delete report")
			writeJSONError(w, http.StatusInternalServerError, "internal error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listDevicesHandler(log zerolog.Logger, dev *devicemanagement.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "list-devices")
		defer span.End()

		tenantID, allowed := tenantFromRequest(r)
		if !allowed {
			writeJSONError(w, http.StatusForbidden, "tenant not authorized")
			return
		}
		offset, limit := paginationFromRequest(r)

		page, err := dev.List(ctx, devicemanagement.ListParams{
			TenantID: tenantID,
			Offset:   offset,
			Limit:    limit,
		})
		if err != nil {
			logging.WithTenantID(log, tenantID).Error().Err(err).Msg("unable to list devices")
			writeJSONError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, collectionResponse(page))
	}
}

func exportDevicesHandler(log zerolog.Logger, dev *devicemanagement.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "export-devices")
		defer span.End()

		tenantID, allowed := tenantFromRequest(r)
		if !allowed {
			writeJSONError(w, http.StatusForbidden, "tenant not authorized")
			return
		}

		page, err := dev.List(ctx, devicemanagement.ListParams{TenantID: tenantID, Limit: 100000})
		if err != nil {
			log.Error().Err(err).Msg("unable to list devices for export")
			writeJSONError(w, http.StatusInternalServerError, "internal error")
			return
		}

		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename=\"devices.csv\"")
		w.WriteHeader(http.StatusOK)
		if err := writeCsvWithDevices(w, page.Data); err != nil {
			log.Error().Err(err).Msg("unable to write device export")
		}
	}
}

func getDeviceHandler(log zerolog.Logger, dev *devicemanagement.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "get-device")
		defer span.End()

		tenantID, allowed := tenantFromRequest(r)
		if !allowed {
			writeJSONError(w, http.StatusForbidden, "tenant not authorized")
			return
		}

		device, err := dev.Get(ctx, chi.URLParam(r, "id"), tenantID)
		if err != nil {
			if err == devicemanagement.ErrDeviceNotFound {
				writeJSONError(w, http.StatusNotFound, err.Error())
				return
			}
			log.Error().Err(err).Msg("unable to get device")
			writeJSONError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, ApiResponse{Data: device})
	}
}

type issueCommandRequest struct {
	TenantID  string    `json:"tenant_id"`
	DeviceID  string    `json:"device_id"`
	Name      string    `json:"name"`
	Payload   string    `json:"payload"`
	Priority  int       `json:"priority"`
	ExpiresAt time.Time `json:"expires_at"`
}

func issueCommandHandler(log zerolog.Logger, cmd *commandqueue.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "issue-command")
		defer span.End()

		var req issueCommandRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "malformed request body")
			return
		}
		if !apiauth.TenantAllowed(ctx, req.TenantID) {
			writeJSONError(w, http.StatusForbidden, "tenant not authorized")
			return
		}

		expiresAt := req.ExpiresAt
		if expiresAt.IsZero() {
			expiresAt = time.Now().UTC().Add(commandqueue.DefaultExpiry)
		}

		issued, err := cmd.Issue(ctx, req.TenantID, req.DeviceID, req.Name, req.Payload, req.Priority, expiresAt)
		if err != nil {
			log.Error().Err(err).Msg("unable to issue command")
			writeJSONError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusCreated, ApiResponse{Data: issued})
	}
}

type revokeDeviceRequest struct {
	TenantID string `json:"tenant_id"`
	DeviceID string `json:"device_id"`
}

func revokeDeviceHandler(log zerolog.Logger, dev *devicemanagement.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "revoke-device")
		defer span.End()

		var req revokeDeviceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "malformed request body")
			return
		}
		if !apiauth.TenantAllowed(ctx, req.TenantID) {
			writeJSONError(w, http.StatusForbidden, "tenant not authorized")
			return
		}

		if err := dev.Revoke(ctx, req.DeviceID); err != nil {
			if err == devicemanagement.ErrDeviceNotFound {
				writeJSONError(w, http.StatusNotFound, err.Error())
				return
			}
			log.Error().Err(err).Msg("unable to revoke device")
			writeJSONError(w, http.StatusInternalServerError, "internal error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type bulkRevokeRequest struct {
	TenantID  string   `json:"tenant_id"`
	DeviceIDs []string `json:"device_ids"`
}

func bulkRevokeDevicesHandler(log zerolog.Logger, dev *devicemanagement.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "bulk-revoke-devices")
		defer span.End()

		var req bulkRevokeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "malformed request body")
			return
		}
		if !apiauth.TenantAllowed(ctx, req.TenantID) {
			writeJSONError(w, http.StatusForbidden, "tenant not authorized")
			return
		}

		errsByDevice := dev.BulkRevoke(ctx, req.DeviceIDs)
		results := make(map[string]string, len(req.DeviceIDs))
		for _, id := range req.DeviceIDs {
			if err := errsByDevice[id]; err != nil {
				results[id] = err.Error()
			} else {
				results[id] = "revoked"
			}
		}
		writeJSON(w, http.StatusOK, ApiResponse{Data: results})
	}
}
