package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"roadassist/internal/domain"
	"roadassist/internal/export"
	"roadassist/internal/models"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	defaultRecentActivity = 50
	maxRecentActivity     = 500
)

// principal resolves the caller forwarded by the auth gateway.
func (s *HTTPServer) principal(w http.ResponseWriter, r *http.Request) (models.Principal, bool) {
	header := s.cfg.HeaderUserID
	if header == "" {
		header = "X-User-ID"
	}
	raw := strings.TrimSpace(r.Header.Get(header))
	id, err := strconv.ParseInt(raw, 10, 64)
	if raw == "" || err != nil || id <= 0 {
		writeError(w, http.StatusUnauthorized, kindUnauthorized, "missing or invalid user id", "")
		return models.Principal{}, false
	}

	p, err := s.svc.Users.GetPrincipal(r.Context(), id)
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			writeError(w, http.StatusUnauthorized, kindUnauthorized, "unknown user", "")
			return models.Principal{}, false
		}
		s.writeDomainError(w, r, err)
		return models.Principal{}, false
	}
	return p, true
}

func (s *HTTPServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.principal(w, r)
	if !ok {
		return
	}
	var body createRequestBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	req, err := s.svc.Requests.Create(r.Context(), caller, body.toModel())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, req)
}

func (s *HTTPServer) handleListAvailable(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.principal(w, r)
	if !ok {
		return
	}
	page, size, err := pageParams(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	maxKm, err := floatParam(r, "max_distance_km")
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	q := r.URL.Query()
	result, err := s.svc.Dispatch.ListAvailable(r.Context(), caller, models.AvailableFilter{
		ServiceType:   q.Get("service_type"),
		VehicleType:   q.Get("vehicle_type"),
		MaxDistanceKm: maxKm,
	}, page, size)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

func (s *HTTPServer) handleListVisible(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.principal(w, r)
	if !ok {
		return
	}
	page, size, err := pageParams(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	result, err := s.svc.Dispatch.ListVisible(r.Context(), caller, r.URL.Query().Get("status"), page, size)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

func (s *HTTPServer) handleListMine(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.principal(w, r)
	if !ok {
		return
	}
	page, size, err := pageParams(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	reqs, pagination, err := s.svc.Requests.ListMine(r.Context(), caller, r.URL.Query().Get("status"), page, size)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"requests": reqs, "pagination": pagination})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.principal(w, r)
	if !ok {
		return
	}
	reqs, err := s.svc.Dispatch.ListForExport(r.Context(), caller, r.URL.Query().Get("status"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	now := time.Now()
	var buf bytes.Buffer
	if err := export.WriteRequests(&buf, reqs, now); err != nil {
		s.writeDomainError(w, r, domain.Dependency("export failed", err))
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="requests_%s.xlsx"`, now.UTC().Format("2006-01-02")))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *HTTPServer) handleGetDetails(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.principal(w, r)
	if !ok {
		return
	}
	req, err := s.svc.Requests.GetDetails(r.Context(), r.PathValue("ref"), caller)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, req)
}

func (s *HTTPServer) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.principal(w, r)
	if !ok {
		return
	}
	logs, err := s.svc.Requests.GetHistory(r.Context(), r.PathValue("ref"), caller)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"activity": logs})
}

func (s *HTTPServer) handleAccept(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.principal(w, r)
	if !ok {
		return
	}
	req, err := s.svc.Requests.Accept(r.Context(), r.PathValue("ref"), caller)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, req)
}

func (s *HTTPServer) handleReject(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.principal(w, r)
	if !ok {
		return
	}
	var body reasonBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	req, err := s.svc.Requests.Reject(r.Context(), r.PathValue("ref"), caller, body.Reason.Value)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, req)
}

func (s *HTTPServer) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.principal(w, r)
	if !ok {
		return
	}
	var body statusBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if strings.TrimSpace(body.Status) == "" {
		s.writeDomainError(w, r, domain.Validation("status is required"))
		return
	}

	req, err := s.svc.Requests.UpdateStatus(r.Context(), r.PathValue("ref"), caller, body.Status, models.StatusPayload{
		Notes: body.Notes.Ptr(),
		Cost:  body.Cost.Ptr(),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, req)
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.principal(w, r)
	if !ok {
		return
	}
	var body reasonBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	req, err := s.svc.Requests.Cancel(r.Context(), r.PathValue("ref"), caller, body.Reason.Value)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, req)
}

func (s *HTTPServer) handleUpdateLocation(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.principal(w, r)
	if !ok {
		return
	}
	var body locationBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if !body.Latitude.Set || !body.Longitude.Set {
		s.writeDomainError(w, r, domain.Validation("latitude and longitude are required"))
		return
	}

	user, err := s.svc.Users.UpdateMechanicLocation(r.Context(), caller, body.Latitude.Value, body.Longitude.Value, body.Address)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, user)
}

// handleRecentActivity tails the live activity feed for admins.
func (s *HTTPServer) handleRecentActivity(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.principal(w, r)
	if !ok {
		return
	}
	if !caller.IsAdmin() {
		s.writeDomainError(w, r, domain.Forbidden("only admins can read the activity feed"))
		return
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if limit == 0 {
		limit = defaultRecentActivity
	}
	if limit > maxRecentActivity {
		limit = maxRecentActivity
	}

	entries := []*models.ActivityLog{}
	if s.svc.Activity != nil {
		entries, err = s.svc.Activity.Recent(r.Context(), int64(limit))
		if err != nil {
			s.writeDomainError(w, r, domain.Dependency("activity feed unavailable", err))
			return
		}
	}
	writeData(w, http.StatusOK, map[string]any{"activity": entries})
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.svc.Health != nil {
		if err := s.svc.Health.Healthy(r.Context()); err != nil {
			s.writeDomainError(w, r, domain.Dependency("database unavailable", err))
			return
		}
	}
	writeData(w, http.StatusOK, map[string]string{"status": "ready"})
}
