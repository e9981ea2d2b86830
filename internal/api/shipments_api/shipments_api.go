package shipments_api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/ParcelScope/internal/models"
	"github.com/BearBump/ParcelScope/internal/services/shipments"
	"github.com/go-chi/chi/v5"
)

type ShipmentsAPI struct {
	svc *shipments.Service
}

func New(svc *shipments.Service) *ShipmentsAPI {
	return &ShipmentsAPI{svc: svc}
}

func (a *ShipmentsAPI) Routes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Route("/shipments", func(r chi.Router) {
			r.Post("/", a.createShipments)
			r.Get("/", a.getShipmentsByIDs)
			r.Get("/active", a.listActive)
			r.Get("/archived", a.listArchived)
			r.Route("/{shipmentID}", func(r chi.Router) {
				r.Get("/events", a.listEvents)
				r.Post("/refresh", a.refresh)
				r.Post("/archive", a.archive)
				r.Post("/unarchive", a.unarchive)
				r.Post("/mute", a.mute)
				r.Post("/unmute", a.unmute)
				r.Post("/rename", a.rename)
				r.Delete("/", a.delete)
			})
		})
		r.Get("/carriers/detect", a.detectCarriers)
	})
}

type shipmentDTO struct {
	ID          uint64 `json:"id"`
	CarrierCode string `json:"carrierCode"`
	TrackNumber string `json:"trackNumber"`
	Title       string `json:"title,omitempty"`

	Status    string     `json:"status"`
	StatusRaw string     `json:"statusRaw,omitempty"`
	StatusAt  *time.Time `json:"statusAt,omitempty"`

	SubCarrierName  *string `json:"subCarrierName,omitempty"`
	SubCarrierTrack *string `json:"subCarrierTrack,omitempty"`

	EstimatedDelivery *time.Time `json:"estimatedDelivery,omitempty"`

	Archived bool `json:"archived"`
	Muted    bool `json:"muted"`

	LastCheckedAt  *time.Time `json:"lastCheckedAt,omitempty"`
	NextCheckAt    time.Time  `json:"nextCheckAt"`
	CheckFailCount int32      `json:"checkFailCount"`
	LastError      *string    `json:"lastError,omitempty"`
	// "auth_required" — сигнал UI попросить пользователя обновить учётку.
	LastErrorKind *string `json:"lastErrorKind,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type eventDTO struct {
	ID          uint64    `json:"id"`
	ShipmentID  uint64    `json:"shipmentId"`
	Status      string    `json:"status"`
	Description string    `json:"description"`
	EventTime   time.Time `json:"eventTime"`
	Location    string    `json:"location,omitempty"`
	Latitude    *float64  `json:"latitude,omitempty"`
	Longitude   *float64  `json:"longitude,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type createRequest struct {
	Items []struct {
		CarrierCode string `json:"carrierCode"`
		TrackNumber string `json:"trackNumber"`
		Title       string `json:"title"`
	} `json:"items"`
}

func (a *ShipmentsAPI) createShipments(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	in := make([]models.ShipmentCreateInput, 0, len(req.Items))
	for _, it := range req.Items {
		in = append(in, models.ShipmentCreateInput{
			CarrierCode: it.CarrierCode,
			TrackNumber: it.TrackNumber,
			Title:       it.Title,
		})
	}
	shs, err := a.svc.CreateShipments(r.Context(), in)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shipments": toDTOs(shs)})
}

func (a *ShipmentsAPI) getShipmentsByIDs(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("ids")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "ids query param is required")
		return
	}
	var ids []uint64
	for _, s := range strings.Split(raw, ",") {
		id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid id: "+s)
			return
		}
		ids = append(ids, id)
	}
	shs, err := a.svc.GetShipmentsByIDs(r.Context(), ids)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shipments": toDTOs(shs)})
}

func (a *ShipmentsAPI) listActive(w http.ResponseWriter, r *http.Request) {
	a.list(w, r, false)
}

func (a *ShipmentsAPI) listArchived(w http.ResponseWriter, r *http.Request) {
	a.list(w, r, true)
}

func (a *ShipmentsAPI) list(w http.ResponseWriter, r *http.Request, archived bool) {
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)
	shs, err := a.svc.ListShipments(r.Context(), archived, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shipments": toDTOs(shs)})
}

func (a *ShipmentsAPI) listEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)
	evs, err := a.svc.ListShipmentEvents(r.Context(), id, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]eventDTO, 0, len(evs))
	for _, e := range evs {
		out = append(out, eventDTO{
			ID:          e.ID,
			ShipmentID:  e.ShipmentID,
			Status:      e.Status,
			Description: e.Description,
			EventTime:   e.EventTime,
			Location:    e.Location,
			Latitude:    e.Latitude,
			Longitude:   e.Longitude,
			CreatedAt:   e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

func (a *ShipmentsAPI) refresh(w http.ResponseWriter, r *http.Request) {
	a.simple(w, r, a.svc.RefreshShipment)
}

func (a *ShipmentsAPI) archive(w http.ResponseWriter, r *http.Request) {
	a.setArchived(w, r, true)
}

func (a *ShipmentsAPI) unarchive(w http.ResponseWriter, r *http.Request) {
	a.setArchived(w, r, false)
}

func (a *ShipmentsAPI) setArchived(w http.ResponseWriter, r *http.Request, v bool) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.svc.SetArchived(r.Context(), id, v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *ShipmentsAPI) mute(w http.ResponseWriter, r *http.Request) {
	a.setMuted(w, r, true)
}

func (a *ShipmentsAPI) unmute(w http.ResponseWriter, r *http.Request) {
	a.setMuted(w, r, false)
}

func (a *ShipmentsAPI) setMuted(w http.ResponseWriter, r *http.Request, v bool) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.svc.SetMuted(r.Context(), id, v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *ShipmentsAPI) rename(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if err := a.svc.RenameShipment(r.Context(), id, req.Title); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *ShipmentsAPI) delete(w http.ResponseWriter, r *http.Request) {
	a.simple(w, r, a.svc.DeleteShipment)
}

func (a *ShipmentsAPI) simple(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id uint64) error) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := fn(r.Context(), id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *ShipmentsAPI) detectCarriers(w http.ResponseWriter, r *http.Request) {
	tn := r.URL.Query().Get("trackNumber")
	if tn == "" {
		writeError(w, http.StatusBadRequest, "trackNumber query param is required")
		return
	}
	codes := a.svc.DetectCarriers(tn)
	if codes == nil {
		codes = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"carriers": codes})
}

func toDTOs(shs []*models.Shipment) []shipmentDTO {
	out := make([]shipmentDTO, 0, len(shs))
	for _, s := range shs {
		out = append(out, shipmentDTO{
			ID:                s.ID,
			CarrierCode:       s.CarrierCode,
			TrackNumber:       s.TrackNumber,
			Title:             s.Title,
			Status:            s.Status,
			StatusRaw:         s.StatusRaw,
			StatusAt:          s.StatusAt,
			SubCarrierName:    s.SubCarrierName,
			SubCarrierTrack:   s.SubCarrierTrack,
			EstimatedDelivery: s.EstimatedDelivery,
			Archived:          s.Archived,
			Muted:             s.Muted,
			LastCheckedAt:     s.LastCheckedAt,
			NextCheckAt:       s.NextCheckAt,
			CheckFailCount:    s.CheckFailCount,
			LastError:         s.LastError,
			LastErrorKind:     s.LastErrorKind,
			CreatedAt:         s.CreatedAt,
			UpdatedAt:         s.UpdatedAt,
		})
	}
	return out
}

func pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "shipmentID"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "invalid shipment id")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, def int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
