package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"ridepool/internal/rides/service"
	"ridepool/pkg/auth"
	apperrors "ridepool/pkg/errors"
	httputil "ridepool/pkg/http"
	"ridepool/pkg/logger"
	"ridepool/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type BookingHandler struct {
	service service.BookingService
	log     *logger.Logger
}

func NewBookingHandler(service service.BookingService, log *logger.Logger) *BookingHandler {
	return &BookingHandler{
		service: service,
		log:     log,
	}
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		h.writeErr(w, "Create", apperrors.Unauthorized("missing principal"))
		return
	}

	var booking model.Booking
	if err := json.NewDecoder(r.Body).Decode(&booking); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Create", "error", writeErr)
		}
		return
	}

	created, err := h.service.Create(r.Context(), principal, &booking)
	if err != nil {
		h.writeErr(w, "Create", err)
		return
	}

	if err := httputil.WriteCreated(w, created); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "error", err)
	}
}

func (h *BookingHandler) Approve(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.decide(w, r, ps, "Approve", h.service.Approve)
}

func (h *BookingHandler) Reject(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.decide(w, r, ps, "Reject", h.service.Reject)
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.decide(w, r, ps, "Cancel", h.service.Cancel)
}

func (h *BookingHandler) UpdateSeats(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		h.writeErr(w, "UpdateSeats", apperrors.Unauthorized("missing principal"))
		return
	}

	var payload struct {
		SeatCount int `json:"seat_count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "UpdateSeats", "error", writeErr)
		}
		return
	}

	booking, err := h.service.UpdateSeats(r.Context(), principal, ps.ByName("id"), payload.SeatCount)
	if err != nil {
		h.writeErr(w, "UpdateSeats", err)
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "UpdateSeats", "error", err)
	}
}

func (h *BookingHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		h.writeErr(w, "GetByID", apperrors.Unauthorized("missing principal"))
		return
	}

	booking, err := h.service.GetByID(r.Context(), principal, ps.ByName("id"))
	if err != nil {
		h.writeErr(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "error", err)
	}
}

func (h *BookingHandler) ListMine(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		h.writeErr(w, "ListMine", apperrors.Unauthorized("missing principal"))
		return
	}

	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeErr(w, "ListMine", err)
		return
	}

	bookings, total, err := h.service.ListMine(r.Context(), principal, limit, offset)
	if err != nil {
		h.writeErr(w, "ListMine", err)
		return
	}

	if err := httputil.WritePaginated(w, bookings, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "ListMine", "error", err)
	}
}

// decide is the shared shape of the three status-decision endpoints.
func (h *BookingHandler) decide(
	w http.ResponseWriter,
	r *http.Request,
	ps httprouter.Params,
	name string,
	fn func(ctx context.Context, principal auth.Principal, id string) (*model.Booking, error),
) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		h.writeErr(w, name, apperrors.Unauthorized("missing principal"))
		return
	}

	booking, err := fn(r.Context(), principal, ps.ByName("id"))
	if err != nil {
		h.writeErr(w, name, err)
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", name, "error", err)
	}
}

func (h *BookingHandler) writeErr(w http.ResponseWriter, handlerName string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handlerName, "error", writeErr)
	}
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router, jwt *auth.JWTManager) {
	router.POST("/api/v1/bookings", jwt.Require(h.Create))
	router.GET("/api/v1/bookings", jwt.Require(h.ListMine))
	router.GET("/api/v1/bookings/id/:id", jwt.Require(h.GetByID))
	router.POST("/api/v1/bookings/id/:id/approve", jwt.Require(h.Approve))
	router.POST("/api/v1/bookings/id/:id/reject", jwt.Require(h.Reject))
	router.POST("/api/v1/bookings/id/:id/cancel", jwt.Require(h.Cancel))
	router.PATCH("/api/v1/bookings/id/:id/seats", jwt.Require(h.UpdateSeats))
}
