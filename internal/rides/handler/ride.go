package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"ridepool/internal/rides/service"
	"ridepool/pkg/auth"
	apperrors "ridepool/pkg/errors"
	httputil "ridepool/pkg/http"
	"ridepool/pkg/logger"
	"ridepool/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type RideHandler struct {
	rides     service.RideService
	lifecycle service.LifecycleService
	sweep     service.SweepService
	log       *logger.Logger
}

func NewRideHandler(
	rides service.RideService,
	lifecycle service.LifecycleService,
	sweep service.SweepService,
	log *logger.Logger,
) *RideHandler {
	return &RideHandler{
		rides:     rides,
		lifecycle: lifecycle,
		sweep:     sweep,
		log:       log,
	}
}

func (h *RideHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		h.writeErr(w, "Create", apperrors.Unauthorized("missing principal"))
		return
	}

	var ride model.Ride
	if err := json.NewDecoder(r.Body).Decode(&ride); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Create", "error", writeErr)
		}
		return
	}

	created, err := h.rides.Create(r.Context(), principal, &ride)
	if err != nil {
		h.writeErr(w, "Create", err)
		return
	}

	if err := httputil.WriteCreated(w, created); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "error", err)
	}
}

func (h *RideHandler) Update(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		h.writeErr(w, "Update", apperrors.Unauthorized("missing principal"))
		return
	}

	var update service.RideUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Update", "error", writeErr)
		}
		return
	}

	ride, err := h.rides.Update(r.Context(), principal, ps.ByName("id"), &update)
	if err != nil {
		h.writeErr(w, "Update", err)
		return
	}

	if err := httputil.WriteSuccess(w, ride); err != nil {
		h.log.Error("failed to write success response", "handler", "Update", "error", err)
	}
}

func (h *RideHandler) Delete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		h.writeErr(w, "Delete", apperrors.Unauthorized("missing principal"))
		return
	}

	ride, err := h.rides.Cancel(r.Context(), principal, ps.ByName("id"))
	if err != nil {
		h.writeErr(w, "Delete", err)
		return
	}

	if err := httputil.WriteSuccess(w, ride); err != nil {
		h.log.Error("failed to write success response", "handler", "Delete", "error", err)
	}
}

func (h *RideHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ride, err := h.rides.GetByID(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeErr(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, ride); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "error", err)
	}
}

func (h *RideHandler) ListUpcoming(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeErr(w, "ListUpcoming", err)
		return
	}

	rides, total, err := h.rides.ListUpcoming(r.Context(), limit, offset)
	if err != nil {
		h.writeErr(w, "ListUpcoming", err)
		return
	}

	if err := httputil.WritePaginated(w, rides, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "ListUpcoming", "error", err)
	}
}

func (h *RideHandler) ListMine(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
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

	rides, total, err := h.rides.ListByDriver(r.Context(), principal, limit, offset)
	if err != nil {
		h.writeErr(w, "ListMine", err)
		return
	}

	if err := httputil.WritePaginated(w, rides, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "ListMine", "error", err)
	}
}

func (h *RideHandler) Passengers(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		h.writeErr(w, "Passengers", apperrors.Unauthorized("missing principal"))
		return
	}

	bookings, err := h.rides.Passengers(r.Context(), principal, ps.ByName("id"))
	if err != nil {
		h.writeErr(w, "Passengers", err)
		return
	}

	if err := httputil.WriteSuccess(w, bookings); err != nil {
		h.log.Error("failed to write success response", "handler", "Passengers", "error", err)
	}
}

func (h *RideHandler) Start(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		h.writeErr(w, "Start", apperrors.Unauthorized("missing principal"))
		return
	}

	ride, err := h.lifecycle.StartRide(r.Context(), principal, ps.ByName("id"))
	if err != nil {
		h.writeErr(w, "Start", err)
		return
	}

	if err := httputil.WriteSuccess(w, ride); err != nil {
		h.log.Error("failed to write success response", "handler", "Start", "error", err)
	}
}

func (h *RideHandler) End(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		h.writeErr(w, "End", apperrors.Unauthorized("missing principal"))
		return
	}

	ride, err := h.lifecycle.EndRide(r.Context(), principal, ps.ByName("id"))
	if err != nil {
		h.writeErr(w, "End", err)
		return
	}

	if err := httputil.WriteSuccess(w, ride); err != nil {
		h.log.Error("failed to write success response", "handler", "End", "error", err)
	}
}

// RunSweep triggers a reconciliation pass on demand. Admin only; the ticker
// in pkg/app covers the steady state.
func (h *RideHandler) RunSweep(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		h.writeErr(w, "RunSweep", apperrors.Unauthorized("missing principal"))
		return
	}
	if !principal.IsAdmin() {
		h.writeErr(w, "RunSweep", apperrors.Forbidden("sweep requires admin role"))
		return
	}

	report, err := h.sweep.RunSweep(r.Context(), time.Now())
	if err != nil {
		h.writeErr(w, "RunSweep", err)
		return
	}

	if err := httputil.WriteSuccess(w, report); err != nil {
		h.log.Error("failed to write success response", "handler", "RunSweep", "error", err)
	}
}

func (h *RideHandler) writeErr(w http.ResponseWriter, handlerName string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handlerName, "error", writeErr)
	}
}

func (h *RideHandler) RegisterRoutes(router *httprouter.Router, jwt *auth.JWTManager) {
	router.POST("/api/v1/rides", jwt.Require(h.Create))
	router.GET("/api/v1/rides", h.ListUpcoming)
	router.GET("/api/v1/rides/mine", jwt.Require(h.ListMine))
	router.GET("/api/v1/rides/id/:id", h.GetByID)
	router.PATCH("/api/v1/rides/id/:id", jwt.Require(h.Update))
	router.DELETE("/api/v1/rides/id/:id", jwt.Require(h.Delete))
	router.GET("/api/v1/rides/id/:id/passengers", jwt.Require(h.Passengers))
	router.POST("/api/v1/rides/id/:id/start", jwt.Require(h.Start))
	router.POST("/api/v1/rides/id/:id/end", jwt.Require(h.End))
	router.POST("/internal/sweep", jwt.Require(h.RunSweep))
}
