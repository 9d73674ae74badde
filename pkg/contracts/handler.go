package contracts

import (
	"ridepool/pkg/auth"

	"github.com/julienschmidt/httprouter"
)

// Handler is a route group that registers itself on the shared router. The
// JWT manager is passed so each group decides which of its routes need a
// principal.
type Handler interface {
	RegisterRoutes(*httprouter.Router, *auth.JWTManager)
}
