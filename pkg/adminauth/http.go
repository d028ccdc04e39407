package adminauth

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/healo-ai/concierge/pkg/common/api"
)

type Handler struct {
	gate *Gate
}

func NewHandler(gate *Gate) *Handler {
	return &Handler{gate: gate}
}

// Register mounts whoami. It is not rate limited and never audits.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/whoami", h.handleWhoAmI).Methods(http.MethodGet)
}

func (h *Handler) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, h.gate.Check(r))
}
