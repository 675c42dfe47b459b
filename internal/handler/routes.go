package handler

import "github.com/gorilla/mux"

// RegisterRoutes mounts the authenticated API on r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/schemes", h.ListSchemes).Methods("GET")
	r.HandleFunc("/schemes/tabs", h.Tabs).Methods("GET")
	r.HandleFunc("/schemes/tabs/select", h.SelectTab).Methods("POST")
	r.HandleFunc("/schemes/bucket", h.Bucket).Methods("GET")
	r.HandleFunc("/schemes/{id}/limits", h.Limits).Methods("GET")

	r.HandleFunc("/kyc", h.KYC).Methods("GET")
	r.HandleFunc("/branches", h.Branches).Methods("GET")
	r.HandleFunc("/dashboard", h.Dashboard).Methods("GET")
	r.HandleFunc("/gold/weight", h.GoldWeight).Methods("GET")
	r.HandleFunc("/banner/seen", h.BannerSeen).Methods("GET")
	r.HandleFunc("/banner/seen", h.MarkBannerSeen).Methods("POST")

	r.HandleFunc("/join", h.StartJoin).Methods("POST")
	r.HandleFunc("/join/{id}", h.JoinStatus).Methods("GET")
	r.HandleFunc("/join/{id}", h.CloseJoin).Methods("DELETE")
	r.HandleFunc("/join/{id}/path", h.ChoosePath).Methods("POST")
	r.HandleFunc("/join/{id}/kyc", h.ResolveBlocked).Methods("POST")
	r.HandleFunc("/join/{id}/amount", h.SubmitAmount).Methods("POST")
	r.HandleFunc("/join/{id}/initiate", h.Initiate).Methods("POST")
	r.HandleFunc("/join/{id}/resume", h.Resume).Methods("POST")
	r.HandleFunc("/join/{id}/cancel", h.CancelJoin).Methods("POST")
}
