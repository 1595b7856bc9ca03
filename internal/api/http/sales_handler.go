package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"cashback-ledger/internal/domain"
	"cashback-ledger/internal/service"
)

// SalesHandler receives sale lifecycle and client hooks from the sales system.
type SalesHandler struct {
	svc service.CashbackService
}

func NewSalesHandler(svc service.CashbackService) *SalesHandler {
	return &SalesHandler{svc: svc}
}

func (h *SalesHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/internal/sales/completed", h.SaleCompleted).Methods(http.MethodPost)
	router.HandleFunc("/internal/sales/canceled", h.SaleCanceled).Methods(http.MethodPost)
	router.HandleFunc("/internal/clients", h.ClientCreated).Methods(http.MethodPost)
}

func decodeSaleEvent(r *http.Request, typ domain.EventType) (domain.SaleEvent, error) {
	var ev domain.SaleEvent
	if err := decodeBody(r, &ev); err != nil {
		return ev, err
	}
	if ev.OrgID == "" || ev.ClientID == "" || ev.SaleID == "" {
		return ev, domain.BadRequest("orgId, clientId e saleId são obrigatórios.")
	}
	ev.Type = typ
	return ev, nil
}

func (h *SalesHandler) SaleCompleted(w http.ResponseWriter, r *http.Request) {
	ev, err := decodeSaleEvent(r, domain.EventSaleCompleted)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.svc.HandleSaleCompleted(r.Context(), ev)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: toAccumulationResponse(res)})
}

func (h *SalesHandler) SaleCanceled(w http.ResponseWriter, r *http.Request) {
	ev, err := decodeSaleEvent(r, domain.EventSaleCanceled)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.svc.HandleSaleCanceled(r.Context(), ev)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: toReversalResponse(res)})
}

type clientCreatedRequest struct {
	OrgID    string `json:"orgId"`
	ClientID string `json:"clientId"`
}

// ClientCreated opens the zero balance of a newly registered client.
func (h *SalesHandler) ClientCreated(w http.ResponseWriter, r *http.Request) {
	var req clientCreatedRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.OrgID == "" || req.ClientID == "" {
		writeError(w, r, domain.BadRequest("orgId e clientId são obrigatórios."))
		return
	}
	if err := h.svc.EnsureClientBalance(r.Context(), req.OrgID, req.ClientID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
