package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"cashback-ledger/internal/cashback"
	"cashback-ledger/internal/domain"
	"cashback-ledger/internal/logger"
	"cashback-ledger/internal/service"
)

// RedemptionHandler serves the point-of-sale redemption endpoint.
type RedemptionHandler struct {
	svc service.CashbackService
}

func NewRedemptionHandler(svc service.CashbackService) *RedemptionHandler {
	return &RedemptionHandler{svc: svc}
}

func (h *RedemptionHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/cashback/redemption", h.Redeem).Methods(http.MethodPost)
}

type redemptionRequest struct {
	OrgID              string `json:"orgId"`
	ClientID           string `json:"clientId"`
	SaleValue          int64  `json:"saleValue"`
	RedemptionValue    int64  `json:"redemptionValue"`
	OperatorIdentifier string `json:"operatorIdentifier"`
}

type redemptionData struct {
	TransactionID     string `json:"transactionId"`
	NewBalance        int64  `json:"newBalance"`
	NewResgatadoTotal int64  `json:"newResgatadoTotal"`
}

func (h *RedemptionHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req redemptionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.OrgID == "" || req.ClientID == "" {
		writeError(w, r, domain.BadRequest("orgId e clientId são obrigatórios."))
		return
	}
	if claims, ok := ClaimsFromContext(r.Context()); !ok || !claims.CanActFor(req.OrgID) {
		writeMessage(w, http.StatusForbidden, "Terminal sem acesso a esta organização.")
		return
	}

	res, err := h.svc.Redeem(r.Context(), cashback.RedeemInput{
		OrgID:              req.OrgID,
		ClientID:           req.ClientID,
		SaleValue:          req.SaleValue,
		RedemptionValue:    req.RedemptionValue,
		OperatorIdentifier: req.OperatorIdentifier,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	logger.Info("Cashback redeemed", "orgID", req.OrgID, "clientID", req.ClientID, "transactionID", res.TransactionID)
	writeJSON(w, http.StatusOK, dataResponse{
		Data: redemptionData{
			TransactionID:     res.TransactionID,
			NewBalance:        res.NewBalance,
			NewResgatadoTotal: res.NewRedeemedTotal,
		},
		Message: "Resgate de " + cashback.FormatBRL(req.RedemptionValue) + " realizado com sucesso.",
	})
}
