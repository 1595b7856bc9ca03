package http

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"cashback-ledger/internal/service"
)

// ProgramHandler serves the org-scoped administration routes.
type ProgramHandler struct {
	svc service.CashbackService
}

func NewProgramHandler(svc service.CashbackService) *ProgramHandler {
	return &ProgramHandler{svc: svc}
}

func (h *ProgramHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/orgs/{orgId}/cashback/program", h.GetProgram).Methods(http.MethodGet)
	router.HandleFunc("/orgs/{orgId}/cashback/program", h.CreateProgram).Methods(http.MethodPost)
	router.HandleFunc("/orgs/{orgId}/cashback/program", h.UpdateProgram).Methods(http.MethodPut)
	router.HandleFunc("/orgs/{orgId}/clients/{clientId}/cashback/balance", h.GetBalance).Methods(http.MethodGet)
	router.HandleFunc("/orgs/{orgId}/clients/{clientId}/cashback/transactions", h.ListTransactions).Methods(http.MethodGet)
}

func (h *ProgramHandler) GetProgram(w http.ResponseWriter, r *http.Request) {
	program, err := h.svc.GetProgram(r.Context(), mux.Vars(r)["orgId"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: toProgramResponse(program)})
}

func (h *ProgramHandler) CreateProgram(w http.ResponseWriter, r *http.Request) {
	var req programRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	program := req.toDomain(mux.Vars(r)["orgId"])
	if err := h.svc.CreateProgram(r.Context(), program); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, dataResponse{Data: toProgramResponse(program), Message: "Programa de cashback criado."})
}

func (h *ProgramHandler) UpdateProgram(w http.ResponseWriter, r *http.Request) {
	var req programRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	program := req.toDomain(mux.Vars(r)["orgId"])
	if err := h.svc.UpdateProgram(r.Context(), program); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: toProgramResponse(program), Message: "Programa de cashback atualizado."})
}

func (h *ProgramHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	balance, err := h.svc.GetBalance(r.Context(), vars["orgId"], vars["clientId"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: toBalanceResponse(balance)})
}

func (h *ProgramHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	page := queryInt32(r, "page")
	pageSize := queryInt32(r, "pageSize")

	txs, total, err := h.svc.ListTransactions(r.Context(), vars["orgId"], vars["clientId"], page, pageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if page < 1 {
		page = 1
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: transactionPage{
		Transactions: toTransactionResponses(txs),
		Page:         page,
		PageSize:     int32(len(txs)),
		Total:        total,
	}})
}

// queryInt32 returns 0 for a missing or malformed value.
func queryInt32(r *http.Request, name string) int32 {
	v, err := strconv.ParseInt(r.URL.Query().Get(name), 10, 32)
	if err != nil {
		return 0
	}
	return int32(v)
}
