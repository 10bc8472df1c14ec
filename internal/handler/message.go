package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mindwell-dev/mindwell/internal/api"
	"github.com/mindwell-dev/mindwell/internal/domain"
	mw "github.com/mindwell-dev/mindwell/internal/middleware"
	"github.com/mindwell-dev/mindwell/internal/utils"
)

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	caller := mw.GetCallerFromContext(r)
	if caller == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	threadId := mux.Vars(r)["thread"]

	var body api.SendMessageRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	msg, err := h.message.Send(caller, domain.ThreadId(threadId), body.Text, body.ClientCorrelationId)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	writeJSONStatus(w, http.StatusCreated, api.MessageResponse{Message: msg})
}
