package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mindwell-dev/mindwell/internal/api"
	"github.com/mindwell-dev/mindwell/internal/domain"
	mw "github.com/mindwell-dev/mindwell/internal/middleware"
	"github.com/mindwell-dev/mindwell/internal/utils"
)

func (h *Handler) EnsureThread(w http.ResponseWriter, r *http.Request) {
	caller := mw.GetCallerFromContext(r)
	if caller == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	// Body is optional; an empty POST ensures a non-anonymous thread.
	var body api.EnsureThreadRequest
	if r.ContentLength != 0 {
		if err := utils.Decode(r.Body, &body); err != nil {
			utils.WriteErrorAndStatusCode(w, err)
			return
		}
	}

	view, err := h.thread.Ensure(caller, body.Anonymous)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	writeJSON(w, api.ThreadResponse{ThreadView: view})
}

func (h *Handler) ListThreads(w http.ResponseWriter, r *http.Request) {
	caller := mw.GetCallerFromContext(r)
	if caller == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	scope := domain.ListScope(r.URL.Query().Get("scope"))
	if scope == "" {
		if caller.IsCounselor() {
			scope = domain.ScopeSystem
		} else {
			scope = domain.ScopeOwn
		}
	}

	views, err := h.thread.List(caller, scope)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	writeJSON(w, api.ThreadListResponse{Threads: views})
}

func (h *Handler) GetThread(w http.ResponseWriter, r *http.Request) {
	caller := mw.GetCallerFromContext(r)
	if caller == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	threadId := mux.Vars(r)["thread"]

	// Parse page parameter (default to 1)
	page := 1
	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		if parsedPage, err := parseIntParam(pageStr, "page"); err == nil && parsedPage > 0 {
			page = parsedPage
		}
	}

	view, err := h.thread.Get(caller, domain.ThreadId(threadId), page)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	writeJSON(w, api.ThreadResponse{ThreadView: view})
}

func (h *Handler) CloseThread(w http.ResponseWriter, r *http.Request) {
	caller := mw.GetCallerFromContext(r)
	if caller == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	threadId := mux.Vars(r)["thread"]

	if err := h.thread.Close(caller, domain.ThreadId(threadId)); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	caller := mw.GetCallerFromContext(r)
	if caller == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	threadId := mux.Vars(r)["thread"]

	if err := h.thread.MarkRead(caller, domain.ThreadId(threadId)); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}
