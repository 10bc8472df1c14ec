package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/mindwell-dev/mindwell/internal/api"
	"github.com/mindwell-dev/mindwell/internal/logger"
	"github.com/mindwell-dev/mindwell/internal/utils"
)

// AnonymousSession issues a server-signed anonymous student session.
// The session key is generated here and the expiry lives inside the
// signed token, so clients cannot extend their own sessions.
func (h *Handler) AnonymousSession(w http.ResponseWriter, r *http.Request) {
	sessionKey := "anon-" + uuid.NewString()

	token, err := h.jwt.NewAnonymousToken(sessionKey)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	cookie := &http.Cookie{
		Path:     "/",
		Name:     "accessToken",
		Value:    token,
		MaxAge:   int(h.cfg.Public.AnonSessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.Public.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	http.SetCookie(w, cookie)

	logger.Log.Info("anonymous session issued")
	writeJSONStatus(w, http.StatusCreated, api.AnonymousSessionResponse{Token: token, SessionKey: sessionKey})
}
