package api

// AnonymousSessionResponse carries a server-issued anonymous student
// session token. Expiry is enforced server-side inside the token.
type AnonymousSessionResponse struct {
	Token      string `json:"token"`
	SessionKey string `json:"session_key"`
}
