package oauth

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/faouziMohamed/mail-aliases/instrumentation"
	"github.com/faouziMohamed/mail-aliases/security"
	"github.com/faouziMohamed/mail-aliases/server"
)

// Endpoint paths registered by RegisterHandlers
const (
	AuthorizePath = "/oauth/authorize"
	TokenPath     = "/oauth/token"
)

// Default token endpoint rate limit (per client IP)
const (
	DefaultRateLimitPerSecond = 10
	DefaultRateLimitBurst     = 20
)

// HandlerConfig configures the HTTP surface
type HandlerConfig struct {
	// ServerURL is the externally visible base URL of this server. Used for
	// HSTS decisions in security headers.
	ServerURL string

	// Authenticator resolves the signed-in user behind authorize requests.
	// Required.
	Authenticator Authenticator

	// TrustProxy enables X-Forwarded-For parsing for client IP extraction.
	// Only set when a trusted reverse proxy fronts this server.
	TrustProxy bool

	// TrustedProxyCount is the number of trusted proxies in front of the
	// server, used to pick the right X-Forwarded-For entry.
	TrustedProxyCount int

	// RateLimitPerSecond caps token endpoint requests per client IP.
	// Default: 10. Set to -1 to disable rate limiting.
	RateLimitPerSecond int

	// RateLimitBurst is the token bucket burst size. Default: 20.
	RateLimitBurst int

	// Logger is the structured logger (default: the engine's logger)
	Logger *slog.Logger
}

// Handler serves the authorize and token endpoints over a protocol engine
type Handler struct {
	server        *server.Server
	authenticator Authenticator
	rateLimiter   *security.RateLimiter
	config        *HandlerConfig
	logger        *slog.Logger
	inst          *instrumentation.Instrumentation
}

// NewHandler creates the HTTP surface for an engine
func NewHandler(srv *server.Server, config *HandlerConfig) (*Handler, error) {
	if srv == nil {
		return nil, fmt.Errorf("server is required")
	}
	if config == nil || config.Authenticator == nil {
		return nil, fmt.Errorf("authenticator is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = srv.Logger
	}

	h := &Handler{
		server:        srv,
		authenticator: config.Authenticator,
		config:        config,
		logger:        logger,
	}

	if config.RateLimitPerSecond >= 0 {
		perSecond := config.RateLimitPerSecond
		if perSecond == 0 {
			perSecond = DefaultRateLimitPerSecond
		}
		burst := config.RateLimitBurst
		if burst == 0 {
			burst = DefaultRateLimitBurst
		}
		h.rateLimiter = security.NewRateLimiter(perSecond, burst, logger)
	}

	return h, nil
}

// SetInstrumentation sets OpenTelemetry instrumentation for the handler
func (h *Handler) SetInstrumentation(inst *instrumentation.Instrumentation) {
	h.inst = inst
}

// Close stops the handler's background goroutines
func (h *Handler) Close() {
	if h.rateLimiter != nil {
		h.rateLimiter.Stop()
	}
}

// RegisterHandlers registers the OAuth endpoints on a mux
func (h *Handler) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc(AuthorizePath, h.HandleAuthorize)
	mux.HandleFunc(TokenPath, h.HandleToken)
}

// HandleAuthorize serves the authorization endpoint. GET renders the login
// prompt or the consent form; POST consumes the consent decision and
// redirects back to the client.
func (h *Handler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	r = security.EnsureRequestID(w, r)
	security.SetPageSecurityHeaders(w, h.config.ServerURL)

	status := http.StatusOK
	defer func() {
		h.recordHTTPMetrics(r, AuthorizePath, status, start)
	}()

	switch r.Method {
	case http.MethodGet:
		status = h.authorizeGet(w, r)
	case http.MethodPost:
		status = h.authorizePost(w, r)
	default:
		status = http.StatusMethodNotAllowed
		http.Error(w, "Method not allowed", status)
	}
}

// authorizeRequest builds the typed authorization request from the URL query.
// The consent form posts back to the same URL, so the query is authoritative
// for both GET and POST.
func authorizeRequest(r *http.Request) *server.AuthorizationRequest {
	q := r.URL.Query()
	return &server.AuthorizationRequest{
		ClientID:     q.Get("client_id"),
		RedirectURI:  q.Get("redirect_uri"),
		ResponseType: q.Get("response_type"),
		Scope:        q.Get("scope"),
		State:        q.Get("state"),
	}
}

func (h *Handler) authorizeGet(w http.ResponseWriter, r *http.Request) int {
	user, err := h.authenticator.UserFromRequest(r)
	if err != nil {
		h.logger.Error("Authenticator failed", "error", err)
		h.renderPage(w, errorPageTemplate, http.StatusInternalServerError, errorPageData{
			Title:   "Something went wrong",
			Message: "We could not process your request. Please try again.",
		})
		return http.StatusInternalServerError
	}

	req := authorizeRequest(r)

	// The login prompt comes before request validation so users are not
	// shown protocol errors for a link they cannot act on yet.
	if user == nil {
		h.renderPage(w, loginPromptTemplate, http.StatusOK, loginPromptData{})
		return http.StatusOK
	}

	client, oerr := h.server.ValidateAuthorizationRequest(r.Context(), req)
	if oerr != nil {
		return h.renderAuthorizeError(w, oerr)
	}

	h.renderPage(w, consentTemplate, http.StatusOK, consentData{
		ClientName: client.ClientName,
		Scope:      req.Scope,
		UserEmail:  user.Email,
		UserName:   user.Name,
		Aliases:    user.Aliases,
	})
	return http.StatusOK
}

func (h *Handler) authorizePost(w http.ResponseWriter, r *http.Request) int {
	user, err := h.authenticator.UserFromRequest(r)
	if err != nil {
		h.logger.Error("Authenticator failed", "error", err)
		h.renderPage(w, errorPageTemplate, http.StatusInternalServerError, errorPageData{
			Title:   "Something went wrong",
			Message: "We could not process your request. Please try again.",
		})
		return http.StatusInternalServerError
	}
	if user == nil {
		h.renderPage(w, loginPromptTemplate, http.StatusOK, loginPromptData{})
		return http.StatusOK
	}

	req := authorizeRequest(r)
	client, oerr := h.server.ValidateAuthorizationRequest(r.Context(), req)
	if oerr != nil {
		return h.renderAuthorizeError(w, oerr)
	}

	if err := r.ParseForm(); err != nil {
		h.renderPage(w, errorPageTemplate, http.StatusBadRequest, errorPageData{
			Title:   "Invalid request",
			Message: "The consent form could not be parsed.",
		})
		return http.StatusBadRequest
	}

	clientIP := h.clientIP(r)

	if r.PostFormValue("button") != "allow" {
		redirect := h.server.Deny(r.Context(), client, user, req, clientIP)
		http.Redirect(w, r, redirect, http.StatusFound)
		return http.StatusFound
	}

	decision := &server.ConsentDecision{
		Approved:       true,
		SuggestedEmail: r.PostFormValue("suggested-email"),
		SuggestedName:  r.PostFormValue("suggested-name"),
	}

	redirect, oerr := h.server.Approve(r.Context(), client, user, req, decision, clientIP)
	if oerr != nil {
		return h.renderAuthorizeError(w, oerr)
	}

	http.Redirect(w, r, redirect, http.StatusFound)
	return http.StatusFound
}

// renderAuthorizeError maps an engine error to a human-readable page. The
// authorize endpoint talks to a person in a browser, so errors are HTML
// rather than the JSON the token endpoint uses.
func (h *Handler) renderAuthorizeError(w http.ResponseWriter, oerr *OAuthError) int {
	message := oerr.Description
	if oerr.Code == ErrorCodeUnsupportedResponseType {
		message = unsupportedFlowMessage()
	}

	h.renderPage(w, errorPageTemplate, oerr.Status, errorPageData{
		Title:   "Authorization request rejected",
		Message: message,
	})
	return oerr.Status
}

// HandleToken serves the token endpoint: authorization code for access token
// exchange, authenticated with HTTP Basic client credentials.
func (h *Handler) HandleToken(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	r = security.EnsureRequestID(w, r)
	security.SetSecurityHeaders(w, h.config.ServerURL)

	status := http.StatusOK
	defer func() {
		h.recordHTTPMetrics(r, TokenPath, status, start)
	}()

	if r.Method != http.MethodPost {
		status = http.StatusMethodNotAllowed
		h.writeError(w, ErrorCodeInvalidRequest, "Token endpoint only accepts POST", status)
		return
	}

	clientIP := h.clientIP(r)

	if h.rateLimiter != nil && !h.rateLimiter.Allow(clientIP) {
		h.server.Auditor.LogRateLimitExceeded(clientIP)
		if h.inst != nil {
			h.inst.Metrics().RecordRateLimitExceeded(r.Context(), TokenPath)
		}
		status = http.StatusTooManyRequests
		h.writeError(w, ErrorCodeRateLimitExceeded, "Rate limit exceeded. Please try again later.", status)
		return
	}

	if err := r.ParseForm(); err != nil {
		status = http.StatusBadRequest
		h.writeError(w, ErrorCodeInvalidRequest, "Request body could not be parsed", status)
		return
	}

	clientID, clientSecret, ok := r.BasicAuth()
	if !ok {
		// Credentials in the form body are accepted as a fallback for
		// clients that cannot set an Authorization header
		clientID = r.PostFormValue("client_id")
		clientSecret = r.PostFormValue("client_secret")
	}

	client, oerr := h.server.AuthenticateClient(r.Context(), clientID, clientSecret, clientIP)
	if oerr != nil {
		if oerr.Status == http.StatusUnauthorized {
			w.Header().Set("WWW-Authenticate", `Basic realm="oauth"`)
		}
		status = oerr.Status
		h.writeOAuthError(w, oerr)
		return
	}

	resp, oerr := h.server.Exchange(r.Context(),
		client,
		r.PostFormValue("grant_type"),
		r.PostFormValue("code"),
		clientIP)
	if oerr != nil {
		status = oerr.Status
		h.writeOAuthError(w, oerr)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// clientIP extracts the client IP honoring the proxy trust configuration
func (h *Handler) clientIP(r *http.Request) string {
	return security.GetClientIP(r, h.config.TrustProxy, h.config.TrustedProxyCount)
}

// writeOAuthError writes an engine error as a JSON error response
func (h *Handler) writeOAuthError(w http.ResponseWriter, oerr *OAuthError) {
	h.writeError(w, oerr.Code, oerr.Description, oerr.Status)
}

// writeError writes an OAuth 2.0 JSON error response
func (h *Handler) writeError(w http.ResponseWriter, code, description string, status int) {
	h.writeJSON(w, status, map[string]string{
		"error":             code,
		"error_description": description,
	})
}

// writeJSON writes a JSON response with the given status
func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Debug("Failed to write JSON response", "error", err)
	}
}

// recordHTTPMetrics records request count and duration for an endpoint
func (h *Handler) recordHTTPMetrics(r *http.Request, endpoint string, status int, start time.Time) {
	if h.inst == nil {
		return
	}
	durationMs := float64(time.Since(start).Microseconds()) / 1000.0
	h.inst.Metrics().RecordHTTPRequest(r.Context(), r.Method, endpoint, status, durationMs)
}
