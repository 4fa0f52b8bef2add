package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"mailpassd/internal/config"
	"mailpassd/internal/events"
	"mailpassd/internal/fastpanel"
	"mailpassd/internal/middleware"
	"mailpassd/internal/models"
	"mailpassd/internal/platform"
	"mailpassd/internal/rate"
	"mailpassd/internal/service"
	"mailpassd/internal/settings"
	"mailpassd/internal/util"
	"mailpassd/internal/version"
)

type Handlers struct {
	cfg     config.Config
	svc     *service.Service
	disp    *events.Dispatcher
	limiter *rate.Limiter
}

func NewRouter(cfg config.Config, svc *service.Service, disp *events.Dispatcher) http.Handler {
	h := &Handlers{cfg: cfg, svc: svc, disp: disp, limiter: rate.NewLimiter()}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.RequestLogger)
	r.Use(middleware.SecurityHeaders)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type"},
			AllowCredentials: true,
		}))
	}

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		util.WriteJSON(w, 200, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", h.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
			util.WriteJSON(w, 200, version.Current())
		})
		r.With(middleware.RateLimit(h.limiter, "login", 20, time.Minute, h.cfg.TrustProxy)).Post("/login", h.Login)
		r.Post("/logout", h.Logout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authn(h.svc, h.cfg.SessionCookieName))
			r.Get("/me", h.Me)
			r.Get("/settings", h.GetSettings)
			r.Put("/settings", h.PutSettings)
			r.Get("/accounts/{email}", h.GetAccount)
			r.With(middleware.RateLimit(h.limiter, "change_password", 10, time.Minute, h.cfg.TrustProxy)).
				Post("/accounts/{email}/password", h.ChangeAccountPassword)
		})
	})
	return r
}

func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	comps := map[string]any{}
	ok := true

	if _, err := h.svc.Settings(r.Context()); err != nil {
		ok = false
		comps["sqlite"] = map[string]any{"ok": false, "error": err.Error()}
	} else {
		comps["sqlite"] = map[string]any{"ok": true}
	}

	if err := h.svc.ProbePanel(r.Context()); err != nil {
		ok = false
		comps["panel"] = map[string]any{"ok": false, "error": err.Error()}
	} else {
		comps["panel"] = map[string]any{"ok": true}
	}

	status := 200
	body := map[string]any{
		"status":     "ready",
		"checked_at": time.Now().UTC().Format(time.RFC3339),
		"components": comps,
	}
	if !ok {
		status = 503
		body["status"] = "degraded"
	}
	util.WriteJSON(w, status, body)
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		util.WriteError(w, 400, "bad_request", "invalid JSON body", middleware.RequestID(r.Context()))
		return
	}
	raw, u, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		util.WriteError(w, 401, "unauthorized", "invalid credentials", middleware.RequestID(r.Context()))
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.SessionCookieName,
		Value:    raw,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.cfg.SessionAbsoluteDuration().Seconds()),
	})
	util.WriteJSON(w, 200, map[string]string{"email": u.Email})
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(h.cfg.SessionCookieName); err == nil && c.Value != "" {
		_ = h.svc.Logout(r.Context(), c.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
	util.WriteJSON(w, 200, map[string]string{"status": "ok"})
}

func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.User(r.Context())
	util.WriteJSON(w, 200, map[string]string{"email": u.Email})
}

// settingsView is the masked representation handed to the admin UI. The
// stored admin password never leaves the server.
type settingsView struct {
	Disabled         bool     `json:"disabled"`
	SupportedServers []string `json:"supported_servers"`
	PanelURL         string   `json:"panel_url"`
	AdminUser        string   `json:"admin_user"`
	AdminPasswordSet bool     `json:"admin_password_set"`
}

func viewOf(s settings.Settings) settingsView {
	return settingsView{
		Disabled:         s.Disabled,
		SupportedServers: s.SupportedServers,
		PanelURL:         s.PanelURL,
		AdminUser:        s.AdminUser,
		AdminPasswordSet: s.AdminPassword != "",
	}
}

func (h *Handlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Settings(r.Context())
	if err != nil {
		util.WriteError(w, 500, "internal", "could not load settings", middleware.RequestID(r.Context()))
		return
	}
	util.WriteJSON(w, 200, map[string]any{
		"values": viewOf(s),
		"schema": settings.Schema(),
	})
}

func (h *Handlers) PutSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Disabled         bool     `json:"disabled"`
		SupportedServers []string `json:"supported_servers"`
		PanelURL         string   `json:"panel_url"`
		AdminUser        string   `json:"admin_user"`
		AdminPassword    string   `json:"admin_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		util.WriteError(w, 400, "bad_request", "invalid JSON body", middleware.RequestID(r.Context()))
		return
	}
	if strings.TrimSpace(req.PanelURL) == "" {
		util.WriteError(w, 400, "bad_request", "panel_url is required", middleware.RequestID(r.Context()))
		return
	}
	saved, err := h.svc.UpdateSettings(r.Context(), settings.Settings{
		Disabled:         req.Disabled,
		SupportedServers: req.SupportedServers,
		PanelURL:         strings.TrimRight(strings.TrimSpace(req.PanelURL), "/"),
		AdminUser:        strings.TrimSpace(req.AdminUser),
		AdminPassword:    req.AdminPassword,
	})
	if err != nil {
		util.WriteError(w, 500, "internal", "could not save settings", middleware.RequestID(r.Context()))
		return
	}
	util.WriteJSON(w, 200, map[string]any{"values": viewOf(saved)})
}

// GetAccount serializes an account the way the platform would, running the
// AccountToResponse handler chain so integrations can annotate it.
func (h *Handlers) GetAccount(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	acct, err := h.svc.Account(r.Context(), email)
	if err != nil {
		if errors.Is(err, platform.ErrAccountNotFound) {
			util.WriteError(w, 404, "not_found", "mail account not found", middleware.RequestID(r.Context()))
			return
		}
		util.WriteError(w, 500, "internal", "could not load account", middleware.RequestID(r.Context()))
		return
	}
	resp := &models.AccountResponse{ID: acct.ID, Email: acct.Email}
	if acct.Server != nil {
		resp.Server = acct.Server.IncomingServer
	}
	if err := h.disp.Emit(r.Context(), events.AccountToResponse, &events.AccountToResponsePayload{Account: acct, Response: resp}); err != nil {
		util.WriteError(w, 500, "internal", "could not serialize account", middleware.RequestID(r.Context()))
		return
	}
	util.WriteJSON(w, 200, resp)
}

func (h *Handlers) ChangeAccountPassword(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		util.WriteError(w, 400, "bad_request", "invalid JSON body", middleware.RequestID(r.Context()))
		return
	}
	if req.NewPassword == "" {
		util.WriteError(w, 400, "bad_request", "new_password is required", middleware.RequestID(r.Context()))
		return
	}

	acct, err := h.svc.Account(r.Context(), email)
	if err != nil {
		if errors.Is(err, platform.ErrAccountNotFound) {
			util.WriteError(w, 404, "not_found", "mail account not found", middleware.RequestID(r.Context()))
			return
		}
		util.WriteError(w, 500, "internal", "could not load account", middleware.RequestID(r.Context()))
		return
	}

	result := &models.ChangePasswordResult{}
	err = h.disp.Emit(r.Context(), events.ChangeAccountPassword, &events.ChangePasswordPayload{
		Account:         acct,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		Result:          result,
	})
	if err != nil {
		h.writePanelError(w, r, err)
		return
	}
	util.WriteJSON(w, 200, result)
}

// writePanelError maps the panel error taxonomy onto API responses. The
// rejected-password reason is end-user material; everything else is
// administrator diagnostics behind a stable code.
func (h *Handlers) writePanelError(w http.ResponseWriter, r *http.Request, err error) {
	rid := middleware.RequestID(r.Context())

	var rejected *fastpanel.PasswordRejectedError
	if errors.As(err, &rejected) {
		util.WriteError(w, 422, "password_rejected", rejected.Reason, rid)
		return
	}
	if errors.Is(err, fastpanel.ErrChangeFailed) {
		util.WriteError(w, 502, "cannot_change_password", "password change failed", rid)
		return
	}

	var authErr *fastpanel.AuthError
	var domainErr *fastpanel.DomainNotFoundError
	var boxErr *fastpanel.MailboxNotFoundError
	switch {
	case errors.Is(err, fastpanel.ErrUnreachable),
		errors.Is(err, fastpanel.ErrAuthMalformed),
		errors.Is(err, fastpanel.ErrDomainListUnavailable),
		errors.Is(err, fastpanel.ErrMailboxListUnavailable),
		errors.As(err, &authErr),
		errors.As(err, &domainErr),
		errors.As(err, &boxErr):
		util.WriteError(w, 502, "panel_error", err.Error(), rid)
	default:
		util.WriteError(w, 500, "internal", "password change failed", rid)
	}
}
