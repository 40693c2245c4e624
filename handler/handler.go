// Package handler exposes the ledger service over HTTP.
package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/billbatista/rateio/eventlogger"
	"github.com/billbatista/rateio/ledger"
	"github.com/billbatista/rateio/middleware"
	"github.com/billbatista/rateio/session"
	"github.com/billbatista/rateio/user"
	chimiddleware "github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
)

type Deps struct {
	Ledgers  *ledger.Service
	Users    user.Repository
	Sessions session.Repository
	// Events answers activity queries. Audit receives events emitted by the handlers.
	Events       eventlogger.EventLogger
	Audit        ledger.EventSink
	LoginLimiter *middleware.RateLimiter
	SecureCookie bool
}

type Handler struct {
	Deps
}

func New(d Deps) http.Handler {
	h := &Handler{Deps: d}

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.AuthMiddleware(d.Sessions, d.Users))

	router.Get("/health", h.health)

	router.Route("/auth", func(r chi.Router) {
		if d.LoginLimiter != nil {
			r.With(d.LoginLimiter.Limit).Post("/login", h.login)
		} else {
			r.Post("/login", h.login)
		}
		r.Post("/logout", h.logout)
	})

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)

		r.Get("/me", h.me)

		r.Route("/ledgers/{ledgerID}", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireLedgerAccess(false))

				r.Get("/", h.getLedger)
				r.Get("/participants", h.listParticipants)
				r.Get("/expenses", h.listExpenses)
				r.Get("/expenses/summary/by-category", h.categorySummary)
				r.Get("/expenses/{id}", h.getExpense)
				r.Get("/contributions", h.listContributions)
				r.Get("/deposits", h.listDeposits)
				r.Get("/budgets", h.getBudgets)
				r.Get("/settlement", h.getSettlement)
				r.Get("/settlement/participants/{participantID}", h.getParticipantView)
				r.Get("/export/{kind}", h.export)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireLedgerAccess(true))

				r.Post("/expenses", h.createExpense)
				r.Put("/expenses/{id}", h.updateExpense)
				r.Delete("/expenses/{id}", h.deleteExpense)
				r.Post("/contributions", h.createContribution)
				r.Put("/contributions/{id}", h.updateContribution)
				r.Delete("/contributions/{id}", h.deleteContribution)
				r.Post("/deposits", h.createDeposit)
				r.Put("/deposits/{id}", h.updateDeposit)
				r.Delete("/deposits/{id}", h.deleteDeposit)
				r.Put("/budgets/overall", h.setOverallBudget)
				r.Put("/budgets/{category}", h.setCategoryBudget)
				r.Delete("/budgets/{category}", h.deleteCategoryBudget)
				r.Post("/close", h.closeLedger)
				r.Post("/reopen", h.reopenLedger)
				r.Get("/activity", h.activity)
			})
		})
	})

	return router
}

func (h *Handler) log(evt eventlogger.Event) {
	if h.Audit != nil {
		h.Audit.Log(evt)
	}
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	evt := eventlogger.NewEvent(
		eventlogger.WithType("health_request"),
		eventlogger.WithData(map[string]string{
			"message":     "ok",
			"http_status": strconv.Itoa(http.StatusOK),
		}),
	)
	h.log(evt)
	w.Write([]byte("ok"))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      *user.User `json:"user"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	userdb, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		slog.Error("failed to fetch user", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if userdb == nil || !userdb.IsActive {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if err := h.Users.VerifyPassword(userdb.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	sess, err := h.Sessions.Create(ctx, userdb.ID)
	if err != nil {
		slog.Error("failed to create session", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   h.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	h.log(eventlogger.NewEvent(
		eventlogger.WithType("user.logged_in"),
		eventlogger.WithData(map[string]string{
			"user_id":    userdb.ID.String(),
			"email":      userdb.Email,
			"session_id": sess.ID.String(),
		}),
	))

	writeJSON(w, http.StatusOK, loginResponse{Token: sess.Token, ExpiresAt: sess.ExpiresAt, User: userdb})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	token := ""
	if cookie, err := r.Cookie(session.CookieName); err == nil {
		token = cookie.Value
	}
	if scheme, value, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "Bearer") {
		token = strings.TrimSpace(value)
	}
	userID, authenticated := middleware.GetUserID(r.Context())
	switch {
	case authenticated && r.URL.Query().Get("all") == "true":
		if err := h.Sessions.DeleteByUserID(r.Context(), userID); err != nil {
			slog.Error("failed to delete sessions", "error", err)
		}
	case token != "":
		if err := h.Sessions.Delete(r.Context(), token); err != nil {
			slog.Error("failed to delete session", "error", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:   session.CookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.GetUser(r.Context())
	writeJSON(w, http.StatusOK, u)
}
