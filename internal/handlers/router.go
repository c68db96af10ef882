package handlers

import (
	"net/http"

	"papertrade/internal/config"
	"papertrade/internal/db"
	"papertrade/internal/middleware"
	"papertrade/internal/oracle"
	"papertrade/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handler struct {
	txRunner db.TxRunner
	cfg      config.Config
	users    UserStore
	accounts AccountStore
	account  AccountService
	orders   OrderService
	plans    PlanService
	loans    LoanService
	oracle   oracle.Source
	hub      *websocket.Hub
}

func New(txRunner db.TxRunner, cfg config.Config, users UserStore, accounts AccountStore, account AccountService, orders OrderService, plans PlanService, loans LoanService, oracle oracle.Source, hub *websocket.Hub) *Handler {
	return &Handler{
		txRunner: txRunner,
		cfg:      cfg,
		users:    users,
		accounts: accounts,
		account:  account,
		orders:   orders,
		plans:    plans,
		loans:    loans,
		oracle:   oracle,
		hub:      hub,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.Logger)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.cfg.AllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.With(middleware.Auth(h.cfg.JWTSecret)).Get("/me", h.Me)
	})
	router.Get("/price", h.CurrentPrice)

	router.Group(func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))

		r.Get("/balances", h.Balances)
		r.Get("/balances/self-check", h.SelfCheck)
		r.Post("/funding/cash/deposit", h.DepositCash)
		r.Post("/funding/cash/withdraw", h.WithdrawCash)
		r.Post("/funding/crypto/deposit", h.DepositCrypto)
		r.Post("/funding/crypto/withdraw", h.WithdrawCrypto)

		r.Post("/orders/market/buy", h.MarketBuy)
		r.Post("/orders/market/sell", h.MarketSell)
		r.Post("/orders/limit", h.PlaceLimitOrder)
		r.Delete("/orders/limit/{id}", h.CancelLimitOrder)
		r.Get("/operations", h.ListOperations)

		r.Post("/plans", h.CreatePlan)
		r.Get("/plans", h.ListPlans)
		r.Get("/plans/{id}", h.GetPlan)
		r.Get("/plans/{id}/history", h.PlanHistory)
		r.Post("/plans/{id}/pause", h.PausePlan)
		r.Post("/plans/{id}/resume", h.ResumePlan)
		r.Delete("/plans/{id}", h.DeletePlan)

		r.Post("/loan/collateral", h.DepositCollateral)
		r.Post("/loan/borrow", h.Borrow)
		r.Post("/loan/repay", h.Repay)
		r.Post("/loan/liquidate", h.Liquidate)
		r.Get("/loan", h.LoanStatus)
	})

	router.Get("/ws/balances", h.WSBalances)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}
