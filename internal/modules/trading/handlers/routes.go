package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all trading routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/portfolio", func(r chi.Router) {
		r.Post("/buy", h.HandleBuy)
		r.Post("/sell", h.HandleSell)
		r.Post("/short", h.HandleShort)
		r.Post("/cover", h.HandleCover)
		r.Post("/refresh-prices", h.HandleRefreshPrices)
	})

	r.Get("/transactions", h.HandleGetTransactions)
}
