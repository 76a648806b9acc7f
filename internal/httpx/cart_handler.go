package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/datmqhust/bookstore-orders/internal/cart"
	"github.com/datmqhust/bookstore-orders/internal/catalog"
)

type AddItemReq struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type CartHandler struct {
	Carts   *cart.Repo
	Catalog *catalog.Repo
}

func (h *CartHandler) Register(r *chi.Mux) {
	r.Route("/users/{userID}/cart", func(r chi.Router) {
		r.Get("/", h.getCart)
		r.Post("/items", h.addItem)
		r.Delete("/items/{productID}", h.removeItem)
		r.Delete("/", h.clearCart)
	})
}

func (h *CartHandler) getCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	c, err := h.Carts.GetOrCreate(ctx, chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": c.UserID,
		"items":   c.Items,
		"total":   c.Total(),
	})
}

// addItem snapshots the product's current effective price into the cart.
// Later price changes on the product do not touch the snapshot. Also used to
// change quantity (same upsert).
func (h *CartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var req AddItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.ProductID == "" || req.Qty < 1 {
		writeError(w, http.StatusBadRequest, "missing product_id or invalid qty")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Catalog.Get(ctx, req.ProductID)
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if p.InStock < req.Qty {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("insufficient stock for %q", p.Name))
		return
	}

	it := cart.Item{
		ProductID: p.ID,
		Name:      p.Name,
		Qty:       req.Qty,
		Price:     p.EffectivePrice(),
	}
	if err := h.Carts.UpsertItem(ctx, userID, it); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (h *CartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	err := h.Carts.RemoveItem(ctx, chi.URLParam(r, "userID"), chi.URLParam(r, "productID"))
	if errors.Is(err, cart.ErrItemNotFound) {
		writeError(w, http.StatusNotFound, "item not in cart")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Carts.Clear(ctx, chi.URLParam(r, "userID")); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
