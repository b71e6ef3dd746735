// Command cartd runs a development stand-in for the remote cart service:
// the five cart endpoints behind a Bearer token, plus a dev-only token
// issuer and a Prometheus metrics endpoint. Carts live in memory; the point
// is exercising the client core end to end, not durability.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/ovenfresh/cartkit/internal/api"
	"github.com/ovenfresh/cartkit/internal/auth"
	"github.com/ovenfresh/cartkit/internal/middleware"
	"github.com/ovenfresh/cartkit/internal/models"
	"github.com/ovenfresh/cartkit/pkg/logging"
)

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func main() {
	logging.Setup()

	port := getEnv("PORT", "4000")
	secret := getEnv("JWT_SECRET", "dev-secret-change-me")
	tokenTTL := 24 * time.Hour

	srv := &cartServer{
		jwt:   auth.NewJWTManager(secret, tokenTTL),
		carts: make(map[string]*userCart),
	}

	mux := http.NewServeMux()
	authed := middleware.RequireAuth(srv.jwt, writeError)
	mux.Handle("GET /cart", authed(http.HandlerFunc(srv.handleGetCart)))
	mux.Handle("POST /cart", authed(http.HandlerFunc(srv.handleAddLine)))
	mux.Handle("PUT /cart/{id}", authed(http.HandlerFunc(srv.handleUpdateLine)))
	mux.Handle("DELETE /cart/{id}", authed(http.HandlerFunc(srv.handleDeleteLine)))
	mux.Handle("POST /cart/clear", authed(http.HandlerFunc(srv.handleClearCart)))
	mux.HandleFunc("POST /dev/token", srv.handleDevToken)
	mux.Handle("/metrics", promhttp.Handler())

	handler := middleware.Logging(middleware.CORS(mux))
	h2cHandler := h2c.NewHandler(handler, &http2.Server{})

	addr := ":" + port
	slog.Info("cartd starting", "address", addr, "url", fmt.Sprintf("http://localhost%s", addr))
	if err := http.ListenAndServe(addr, h2cHandler); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

// userCart is one user's remote cart plus the selection signature per line,
// so repeated adds of the same selection merge server-side too.
type userCart struct {
	lines      []models.CartLine
	signatures map[string]string
}

type cartServer struct {
	jwt *auth.JWTManager

	mu    sync.Mutex
	carts map[string]*userCart
}

func (s *cartServer) cartFor(userID string) *userCart {
	c, ok := s.carts[userID]
	if !ok {
		c = &userCart{signatures: make(map[string]string)}
		s.carts[userID] = c
	}
	return c
}

// selectionSignature identifies a product+size+add-on selection for merging.
func selectionSignature(itemID, size string, addOnIDs []string) string {
	ids := append([]string(nil), addOnIDs...)
	sort.Strings(ids)
	return itemID + "|" + size + "|" + strings.Join(ids, ",")
}

func (s *cartServer) handleGetCart(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	cart := s.cartFor(middleware.UserID(r.Context()))
	lines := append([]models.CartLine(nil), cart.lines...)
	s.mu.Unlock()

	writeData(w, lines)
}

func (s *cartServer) handleAddLine(w http.ResponseWriter, r *http.Request) {
	var req api.AddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.ItemID == "" {
		writeError(w, http.StatusBadRequest, "itemId is required")
		return
	}
	if req.Quantity < 1 {
		req.Quantity = 1
	}

	sig := selectionSignature(req.ItemID, req.Size, req.AddOnIDs)

	s.mu.Lock()
	cart := s.cartFor(middleware.UserID(r.Context()))
	for i, line := range cart.lines {
		if cart.signatures[line.ID] != sig {
			continue
		}
		cart.lines[i].Quantity += req.Quantity
		merged := cart.lines[i]
		s.mu.Unlock()
		writeData(w, merged)
		return
	}
	line := models.CartLine{
		ID:       uuid.New().String(),
		Quantity: req.Quantity,
		Item: models.ProductSnapshot{
			Product:      models.Product{ID: req.ItemID},
			SelectedSize: req.Size,
		},
	}
	cart.lines = append(cart.lines, line)
	cart.signatures[line.ID] = sig
	s.mu.Unlock()

	writeData(w, line)
}

func (s *cartServer) handleUpdateLine(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	lineID := r.PathValue("id")
	s.mu.Lock()
	cart := s.cartFor(middleware.UserID(r.Context()))
	for i, line := range cart.lines {
		if line.ID != lineID {
			continue
		}
		cart.lines[i].Quantity = req.Quantity
		updated := cart.lines[i]
		s.mu.Unlock()
		writeData(w, updated)
		return
	}
	s.mu.Unlock()

	writeError(w, http.StatusNotFound, "cart line not found")
}

func (s *cartServer) handleDeleteLine(w http.ResponseWriter, r *http.Request) {
	lineID := r.PathValue("id")

	s.mu.Lock()
	cart := s.cartFor(middleware.UserID(r.Context()))
	kept := cart.lines[:0]
	for _, line := range cart.lines {
		if line.ID == lineID {
			delete(cart.signatures, line.ID)
			continue
		}
		kept = append(kept, line)
	}
	cart.lines = kept
	s.mu.Unlock()

	writeData(w, map[string]bool{"removed": true})
}

func (s *cartServer) handleClearCart(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	delete(s.carts, middleware.UserID(r.Context()))
	s.mu.Unlock()

	writeData(w, map[string]bool{"cleared": true})
}

// handleDevToken issues a signed token for a caller-supplied user id. Dev
// convenience only; real credential issuance lives elsewhere.
func (s *cartServer) handleDevToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	token, err := s.jwt.Generate(req.UserID)
	if err != nil {
		slog.Error("Failed to generate token", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	writeData(w, map[string]string{"token": token})
}

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"success": false, "message": message})
}
