package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xtrntr/marketplace/internal/auth"
	"github.com/xtrntr/marketplace/internal/models"
	"github.com/xtrntr/marketplace/internal/orders"
	"github.com/xtrntr/marketplace/internal/store"
)

const maxBodyBytes = 1 << 20

// Prices are stored as NUMERIC(12, 2) and quantities as INTEGER
var maxPrice = decimal.New(1, 10)

const (
	priceDecimals = 2
	maxQuantity   = math.MaxInt32
)

// Handler contains dependencies for HTTP handlers
type Handler struct {
	Store       store.Store
	AuthService *auth.AuthService
	Orders      *orders.Coordinator
	Views       *orders.Views
	Quoter      *orders.Quoter
	Logger      *zap.Logger
}

// NewHandler creates a new handler
func NewHandler(s store.Store, authService *auth.AuthService, coordinator *orders.Coordinator, views *orders.Views, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Store:       s,
		AuthService: authService,
		Orders:      coordinator,
		Views:       views,
		Quoter:      orders.NewQuoter(s),
		Logger:      logger,
	}
}

type credentials struct {
	Username string      `json:"username"`
	Password string      `json:"password"`
	Role     models.Role `json:"role"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// Register handles shopper and seller sign-up
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decode(w, r, &req) {
		return
	}

	user, token, err := h.AuthService.Register(r.Context(), req.Username, req.Password, req.Role)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: user})
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decode(w, r, &req) {
		return
	}

	user, token, err := h.AuthService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

// ListProducts returns the whole catalog
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Store.ListProducts(r.Context())
	if err != nil {
		h.Logger.Error("failed to list products", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "Error fetching products")
		return
	}
	writeJSON(w, http.StatusOK, products)
}

// CreateProduct lets a seller add a product
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	seller, err := identityFrom(r.Context()).Seller()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req struct {
		Name     string          `json:"name"`
		Price    decimal.Decimal `json:"price"`
		Quantity int             `json:"quantity"`
	}
	if !decode(w, r, &req) {
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || len(req.Name) > 255 {
		writeError(w, http.StatusBadRequest, "Name is required (max 255 characters)")
		return
	}
	if !req.Price.IsPositive() || req.Quantity < 0 {
		writeError(w, http.StatusBadRequest, "Price must be positive and quantity non-negative")
		return
	}
	if !req.Price.Equal(req.Price.Truncate(priceDecimals)) || !req.Price.LessThan(maxPrice) {
		writeError(w, http.StatusBadRequest, "Price must have at most 2 decimal places and be below 10000000000")
		return
	}
	if req.Quantity > maxQuantity {
		writeError(w, http.StatusBadRequest, "Quantity is too large")
		return
	}

	product, err := h.Store.CreateProduct(r.Context(), &models.Product{
		Name:              req.Name,
		UnitPrice:         req.Price,
		QuantityAvailable: req.Quantity,
		SellerID:          seller.ID(),
	})
	if err != nil {
		h.Logger.Error("failed to create product", zap.Int("seller_id", seller.ID()), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "Error adding product")
		return
	}

	writeJSON(w, http.StatusCreated, product)
}

// SellerProducts lists the caller's own products
func (h *Handler) SellerProducts(w http.ResponseWriter, r *http.Request) {
	seller, err := identityFrom(r.Context()).Seller()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	products, err := h.Store.ListSellerProducts(r.Context(), seller.ID())
	if err != nil {
		h.Logger.Error("failed to list seller products", zap.Int("seller_id", seller.ID()), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "Error fetching products")
		return
	}
	writeJSON(w, http.StatusOK, products)
}

// decodeItems accepts {"items": [...]} or a bare array of items
func decodeItems(w http.ResponseWriter, r *http.Request) ([]models.ItemRequest, bool) {
	var raw json.RawMessage
	if !decode(w, r, &raw) {
		return nil, false
	}

	var items []models.ItemRequest
	var err error
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &items)
	} else {
		var req struct {
			Items []models.ItemRequest `json:"items"`
		}
		err = json.Unmarshal(trimmed, &req)
		items = req.Items
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid order items")
		return nil, false
	}
	return items, true
}

type placedResponse struct {
	Message string `json:"message"`
	*models.OrderReceipt
}

// Buy places an order for the caller
func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	buyer, err := identityFrom(r.Context()).Buyer()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	items, ok := decodeItems(w, r)
	if !ok {
		return
	}

	receipt, err := h.Orders.PlaceOrder(r.Context(), buyer, items)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, placedResponse{Message: "Order placed successfully", OrderReceipt: receipt})
}

// Quote prices a cart without reserving anything
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if _, err := identityFrom(r.Context()).Buyer(); err != nil {
		h.fail(w, r, err)
		return
	}

	items, ok := decodeItems(w, r)
	if !ok {
		return
	}

	quote, err := h.Quoter.Quote(r.Context(), items)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// OrderHistory returns the caller's orders, newest first
func (h *Handler) OrderHistory(w http.ResponseWriter, r *http.Request) {
	buyer, err := identityFrom(r.Context()).Buyer()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	history, err := h.Views.OrdersForBuyer(r.Context(), buyer)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// SellerOrders returns one row per line item sold by the caller
func (h *Handler) SellerOrders(w http.ResponseWriter, r *http.Request) {
	seller, err := identityFrom(r.Context()).Seller()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	rows, err := h.Views.OrdersForSeller(r.Context(), seller)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// ListUsers returns every user (admin only)
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	if _, err := identityFrom(r.Context()).Admin(); err != nil {
		h.fail(w, r, err)
		return
	}

	users, err := h.Store.ListUsers(r.Context())
	if err != nil {
		h.Logger.Error("failed to list users", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "Error fetching users")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// CreateUser lets an admin create a user of any role
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	admin, err := identityFrom(r.Context()).Admin()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req credentials
	if !decode(w, r, &req) {
		return
	}

	user, err := h.AuthService.CreateUser(r.Context(), req.Username, req.Password, req.Role)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.Logger.Info("user created by admin",
		zap.Int("admin_id", admin.ID()),
		zap.Int("user_id", user.ID),
		zap.String("role", string(user.Role)))
	writeJSON(w, http.StatusCreated, user)
}

// Health reports whether the store is reachable
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		h.Logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
