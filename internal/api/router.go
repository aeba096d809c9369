package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter wires every route. feed serves the stock WebSocket and may be nil.
// The request timeout applies to /api only so long-lived sockets are not cut off.
func NewRouter(h *Handler, feed http.Handler, timeout time.Duration) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(h.Logger))
	r.Use(middleware.Recoverer)

	// Enable CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.Health)
	if feed != nil {
		r.Handle("/ws", feed)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))

		// Public endpoints
		r.Post("/auth/register", h.Register)
		r.Post("/auth/login", h.Login)
		r.Get("/products", h.ListProducts)

		// Protected endpoints (require JWT)
		r.Group(func(r chi.Router) {
			r.Use(h.JWTAuthMiddleware)
			r.Post("/products", h.CreateProduct)
			r.Post("/products/buy", h.Buy)
			r.Post("/cart/quote", h.Quote)
			r.Get("/orders", h.OrderHistory)
			r.Get("/seller/products", h.SellerProducts)
			r.Get("/seller/orders", h.SellerOrders)
			r.Get("/users", h.ListUsers)
			r.Post("/users", h.CreateUser)
		})
	})

	return r
}
