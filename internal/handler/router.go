package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/findmyservice/marketplace/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса маркетплейса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", h.CreateOrder)
				r.Get("/", h.GetAllOrders)

				r.Get("/user/{userID}", h.GetOrdersByUser)
				r.Get("/provider/{providerID}", h.GetOrdersByProvider)

				r.Get("/{orderID}", h.GetOrder)
				r.Delete("/{orderID}", h.DeleteOrder)
				r.Put("/{orderID}/status", h.UpdateOrderStatus)

				r.Post("/{orderID}/payment/initiate", h.InitiatePayment)
				r.Post("/{orderID}/payment/confirm", h.ConfirmPayment)
			})

			r.Post("/feedback", h.CreateFeedback)
			r.Get("/services/{serviceID}/feedback", h.GetServiceFeedback)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
