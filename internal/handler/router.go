package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/library-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware библиотечного сервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.GzipMiddleware)
	r.Use(middleware.Logger(h.logger))
	if h.rateLimiter != nil {
		r.Use(h.rateLimiter.Middleware)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", h.Signup)
			r.Post("/login", h.Login)
			r.Post("/staff/login", h.StaffLogin)
			r.Post("/logout", h.Logout)
		})

		r.Get("/books", h.SearchBooks)
		r.Get("/books/{id}", h.GetBook)
		r.Get("/authors", h.ListAuthors)
		r.Get("/categories", h.ListCategories)
		r.Get("/branches", h.ListBranches)
		r.Get("/packages", h.ListPackages)

		r.Route("/borrow", func(r chi.Router) {
			r.Use(h.authMiddleware.Optional)

			r.Post("/", h.RequestHold)
			r.Get("/", h.ListHolds)
			r.Put("/", h.ConfirmPickup)
			r.Delete("/", h.CancelHold)
			r.Post("/return", h.ReturnLoan)
		})

		r.Route("/me", func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/", h.Profile)
			r.Get("/loans", h.LoanHistory)
			r.Post("/renew", h.Renew)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)
			r.Use(middleware.RequireRole(middleware.RoleLibrarian, middleware.RoleAdmin))

			r.Route("/books", func(r chi.Router) {
				r.Get("/", h.SearchBooks)
				r.Post("/", h.CreateBook)
				r.Post("/import", h.ImportBook)
				r.Put("/{id}", h.UpdateBook)
				r.Put("/{id}/lost", h.SetBookLost)
				r.Delete("/{id}", h.DeleteBook)
			})

			r.Route("/authors", func(r chi.Router) {
				r.Get("/", h.ListAuthors)
				r.Post("/", h.CreateAuthor)
				r.Put("/{id}", h.UpdateAuthor)
				r.Delete("/{id}", h.DeleteAuthor)
			})

			r.Route("/categories", func(r chi.Router) {
				r.Get("/", h.ListCategories)
				r.Post("/", h.CreateCategory)
				r.Put("/{id}", h.UpdateCategory)
				r.Delete("/{id}", h.DeleteCategory)
			})

			r.Route("/branches", func(r chi.Router) {
				r.Get("/", h.ListBranches)
				r.Post("/", h.CreateBranch)
				r.Put("/{id}", h.UpdateBranch)
				r.Delete("/{id}", h.DeleteBranch)
			})

			r.Get("/members", h.ListMembers)
			r.Put("/members/{id}/blacklist", h.SetBlacklisted)
			r.Get("/payments", h.ListPayments)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(middleware.RoleAdmin))

				r.Route("/staff", func(r chi.Router) {
					r.Get("/", h.ListStaff)
					r.Post("/", h.CreateStaff)
					r.Put("/{id}", h.UpdateStaff)
					r.Delete("/{id}", h.DeleteStaff)
				})

				r.Route("/packages", func(r chi.Router) {
					r.Get("/", h.ListPackages)
					r.Post("/", h.CreatePackage)
					r.Put("/{id}", h.UpdatePackage)
					r.Delete("/{id}", h.DeletePackage)
				})
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.writeFailure(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		h.writeFailure(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})

	return r
}
