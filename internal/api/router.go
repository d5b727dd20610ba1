package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(LoggingMiddleware(s.log))
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORS.Origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", s.ServeWsHandler)
	r.Get("/uploads/*", s.ServeUploadHandler)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.HealthCheckHandler)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", s.RegisterHandler)
			r.Post("/login", s.LoginHandler)
			r.With(s.AuthMiddleware).Get("/verify", s.VerifyHandler)
		})

		r.Route("/barcodes", func(r chi.Router) {
			r.Use(s.AuthMiddleware)
			r.Get("/", s.ListBarcodesHandler)
			r.Post("/", s.UploadBarcodeHandler)
			r.Get("/{barcodeId}", s.GetBarcodeHandler)
			r.Put("/{barcodeId}", s.UpdateBarcodeHandler)
			r.Delete("/{barcodeId}", s.DeleteBarcodeHandler)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Route not found")
	})

	return r
}
