package main

import (
	"net/http"

	"socialflow/config"
	"socialflow/database"
	"socialflow/handlers"
	"socialflow/middleware"
	"socialflow/publishers"
	"socialflow/services"
	"socialflow/utils"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/mux"
)

func main() {
	cfg := config.Load()

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		utils.Errorf("failed to connect to database: %v", err)
		return
	}

	client := resty.New().SetTimeout(cfg.AdapterTimeout)
	registry := publishers.NewRegistry(client)
	notifier := services.NewStoreNotifier(db)

	dispatcher := services.NewDispatcher(db, db, notifier, registry, services.DispatcherConfig{
		BatchSize:      cfg.DispatchBatch,
		AdapterTimeout: cfg.AdapterTimeout,
		FanOutLimit:    cfg.FanOutLimit,
		ClaimLease:     cfg.ClaimLease,
	})

	scheduler := services.NewScheduler(dispatcher, cfg.DispatchInterval)
	if err := scheduler.Start(); err != nil {
		utils.Errorf("failed to start scheduler: %v", err)
		return
	}
	defer scheduler.Stop()

	authService := services.NewAuthService(cfg.JWTSecret)
	handler := handlers.NewHandler(db, dispatcher, cfg.CronSecret)

	r := setupRoutes(handler, authService, cfg)

	utils.Infof("server starting on port %s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		utils.Errorf("server error: %v", err)
	}
}

func setupRoutes(h *handlers.Handler, authService *services.AuthService, cfg *config.Config) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.CORS(cfg.AllowedOrigins))

	limiter := middleware.NewRateLimiter(10, 30)
	r.Use(limiter.Limit())

	// Public routes
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")

	// Cron trigger; may also be invoked by an external scheduler.
	r.HandleFunc("/cron/publish-scheduled", h.DispatchScheduled).Methods("POST")

	// Protected routes
	protected := r.PathPrefix("/api").Subrouter()
	protected.Use(middleware.AuthMiddleware(authService))

	// Posts
	protected.HandleFunc("/posts", h.CreatePost).Methods("POST")
	protected.HandleFunc("/posts", h.GetPosts).Methods("GET")
	protected.HandleFunc("/posts/calendar", h.GetCalendarPosts).Methods("GET")
	protected.HandleFunc("/posts/bulk-reschedule", h.BulkReschedule).Methods("POST")
	protected.HandleFunc("/posts/{id}", h.GetPost).Methods("GET")
	protected.HandleFunc("/posts/{id}", h.UpdatePost).Methods("PUT")
	protected.HandleFunc("/posts/{id}", h.DeletePost).Methods("DELETE")
	protected.HandleFunc("/posts/{id}/publish", h.PublishNow).Methods("POST")

	// Social accounts
	protected.HandleFunc("/social/accounts", h.SaveConnection).Methods("POST")
	protected.HandleFunc("/social/accounts", h.GetConnections).Methods("GET")
	protected.HandleFunc("/social/accounts/{id}", h.DisconnectAccount).Methods("DELETE")

	// Notifications
	protected.HandleFunc("/notifications", h.GetNotifications).Methods("GET")
	protected.HandleFunc("/notifications/count", h.GetUnreadCount).Methods("GET")
	protected.HandleFunc("/notifications/mark-all-read", h.MarkAllNotificationsRead).Methods("POST")
	protected.HandleFunc("/notifications/{id}/read", h.MarkNotificationRead).Methods("POST")
	protected.HandleFunc("/notifications/{id}", h.DeleteNotification).Methods("DELETE")

	return r
}
