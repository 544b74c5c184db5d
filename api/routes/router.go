package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/lms-notifications/api/controllers"
	"github.com/angelmondragon/lms-notifications/api/middleware"
	"github.com/angelmondragon/lms-notifications/internal/enrollments"
	"github.com/angelmondragon/lms-notifications/internal/notifications"
	pkgauth "github.com/angelmondragon/lms-notifications/pkg/auth"
	"github.com/angelmondragon/lms-notifications/pkg/auth/session"
	"github.com/angelmondragon/lms-notifications/pkg/config"
	"github.com/angelmondragon/lms-notifications/pkg/enums"
	"github.com/angelmondragon/lms-notifications/pkg/logger"
)

// Params carries everything the HTTP surface depends on.
type Params struct {
	Config        *config.Config
	Logger        *logger.Logger
	Sessions      session.AccessSessionChecker
	Notifications notifications.Service
	Enrollments   enrollments.Provider
	Hubs          controllers.HubSource
	Health        map[string]controllers.Pinger
	Metrics       prometheus.Gatherer
}

func NewRouter(p Params) http.Handler {
	cfg := p.Config
	logg := p.Logger
	svc := p.Notifications

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.Realtime.AllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.Health))
	})

	gatherer := p.Metrics
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	auth := middleware.Auth(pkgauth.NewVerifier(cfg.JWT), p.Sessions, logg)

	r.With(auth).Get("/ws", controllers.Websocket(controllers.WebsocketParams{
		Hubs:           p.Hubs,
		Enrollments:    p.Enrollments,
		Unread:         svc,
		AllowedOrigins: cfg.Realtime.AllowedOrigins,
		Logger:         logg,
	}))

	r.Route("/api/v1/notifications", func(r chi.Router) {
		r.Use(auth)
		r.Get("/", controllers.ListNotifications(svc, logg))
		r.Post("/", controllers.CreateNotification(svc, logg))
		r.Get("/unread-count", controllers.UnreadNotificationCount(svc, logg))
		r.Post("/read-all", controllers.MarkAllNotificationsRead(svc, logg))
		r.Get("/stats", controllers.NotificationStats(svc, logg))
		r.Route("/{notificationId}", func(r chi.Router) {
			r.Get("/", controllers.GetNotification(svc, logg))
			r.Patch("/", controllers.UpdateNotification(svc, logg))
			r.Delete("/", controllers.DeleteNotification(svc, logg))
			r.Post("/read", controllers.MarkNotificationRead(svc, logg))
		})
	})

	r.Route("/api/admin/v1/notifications", func(r chi.Router) {
		r.Use(auth)
		r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
		r.Get("/", controllers.AdminListNotifications(svc, logg))
	})

	return r
}
