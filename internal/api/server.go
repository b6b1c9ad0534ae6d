package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/edvin/panel/internal/activity"
	"github.com/edvin/panel/internal/api/handler"
	mw "github.com/edvin/panel/internal/api/middleware"
	"github.com/edvin/panel/internal/certs"
	"github.com/edvin/panel/internal/config"
	"github.com/edvin/panel/internal/cron"
	"github.com/edvin/panel/internal/deploy"
	"github.com/edvin/panel/internal/engine"
	"github.com/edvin/panel/internal/firewall"
	"github.com/edvin/panel/internal/installer"
	"github.com/edvin/panel/internal/ops"
	"github.com/edvin/panel/internal/registry"
	"github.com/edvin/panel/internal/supervisor"
)

// Services holds the components the handlers call into.
type Services struct {
	Registry   *registry.Registry
	Supervisor *supervisor.Supervisor
	Installer  *installer.Installer
	Tracker    *ops.Tracker
	Engine     *engine.Engine
	Deployer   *deploy.Deployer
	Certs      *certs.Manager
	Cron       *cron.Engine
	Firewall   *firewall.Manager
	Feed       *activity.Feed
}

// Check reports whether a dependency is usable. Checks back /readyz.
type Check func(ctx context.Context) error

type Server struct {
	router   chi.Router
	logger   zerolog.Logger
	services Services
	checks   map[string]Check
	cfg      *config.Config
}

func NewServer(logger zerolog.Logger, services Services, checks map[string]Check, cfg *config.Config) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		logger:   logger,
		services: services,
		checks:   checks,
		cfg:      cfg,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
	s.router.Use(mw.CORS(s.cfg.CORSOrigins))
}

func (s *Server) setupRoutes() {
	// Prometheus metrics endpoint
	s.router.Handle("/metrics", promhttp.Handler())

	// Health check endpoints
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.Auth(s.cfg.APIToken))
		r.Use(mw.Audit(s.logger))

		// Managed services
		svc := handler.NewService(s.services.Registry, s.services.Supervisor, s.services.Installer, s.services.Feed)
		r.Get("/services", svc.List)
		r.Get("/services/{id}", svc.Get)
		r.Post("/services/{id}/install", svc.Install)
		r.Post("/services/{id}/uninstall", svc.Uninstall)
		r.Post("/services/{id}/start", svc.Action)
		r.Post("/services/{id}/stop", svc.Action)
		r.Post("/services/{id}/restart", svc.Action)
		r.Put("/services/{id}/default", svc.SetDefault)
		r.Get("/services/{id}/config", svc.GetConfig)
		r.Put("/services/{id}/config", svc.UpdateConfig)
		r.Get("/services/{id}/logs", svc.Logs)
		r.Get("/services/{id}/versions/{version}/extensions", svc.Extensions)
		r.Post("/services/{id}/versions/{version}/extensions", svc.InstallExtension)
		r.Put("/services/{id}/versions/{version}/extensions/{ext}", svc.ToggleExtension)

		// Operations
		op := handler.NewOperation(s.services.Tracker, s.services.Installer)
		r.Get("/operations", op.List)
		r.Get("/operations/{id}", op.Get)
		r.Post("/operations/{id}/abort", op.Abort)

		// Docker
		docker := handler.NewDocker(s.services.Engine)
		r.Get("/docker/containers", docker.ListContainers)
		r.Get("/docker/containers/{id}", docker.Inspect)
		r.Delete("/docker/containers/{id}", docker.RemoveContainer)
		r.Post("/docker/containers/{id}/start", docker.Action)
		r.Post("/docker/containers/{id}/stop", docker.Action)
		r.Post("/docker/containers/{id}/restart", docker.Action)
		r.Get("/docker/containers/{id}/logs", docker.Logs)
		r.Get("/docker/containers/{id}/stats", docker.Stats)
		r.Get("/docker/networks", docker.ListNetworks)
		r.Post("/docker/networks", docker.CreateNetwork)
		r.Delete("/docker/networks/{id}", docker.RemoveNetwork)
		r.Post("/docker/networks/{id}/connect", docker.NetworkMembership)
		r.Post("/docker/networks/{id}/disconnect", docker.NetworkMembership)
		r.Get("/docker/images", docker.ListImages)
		r.Delete("/docker/images/{id}", docker.RemoveImage)
		r.Get("/docker/volumes", docker.ListVolumes)
		r.Post("/docker/volumes", docker.CreateVolume)
		r.Delete("/docker/volumes/{name}", docker.RemoveVolume)

		// App store
		tmpl := handler.NewTemplate(s.services.Deployer)
		r.Get("/templates", tmpl.List)
		r.Get("/templates/categories", tmpl.Categories)
		r.Get("/templates/{id}", tmpl.Get)
		r.Post("/templates/{id}/deploy", tmpl.Deploy)

		// Certificates
		cert := handler.NewCertificate(s.services.Certs)
		r.Get("/ssl", cert.List)
		r.Post("/ssl", cert.Issue)
		r.Post("/ssl/self-signed", cert.SelfSigned)
		r.Post("/ssl/custom", cert.Upload)
		r.Get("/ssl/expiry", cert.CheckExpiry)
		r.Get("/ssl/{id}", cert.Get)
		r.Delete("/ssl/{id}", cert.Delete)
		r.Post("/ssl/{id}/renew", cert.Renew)

		// Cron
		cronJob := handler.NewCron(s.services.Cron)
		r.Get("/cron", cronJob.List)
		r.Post("/cron", cronJob.Create)
		r.Get("/cron/{id}", cronJob.Get)
		r.Put("/cron/{id}", cronJob.Update)
		r.Delete("/cron/{id}", cronJob.Delete)
		r.Post("/cron/{id}/run", cronJob.Run)
		r.Post("/cron/{id}/enable", cronJob.Toggle)
		r.Post("/cron/{id}/disable", cronJob.Toggle)
		r.Get("/cron/{id}/history", cronJob.History)

		// Firewall
		fw := handler.NewFirewall(s.services.Firewall)
		r.Get("/firewall", fw.List)
		r.Post("/firewall", fw.Create)
		r.Delete("/firewall/{id}", fw.Delete)
		r.Post("/firewall/evaluate", fw.Evaluate)
		r.Post("/firewall/apply", fw.Apply)

		// Activity
		act := handler.NewActivity(s.services.Feed)
		r.Get("/activity", act.List)

		events := handler.NewEvents(s.services.Supervisor, s.cfg.CORSOrigins)
		r.Get("/events", events.Stream)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
		} else {
			checks[name] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(checks)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
