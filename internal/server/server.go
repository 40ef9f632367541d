package server

/*
Файл server.go — HTTP-периметр containment-подсистемы.
Внешний периметр (gateway) уже снял аутентификацию; здесь остаются
инфраструктурные middleware и отсечение отозванных пользователей
по in-memory кэшу kill switch.
*/

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/skillancer/securedesk/internal/infra"
	"github.com/skillancer/securedesk/internal/killswitch"
)

type Server struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	// Кэш отозванных пользователей (hot path, RAM)
	revoked *killswitch.RevokedUserCache

	// Обработчики бизнес-доменов
	violationHandler  *ViolationHandler  // /v1/violations
	killSwitchHandler *KillSwitchHandler // /v1/killswitch
	policyHandler     *PolicyHandler     // /v1/policies
	watermarkHandler  *WatermarkHandler  // /v1/watermark
}

// NewServer инициализирует периметр со всеми зависимостями
func NewServer(
	cfg *infra.Config,
	logger *zap.Logger,
	revoked *killswitch.RevokedUserCache,
	violationH *ViolationHandler,
	killSwitchH *KillSwitchHandler,
	policyH *PolicyHandler,
	watermarkH *WatermarkHandler,
) *Server {
	s := &Server{
		router:            chi.NewRouter(),
		logger:            logger.Named("containment-api"),
		cfg:               cfg,
		revoked:           revoked,
		violationHandler:  violationH,
		killSwitchHandler: killSwitchH,
		policyHandler:     policyH,
		watermarkHandler:  watermarkH,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- 2. ОТКРЫТЫЕ РОУТЫ (без идентичности пользователя) ---
	r.Group(func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		// Кодеки watermark: внутренний сервис для рендер-пайплайна сессий
		r.Route("/v1/watermark/{codec}", func(r chi.Router) {
			r.Post("/embed", s.watermarkHandler.Embed)
			r.Post("/extract", s.watermarkHandler.Extract)
			r.Post("/capacity", s.watermarkHandler.Capacity)
			r.Post("/analyze", s.watermarkHandler.Analyze) // Только DWT
		})
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (идентичность в X-User-ID) ---
	r.Group(func(r chi.Router) {
		// Отозванный пользователь получает 403 до любого хендлера
		r.Use(s.revoked.Middleware)

		// Нарушения изоляции (Detector)
		r.Route("/v1/violations", func(r chi.Router) {
			r.Post("/", s.violationHandler.Record)      // Событие от агента сессии
			r.Get("/", s.violationHandler.List)         // Выборка с фильтрами
			r.Get("/summary", s.violationHandler.Summary)
			r.Post("/{id}/review", s.violationHandler.Review) // Разбор оператором ИБ
		})

		// Kill Switch (каскадный отзыв доступа)
		r.Route("/v1/killswitch", func(r chi.Router) {
			r.Post("/execute", s.killSwitchHandler.Execute)
			r.Get("/events", s.killSwitchHandler.ListEvents)
			r.Get("/events/{id}", s.killSwitchHandler.GetEvent)
			r.Get("/stats", s.killSwitchHandler.Stats)
			r.Route("/users/{userId}", func(r chi.Router) {
				r.Get("/blocked", s.killSwitchHandler.IsBlocked)
				r.Post("/reinstate", s.killSwitchHandler.Reinstate)
				r.Get("/revocations", s.killSwitchHandler.RevocationHistory)
			})
		})

		// Политики изоляции (Control Plane CRUD + инвалидация кэша)
		r.Route("/v1/policies", func(r chi.Router) {
			r.Put("/", s.policyHandler.Upsert)
			r.Route("/{tenantId}", func(r chi.Router) {
				r.Get("/", s.policyHandler.Get)
				r.Delete("/", s.policyHandler.Delete)
			})
		})
	})
}

// ServeHTTP позволяет использовать Server как стандартный http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
