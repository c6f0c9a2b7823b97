package server

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dukerupert/familyq/internal/backup"
	"github.com/dukerupert/familyq/internal/clock"
	"github.com/dukerupert/familyq/internal/config"
	"github.com/dukerupert/familyq/internal/handler"
	"github.com/dukerupert/familyq/internal/insight"
	"github.com/dukerupert/familyq/internal/middleware"
	"github.com/dukerupert/familyq/internal/push"
	"github.com/dukerupert/familyq/internal/question"
	"github.com/dukerupert/familyq/internal/scheduler"
	"github.com/dukerupert/familyq/internal/store"
	ws "github.com/dukerupert/familyq/internal/websocket"
)

const (
	rateLimitCleanupInterval = 5 * time.Minute
	counselPerMinute         = 5
)

type Server struct {
	db          *sql.DB
	cfg         config.Config
	hub         *ws.Hub
	families    *store.FamilyStore
	scheduler   *scheduler.Scheduler
	questionH   *handler.QuestionHandler
	familyH     *handler.FamilyHandler
	adminH      *handler.AdminHandler
	pushH       *handler.PushHandler
	pusher      *push.Notifier
	backups     *backup.Manager
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New wires the question services, scheduler and HTTP handlers over db. A nil
// clk uses the system clock.
func New(db *sql.DB, cfg config.Config, generator insight.Generator, clk clock.Clock, logger *slog.Logger) *Server {
	if clk == nil {
		clk = clock.System()
	}
	hub := ws.NewHub(logger.With("component", "websocket"))

	families := store.NewFamilyStore(db)
	catalog := store.NewCatalogStore(db)

	notifiers := question.Notifiers{hub}
	var pushH *handler.PushHandler
	var pusher *push.Notifier
	if cfg.Push.Enabled() {
		subs := store.NewPushStore(db)
		pusher = push.NewNotifier(subs, push.NewService(cfg.Push), logger.With("component", "push"))
		pushH = handler.NewPushHandler(subs, cfg.Push.VAPIDPublicKey, logger.With("component", "push_handler"))
		notifiers = append(notifiers, pusher)
	}

	opts := question.Options{
		Clock:          clk,
		Location:       cfg.Location,
		MinMembers:     cfg.MinMembers,
		Notifier:       notifiers,
		Logger:         logger.With("component", "question"),
		InsightTimeout: cfg.InsightTimeout,
	}
	assigner := question.NewAssigner(db, opts)
	reader := question.NewReader(db, assigner, opts)
	intake := question.NewIntake(db, generator, opts)

	sched := scheduler.New(assigner, families, catalog, scheduler.Config{
		Clock:       clk,
		Location:    cfg.Location,
		MinMembers:  cfg.MinMembers,
		Concurrency: cfg.SchedulerConcurrency,
		RunOnStart:  true,
		Logger:      logger.With("component", "scheduler"),
	})

	var backups *backup.Manager
	if cfg.Backup.Enabled() {
		m, err := backup.NewManager(cfg.Backup, db, logger.With("component", "backup"))
		if err != nil {
			logger.Error("backup manager unavailable", "error", err)
		}
		backups = m
	}

	return &Server{
		db:          db,
		cfg:         cfg,
		hub:         hub,
		families:    families,
		scheduler:   sched,
		questionH:   handler.NewQuestionHandler(reader, intake, logger.With("component", "question_handler")),
		familyH:     handler.NewFamilyHandler(families, logger.With("component", "family_handler")),
		adminH:      handler.NewAdminHandler(catalog, assigner, sched, logger.With("component", "admin")),
		pushH:       pushH,
		pusher:      pusher,
		backups:     backups,
		rateLimiter: middleware.NewRateLimiter(),
		logger:      logger,
	}
}

// Scheduler returns the daily assignment scheduler.
func (s *Server) Scheduler() *scheduler.Scheduler {
	return s.scheduler
}

// Hub returns the family event hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// Start launches the background work: the daily scheduler and scheduled
// backups when enabled, plus periodic rate limiter cleanup.
func (s *Server) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	if s.cfg.SchedulerEnabled {
		s.scheduler.Start(ctx)
	} else {
		s.logger.Info("daily scheduler disabled")
	}

	if s.backups != nil && s.cfg.BackupInterval > 0 {
		s.backups.Start(ctx, s.cfg.BackupInterval, s.cfg.BackupKeep)
		s.logger.Info("scheduled backups enabled", "interval", s.cfg.BackupInterval, "keep", s.cfg.BackupKeep)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(rateLimitCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.rateLimiter.Cleanup()
			}
		}
	}()
}

// Stop halts the background work started by Start and waits for it,
// including push deliveries already queued.
func (s *Server) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.scheduler.Stop()
	if s.backups != nil {
		s.backups.Stop()
	}
	s.wg.Wait()
	if s.pusher != nil {
		s.pusher.Wait()
	}
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()
	outerMux.HandleFunc("GET /health", s.healthHandler)

	adminMux := http.NewServeMux()
	s.registerAdminRoutes(adminMux)
	outerMux.Handle("/api/admin/", middleware.RequireAdmin(s.cfg.AdminTokenHash)(adminMux))

	memberMux := http.NewServeMux()
	s.registerMemberRoutes(memberMux)
	outerMux.Handle("/", middleware.RequireMember(s.families)(memberMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Error("health check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) answerRateLimit(h http.HandlerFunc) http.Handler {
	rl := middleware.RateLimit(s.rateLimiter, middleware.MemberKey, s.cfg.AnswersPerMinute, time.Minute)
	return rl(h)
}

func (s *Server) counselRateLimit(h http.HandlerFunc) http.Handler {
	key := func(r *http.Request) string { return "counsel:" + middleware.MemberKey(r) }
	rl := middleware.RateLimit(s.rateLimiter, key, counselPerMinute, time.Minute)
	return rl(h)
}

func (s *Server) registerMemberRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/questions/today", s.questionH.Today)
	mux.HandleFunc("GET /api/questions/history", s.questionH.History)
	mux.HandleFunc("GET /api/questions/{id}", s.questionH.Get)
	mux.Handle("POST /api/questions/{id}/answers", s.answerRateLimit(s.questionH.SubmitAnswer))
	mux.Handle("POST /api/questions/{id}/counseling", s.counselRateLimit(s.questionH.Counsel))

	mux.HandleFunc("GET /api/family", s.familyH.Get)

	if s.pushH != nil {
		mux.HandleFunc("GET /api/push/vapid-key", s.pushH.VAPIDKey)
		mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
		mux.HandleFunc("POST /api/push/subscriptions", s.pushH.Subscribe)
		mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.pushH.Unsubscribe)
	}

	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket")))
}

func (s *Server) registerAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/admin/questions", s.adminH.ListQuestions)
	mux.HandleFunc("POST /api/admin/questions", s.adminH.CreateQuestion)
	mux.HandleFunc("DELETE /api/admin/questions/{id}", s.adminH.DeleteQuestion)

	mux.HandleFunc("POST /api/admin/families/{id}/refresh", s.adminH.Refresh)
	mux.HandleFunc("POST /api/admin/families/{id}/skip", s.adminH.Skip)

	mux.HandleFunc("POST /api/admin/sweep", s.adminH.Sweep)
}
