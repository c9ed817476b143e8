package apiserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/courselab/courselab/pkg/apiserver/handlers"
	"github.com/courselab/courselab/pkg/apiserver/middleware"
	"github.com/courselab/courselab/pkg/auth"
	"github.com/courselab/courselab/pkg/config"
	"github.com/courselab/courselab/pkg/eventbus"
	"github.com/courselab/courselab/pkg/notifier"
	"github.com/courselab/courselab/pkg/store"
	"github.com/courselab/courselab/pkg/store/clickhouse"
	"github.com/courselab/courselab/pkg/store/postgres"
	"github.com/courselab/courselab/pkg/team"
	"github.com/courselab/courselab/pkg/vm"
)

type Server struct {
	router *gin.Engine
	db     *postgres.Store
	redis  redis.UniversalClient
	audit  store.AuditStore
	cfg    *config.Config
	logger *zap.Logger
	bus    *eventbus.Bus

	teams  *team.Service
	vms    *vm.Service
	quotas vm.QuotaStore
}

func NewServer(db *postgres.Store, redisClient redis.UniversalClient, cfg *config.Config, logger *zap.Logger) *Server {
	var audit store.AuditStore
	var err error

	if cfg.Logging.AuditDriver == "clickhouse" {
		logger.Info("using clickhouse for the audit trail")
		var chStore *clickhouse.AuditStore
		chStore, err = clickhouse.NewAuditStore(
			cfg.ClickHouse.Hosts[0],
			cfg.ClickHouse.Database,
			cfg.ClickHouse.User,
			cfg.ClickHouse.Password,
			logger,
		)
		if err != nil {
			logger.Fatal("failed to initialize clickhouse audit store", zap.Error(err))
		}
		if err := chStore.EnsureSchema(context.Background()); err != nil {
			logger.Fatal("failed to create clickhouse schema", zap.Error(err))
		}
		audit = chStore
	} else {
		logger.Info("using postgres for the audit trail")
		audit = postgres.NewAuditRepository(db.DB())
	}

	var bus *eventbus.Bus
	if redisClient != nil {
		bus = eventbus.NewBus(redisClient)
	}

	teamRepo := postgres.NewTeamRepository(db.DB())
	tokenRepo := postgres.NewTokenRepository(db.DB())
	dirRepo := postgres.NewDirectoryRepository(db.DB())
	vmRepo := postgres.NewVMRepository(db.DB())
	quotaRepo := postgres.NewQuotaRepository(db.DB())
	outbox := notifier.NewOutbox(postgres.NewInvitationRepository(db.DB()), logger)

	s := &Server{
		db:     db,
		redis:  redisClient,
		audit:  audit,
		cfg:    cfg,
		logger: logger,
		bus:    bus,
		teams:  team.NewService(teamRepo, tokenRepo, dirRepo, outbox, audit, bus, logger),
		vms:    vm.NewService(vmRepo, quotaRepo, teamRepo, dirRepo, audit, bus, logger),
		quotas: quotaRepo,
	}
	s.setupRouter()

	// ClickHouse enforces retention with its table TTL; postgres needs
	// the periodic sweep.
	if cfg.Logging.AuditDriver != "clickhouse" {
		go s.startAuditRetentionWorker()
	}

	return s
}

func (s *Server) startAuditRetentionWorker() {
	ticker := time.NewTicker(1 * time.Hour)
	retentionDays := 90

	for range ticker.C {
		s.logger.Info("starting audit retention cleanup", zap.Int("retention_days", retentionDays))
		if err := s.audit.DeleteOlderThan(context.Background(), retentionDays); err != nil {
			s.logger.Error("failed to cleanup old audit events", zap.Error(err))
		}
	}
}

func (s *Server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.CORS())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	tokens := auth.NewAccessTokenManager([]byte(s.cfg.Auth.JWTSecret), s.cfg.Auth.TokenTTL)

	api := r.Group("/api/v1")
	{
		api.Use(middleware.Auth(tokens))

		teamHandler := handlers.NewTeamHandler(s.teams, s.cfg.Teams.ProposalTTL, s.logger)
		api.POST("/courses/:id/teams", teamHandler.Propose)
		api.GET("/courses/:id/teams", teamHandler.ListForCourse)
		api.GET("/courses/:id/my-team", teamHandler.MyTeam)
		api.GET("/courses/:id/proposals", teamHandler.PendingProposals)
		api.GET("/teams/:id", teamHandler.Get)
		api.GET("/teams/:id/members", teamHandler.Members)
		api.POST("/confirm/:token", teamHandler.Confirm)
		api.POST("/reject/:token", teamHandler.Reject)

		vmHandler := handlers.NewVMHandler(s.vms, s.logger)
		api.POST("/teams/:id/vms", vmHandler.Create)
		api.GET("/teams/:id/vms", vmHandler.ListForTeam)
		api.GET("/vms/:id", vmHandler.Get)
		api.PUT("/vms/:id", vmHandler.Manage)
		api.DELETE("/vms/:id", vmHandler.Delete)
		api.GET("/vms/:id/owners", vmHandler.Owners)
		api.POST("/vms/:id/owners", vmHandler.ShareOwnership)

		quotaHandler := handlers.NewQuotaHandler(s.vms, s.quotas, s.logger)
		api.GET("/courses/:id/quota", quotaHandler.Get)
		api.GET("/teams/:id/usage", quotaHandler.GetUsage)
		api.PUT("/courses/:id/quota", middleware.RequireRole(auth.RoleTeacher), quotaHandler.Update)

		auditHandler := handlers.NewAuditHandler(s.audit, s.logger)
		api.GET("/audit", middleware.RequireRole(auth.RoleTeacher), auditHandler.Query)
	}

	s.router = r
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) Teams() *team.Service {
	return s.teams
}
