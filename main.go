package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	apirest "github.com/ft-transcendence/server/api/rest"
	apisse "github.com/ft-transcendence/server/api/sse"
	apows "github.com/ft-transcendence/server/api/ws"
	"github.com/ft-transcendence/server/audit"
	"github.com/ft-transcendence/server/auth"
	"github.com/ft-transcendence/server/cache"
	"github.com/ft-transcendence/server/chat"
	"github.com/ft-transcendence/server/config"
	dbadapter "github.com/ft-transcendence/server/db"
	"github.com/ft-transcendence/server/mailer"
	mw "github.com/ft-transcendence/server/middleware"
	"github.com/ft-transcendence/server/model"
	"github.com/ft-transcendence/server/presence"
	"github.com/ft-transcendence/server/scheduler"
	"github.com/ft-transcendence/server/social"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const auditRetention = 90 * 24 * time.Hour

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	// Warn loudly if admin endpoints will be disabled.
	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized")

	// ---- Audit ----
	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(nil)

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized")

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()

	// ---- Presence ----
	sm := presence.NewSessionManager(c, logger)
	defer sm.CloseAll()

	// ---- Services ----
	events := social.NewEvents(pubsub, logger)
	socialSvc := social.NewService(db, events, logger)
	chatSvc := chat.NewService(db, c, pubsub, sm, cfg.Social, logger)

	oauthSvc := auth.NewOAuth(cfg.OAuth, db, cfg.Social.DefaultAvatar)
	tfaSvc := auth.NewTwoFA(c, mailer.New(cfg.SMTP), cfg.Social.TFACodeTTL)

	// ---- WS Router ----
	wsRouter := apows.NewRouter(logger)
	apows.NewStatusHandlers(sm, logger).RegisterHandlers(wsRouter)
	apows.NewChatHandlers(chatSvc, logger).RegisterHandlers(wsRouter)

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))
	r.Use(mw.AuditLog(auditSvc))

	corsCfg := cors.DefaultConfig()
	if len(cfg.Security.AllowedOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.Security.AllowedOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization", "X-Admin-Key")
	corsCfg.AllowCredentials = !corsCfg.AllowAllOrigins
	r.Use(cors.New(corsCfg))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	// ---- REST API routes ----
	authH := apirest.NewAuthHandler(db, c, cfg.Security, oauthSvc, tfaSvc, logger)
	userH := apirest.NewUserHandler(db, socialSvc.Directory(), sm)
	socialH := apirest.NewSocialHandler(db, socialSvc, sm)
	chatH := apirest.NewChatHandler(chatSvc)
	lbH := apirest.NewLeaderboardHandler(db, c, logger)
	adminH := apirest.NewAdminHandler(db, sm, sched, logger)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/login", authH.Login)
		authG.GET("/redirect", authH.OAuthRedirect)
		authG.GET("/callback", authH.OAuthCallback)
		authG.POST("/tfa/validate", authH.ValidateTFA)
		authG.POST("/logout", mw.Auth(cfg.Security, c), authH.Logout)
		authG.POST("/refresh", mw.Auth(cfg.Security, c), authH.Refresh)
		authG.POST("/tfa/enable", mw.Auth(cfg.Security, c), authH.EnableTFA)
		authG.POST("/tfa/disable", mw.Auth(cfg.Security, c), authH.DisableTFA)

		usersG := api.Group("/users")
		usersG.Use(mw.Auth(cfg.Security, c))
		usersG.GET("/me", userH.Me)
		usersG.PATCH("/me", userH.Update)
		usersG.GET("/:nick", userH.Card)

		socialG := api.Group("/social")
		socialG.Use(mw.Auth(cfg.Security, c))
		socialG.POST("/friends/request", socialH.SendFriendRequest)
		socialG.GET("/friends", socialH.ListFriends)
		socialG.DELETE("/friends/:nick", socialH.RemoveFriend)
		socialG.GET("/notifications", socialH.ListNotifications)
		socialG.POST("/notifications/:id/accept", socialH.AcceptFriend)
		socialG.POST("/notifications/:id/block", socialH.BlockByNotification)
		socialG.DELETE("/notifications/:id", socialH.RejectNotification)
		socialG.POST("/blocked", socialH.AddBlocked)
		socialG.DELETE("/blocked/:nick", socialH.RemoveBlocked)

		chatsG := api.Group("/chats")
		chatsG.Use(mw.Auth(cfg.Security, c))
		chatsG.POST("/direct", chatH.CreateDirect)
		chatsG.POST("/group", chatH.CreateGroup)
		chatsG.POST("/:id/join", chatH.Join)
		chatsG.POST("/:id/leave", chatH.Leave)
		chatsG.PATCH("/:id", chatH.Rename)
		chatsG.POST("/:id/ban", chatH.Ban)
		chatsG.POST("/:id/mute", chatH.Mute)
		chatsG.POST("/:id/unmute", chatH.Unmute)
		chatsG.POST("/:id/promote", chatH.Promote)
		chatsG.POST("/:id/messages", chatH.SendMessage)
		chatsG.GET("/:id/messages", chatH.History)

		api.GET("/leaderboard", mw.Auth(cfg.Security, c), lbH.Top)
		api.POST("/matches", mw.Auth(cfg.Security, c), lbH.RecordMatch)

		adminG := api.Group("/admin")
		adminG.Use(mw.IPWhitelist(cfg.Security.AdminIPs))
		adminG.Use(apirest.AdminAuth(cfg.Server.AdminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.GET("/online", adminH.ListOnline)
		adminG.POST("/kick/:id", adminH.Kick)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
		adminG.POST("/leaderboard/refresh", lbH.Refresh)
	}

	// ---- Periodic Scheduler Tasks ----
	sched.AddTicker("leaderboard_refresh", 5*time.Minute, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// One replica rebuilds per interval; the lock outlives the
		// rebuild but not the next tick.
		ok, err := c.SetNX(ctx, "lock:leaderboard_refresh", "1", 4*time.Minute)
		if err != nil || !ok {
			return
		}
		if n, err := lbH.RebuildCache(ctx); err != nil {
			logger.Warn("leaderboard refresh failed", zap.Error(err))
		} else {
			logger.Debug("leaderboard refreshed", zap.Int("entries", n))
		}
	})
	sched.AddTicker("audit_trim", 24*time.Hour, func() {
		auditSvc.TrimBefore(time.Now().Add(-auditRetention))
	})
	sched.AddTicker("presence_sweep", time.Minute, func() {
		sm.Sweep()
	})

	// ---- WebSocket ----
	wsH := apows.NewHandler(db, c, pubsub, cfg.Security, sm, wsRouter, logger)
	r.GET("/ws", wsH.ServeWS)

	// ---- SSE ----
	sseH := apisse.NewHandler(db, pubsub, c, cfg.Security, logger)
	r.GET("/sse", sseH.ServeSSE)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
