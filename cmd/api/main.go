package main

import (
	stdlog "log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/niwla23/containerpanel/internal/api/handler"
	"github.com/niwla23/containerpanel/internal/api/middleware"
	"github.com/niwla23/containerpanel/internal/api/websocket"
	"github.com/niwla23/containerpanel/internal/bot"
	"github.com/niwla23/containerpanel/internal/config"
	"github.com/niwla23/containerpanel/internal/docker"
	"github.com/niwla23/containerpanel/internal/lifecycle"
	"github.com/niwla23/containerpanel/internal/logger"
	"github.com/niwla23/containerpanel/internal/model"
	"github.com/niwla23/containerpanel/internal/store"
	"github.com/niwla23/containerpanel/internal/template"
)

func initDB(cfg *config.Config) *gorm.DB {
	newLogger := gormlogger.New(
		stdlog.New(os.Stdout, "\r\n", stdlog.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0700); err != nil {
		log.Fatalf("failed to create data directory: %v", err)
	}

	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	if err := db.AutoMigrate(&model.User{}, &model.Server{}, &model.Config{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var count int64
	db.Model(&model.User{}).Count(&count)
	if count == 0 {
		admin := model.User{
			Username: "admin",
			Password: "admin123",
			Role:     model.RoleAdmin,
		}
		db.Create(&admin)
		log.Info("created initial admin user, password: 'admin123'")
	}

	return db
}

func setupRouter(db *gorm.DB, cfg *config.Config, m *lifecycle.Manager, engine *docker.Client, servers *store.Servers, templates *template.Store) http.Handler {
	ginRouter := gin.Default()
	ginRouter.Use(middleware.CORSMiddleware())

	public := ginRouter.Group("/api/v1")
	{
		public.POST("/login", handler.Login(db, cfg.JWTSecret))
	}

	auth := ginRouter.Group("/api/v1")
	auth.Use(middleware.AuthMiddleware(db, cfg.JWTSecret))
	{
		// Server Management
		auth.GET("/servers", handler.ListServers(servers))
		auth.GET("/servers/:id", handler.GetServer(m))
		auth.POST("/servers", middleware.RoleCheck(model.RoleAdmin), handler.CreateServer(m))
		auth.DELETE("/servers/:id", middleware.RoleCheck(model.RoleAdmin), handler.DeleteServer(m))

		// Server Operation
		auth.GET("/servers/:id/state", handler.GetServerState(m))
		auth.GET("/servers/:id/logs", handler.GetServerLogs(m))
		auth.POST("/servers/:id/power", handler.PowerAction(m))
		auth.POST("/servers/:id/exec", handler.ExecCommand(m))

		// Templates
		auth.GET("/templates", handler.ListTemplates(templates))
		auth.GET("/templates/:name", handler.GetTemplate(templates))

		// User Management
		auth.GET("/users", handler.ListUsers(db))
		auth.POST("/users", middleware.RoleCheck(model.RoleAdmin), handler.CreateUser(db))
		auth.DELETE("/users/:id", middleware.RoleCheck(model.RoleAdmin), handler.DeleteUser(db))
		auth.PUT("/users/change-password", handler.ChangePassword(db))

		// Config Management
		auth.GET("/config/telegram", middleware.RoleCheck(model.RoleAdmin), handler.GetTelegramConfig(db))
		auth.PUT("/config/telegram", middleware.RoleCheck(model.RoleAdmin), handler.UpdateTelegramConfig(db))
	}

	ws := ginRouter.Group("/ws")
	ws.Use(middleware.AuthMiddleware(db, cfg.JWTSecret))
	{
		ws.GET("/logs", func(c *gin.Context) {
			websocket.LogStreamHandler(c, m, engine)
		})
	}

	return ginRouter
}

func getConfigValue(db *gorm.DB, key string) string {
	var config model.Config
	db.Where("key = ?", key).First(&config)
	return config.Value
}

func main() {
	cfg := config.New()
	logger.Init(cfg.LogLevel)

	db := initDB(cfg)
	servers := store.NewServers(db)
	templates := template.NewStore(cfg.TemplateDir)
	engine := docker.New(cfg.DockerHost, cfg.ProbeImage)
	manager := lifecycle.NewManager(cfg, servers, templates, engine)

	botToken := getConfigValue(db, model.ConfigKeyTelegramBotToken)
	chatID := getConfigValue(db, model.ConfigKeyTelegramChatID)
	if botToken != "" && chatID != "" {
		notifier, err := bot.NewNotifier(botToken, chatID, servers, engine)
		if err != nil {
			log.Fatalf("failed to initialize telegram bot: %v", err)
		}
		manager.SetNotifier(notifier)
		go notifier.Start()
		log.Info("telegram bot started")
	} else {
		log.Info("telegram bot not configured, skipping initialization")
	}

	router := setupRouter(db, cfg, manager, engine, servers, templates)
	log.Infof("server listening on %s", cfg.ListenAddr)

	if err := http.ListenAndServe(cfg.ListenAddr, router); err != nil {
		log.Fatalf("server failed to start: %v", err)
	}
}
