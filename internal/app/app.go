package app

import (
	"log/slog"
	"net/http"

	"gorm.io/gorm"

	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/config"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/service"
)

type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Server  *http.Server
	DB      *gorm.DB
	Janitor *service.TokenJanitor
}

func New(cfg *config.Config, logger *slog.Logger, server *http.Server, db *gorm.DB, janitor *service.TokenJanitor) *App {
	return &App{Config: cfg, Logger: logger, Server: server, DB: db, Janitor: janitor}
}
