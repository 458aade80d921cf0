package main

import (
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"chatrelay/internal/agent"
	"chatrelay/internal/api"
	"chatrelay/internal/chat"
	"chatrelay/internal/config"
	"chatrelay/internal/gateway"
	"chatrelay/internal/imagegen"
	"chatrelay/internal/storage"
	"chatrelay/internal/store"
)

func main() {
	cfgPath := os.Getenv("CHATRELAY_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := storage.Open(cfg.BasicConfig.DatabasePath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	if err := storage.Migrate(db); err != nil {
		db.Close()
		log.Fatalf("migrate database: %v", err)
	}

	queueSize := cfg.BasicConfig.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	gw := gateway.Open(db, queueSize)
	defer func() {
		if err := gw.Close(); err != nil {
			log.Printf("close gateway: %v", err)
		}
	}()

	st, err := store.New(gw)
	if err != nil {
		log.Fatalf("init store: %v", err)
	}

	runner, err := agent.New(cfg, cfg.BasicConfig.DefaultProvider)
	if err != nil {
		log.Fatalf("init agent: %v", err)
	}

	orch := chat.New(st, runner,
		time.Duration(cfg.BasicConfig.StreamDebounceMS)*time.Millisecond,
		time.Duration(cfg.BasicConfig.WebCacheTTLSec)*time.Second,
	)

	var images *imagegen.Client
	if cfg.ImageGen.BaseURL != "" {
		images, err = imagegen.NewClient(cfg.ImageGen.BaseURL, cfg.ImageGen.APIKey, cfg.ImageGen.Model)
		if err != nil {
			log.Fatalf("init image client: %v", err)
		}
	} else {
		log.Printf("image api not configured, image routes disabled")
	}

	handlers := api.NewHandler(st, orch, images,
		time.Duration(cfg.BasicConfig.TurnTimeoutSec)*time.Second)

	router := gin.Default()
	router.Use(api.CORSMiddleware())
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}
	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
