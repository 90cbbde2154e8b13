package main

import (
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"medal/internal/auth"
	"medal/internal/clock"
	"medal/internal/config"
	"medal/internal/contest"
	"medal/internal/database"
	"medal/internal/grading"
	"medal/internal/group"
	"medal/internal/handlers"
	"medal/internal/logging"
	"medal/internal/results"
	"medal/internal/sweeper"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(os.Stdout, cfg.Logging.Level)

	db, err := database.NewGormConnection(database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run auto-migration: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	store := database.NewStore(db)
	clk := clock.System()

	resultCache := results.NewCache(redisClient)
	authService := auth.NewService(store, store, clk, logger)
	gate := contest.NewGate(store, store, clk, logger)
	grader := grading.NewGrader(store, store, clk, logger, resultCache)
	aggregator := results.NewAggregator(store, store, resultCache, logger)
	groupService := group.NewService(store, logger)

	sessionSweeper := sweeper.New(store, clk, logger,
		time.Duration(cfg.Session.SweepIntervalSeconds)*time.Second)
	sessionSweeper.Start()
	defer sessionSweeper.Stop()

	h := handlers.New(authService, gate, grader, aggregator, groupService, store, cfg.Server.CookieSecure)

	router := gin.Default()
	h.Register(router)

	logger.Info("server starting",
		"port", cfg.Server.HTTPPort,
		"database", cfg.Database.Host+":"+cfg.Database.Port+"/"+cfg.Database.DBName,
		"redis", cfg.Redis.Addr)

	if err := router.Run(":" + cfg.Server.HTTPPort); err != nil {
		log.Fatalf("Failed to start HTTP server: %v", err)
	}
}
