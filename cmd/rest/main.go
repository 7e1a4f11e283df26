package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"novelsync-be/internal/bootstrap"
	"novelsync-be/internal/config"
	"novelsync-be/internal/pkg/logger"
	"novelsync-be/internal/server"
	"novelsync-be/internal/tracer"
	"novelsync-be/pkg/database"

	"gorm.io/gorm"
)

func main() {
	// 0. Initialize Tracer (no-op unless OTEL_ENABLED=true)
	shutdownTracer := tracer.InitTracer("novelsync-collab")
	defer shutdownTracer(context.Background())

	// 1. Load Configuration
	cfg := config.Load()
	if cfg.Auth.JWTSecret == "" {
		log.Fatal("JWT_SECRET is not set")
	}

	// 2. Initialize Database (optional)
	var gormDB *gorm.DB
	if cfg.Database.Connection != "" {
		db, err := database.Open(context.Background(), cfg.Database.Connection, database.Options{
			Verbose:         cfg.App.Environment != "production",
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			log.Panicf("Unable to connect to GORM DB: %v", err)
		}
		defer database.Close(db)
		gormDB = db
	}

	// 3. Bootstrap Dependencies (Container)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	defer sysLogger.Sync()
	collabLogger := logger.NewIsolatedLogger(cfg.App.CollabLogFilePath)

	infra := bootstrap.ConnectInfra(gormDB, cfg)
	if infra.Bus != nil {
		defer infra.Bus.Close()
	}
	container := bootstrap.NewContainer(infra, cfg, sysLogger, collabLogger)

	// 4. Start Background Services
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	container.Start(ctx)

	// 5. Initialize Server
	srv := server.New(cfg, container)

	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		if err := srv.Shutdown(); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	// 6. Run Server
	if err := srv.Run(); err != nil {
		log.Fatal(err)
	}
}
