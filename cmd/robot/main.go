package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/open-teleop/omnidrive/domain/diagnostic"
	"github.com/open-teleop/omnidrive/domain/drive"
	"github.com/open-teleop/omnidrive/domain/kinematics"
	"github.com/open-teleop/omnidrive/pkg/api"
	"github.com/open-teleop/omnidrive/pkg/bus"
	"github.com/open-teleop/omnidrive/pkg/config"
	"github.com/open-teleop/omnidrive/pkg/discovery"
	customlog "github.com/open-teleop/omnidrive/pkg/log"
	"github.com/open-teleop/omnidrive/pkg/processing"
	"github.com/open-teleop/omnidrive/pkg/telemetry"
	"github.com/open-teleop/omnidrive/pkg/zeromq"
	"github.com/open-teleop/omnidrive/services"
)

func main() {
	configDir := flag.String("config", envOr("OMNIDRIVE_CONFIG_DIR", "configs"), "directory holding robot_config.yaml")
	spiTest := flag.String("spi-test", "", "send one frame with the given comma-separated wheel speeds and exit")
	flag.Parse()

	cfg, err := config.LoadRobotConfig(*configDir)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := customlog.NewLogrusLogger(cfg.Logging.Level, cfg.Logging.LogPath, "robot")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	motorBus, err := bus.Open(cfg.Bus, appLogger.WithField("component", "bus"))
	if err != nil {
		appLogger.Fatalf("Failed to open motor bus: %v", err)
	}

	if *spiTest != "" {
		code := runBusTest(motorBus, *spiTest)
		motorBus.Close()
		os.Exit(code)
	}

	// Get port from environment variable or use the configured one
	port := cfg.Server.HTTPPort
	if p := os.Getenv("PORT"); p != "" {
		if port, err = strconv.Atoi(p); err != nil {
			appLogger.Fatalf("Invalid PORT %q: %v", p, err)
		}
	}

	if err := os.MkdirAll(cfg.Data.Directory, 0755); err != nil {
		appLogger.Fatalf("Failed to create data directory %s: %v", cfg.Data.Directory, err)
	}
	geometryService, err := services.NewGeometryService(cfg.Data.GeometryPath(), cfg.InitialGeometry(), appLogger.WithField("component", "geometry"))
	if err != nil {
		appLogger.Fatalf("Failed to initialize geometry: %v", err)
	}

	// Initialize domain services
	diagnosticService := diagnostic.NewDiagnosticService(appLogger.WithField("component", "diagnostic"))
	driveService := drive.NewService(motorBus, geometryService, drive.Options{
		Tick:        cfg.Drive.Tick(),
		StopTimeout: cfg.Drive.StopTimeout(),
		Limiter:     kinematics.Limiter{MaxWheelSpeed: cfg.Drive.MaxWheelSpeed},
	}, appLogger.WithField("component", "drive"), diagnosticService)
	diagnosticService.SetDrive(driveService)

	publishers := processing.NewFanoutPublisher(appLogger)
	havePublishers := false

	var zmqService *zeromq.ZeroMQService
	if cfg.ZeroMQ.Enabled {
		zmqService, err = zeromq.NewZeroMQService(zeromq.Config{
			CommandBindAddress:   cfg.ZeroMQ.CommandBindAddress,
			TelemetryBindAddress: cfg.ZeroMQ.TelemetryBindAddress,
		}, appLogger.WithField("component", "zeromq"))
		if err != nil {
			appLogger.Fatalf("Failed to create ZeroMQ service: %v", err)
		}
		zeromq.RegisterDriveHandlers(zmqService, driveService, func() interface{} {
			return diagnosticService.Report()
		}, appLogger)
		geometryService.SetPublisher(zeromq.NewConfigPublisher(zmqService, appLogger))
		publishers.Add(zmqService)
		havePublishers = true
	}

	var redisPublisher *telemetry.RedisPublisher
	if cfg.Redis.Enabled {
		redisPublisher = telemetry.NewRedisPublisher(cfg.Redis, appLogger.WithField("component", "redis"))
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := redisPublisher.Connect(ctx)
		cancel()
		if err != nil {
			appLogger.Warnf("Redis unavailable, telemetry will not be stored: %v", err)
			redisPublisher.Close()
			redisPublisher = nil
		} else {
			publishers.Add(redisPublisher)
			havePublishers = true
		}
	}

	var reporter *telemetry.Reporter
	if havePublishers {
		reporter = telemetry.NewReporter(publishers, appLogger.WithField("component", "telemetry"))
		driveService.AddObserver(reporter)
		diagnosticService.SetPublisherMetrics(reporter.Metrics)
		reporter.Start()
	}

	if zmqService != nil {
		if err := zmqService.Start(); err != nil {
			appLogger.Fatalf("Failed to start ZeroMQ service: %v", err)
		}
	}
	driveService.Start()

	// Create a new Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "omnidrive robot",
		ErrorHandler: customErrorHandler,
	})
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		status := "healthy"
		if driveService.Faulted() {
			status = "faulted"
		}
		return c.JSON(fiber.Map{"status": status})
	})

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get(discovery.ControlPath, websocket.New(func(c *websocket.Conn) {
		api.ControlWebSocketHandler(c, driveService, diagnosticService, appLogger.WithField("component", "control"))
	}))

	drive.RegisterRoutes(app, driveService, appLogger)
	diagnosticService.RegisterRoutes(app)
	api.RegisterConfigRoutes(app, geometryService, appLogger)

	if cfg.Server.StaticDir != "" {
		app.Static("/", cfg.Server.StaticDir)
	} else {
		app.Get("/", func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{
				"status":  "online",
				"service": "omnidrive robot",
			})
		})
	}

	var advertiser *discovery.Advertiser
	if cfg.Discovery.Enabled {
		advertiser = discovery.NewAdvertiser(cfg.Discovery.Instance, port, appLogger.WithField("component", "discovery"))
		if err := advertiser.Start(); err != nil {
			appLogger.Warnf("Failed to advertise robot: %v", err)
			advertiser = nil
		}
	}

	// Start server in a goroutine
	go func() {
		appLogger.Infof("Server starting on port %d", port)
		if err := app.Listen(fmt.Sprintf(":%d", port)); err != nil {
			appLogger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Set up graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Infof("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if advertiser != nil {
		advertiser.Stop()
	}
	if err := app.ShutdownWithContext(ctx); err != nil {
		appLogger.Errorf("Server forced to shutdown: %v", err)
	}
	if err := driveService.Stop(ctx); err != nil {
		appLogger.Errorf("Drive did not stop cleanly: %v", err)
	}
	if reporter != nil {
		reporter.Stop()
	}
	if zmqService != nil {
		zmqService.Stop()
	}
	if redisPublisher != nil {
		redisPublisher.Close()
	}

	appLogger.Infof("Robot exited properly")
}

// Custom error handler
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
