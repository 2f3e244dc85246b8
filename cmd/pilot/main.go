package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/open-teleop/omnidrive/domain/pilot"
	"github.com/open-teleop/omnidrive/pkg/api"
	"github.com/open-teleop/omnidrive/pkg/config"
	"github.com/open-teleop/omnidrive/pkg/discovery"
	customlog "github.com/open-teleop/omnidrive/pkg/log"
	"github.com/open-teleop/omnidrive/pkg/steamcontroller"
	"github.com/open-teleop/omnidrive/pkg/wsclient"
)

const shutdownTimeout = 500 * time.Millisecond

func main() {
	configDir := flag.String("config", envOr("OMNIDRIVE_CONFIG_DIR", "configs"), "directory holding pilot_config.yaml")
	flag.Parse()

	cfg, err := config.LoadPilotConfig(*configDir)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := customlog.NewLogrusLogger(cfg.Logging.Level, cfg.Logging.LogPath, "pilot")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	address := cfg.Robot.Address
	if cfg.Robot.Discover {
		browseCtx, cancel := context.WithTimeout(ctx, cfg.Robot.DiscoverTimeout())
		robot, err := discovery.Browse(browseCtx, appLogger.WithField("component", "discovery"))
		cancel()
		switch {
		case err == nil:
			address = robot.URL()
			appLogger.Infof("Discovered robot %s at %s", robot.Instance, address)
		case address != "":
			appLogger.Warnf("Discovery failed (%v), using configured address %s", err, address)
		default:
			appLogger.Fatalf("Failed to find a robot: %v", err)
		}
	}

	info, err := steamcontroller.Find(steamcontroller.Connection(cfg.Controller.Prefer))
	if err != nil {
		appLogger.Fatalf("Failed to find controller: %v", err)
	}
	controller, err := steamcontroller.Open(info, appLogger)
	if err != nil {
		appLogger.Fatalf("Failed to open controller: %v", err)
	}
	appLogger.Infof("Using %s controller %s", info.Connection, info.Product)

	mapper := pilot.NewMapper(pilot.Limits{
		MaxSpeed:    cfg.Control.MaxSpeed,
		MaxRotation: cfg.Control.MaxRotation,
	}, appLogger.WithField("component", "mapper"))

	var sender *pilot.Sender
	client := wsclient.New(address, wsclient.Options{
		OnOpen: func() {
			if err := sender.SendZero(); err != nil {
				appLogger.Warnf("Failed to send initial stop: %v", err)
			}
		},
		OnMessage: func(data []byte) { logReply(appLogger, data) },
	}, appLogger.WithField("component", "link"))

	sender, err = pilot.NewSender(client, mapper, pilot.SenderOptions{
		Mode:     pilot.Mode(cfg.Robot.SendMode),
		Interval: cfg.Control.Interval(),
		Geometry: cfg.LocalGeometry(),
	}, appLogger.WithField("component", "sender"))
	if err != nil {
		appLogger.Fatalf("Failed to create sender: %v", err)
	}

	// The link outlives ctx so the final stop can still be written.
	linkCtx, closeLink := context.WithCancel(context.Background())
	linkDone := make(chan struct{})
	go func() {
		defer close(linkDone)
		client.Run(linkCtx)
	}()

	snapshots := make(chan steamcontroller.Snapshot, 1)
	runCtx, cancelRun := context.WithCancel(ctx)
	go func() {
		if err := controller.Run(runCtx, snapshots); err != nil {
			appLogger.Errorf("Controller stopped: %v", err)
		}
		cancelRun()
	}()
	go mapper.Run(runCtx, snapshots)

	appLogger.Infof("Driving %s in %s mode", address, cfg.Robot.SendMode)
	sender.Run(runCtx)

	appLogger.Infof("Shutting down...")
	if err := sender.Shutdown(shutdownTimeout); err != nil {
		appLogger.Warnf("Robot may still be moving: %v", err)
	}
	client.Close()
	closeLink()
	controller.Close()

	select {
	case <-linkDone:
	case <-time.After(shutdownTimeout):
	}
	appLogger.Infof("Pilot exited properly")
}

func logReply(logger customlog.Logger, data []byte) {
	var reply api.CommandReply
	if err := json.Unmarshal(data, &reply); err != nil {
		logger.Debugf("Unexpected message from robot: %s", data)
		return
	}
	switch reply.Status {
	case api.ReplyFault:
		logger.Errorf("Robot drive faulted: %s", reply.Error)
	case api.ReplyError:
		logger.Warnf("Robot rejected command: %s", reply.Error)
	default:
		logger.Debugf("Robot reply: status=%s speeds=%v ack=%s", reply.Status, reply.Speeds, reply.Ack)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
