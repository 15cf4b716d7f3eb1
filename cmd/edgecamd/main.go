package main

import (
	"errors"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/tacusci/logging/v2"
	"github.com/takama/daemon"
	"github.com/tauraamui/edgecam/pkg/config"
	"github.com/tauraamui/edgecam/pkg/configdef"
	"github.com/tauraamui/edgecam/pkg/log"
	"github.com/tauraamui/edgecam/pkg/telemetry/timingstore"
)

const (
	name        = "edgecam"
	description = "Edgecam service daemon which previews and processes camera frames"
	loggingEnv  = "EDGECAM_LOGGING_LEVEL"
)

type Service struct {
	daemon.Daemon
}

// Setup writes the default config and creates the timings database.
func (service *Service) Setup() (string, error) {
	log.Info("Setting up edgecam service...")

	err := config.DefaultCreator().Create()
	if err != nil {
		if !errors.Is(err, configdef.ErrConfigAlreadyExists) {
			return "", err
		}
		log.Error(err.Error())
	}

	store, err := timingstore.Open(databasePath())
	if err != nil {
		return "", err
	}
	if err := store.Close(); err != nil {
		return "", err
	}

	return "Setup successful...", nil
}

func (service *Service) RemoveSetup() (string, error) {
	log.Info("Removing setup for edgecam service...")
	if err := timingstore.Destroy(databasePath()); err != nil {
		log.Error("unable to delete timings database file: %s", err.Error())
	}

	if err := config.DefaultDestroyer().Destroy(); err != nil {
		log.Error("unable to delete config file: %s", err.Error())
	}

	return "Removing setup successful...", nil
}

func databasePath() string {
	values, err := config.DefaultResolver().Resolve()
	if err != nil {
		return ""
	}
	return values.Telemetry.DatabasePath
}

func (service *Service) Manage() (string, error) {
	usage := "Usage: edgecamd setup | remove-setup | install | remove | start | stop | status | view"

	interactive := false
	if len(os.Args) > 1 {
		command := os.Args[1]
		switch command {
		case "setup":
			return service.Setup()
		case "remove-setup":
			return service.RemoveSetup()
		case "install":
			return service.Install()
		case "remove":
			return service.Remove()
		case "start":
			return service.Start()
		case "stop":
			return service.Stop()
		case "status":
			return service.Status()
		case "view":
			interactive = true
		default:
			return usage, nil
		}
	}

	values, err := config.DefaultResolver().Resolve()
	if err != nil {
		return "", err
	}
	applyLoggingLevel(values)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	toggle := make(chan os.Signal, 1)
	signal.Notify(toggle, syscall.SIGUSR1)

	log.Info("Starting edgecam daemon...")

	r, err := newRunner(values, interactive || values.Interactive)
	if err != nil {
		return "", err
	}

	go func() {
		for range toggle {
			log.Info("Switched processing mode to %s", r.mode.Toggle())
		}
	}()

	go func() {
		killSignal := <-interrupt
		log.Error("Received signal: %s", killSignal)
		r.quit()
	}()

	runErr := r.run()
	signal.Stop(toggle)
	close(toggle)

	log.Info("Shutting down...")
	if err := r.close(); err != nil {
		log.Error("Shutdown incomplete: %v", err)
	}
	if runErr != nil {
		return "", runErr
	}

	return "Shutdown successful... BYE! 👋", nil
}

// applyLoggingLevel prefers the environment over the config file.
func applyLoggingLevel(values configdef.Values) {
	if len(os.Getenv(loggingEnv)) > 0 {
		return
	}
	if values.Debug {
		log.SetLevel("debug")
		return
	}
	log.SetLevel(values.LogLevel)
}

func init() {
	logging.CallbackLabelLevel = 5
	logging.ColorLogLevelLabelOnly = true
	log.SetLevel(os.Getenv(loggingEnv))
}

func main() {
	daemonType := daemon.SystemDaemon
	if runtime.GOOS == "darwin" {
		daemonType = daemon.UserAgent
	}

	srv, err := daemon.New(name, description, daemonType)
	if err != nil {
		logging.Error(err.Error()) //nolint
		os.Exit(1)
	}

	service := &Service{srv}
	status, err := service.Manage()
	if err != nil {
		logging.Error(err.Error()) //nolint
		os.Exit(1)
	}

	logging.Info(status) //nolint
}
