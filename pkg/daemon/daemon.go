package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/phstat/phstat/pkg/config"
	"github.com/phstat/phstat/pkg/events"
	"github.com/phstat/phstat/pkg/pump"
	"github.com/phstat/phstat/pkg/sensor"
)

var (
	ctrl *Controller
	conf config.Config
	hub  *events.EventHub
)

func setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/config", getConfig)
	router.GET("/ph-range", getPHRange)
	router.PUT("/ph-range", setPHRange)
	router.GET("/status", getStatus)
	router.GET("/telemetry", getTelemetry)
	router.GET("/calibration", getCalibration)
	router.POST("/cycle", postCycle)
	router.GET("/events", getEvents)
	router.GET("/version", getVersion)

	return router
}

func Run(configPath string, unixSocketPath string, allowNonRoot bool) error {
	router := setupRoutes()

	fileConf, err := config.NewFile(configPath)
	if err != nil {
		logrus.Fatalf("failed to parse config during startup: %v", err)
	}
	conf = fileConf
	logrus.WithFields(fileConf.LogrusFields()).Infof("config loaded")

	smp, err := sensor.OpenSerial(conf.SerialPort(), conf.BaudRate(), conf.VRef(), conf.ADCFullScale())
	if err != nil {
		logrus.Fatalf("failed to open probe frontend: %v", err)
	}

	pumps, err := pump.OpenGPIO(conf.GPIOChip(), conf.PumpPins())
	if err != nil {
		logrus.Fatalf("failed to open pump outputs: %v", err)
	}

	hub = events.NewEventHub()
	ctrl = NewController(conf, smp, pumps, hub, os.Stdout)

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			err := conf.Load()
			if err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			ctrl.Refresh()
			logrus.Infof("config reloaded")
		}
	}()

	srv := &http.Server{
		Handler: router,
	}

	// Create the socket to listen on:
	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		logrus.Fatal(err)
	}

	if conf.AllowNonRootAccess() || allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		err = os.Chmod(unixSocketPath, 0777)
		if err != nil {
			logrus.Fatal(err)
		}
	}

	// Serve HTTP on unix socket
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	go func() {
		logrus.Debugln("control loop starts")

		ctrl.Loop()

		logrus.Errorf("control loop exited unexpectedly")
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	// Wait for a SIGINT or SIGTERM:
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	logrus.Info("shutting down http server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(ctx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	cancel()

	if err := pumps.StopAll(); err != nil {
		logrus.Errorf("failed to stop pumps before exiting: %v", err)
	}

	logrus.Info("closing pump outputs")
	if err := pumps.Close(); err != nil {
		logrus.Errorf("failed to close pump outputs: %v", err)
	}

	logrus.Info("closing probe frontend")
	if err := smp.Close(); err != nil {
		logrus.Errorf("failed to close probe frontend: %v", err)
	}

	logrus.Info("exiting")
	return nil
}
