package application

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/VoTanTai-dp/smart-village-sub000/internal/config"
	"github.com/VoTanTai-dp/smart-village-sub000/internal/counter"
	"github.com/VoTanTai-dp/smart-village-sub000/internal/database"
	"github.com/VoTanTai-dp/smart-village-sub000/internal/eventsink"
	"github.com/VoTanTai-dp/smart-village-sub000/internal/handler"
	"github.com/VoTanTai-dp/smart-village-sub000/internal/repository"
	"github.com/VoTanTai-dp/smart-village-sub000/internal/router"
	"github.com/VoTanTai-dp/smart-village-sub000/internal/sensor"
	"github.com/VoTanTai-dp/smart-village-sub000/internal/service"
	"github.com/VoTanTai-dp/smart-village-sub000/internal/transcoder"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
)

// API is the HTTP + WebSocket API application.
type API struct {
	cfg    *config.Config
	srv    *http.Server
	db     *gorm.DB
	hub    *service.StreamHub
	orch   *service.Orchestrator
	logger *zap.Logger
}

// NewLogger builds the process logger: development encoding outside production,
// level from LOG_LEVEL.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.AppEnv == "development" {
		zcfg = zap.NewDevelopmentConfig()
	}
	if lvl, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return zcfg.Build()
}

// NewAPI creates the API application: validates config, runs migrations, opens DB, builds router.
func NewAPI(cfg *config.Config) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger, err := NewLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if err := database.MigrateUp(cfg.DatabaseURL()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	cameras := repository.NewCameraRepository(db)
	sessions := repository.NewSessionRepository(db)
	readings := repository.NewReadingRepository(db)

	hub := service.NewStreamHub(cfg.WSSendBuffer, cfg.WSReadBufferSize, cfg.WSWriteBufferSize, logger)
	fanout := eventsink.NewFanout(hub, brokerSinks(cfg, logger), logger)

	if err := transcoder.CheckInstallation(cfg.Transcoder.FFmpegPath); err != nil {
		logger.Warn("transcoder unavailable, camera streams will fail", zap.Error(err))
	}
	sup := transcoder.NewSupervisor(
		transcoder.FFmpegCommand(cfg.Transcoder.FFmpegPath, cfg.Transcoder.Quality, cfg.Transcoder.FPS),
		hub, cfg.Transcoder.StopGrace, logger)
	resolver := transcoder.NewResolver(sup, cfg.Transcoder.ProbeTimeout, logger)

	var source sensor.Source
	if cfg.Sensor.BaseURL != "" {
		source = sensor.NewHTTPSource(cfg.Sensor.BaseURL, cfg.Sensor.Token, cfg.Sensor.RequestTimeout)
	} else {
		logger.Info("SENSOR_BASE_URL not set, sensor polling disabled")
	}
	poller := sensor.NewPoller(source, readings, fanout, cfg.Sensor.PollInterval, sensor.Entities{
		Temperature: cfg.Sensor.TemperatureEntity,
		Humidity:    cfg.Sensor.HumidityEntity,
	}, logger)

	feed := counter.NewHTTPFeed(cfg.Counter.Scheme, cfg.Counter.EventPath)
	feed.Port = cfg.Counter.Port
	counts := counter.NewCounter(feed, readings, fanout, cfg.Counter.ReconnectDelay, logger)

	orch := service.NewOrchestrator(service.OrchestratorDeps{
		Cameras:   cameras,
		Connector: resolver,
		Workers:   sup,
		Sessions:  service.NewSessionService(sessions, logger),
		Sensors:   poller,
		Counts:    counts,
		WS:        &service.WSConfig{BaseURL: cfg.WSBaseURL},
		Closers:   []io.Closer{fanout},
		Logger:    logger,
	})

	streams := handler.NewStreamHandler(orch, logger)
	live := handler.NewLiveWSHandler(hub, logger)
	health := handler.NewHealthHandler(hub, orch, func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Ping()
	})

	r := router.New(streams, live, health, cfg.CORSAllowOrigins)

	// start requests probe candidates for up to PROBE_TIMEOUT each
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	return &API{cfg: cfg, srv: srv, db: db, hub: hub, orch: orch, logger: logger}, nil
}

// brokerSinks connects the enabled brokers. A broker that cannot be reached is
// skipped so live streaming still works without it.
func brokerSinks(cfg *config.Config, logger *zap.Logger) []eventsink.Sink {
	var sinks []eventsink.Sink
	if cfg.RabbitMQ.Enabled {
		s, err := eventsink.DialRabbit(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			logger.Warn("rabbitmq disabled", zap.Error(err))
		} else {
			sinks = append(sinks, s)
		}
	}
	if cfg.MQTT.Enabled {
		s, err := eventsink.ConnectMQTT(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.TopicPrefix, logger)
		if err != nil {
			logger.Warn("mqtt disabled", zap.Error(err))
		} else {
			sinks = append(sinks, s)
		}
	}
	return sinks
}

// Run starts the HTTP server and blocks until ctx is cancelled; then shuts down gracefully.
func (a *API) Run(ctx context.Context) error {
	defer func() { _ = a.logger.Sync() }()

	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + a.cfg.HTTPPort
	a.logger.Info("HTTP server listening",
		zap.String("addr", a.srv.Addr),
		zap.String("health", base+"/health"),
		zap.String("streams", base+"/streams/active"),
		zap.String("ws", "ws://"+host+":"+a.cfg.HTTPPort+"/ws/{frames,sensor,count}"))

	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		a.logger.Error("http server failed", zap.Error(serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.orch.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("orchestrator shutdown", zap.Error(err))
	}
	a.hub.CloseAll()
	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if serveErr != nil {
		return fmt.Errorf("http: %w", serveErr)
	}
	return nil
}
