package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.uber.org/fx"

	_ "github.com/zaqqye/seb_proctor/docs"
	"github.com/zaqqye/seb_proctor/internal/config"
	"github.com/zaqqye/seb_proctor/internal/database"
	"github.com/zaqqye/seb_proctor/internal/events"
	"github.com/zaqqye/seb_proctor/internal/logger"
	"github.com/zaqqye/seb_proctor/internal/routes"
	"github.com/zaqqye/seb_proctor/internal/services"
	"github.com/zaqqye/seb_proctor/internal/store"
	"github.com/zaqqye/seb_proctor/internal/store/gormstore"
	"github.com/zaqqye/seb_proctor/internal/store/memstore"
	"github.com/zaqqye/seb_proctor/internal/ws"
)

// @title           SEB Proctor API
// @version         1.0
// @description     Proctored assessment session controller.
// @BasePath        /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	app := fx.New(
		fx.NopLogger,
		fx.Provide(
			loadConfig,
			newStore,
			newHubs,
			newPublisher,
			newController,
			newEngine,
		),
		fx.Invoke(bootstrap, serve),
	)
	app.Run()
}

func loadConfig() *config.Config {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogPretty)
	return cfg
}

func newStore(cfg *config.Config) (store.Store, error) {
	if cfg.StoreDriver == "memory" {
		log.Warn().Msg("using in-memory store, state is lost on restart")
		return memstore.New(), nil
	}
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "database connection failed")
	}
	if err := database.Migrate(db); err != nil {
		return nil, errors.Wrap(err, "database migration failed")
	}
	return gormstore.New(db), nil
}

func newHubs(lc fx.Lifecycle) *ws.Hubs {
	hubs := ws.NewHubs()
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go hubs.Run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
	return hubs
}

func newPublisher(lc fx.Lifecycle, cfg *config.Config, hubs *ws.Hubs) (events.Publisher, error) {
	fan := events.Fanout{hubs}
	if cfg.NATSURL == "" {
		return fan, nil
	}
	nc, err := events.ConnectNATS(cfg.NATSURL)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return nc.Close() }})
	log.Info().Str("url", cfg.NATSURL).Msg("publishing session events to nats")
	return append(fan, nc), nil
}

func newController(lc fx.Lifecycle, cfg *config.Config, st store.Store, pub events.Publisher) *services.Controller {
	ctrl := services.New(services.Deps{
		Store:            st,
		Events:           pub,
		DefaultTimeLimit: cfg.DefaultTimeLimit,
		DedupeWindow:     cfg.IncidentDedupeWindow,
	})
	lc.Append(fx.Hook{OnStop: func(context.Context) error {
		ctrl.Clock.StopAll()
		return nil
	}})
	return ctrl
}

func newEngine(cfg *config.Config, ctrl *services.Controller, hubs *ws.Hubs) *gin.Engine {
	r := gin.Default()
	routes.Register(r, ctrl, hubs, cfg)
	return r
}

// bootstrap applies the optional schedule seed and re-arms expiry timers for
// sessions that were active when the process last stopped.
func bootstrap(lc fx.Lifecycle, cfg *config.Config, st store.Store, ctrl *services.Controller) {
	lc.Append(fx.Hook{OnStart: func(ctx context.Context) error {
		if cfg.ScheduleSeedFile != "" {
			seed, err := database.LoadSeed(cfg.ScheduleSeedFile)
			if err != nil {
				return err
			}
			if err := database.ApplySeed(ctx, st, seed, "seed"); err != nil {
				return err
			}
		}
		_, err := ctrl.Sessions.ResumeClocks(ctx)
		return errors.Wrap(err, "resume session clocks")
	}})
}

func serve(lc fx.Lifecycle, cfg *config.Config, r *gin.Engine) {
	port := cfg.Port
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{Addr: ":" + port, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal().Err(err).Msg("server exited with error")
				}
			}()
			log.Info().Str("addr", srv.Addr).Msg("listening")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
