package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/AzielCF/az-wabot/botengine"
	"github.com/AzielCF/az-wabot/botengine/bots"
	"github.com/AzielCF/az-wabot/core/config"
	"github.com/AzielCF/az-wabot/core/database"
	"github.com/AzielCF/az-wabot/infrastructure/gateway"
	"github.com/AzielCF/az-wabot/infrastructure/llm"
	"github.com/AzielCF/az-wabot/infrastructure/media"
	"github.com/AzielCF/az-wabot/pkg/mediajobs"
	"github.com/AzielCF/az-wabot/processor"
	"github.com/AzielCF/az-wabot/repository"
	"github.com/AzielCF/az-wabot/scheduler"
	"github.com/AzielCF/az-wabot/ui/rest"
	"github.com/AzielCF/az-wabot/ui/rest/middleware"
	uiWebsocket "github.com/AzielCF/az-wabot/ui/websocket"
	"github.com/AzielCF/az-wabot/usecase"
)

var restCmd = &cobra.Command{
	Use:   "rest",
	Short: "Run the bot service with its REST API",
	Run:   restServer,
}

func init() {
	rootCmd.AddCommand(restCmd)
}

func restServer(_ *cobra.Command, _ []string) {
	cfg := config.Global
	ctx := context.Background()

	// Store first: without it nothing else can run.
	db, err := database.NewDatabase(cfg)
	if err != nil {
		logrus.Fatalf("[CMD] Database connection failed: %v", err)
	}
	if err := repository.Migrate(db); err != nil {
		logrus.Fatalf("[CMD] Migration failed: %v", err)
	}
	st := repository.NewGormStore(db)

	gw := gateway.NewClient(cfg.Gateway)
	llmClient := llm.NewClient(cfg.LLM)
	extractor := media.NewExtractor(cfg.Media.FFmpegPath)
	mediaLimiter := mediajobs.NewLimiter(cfg.Media.MaxConcurrentJobs)
	hub := uiWebsocket.NewHub()

	registry := botengine.NewRegistry()
	mustRegister(registry, bots.NewTranslationBot())
	mustRegister(registry, bots.NewJokeBot())
	disableInvalidInstances(ctx, st, registry)

	models := botengine.Models{
		Chat:   cfg.LLM.ChatModel,
		Vision: cfg.LLM.VisionModel,
		Audio:  cfg.LLM.AudioModel,
	}

	proc := processor.New(processor.Options{
		Store:        st,
		Gateway:      gw,
		Registry:     registry,
		LLM:          llmClient,
		Extractor:    extractor,
		Models:       models,
		Media:        mediaLimiter,
		Events:       hub,
		PollInterval: time.Duration(cfg.Processor.PollIntervalSeconds) * time.Second,
		MessageLimit: cfg.Processor.MessageLimitPerPoll,
	})
	if err := proc.Start(ctx); err != nil {
		logrus.Fatalf("[CMD] Processor startup failed: %v", err)
	}

	sched := scheduler.New(st, gw, hub)
	sched.Start()

	chatUsecase := usecase.NewChatService(st, gw, proc)
	botUsecase := usecase.NewBotService(st, registry, proc)
	scheduleUsecase := usecase.NewScheduleService(st)
	userUsecase := usecase.NewUserService(st, cfg.Security)
	healthUsecase := usecase.NewHealthService(st, gw)

	if generated, err := userUsecase.EnsureSeedAdmin(ctx); err != nil {
		logrus.Fatalf("[CMD] Admin seed failed: %v", err)
	} else if generated != "" {
		// Printed once; it is not stored anywhere in clear.
		logrus.Warnf("[CMD] Generated admin password: %s", generated)
	}

	app := fiber.New(fiber.Config{
		AppName:               "az-wabot",
		DisableStartupMessage: true,
	})
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	app.Use(middleware.Recovery())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[REST] ${time} ${status} ${method} ${path} (${latency})\n",
	}))

	rest.InitRestHealth(app, healthUsecase)
	rest.InitRestUser(app, userUsecase)

	// Browsers cannot set an Authorization header on WS upgrades; the hub
	// checks its ?token= itself, so the route must precede the auth group.
	app.Get("/ws/events", hub.Handler(cfg.Security.JWTSecret))

	api := app.Group("/", middleware.Auth(cfg.Security.JWTSecret))
	rest.InitRestChat(api, chatUsecase)
	rest.InitRestBot(api, botUsecase)
	rest.InitRestSchedule(api, scheduleUsecase)
	rest.InitRestMonitoring(api, mediaLimiter, proc)

	go func() {
		if err := app.Listen(":" + cfg.App.Port); err != nil {
			logrus.Fatalf("[CMD] REST server failed: %v", err)
		}
	}()
	logrus.Infof("[CMD] az-wabot listening on :%s", cfg.App.Port)

	// Shut down in reverse order of startup: stop accepting requests,
	// then the scheduler, then drain the pollers.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("[CMD] Shutdown signal received")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logrus.WithError(err).Warn("[CMD] REST shutdown did not finish cleanly")
	}
	sched.Stop()
	proc.Stop()
	logrus.Info("[CMD] Shutdown complete")
}

func mustRegister(registry *botengine.Registry, b botengine.Bot) {
	if err := registry.Register(b); err != nil {
		logrus.Fatalf("[CMD] Bot registration failed: %v", err)
	}
}

// disableInvalidInstances parks instances whose stored config no longer
// validates against the (possibly updated) type schema, instead of
// letting every dispatch fail at runtime.
func disableInvalidInstances(ctx context.Context, st *repository.GormStore, registry *botengine.Registry) {
	instances, err := st.ListBotInstances(ctx)
	if err != nil {
		logrus.Fatalf("[CMD] Failed to list bot instances: %v", err)
	}
	for _, instance := range instances {
		if !instance.Enabled {
			continue
		}
		impl, ok := registry.Get(instance.TypeKey)
		if !ok {
			logrus.Errorf("[CMD] Bot instance %s has unknown type %q, disabling", instance.ID, instance.TypeKey)
			instance.Enabled = false
		} else if _, err := botengine.NormalizeConfig(impl.Info().ConfigSchema, instance.Config); err != nil {
			logrus.WithError(err).Errorf("[CMD] Bot instance %s config invalid, disabling", instance.ID)
			instance.Enabled = false
		} else {
			continue
		}
		instance.UpdatedAt = time.Now().UTC()
		if err := st.UpdateBotInstance(ctx, instance); err != nil {
			logrus.WithError(err).Errorf("[CMD] Failed to disable bot instance %s", instance.ID)
		}
	}
}
