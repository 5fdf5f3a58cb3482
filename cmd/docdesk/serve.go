package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/memohai/docdesk/internal/channel"
	"github.com/memohai/docdesk/internal/channel/adapters/discord"
	"github.com/memohai/docdesk/internal/channel/adapters/feishu"
	"github.com/memohai/docdesk/internal/channel/adapters/line"
	"github.com/memohai/docdesk/internal/channel/adapters/telegram"
	"github.com/memohai/docdesk/internal/config"
	"github.com/memohai/docdesk/internal/conversation"
	"github.com/memohai/docdesk/internal/documents"
	"github.com/memohai/docdesk/internal/files"
	"github.com/memohai/docdesk/internal/files/providers/localfs"
	"github.com/memohai/docdesk/internal/handlers"
	"github.com/memohai/docdesk/internal/healthcheck"
	llmchecker "github.com/memohai/docdesk/internal/healthcheck/checkers/llm"
	redischecker "github.com/memohai/docdesk/internal/healthcheck/checkers/redis"
	storagechecker "github.com/memohai/docdesk/internal/healthcheck/checkers/storage"
	"github.com/memohai/docdesk/internal/history"
	"github.com/memohai/docdesk/internal/llm"
	"github.com/memohai/docdesk/internal/logger"
	"github.com/memohai/docdesk/internal/server"
	"github.com/memohai/docdesk/internal/version"
)

func runServe() error {
	app := fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideRedisClient,
			provideHistoryStore,
			provideLLMProvider,
			provideConversationService,
			provideFileService,
			provideThumbnailer,
			documents.NewTracker,
			provideProcessor,
			channel.NewRegistry,
			provideDispatcher,
			provideChannelAdapters,
			provideHealthChecker,
			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(handlers.NewWebHandler),
			provideServerHandler(provideFilesHandler),
			provideServerHandler(provideChatHandler),
			provideServerHandler(provideProcessingHandler),
			provideServerHandler(provideChannelHandler),
			provideServerHandler(handlers.NewHealthHandler),
			provideServer,
		),
		fx.Invoke(
			startProcessor,
			startDispatcher,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	)
	if err := app.Err(); err != nil {
		return err
	}
	app.Run()
	return nil
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	// A missing .env file is fine; real environment variables still apply.
	_ = godotenv.Load()
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideRedisClient(lc fx.Lifecycle, cfg config.Config) (*redis.Client, error) {
	client, err := history.Open(cfg.Redis.URL)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return client.Close() }})
	return client, nil
}

func provideHistoryStore(log *slog.Logger, client *redis.Client, cfg config.Config) *history.RedisStore {
	return history.NewRedisStore(log, client, cfg.Redis.KeyPrefix, cfg.Redis.TTL())
}

func provideLLMProvider(log *slog.Logger, cfg config.Config) (llm.Provider, error) {
	return llm.New(log, cfg.LLM)
}

func provideConversationService(log *slog.Logger, store *history.RedisStore, provider llm.Provider, cfg config.Config) (*conversation.Service, error) {
	prompts, err := conversation.LoadPrompts(cfg.LLM.PromptsFile)
	if err != nil {
		return nil, err
	}
	return conversation.NewService(log, store, provider, prompts, conversation.Options{
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		TopP:        cfg.LLM.TopP,
	}), nil
}

func provideFileService(log *slog.Logger, cfg config.Config) (*files.Service, error) {
	uploads, err := localfs.New(cfg.Storage.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("upload storage: %w", err)
	}
	outputs, err := localfs.New(cfg.Storage.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("output storage: %w", err)
	}
	return files.NewService(log, uploads, outputs, cfg.Server.MaxUploadBytes), nil
}

func provideThumbnailer(log *slog.Logger, svc *files.Service) *documents.Thumbnailer {
	return documents.NewThumbnailer(log, svc, documents.OpenPDF)
}

func provideProcessor(log *slog.Logger, cfg config.Config, svc *files.Service, tracker *documents.Tracker) *documents.Processor {
	recognizer := documents.Tesseract{
		Languages: cfg.Processing.Languages,
		PSM:       cfg.Processing.PSM,
	}
	ocr := documents.NewOCRExtractor(documents.OpenPDF, recognizer, cfg.Processing.DPI)
	engines := map[string]documents.Extractor{
		documents.EngineOCR:   ocr,
		documents.EngineParse: documents.NewParseExtractor(documents.OpenPDF, ocr),
	}
	return documents.NewProcessor(log, svc, tracker, engines, documents.ProcessorOptions{
		DefaultEngine: cfg.Processing.Engine,
		Workers:       cfg.Processing.Workers,
		Retention:     cfg.Processing.Retention(),
		PruneSchedule: cfg.Processing.PruneSchedule,
	})
}

func provideDispatcher(log *slog.Logger, registry *channel.Registry, chat *conversation.Service) *channel.Dispatcher {
	return channel.NewDispatcher(log, registry, chat)
}

// channelAdapters marks the registry as populated.
type channelAdapters []channel.Adapter

// provideChannelAdapters registers LINE and every enabled bot platform. LINE
// answers inside the webhook request; the others acknowledge first and reply
// in the background.
func provideChannelAdapters(log *slog.Logger, cfg config.Config, registry *channel.Registry, dispatcher *channel.Dispatcher) (channelAdapters, error) {
	adapters := channelAdapters{}
	if channels := cfg.LineChannels(); len(channels) > 0 {
		adapters = append(adapters, line.NewLineAdapter(log, channels, dispatcher))
	}
	if cfg.Telegram.Enabled {
		if strings.TrimSpace(cfg.Telegram.WebhookSecret) == "" {
			return nil, errors.New("telegram.webhook_secret is required when telegram is enabled")
		}
		adapters = append(adapters, telegram.NewTelegramAdapter(log, cfg.Telegram, dispatcher.Async()))
	}
	if cfg.Discord.Enabled {
		adapter, err := discord.NewDiscordAdapter(log, cfg.Discord, dispatcher.Async())
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, adapter)
	}
	if cfg.Feishu.Enabled {
		adapters = append(adapters, feishu.NewFeishuAdapter(log, cfg.Feishu, dispatcher.Async()))
	}
	for _, adapter := range adapters {
		if err := registry.Register(adapter); err != nil {
			return nil, err
		}
	}
	return adapters, nil
}

func provideHealthChecker(log *slog.Logger, cfg config.Config, store *history.RedisStore, svc *files.Service) healthcheck.Checker {
	return healthcheck.NewAggregate(
		redischecker.NewChecker(log, store),
		storagechecker.NewChecker(log, map[string]files.Provider{
			"uploads": svc.Uploads(),
			"output":  svc.Outputs(),
		}),
		llmchecker.NewChecker(cfg.LLM),
	)
}

func provideFilesHandler(log *slog.Logger, svc *files.Service, thumbs *documents.Thumbnailer, tracker *documents.Tracker) *handlers.FilesHandler {
	return handlers.NewFilesHandler(log, svc, thumbs, tracker)
}

func provideChatHandler(log *slog.Logger, chat *conversation.Service) *handlers.ChatHandler {
	return handlers.NewChatHandler(log, chat)
}

func provideProcessingHandler(log *slog.Logger, processor *documents.Processor) *handlers.ProcessingHandler {
	return handlers.NewProcessingHandler(log, processor)
}

func provideChannelHandler(log *slog.Logger, registry *channel.Registry, _ channelAdapters) *handlers.ChannelHandler {
	return handlers.NewChannelHandler(log, registry)
}

type serverParams struct {
	fx.In
	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.ServerHandlers...)
}

func startProcessor(lc fx.Lifecycle, processor *documents.Processor) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return processor.Run(ctx) },
		OnStop:  func(ctx context.Context) error { return processor.Stop(ctx) },
	})
}

func startDispatcher(lc fx.Lifecycle, dispatcher *channel.Dispatcher) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error { return dispatcher.Wait(ctx) },
	})
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	fmt.Printf("Starting docdesk %s\n", version.GetInfo())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			logger.Info("server listening", slog.String("addr", srv.Addr()))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
