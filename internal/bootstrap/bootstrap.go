package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/swaggo/swag"
	"golang.org/x/sync/errgroup"

	"pestscan-server/internal/domain/detection"
	"pestscan-server/internal/domain/eventbus"
	domainimage "pestscan-server/internal/domain/image"
	"pestscan-server/internal/domain/inference"
	platformconfig "pestscan-server/internal/platform/config"
	platformerrors "pestscan-server/internal/platform/errors"
	platformlogging "pestscan-server/internal/platform/logging"
	platformobservability "pestscan-server/internal/platform/observability"
	platformstorage "pestscan-server/internal/platform/storage"
	httptransport "pestscan-server/internal/transport/http"
	_ "pestscan-server/internal/transport/http/docs"
	httppredict "pestscan-server/internal/transport/http/predict"
)

// Options tunes the init graph. The zero value loads config.yaml (or
// PESTSCAN_CONFIG) and logs to stdout.
type Options struct {
	ConfigPath string
	Version    string
	// Console receives console log output; nil means stdout.
	Console io.Writer
	// DisableStorage skips the audit store regardless of configuration.
	DisableStorage bool
	// SkipDotEnv stops the loader from reading .env.
	SkipDotEnv bool
	// Opener replaces the configured tensor runtime.
	Opener inference.Opener
}

const scalarHTML = `<!DOCTYPE html>
<html lang="zh-CN">
	<head>
		<meta charset="utf-8" />
		<title>PestScan API Reference</title>
		<meta name="viewport" content="width=device-width, initial-scale=1" />
	</head>
	<body>
		<script
			id="api-reference"
			data-url="/openapi.json"
			data-layout="modern"
			src="https://cdn.jsdelivr.net/npm/@scalar/api-reference"
		></script>
	</body>
</html>`

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	options               Options
	config                *platformconfig.Config
	configPath            string
	logger                *platformlogging.Logger
	observabilityShutdown platformobservability.ShutdownFunc
	registry              *prometheus.Registry
	metrics               *platformobservability.PipelineMetrics
	database              *platformstorage.Database
	audit                 *platformstorage.AuditRepository
	bus                   *eventbus.AsyncEventBus
	labels                []string
	params                detection.Params
	model                 *inference.Model
	images                *domainimage.Pipeline
	classifier            *inference.Classifier
}

// App is a fully initialised classification pipeline.
type App struct {
	Config     *platformconfig.Config
	ConfigPath string
	Logger     *platformlogging.Logger
	Model      *inference.Model
	Classifier *inference.Classifier
	Registry   *prometheus.Registry
	// Audit is nil when storage is disabled.
	Audit *platformstorage.AuditRepository

	state *appState
}

// Prepare runs the init graph and returns the wired pipeline. A model that
// fails to load is not fatal: the app serves with the model reported as not
// loaded. Callers own Close.
func Prepare(ctx context.Context, opts Options) (*App, error) {
	state := &appState{options: opts}

	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		state.close()
		return nil, err
	}
	logBootstrapGraph(steps, state.logger)

	return &App{
		Config:     state.config,
		ConfigPath: state.configPath,
		Logger:     state.logger,
		Model:      state.model,
		Classifier: state.classifier,
		Registry:   state.registry,
		Audit:      state.audit,
		state:      state,
	}, nil
}

// Close releases everything Prepare acquired, in reverse order.
func (a *App) Close() {
	if a == nil {
		return
	}
	a.state.close()
}

// Run 启动整个服务生命周期，负责加载配置、初始化依赖和优雅关停。
func Run(ctx context.Context, opts Options) error {
	app, err := Prepare(ctx, opts)
	if err != nil {
		return err
	}
	defer app.Close()

	logger := app.Logger

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(signalCtx)

	if _, err := startHTTPServer(app, group, groupCtx); err != nil {
		cancel()
		return fmt.Errorf("启动 Http 服务失败: %w", err)
	}

	return waitForShutdown(groupCtx, cancel, logger, group)
}

func logBootstrapGraph(steps []initStep, logger *platformlogging.Logger) {
	if logger == nil {
		return
	}
	logger.InfoTag("引导", "初始化依赖关系概览")

	// 阶段名称映射
	stepNames := map[string]string{
		"config:load-runtime":       "加载运行配置",
		"logging:init-provider":     "初始化日志提供者",
		"observability:setup-hooks": "设置可观测性钩子",
		"metrics:init-registry":     "初始化指标注册表",
		"storage:init-database":     "初始化审计数据库",
		"eventbus:init-bus":         "初始化事件总线",
		"model:load":                "加载检测模型",
		"pipeline:init-classifier":  "初始化分类流水线",
	}

	for _, step := range steps {
		if name, ok := stepNames[step.ID]; ok {
			logger.InfoTag("引导", "%s (%s)", name, step.ID)
		}
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load-runtime",
			Title:   "Load runtime configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load-runtime"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "observability:setup-hooks",
			Title:     "Setup observability hooks",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "metrics:init-registry",
			Title:     "Initialise metrics registry",
			DependsOn: []string{"config:load-runtime"},
			Kind:      platformerrors.KindPlatform,
			Execute:   initMetricsStep,
		},
		{
			ID:        "storage:init-database",
			Title:     "Initialise audit database",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindStorage,
			Execute:   initDatabaseStep,
		},
		{
			ID:        "eventbus:init-bus",
			Title:     "Initialise event bus",
			DependsOn: []string{"logging:init-provider", "storage:init-database"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initEventBusStep,
		},
		{
			ID:        "model:load",
			Title:     "Load detection model",
			DependsOn: []string{"logging:init-provider", "metrics:init-registry", "eventbus:init-bus"},
			Kind:      platformerrors.KindModel,
			Execute:   loadModelStep,
		},
		{
			ID:        "pipeline:init-classifier",
			Title:     "Initialise classification pipeline",
			DependsOn: []string{"model:load", "observability:setup-hooks"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initClassifierStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	loader := platformconfig.NewLoader().WithDotEnv(!state.options.SkipDotEnv)
	if state.options.ConfigPath != "" {
		loader = loader.WithPath(state.options.ConfigPath)
	}

	result, err := loader.Load()
	if err != nil {
		return err
	}

	state.config = result.Config
	state.configPath = result.Path
	if state.configPath == "" {
		state.configPath = "defaults"
	}
	if state.options.DisableStorage {
		state.config.Storage.Enabled = false
	}
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"logging:init-provider",
			"config not loaded",
		)
	}

	logger, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
		Console:  state.options.Console,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init-provider", "failed to initialize logging provider", err)
	}
	state.logger = logger

	logger.InfoTag(
		"引导",
		"日志模块就绪 [%s] %s",
		state.config.Log.Level,
		state.configPath,
	)
	return nil
}

func setupObservabilityStep(ctx context.Context, state *appState) error {
	if state.logger == nil || state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"observability:setup-hooks",
			"config/logger not initialised",
		)
	}

	cfg := platformobservability.Config{
		Enabled: state.config.Observability.Enabled && strings.EqualFold(state.config.Log.Level, "debug"),
	}

	shutdown, err := platformobservability.Setup(ctx, cfg, state.logger.Slog())
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "observability:setup-hooks", "failed to setup observability hooks", err)
	}
	state.observabilityShutdown = shutdown
	return nil
}

func initMetricsStep(_ context.Context, state *appState) error {
	registry := prometheus.NewRegistry()
	if state.config.Observability.Enabled {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	state.registry = registry
	state.metrics = platformobservability.NewPipelineMetrics(registry)
	return nil
}

func initDatabaseStep(_ context.Context, state *appState) error {
	if !state.config.Storage.Enabled {
		state.logger.InfoTag("STORAGE", "审计存储已禁用")
		return nil
	}

	database, err := platformstorage.Open(state.config.Storage.DSN)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "storage:init-database", "failed to initialize database", err)
	}
	state.database = database
	state.audit = platformstorage.NewAuditRepository(database)
	state.logger.InfoTag("STORAGE", "审计数据库就绪 %s", state.config.Storage.DSN)
	return nil
}

func initEventBusStep(_ context.Context, state *appState) error {
	bus := eventbus.NewAsyncEventBus(0, state.logger)
	bus.Start()
	state.bus = bus

	logger := state.logger
	if err := bus.Subscribe(eventbus.EventModelLoaded, func(event eventbus.ModelEvent) {
		if event.Loaded {
			logger.InfoTag("MODEL", "model ready [%s] %s", event.Runtime, event.Path)
			return
		}
		logger.ErrorTag("MODEL", "model unavailable [%s] %s: %s", event.Runtime, event.Path, event.Error)
	}); err != nil {
		return platformerrors.Wrap(platformerrors.KindPlatform, "eventbus:init-bus", "subscribe model events", err)
	}

	if state.audit != nil {
		if err := eventbus.NewAuditRecorder(state.audit, state.logger).Subscribe(bus); err != nil {
			return err
		}
	}
	return nil
}

func loadModelStep(ctx context.Context, state *appState) error {
	labels, err := inference.LoadLabels(state.config.Model)
	if err != nil {
		return err
	}
	params, err := detection.ParamsFromConfig(state.config.Pipeline, labels)
	if err != nil {
		return err
	}
	state.labels = labels
	state.params = params

	var opts []inference.ModelOption
	if state.options.Opener != nil {
		opts = append(opts, inference.WithOpener(state.options.Opener))
	}
	model := inference.NewModel(state.config.Model, labels, state.logger, opts...)
	state.model = model

	loadErr := model.Load(ctx)
	state.metrics.SetModelLoaded(loadErr == nil)

	info := model.Info()
	event := eventbus.ModelEvent{Runtime: info.Runtime, Path: info.ModelPath, Loaded: loadErr == nil}
	if loadErr != nil {
		// 模型加载失败不阻断启动，接口返回 Model not loaded
		event.Error = platformerrors.Message(loadErr)
	}
	state.bus.PublishAsync(eventbus.EventModelLoaded, event)
	return nil
}

func initClassifierStep(_ context.Context, state *appState) error {
	images, err := domainimage.NewPipeline(domainimage.Options{
		Security: &state.config.Security,
		Logger:   state.logger,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "pipeline:init-images", "failed to create image pipeline", err)
	}
	state.images = images

	classifier, err := inference.NewClassifier(inference.ClassifierOptions{
		Model:     state.model,
		Images:    images,
		Params:    state.params,
		InputSize: state.model.InputSize(),
		Logger:    state.logger,
		Metrics:   state.metrics,
		Events:    state.bus,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "pipeline:init-classifier", "failed to create classifier", err)
	}
	state.classifier = classifier
	return nil
}

func (s *appState) close() {
	if s.bus != nil {
		s.bus.Stop()
	}
	if s.model != nil {
		if err := s.model.Close(); err != nil {
			s.logger.WarnTag("MODEL", "模型未正常关闭: %v", err)
		}
	}
	if s.database != nil {
		if err := s.database.Close(); err != nil {
			s.logger.WarnTag("STORAGE", "数据库未正常关闭: %v", err)
		}
	}
	if s.observabilityShutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.observabilityShutdown(shutdownCtx); err != nil {
			s.logger.WarnTag("引导", "可观测性未正常关闭: %v", err)
		}
		cancel()
	}
	if s.logger != nil {
		_ = s.logger.Close()
	}
}

// Handler builds the HTTP handler serving the app.
func (a *App) Handler(ctx context.Context) (http.Handler, error) {
	httpRouter, err := httptransport.Build(httptransport.Options{
		Config: a.Config,
		Logger: a.Logger,
	})
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "http:build-router", "failed to build router", err)
	}
	router := httpRouter.Engine

	router.NoRoute(func(c *gin.Context) {
		httptransport.RespondError(c, http.StatusNotFound, "api Not found", gin.H{})
	})

	var history httppredict.HistoryStore
	if a.Audit != nil {
		history = a.Audit
	}
	predictService, err := httppredict.NewService(httppredict.Options{
		Classifier: a.Classifier,
		Model:      a.Model,
		History:    history,
		Security:   a.Config.Security,
		Logger:     a.Logger,
	})
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "predict:new-service", "failed to create predict service", err)
	}
	if err := predictService.Register(ctx, httpRouter.API); err != nil {
		return nil, err
	}

	var gatherer prometheus.Gatherer
	metricsPath := ""
	if a.Config.Observability.Enabled {
		gatherer = a.Registry
		metricsPath = a.Config.Observability.MetricsPath
	}
	httptransport.NewSystemService(a.Model, gatherer, a.version()).Register(ctx, httpRouter, metricsPath)

	router.GET("/openapi.json", func(c *gin.Context) {
		doc, err := swag.ReadDoc()
		if err != nil {
			a.Logger.ErrorTag("HTTP", "生成 OpenAPI 文档失败: %v", err)
			httptransport.RespondError(c, http.StatusInternalServerError, "failed to generate openapi spec", gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(doc))
	})
	router.GET("/docs", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(scalarHTML))
	})

	return router, nil
}

func (a *App) version() string {
	if a.state == nil || a.state.options.Version == "" {
		return "dev"
	}
	return a.state.options.Version
}

func startHTTPServer(app *App, g *errgroup.Group, groupCtx context.Context) (*http.Server, error) {
	handler, err := app.Handler(groupCtx)
	if err != nil {
		return nil, err
	}

	cfg := app.Config.Server
	logger := app.Logger
	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.IP, strconv.Itoa(cfg.Port)),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	g.Go(func() error {
		logger.InfoTag("HTTP", "Gin 服务已启动，访问地址 http://%s", httpServer.Addr)
		logger.InfoTag("HTTP", "分类接口入口: http://%s/api/predict", httpServer.Addr)
		logger.InfoTag("HTTP", "在线文档入口: http://%s/docs", httpServer.Addr)

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "HTTP 服务关闭失败: %v", err)
			} else {
				logger.InfoTag("HTTP", "HTTP 服务已优雅关闭")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "HTTP 服务启动失败: %v", err)
			return err
		}
		return nil
	})

	return httpServer, nil
}

func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *platformlogging.Logger,
	g *errgroup.Group,
) error {
	<-ctx.Done()
	logger.InfoTag("引导", "收到关闭信号 %v，正在进行资源清理", context.Cause(ctx))

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("引导", "服务关闭过程中出现错误: %v", err)
			return err
		}
		logger.InfoTag("引导", "所有服务已成功关闭")
	case <-time.After(15 * time.Second):
		logger.ErrorTag("引导", "服务关闭超时，已强制退出")
		return errors.New("服务关闭超时")
	}
	return nil
}
