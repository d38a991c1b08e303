package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marcus-ai/marcus/internal/advisor"
	"github.com/marcus-ai/marcus/internal/assignment"
	"github.com/marcus-ai/marcus/internal/board"
	"github.com/marcus-ai/marcus/internal/config"
	"github.com/marcus-ai/marcus/internal/eventlog"
	"github.com/marcus-ai/marcus/internal/instance"
	"github.com/marcus-ai/marcus/internal/lifecycle"
	"github.com/marcus-ai/marcus/internal/mcp"
	"github.com/marcus-ai/marcus/internal/monitor"
	"github.com/marcus-ai/marcus/internal/nats"
	"github.com/marcus-ai/marcus/internal/notifications"
	"github.com/marcus-ai/marcus/internal/notifications/external"
	"github.com/marcus-ai/marcus/internal/notify"
	"github.com/marcus-ai/marcus/internal/progress"
	"github.com/marcus-ai/marcus/internal/project"
	"github.com/marcus-ai/marcus/internal/store"
)

// Exit codes (spec.md §6).
const (
	exitOK                  = 0
	exitConfigError         = 64
	exitProviderUnreachable = 69
	exitInternal            = 70
)

func main() {
	port := flag.Int("port", 3000, "HTTP server port")
	configPath := flag.String("config", "configs/marcus.json", "configuration file")
	natsPort := flag.Int("nats-port", 4222, "embedded NATS server port")
	status := flag.Bool("status", false, "show status of a running instance")
	stop := flag.Bool("stop", false, "stop a running instance gracefully")
	forceStop := flag.Bool("force-stop", false, "force kill a running instance")
	flag.Parse()

	basePath, err := getBasePath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to determine base path: %v\n", err)
		os.Exit(exitInternal)
	}

	statePath := filepath.Join(basePath, "data", "state.json")
	pidFilePath := filepath.Join(basePath, "data", "marcus.pid")
	instanceMgr := instance.NewManager(pidFilePath, statePath, *port)

	if *status {
		showInstanceStatus(instanceMgr)
		os.Exit(exitOK)
	}
	if *stop || *forceStop {
		stopInstance(instanceMgr, *forceStop)
		os.Exit(exitOK)
	}

	if !filepath.IsAbs(*configPath) {
		*configPath = filepath.Join(basePath, *configPath)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[CONFIG] %v\n", err)
		os.Exit(exitConfigError)
	}

	if existing, err := instanceMgr.CheckExistingInstance(); err == nil && existing != nil && existing.IsRunning {
		resolver := instance.NewConflictResolver(instanceMgr, instance.IsInteractive())
		if err := resolver.Resolve(existing); err != nil {
			fmt.Fprintf(os.Stderr, "[INSTANCE] failed to resolve conflict: %v\n", err)
			os.Exit(exitInternal)
		}
		*port = instanceMgr.GetPort()
	}
	if err := instanceMgr.AcquireLock(); err != nil {
		fmt.Fprintf(os.Stderr, "[INSTANCE] failed to acquire lock: %v\n", err)
		os.Exit(exitInternal)
	}
	defer instanceMgr.ReleaseLock()

	if err := os.MkdirAll(filepath.Join(basePath, "data"), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "[MAIN] failed to create data directory: %v\n", err)
		os.Exit(exitInternal)
	}

	natsServer, natsClient := startNATS(basePath, *natsPort)
	if natsServer != nil {
		defer natsServer.Shutdown()
	}
	if natsClient != nil {
		defer natsClient.Close()
	}

	var publisher *eventlog.NATSPublisher
	if natsClient != nil {
		publisher = eventlog.NewNATSPublisher(natsClient)
	}

	var eventBusStore eventlog.Store
	if eventStore, err := eventlog.OpenSQLiteStore(filepath.Join(basePath, "data", "events.db")); err != nil {
		fmt.Fprintf(os.Stderr, "[EVENTS] failed to open event store, continuing without persistence: %v\n", err)
	} else {
		defer eventStore.Close()
		eventBusStore = eventStore
	}
	events := eventlog.New("MARCUS", eventlog.NewBus(eventBusStore), publisher)

	taskStore := store.New()

	provider, err := buildProvider(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[BOARD] %v\n", err)
		os.Exit(exitConfigError)
	}
	if provider == nil && cfg.RequireProvider {
		fmt.Fprintf(os.Stderr, "[BOARD] require_provider_on_start is set but no provider is configured\n")
		os.Exit(exitProviderUnreachable)
	}
	if provider != nil && cfg.RequireProvider {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_, err := provider.GetBoardSummary(ctx)
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "[BOARD] provider unreachable at startup: %v\n", err)
			os.Exit(exitProviderUnreachable)
		}
	}

	var queue *board.PushRetryQueue
	if provider != nil {
		queue = board.DefaultQueue()
		queue.Attach(provider)
	}

	adv := buildAdvisor(cfg)
	machine := lifecycle.New(taskStore, provider, events)
	assignCfg := assignment.Config{
		RetryLimit:         cfg.Assignment.AssignmentRetryLimit,
		StaleCheckInterval: time.Duration(cfg.Assignment.StaleCheckSeconds) * time.Second,
		StaleTTL:           time.Duration(cfg.Assignment.StaleTTLSeconds) * time.Second,
		AdvisorDeadline:    3 * time.Second,
	}
	engine := assignment.New(taskStore, machine, events, adv, assignCfg)
	sweeper := assignment.NewSweeper(engine)

	notifier := buildNotifier(cfg)
	progressHandler := progress.New(taskStore, machine, events, adv, notifier)

	metrics := monitor.NewMetrics()
	mon := monitor.New(taskStore, provider, queue, events, metrics, monitor.Config{StaleTTL: assignCfg.StaleTTL})

	var generator *project.Generator
	if provider != nil {
		generator = project.New(taskStore, provider, adv, events)
	}

	mcpServer := mcp.NewServer()
	mcp.RegisterMarcusTools(mcpServer, mcp.Dependencies{
		Store:     taskStore,
		Engine:    engine,
		Progress:  progressHandler,
		Monitor:   mon,
		Generator: generator,
		Deadline:  time.Duration(cfg.ToolDispatcher.DeadlineMs) * time.Millisecond,
	})

	if natsClient != nil {
		natsHandler := nats.NewHandler(natsClient, nats.HandlerCallbacks{
			OnHeartbeat: func(agentID, _, _, _, _ string) error {
				return taskStore.Heartbeat(agentID)
			},
			OnToolCall: mcpServer.CallTool,
		})
		if err := natsHandler.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "[NATS] failed to start message handler: %v\n", err)
		} else {
			defer natsHandler.Stop()
		}
	}

	router := mux.NewRouter()
	router.HandleFunc("/mcp", mcpServer.ServeStreamableHTTP)
	router.HandleFunc("/mcp/sse", mcpServer.ServeSSE)
	router.HandleFunc("/mcp/messages/", mcpServer.ServeMessage)
	router.Handle("/ws", mon.Hub())
	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	shutdownReq := make(chan struct{}, 1)
	router.HandleFunc("/api/shutdown", func(w http.ResponseWriter, r *http.Request) {
		select {
		case shutdownReq <- struct{}{}:
		default:
		}
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodPost)

	httpServer := &http.Server{Addr: fmt.Sprintf(":%d", *port), Handler: router}
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.ListenAndServe()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sweeper.Run(ctx)
	go mon.Hub().Run()
	if provider != nil {
		go queue.Run(ctx, time.Second)
	}

	if err := instanceMgr.WritePIDFile(os.Getpid(), *port, basePath); err != nil {
		fmt.Fprintf(os.Stderr, "[INSTANCE] failed to write pid file: %v\n", err)
	}

	fmt.Printf("[MAIN] marcus listening on :%d (provider=%s)\n", *port, cfg.Provider)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "[MAIN] server error: %v\n", err)
		}
	case <-shutdown:
		fmt.Println("[MAIN] shutting down (signal received)")
	case <-shutdownReq:
		fmt.Println("[MAIN] shutting down (shutdown request received)")
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "[MAIN] shutdown error: %v\n", err)
	}
	instanceMgr.RemovePIDFile()
}

// buildProvider decodes cfg.ProviderConfig (a raw map from the generic
// config loader) into the concrete adapter config via a JSON roundtrip,
// since each adapter's shape differs and config.Config can't know it in
// advance. An empty cfg.Provider means "no board, internal-only mode".
func buildProvider(cfg *config.Config) (board.Provider, error) {
	if cfg.Provider == "" {
		return nil, nil
	}
	raw, err := json.Marshal(cfg.ProviderConfig)
	if err != nil {
		return nil, fmt.Errorf("encode provider_config: %w", err)
	}
	switch cfg.Provider {
	case "planka":
		var c board.PlankaConfig
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode planka config: %w", err)
		}
		return board.NewPlankaProvider(c), nil
	case "github":
		var c board.GitHubConfig
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode github config: %w", err)
		}
		return board.NewGitHubProjectsProvider(c), nil
	case "linear":
		var c board.LinearConfig
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode linear config: %w", err)
		}
		return board.NewLinearProvider(c), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func buildAdvisor(cfg *config.Config) advisor.Advisor {
	if !cfg.AI.Enabled {
		return advisor.NewNullAdvisor()
	}
	apiKey := os.Getenv(cfg.AI.APIKeyEnv)
	if apiKey == "" {
		return advisor.NewNullAdvisor()
	}
	return advisor.NewHTTPAdvisor(advisor.HTTPAdvisorConfig{APIKey: apiKey, TimeoutMs: cfg.AI.TimeoutMs})
}

// buildNotifier wires configured external channels into a Router; a
// Router with zero channels is still a valid progress.Notifier, it just
// never has anything to fan out to.
func buildNotifier(cfg *config.Config) *notifications.Router {
	var channels []notifications.NotificationChannel
	if cfg.Notifications.Slack.Enabled {
		channels = append(channels, external.NewSlackNotifier(external.SlackConfig{
			WebhookURL:  cfg.Notifications.Slack.WebhookURL,
			Channel:     cfg.Notifications.Slack.Channel,
			Username:    cfg.Notifications.Slack.Username,
			IconEmoji:   cfg.Notifications.Slack.IconEmoji,
			MinPriority: cfg.Notifications.Slack.MinPriority,
			EventTypes:  toEventTypes(cfg.Notifications.Slack.EventTypes),
		}))
	}
	if cfg.Notifications.Discord.Enabled {
		channels = append(channels, external.NewDiscordNotifier(external.DiscordConfig{
			WebhookURL:  cfg.Notifications.Discord.WebhookURL,
			Username:    cfg.Notifications.Discord.Username,
			AvatarURL:   cfg.Notifications.Discord.AvatarURL,
			MinPriority: cfg.Notifications.Discord.MinPriority,
			EventTypes:  toEventTypes(cfg.Notifications.Discord.EventTypes),
		}))
	}
	if cfg.Notifications.Email.Enabled {
		channels = append(channels, external.NewEmailNotifier(external.EmailConfig{
			SMTPHost:    cfg.Notifications.Email.SMTPHost,
			SMTPPort:    cfg.Notifications.Email.SMTPPort,
			Username:    cfg.Notifications.Email.Username,
			Password:    cfg.Notifications.Email.Password,
			From:        cfg.Notifications.Email.From,
			To:          cfg.Notifications.Email.To,
			MinPriority: cfg.Notifications.Email.MinPriority,
			EventTypes:  toEventTypes(cfg.Notifications.Email.EventTypes),
		}))
	}
	if cfg.Notifications.Desktop.Enabled {
		channels = append(channels, notify.NewDesktopNotifier(notify.DesktopConfig{
			AppID:        cfg.Notifications.Desktop.AppID,
			DashboardURL: cfg.Notifications.Desktop.DashboardURL,
			MinPriority:  cfg.Notifications.Desktop.MinPriority,
			EventTypes:   toEventTypes(cfg.Notifications.Desktop.EventTypes),
		}))
	}
	return notifications.NewRouter(channels)
}

// toEventTypes converts the config file's plain-string event-type
// allowlist into eventlog.EventType values. An empty list means "no
// allowlist filtering", handled by the channels themselves.
func toEventTypes(names []string) []eventlog.EventType {
	if len(names) == 0 {
		return nil
	}
	out := make([]eventlog.EventType, len(names))
	for i, n := range names {
		out[i] = eventlog.EventType(n)
	}
	return out
}

// startNATS embeds a NATS server and connects a client to it, giving the
// event log a durable broadcast channel (SPEC_FULL.md §6.9). Failure to
// start NATS is non-fatal: marcus keeps working with an in-process-only
// event bus.
func startNATS(basePath string, port int) (*nats.EmbeddedServer, *nats.Client) {
	srv, err := nats.NewEmbeddedServer(nats.EmbeddedServerConfig{
		Port:      port,
		JetStream: true,
		DataDir:   filepath.Join(basePath, "data", "nats"),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "[NATS] failed to construct embedded server: %v\n", err)
		return nil, nil
	}
	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "[NATS] failed to start embedded server: %v\n", err)
		return nil, nil
	}
	client, err := nats.NewClient(srv.URL())
	if err != nil {
		fmt.Fprintf(os.Stderr, "[NATS] failed to connect client: %v\n", err)
		srv.Shutdown()
		return nil, nil
	}

	streams, err := nats.NewStreamManager(client.RawConn())
	if err != nil {
		fmt.Fprintf(os.Stderr, "[NATS] failed to build stream manager: %v\n", err)
	} else if err := streams.SetupStreams(); err != nil {
		fmt.Fprintf(os.Stderr, "[NATS] failed to configure streams: %v\n", err)
	}

	return srv, client
}

func getBasePath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return os.Getwd()
	}
	dir := filepath.Dir(exe)
	if filepath.Base(dir) == "exe" || filepath.Base(filepath.Dir(dir)) == "go-build" {
		return os.Getwd()
	}
	if filepath.Base(dir) == "bin" {
		return filepath.Dir(dir), nil
	}
	return dir, nil
}

func showInstanceStatus(mgr *instance.InstanceManager) {
	info, err := mgr.CheckExistingInstance()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}
	if info == nil {
		fmt.Println("no marcus instance is currently running")
		return
	}
	fmt.Printf("instance: running (pid %d, port %d, started %s)\n", info.PID, info.Port, info.StartTime.Format(time.RFC3339))
}

func stopInstance(mgr *instance.InstanceManager, force bool) {
	info, err := mgr.CheckExistingInstance()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitInternal)
	}
	if info == nil {
		fmt.Println("no marcus instance is currently running")
		return
	}
	if force {
		if err := instance.KillProcess(info.PID); err != nil {
			fmt.Fprintf(os.Stderr, "failed to kill process: %v\n", err)
			os.Exit(exitInternal)
		}
		mgr.RemovePIDFile()
		fmt.Println("instance terminated")
		return
	}
	if err := instance.SendShutdownRequest(info.Port); err != nil {
		fmt.Fprintf(os.Stderr, "failed to send shutdown request: %v\n", err)
		os.Exit(exitInternal)
	}
	if instance.WaitForPortToBeAvailable(info.Port, 5*time.Second) {
		fmt.Println("instance stopped")
	} else {
		fmt.Println("instance may still be running; try -force-stop")
	}
}
