package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chatrelay/internal/api"
	"chatrelay/internal/config"
	"chatrelay/internal/logger"
	"chatrelay/internal/models"
	"chatrelay/internal/prompt"
	"chatrelay/internal/redis"
	"chatrelay/internal/service/ai"
	"chatrelay/internal/service/audit"
	"chatrelay/internal/service/chat"
	"chatrelay/internal/storage"
	"chatrelay/internal/worker"
)

const shutdownTimeout = 10 * time.Second

var cli struct {
	Config string `short:"c" help:"Path to a JSON config file (defaults to $CHATRELAY_CONFIG)." type:"path"`

	Serve struct{} `cmd:"" default:"1" help:"Run the HTTP relay."`

	Ask struct {
		Message string `short:"m" default:"Hello" help:"Message sent to the model."`
	} `cmd:"" help:"Send one message through the gateway and print the outcome."`

	Calls struct {
		Limit int `short:"n" default:"20" help:"Number of records to list."`
	} `cmd:"" help:"List the newest call records from the database."`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("chatrelay"),
		kong.Description("HTTP relay between chat clients and a hosted text-generation model."),
		kong.UsageOnError(),
	)

	cfg, err := config.Load(cli.Config)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zl, err := logger.New(logger.Options{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		File:      cfg.Log.File,
		MaxSizeMB: cfg.Log.MaxSizeMB,
		MaxAge:    cfg.Log.MaxAge,
		MaxBackup: cfg.Log.MaxBackup,
		Compress:  cfg.Log.Compress,
		Console:   cfg.Log.Console,
	})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer zl.Sync()

	switch ctx.Command() {
	case "ask":
		err = ask(cfg, zl, cli.Ask.Message)
	case "calls":
		err = listCalls(cfg, cli.Calls.Limit)
	default:
		err = serve(cfg, zl)
	}
	if err != nil {
		zl.Fatal("chatrelay stopped", zap.Error(err))
	}
}

func newPipeline(cfg *config.Config, zl *zap.Logger, dispatcher *worker.Dispatcher, recorder chat.CallRecorder) (*chat.Service, error) {
	formatter, err := prompt.New(cfg.Gateway.Family, prompt.Options{
		UserLabel:      cfg.Gateway.UserLabel,
		AssistantLabel: cfg.Gateway.AssistantLabel,
	})
	if err != nil {
		return nil, fmt.Errorf("init formatter: %w", err)
	}
	gateway, err := ai.NewGateway(context.Background(), ai.Config{
		Backend:      cfg.Gateway.Backend,
		Endpoint:     cfg.Gateway.Endpoint,
		Model:        cfg.Gateway.Model,
		AuthToken:    cfg.Gateway.AuthToken,
		MaxNewTokens: cfg.Gateway.MaxNewTokens,
		Temperature:  cfg.Gateway.Temperature,
		Timeout:      cfg.Gateway.Timeout(),
	}, formatter, zl)
	if err != nil {
		return nil, fmt.Errorf("init gateway: %w", err)
	}
	replies := ai.Replies{
		Unconfigured:      cfg.Replies.Unconfigured,
		Warming:           cfg.Replies.Warming,
		RateLimited:       cfg.Replies.RateLimited,
		UpstreamError:     cfg.Replies.UpstreamError,
		Timeout:           cfg.Replies.Timeout,
		ConnectionFailure: cfg.Replies.ConnectionFailure,
		Unexpected:        cfg.Replies.Unexpected,
		Busy:              cfg.Replies.Busy,
		Fallbacks:         cfg.Replies.Fallbacks,
	}
	return chat.NewService(gateway, formatter, dispatcher, recorder, chat.Options{
		ContextWindow: cfg.Gateway.ContextWindow,
		RetentionSize: cfg.Gateway.RetentionSize,
		Replies:       replies,
	}, zl), nil
}

func serve(cfg *config.Config, zl *zap.Logger) error {
	if !cfg.TokenConfigured() {
		zl.Warn("HF_TOKEN is not set, replies will use the setup placeholder")
	}

	var counters audit.CounterStore
	if cfg.Redis.Enabled {
		rdb, err := redis.NewRedisClient(cfg)
		if err != nil {
			return fmt.Errorf("create redis client: %w", err)
		}
		defer rdb.Close()
		counters = rdb
	}

	var calls audit.CallStore
	if cfg.Database.Driver != "" {
		db, err := storage.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		// Create the call_log table
		if err := storage.Migrate(db); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		calls = db
	}

	recorder := audit.NewRecorder(counters, calls, zl)
	defer recorder.Close()
	pruneCtx, pruneCancel := context.WithCancel(context.Background())
	defer pruneCancel()
	recorder.StartPruner(pruneCtx,
		time.Duration(cfg.Audit.RetentionHours)*time.Hour,
		time.Duration(cfg.Audit.PruneIntervalMinutes)*time.Minute,
	)

	dispatcher := worker.NewDispatcher(worker.Config{
		MinWorkers:        cfg.Workers.Min,
		MaxWorkers:        cfg.Workers.Max,
		QueueSize:         cfg.Workers.QueueSize,
		WorkerIdleTimeout: time.Duration(cfg.Workers.IdleTimeoutSeconds) * time.Second,
		Logger:            zl,
		Debug:             cfg.Workers.Debug,
	})
	defer dispatcher.Close()

	svc, err := newPipeline(cfg, zl, dispatcher, recorder)
	if err != nil {
		return err
	}

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	if gin.Mode() == gin.DebugMode {
		router.Use(gin.Logger(), gin.Recovery())
	} else {
		router.Use(api.AccessLog(zl), gin.Recovery())
	}
	api.NewHandler(svc, recorder, cfg.Server.Name, zl).RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	errCh := make(chan error, 1)
	go func() {
		zl.Info("listening", zap.String("addr", cfg.Server.Address), zap.String("ai", svc.Describe()))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-stop:
		zl.Info("shutting down", zap.String("signal", sig.String()))
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func ask(cfg *config.Config, zl *zap.Logger, message string) error {
	svc, err := newPipeline(cfg, zl, nil, nil)
	if err != nil {
		return err
	}
	resp, res := svc.Chat(context.Background(), "", models.ChatRequest{Message: message})
	fmt.Printf("ai:       %s\n", svc.Describe())
	fmt.Printf("outcome:  %s\n", res.Outcome)
	fmt.Printf("status:   %d\n", res.Status)
	fmt.Printf("latency:  %s\n", res.Latency)
	fmt.Printf("response: %s\n", resp.Response)
	return nil
}

func listCalls(cfg *config.Config, limit int) error {
	if cfg.Database.Driver == "" {
		return errors.New("database.driver is not set")
	}
	db, err := storage.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	calls, err := db.RecentCalls(context.Background(), limit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tREQUEST\tCLIENT\tFAMILY\tOUTCOME\tSTATUS\tLATENCY")
	for _, c := range calls {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%dms\n",
			c.CreatedAt.Local().Format(time.DateTime), c.RequestID, c.ClientKey, c.Family, c.Outcome, c.Status, c.LatencyMS)
	}
	return w.Flush()
}
