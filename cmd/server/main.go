package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"secret-santa/internal/config"
	"secret-santa/internal/conversation"
	"secret-santa/internal/db"
	"secret-santa/internal/draw"
	"secret-santa/internal/metrics"
	"secret-santa/internal/relay"
	"secret-santa/internal/santa"
	"secret-santa/internal/server"
	"secret-santa/internal/telegram"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("failed to load .env: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		store    santa.Store = santa.NewMemoryStore()
		eventLog server.EventLog
	)
	if cfg.DatabaseURL != "" {
		conn, err := db.Open(cfg)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		if err := db.Migrate(conn); err != nil {
			log.Fatalf("database migration: %v", err)
		}
		dbStore := db.NewStore(conn)
		store, eventLog = dbStore, dbStore
		log.Printf("using postgres store")
	} else {
		log.Printf("DATABASE_URL not set, games are kept in memory")
	}

	var states conversation.StateStore = conversation.NewMemoryStateStore()
	if cfg.RedisURL != "" {
		client, err := conversation.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis ping: %v", err)
		}
		states = conversation.NewRedisStateStore(client, cfg.ConversationTTL)
		log.Printf("conversation state in redis ttl=%s", cfg.ConversationTTL)
	} else {
		log.Printf("REDIS_URL not set, conversation state is lost on restart")
	}

	var (
		transport relay.Transport = logTransport{}
		bot       *telegram.Client
	)
	if cfg.BotToken != "" {
		httpClient := &http.Client{Timeout: time.Duration(cfg.PollTimeoutSeconds)*time.Second + 30*time.Second}
		bot, err = telegram.NewClient(cfg.TelegramAPIURL, cfg.BotToken, httpClient)
		if err != nil {
			log.Fatalf("telegram: %v", err)
		}
		transport = telegram.NewTransport(bot)
		log.Printf("telegram bot connected username=%s", bot.Username())
	} else {
		log.Printf("BOT_TOKEN not set, outbound messages are only logged")
	}

	router := relay.NewRouter(store, transport, relay.Options{
		Timeout:     cfg.DeliveryTimeout,
		Concurrency: cfg.NotifyConcurrency,
	})

	var srv *server.Server
	machine := conversation.NewMachine(store, states, draw.NewEngine(store), router,
		conversation.WithGameEvents(func(ev santa.GameEvent) {
			srv.PublishGameEvent(ev)
		}),
	)
	dispatcher := conversation.NewDispatcher(context.Background(), machine, router)
	srv = server.New(store, eventLog, dispatcher, cfg)
	if cfg.AdminToken == "" {
		log.Printf("ADMIN_TOKEN not set, admin pages are public and POST /api/events is disabled")
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Printf("secret-santa admin listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if bot != nil {
		poller := telegram.NewPoller(bot, dispatcher, cfg.PollTimeoutSeconds)
		group.Go(func() error {
			log.Printf("telegram polling started timeout=%ds", cfg.PollTimeoutSeconds)
			return poller.Run(groupCtx)
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("http shutdown: %v", err)
		}
		if err := dispatcher.Close(shutdownCtx); err != nil {
			log.Printf("dispatcher shutdown: %v", err)
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		log.Fatalf("server: %v", err)
	}
	log.Printf("secret-santa stopped")
}

// logTransport stands in for the chat platform when no bot token is set.
type logTransport struct{}

func (logTransport) Send(ctx context.Context, msg relay.Message) error {
	log.Printf("outbound message user_id=%d chars=%d", msg.UserID, len([]rune(msg.Text)))
	return nil
}
