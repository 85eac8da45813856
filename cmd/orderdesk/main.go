package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/pitabwire/frame"
	"github.com/pitabwire/frame/config"
	"github.com/pitabwire/frame/workerpool"

	odconfig "github.com/orderdesk/orderdesk/config"
	"github.com/orderdesk/orderdesk/internal/engine"
	"github.com/orderdesk/orderdesk/internal/transport/telegram"
	"github.com/orderdesk/orderdesk/pkg/events"
	"github.com/orderdesk/orderdesk/pkg/order"
	"github.com/orderdesk/orderdesk/pkg/webhook"
	webhookapi "github.com/orderdesk/orderdesk/pkg/webhook/api"
)

func main() {
	ctx := context.Background()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.LoadWithOIDC[odconfig.OrderdeskConfig](ctx)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	eventRef := cfg.GetEventsQueueName()
	eventURL := cfg.GetEventsQueueURL()

	ctx, srv := frame.NewService(
		frame.WithConfig(&cfg),
		frame.WithName("orderdesk"),
		frame.WithDatastore(),
		frame.WithRegisterPublisher(eventRef, eventURL),
		frame.WithWorkerPoolOptions(
			workerpool.WithPoolCount(cfg.WorkerPoolCount),
			workerpool.WithSinglePoolCapacity(cfg.WorkerPoolCapacity),
		),
	)
	defer srv.Stop(ctx)

	pool, err := srv.WorkManager().GetPool()
	if err != nil {
		log.Fatalf("getting worker pool: %v", err)
	}

	pub := events.NewPublisher(srv.QueueManager(), "orderdesk", eventRef)

	// --- Flow scripts ---
	loader := order.NewLoader(cfg.ScriptDir)
	if _, err := loader.LoadAll(); err != nil {
		log.Printf("warning: loading flow scripts: %v", err)
	}
	if cfg.WatchScripts {
		_ = pool.Submit(ctx, func() {
			if err := loader.WatchAndReload(ctx.Done()); err != nil {
				log.Printf("warning: script watcher: %v", err)
			}
		})
	}

	// --- Session engine ---
	eng := engine.New(loader, pub, pool, engine.Config{
		SessionTTL:    cfg.SessionTTL(),
		ReapInterval:  cfg.ReapInterval(),
		SubmitTimeout: time.Duration(cfg.InputSubmitSec) * time.Second,
		ResultTimeout: time.Duration(cfg.InputResultSec) * time.Second,
	})
	eng.StartReaper(ctx)

	// --- Webhook pipeline ---
	whRepo := webhook.NewRepository(
		srv.DatastoreManager().GetPool(ctx, "__default__pool_name__"),
	)
	whDeliverer := webhook.NewDeliverer(whRepo, webhook.DelivererConfig{
		MaxRetries:        cfg.WebhookMaxRetries,
		TimeoutSec:        cfg.WebhookTimeoutSec,
		BackoffInitialSec: cfg.WebhookBackoffSec,
		BackoffMaxSec:     cfg.WebhookBackoffMax,
		CBFailThreshold:   cfg.CBFailThreshold,
		CBResetTimeoutSec: cfg.CBResetTimeoutSec,
	}, pool, pub)
	whSubscriber := &webhook.Subscriber{
		Repo:      whRepo,
		Deliverer: whDeliverer,
		Pool:      pool,
	}

	// --- HTTP Mux ---
	mux := http.NewServeMux()

	whHandler := webhookapi.NewHandler(whRepo, pub)
	whHandler.RegisterRoutes(mux)

	if cfg.TelegramBotToken != "" {
		sender := telegram.NewBotSender(cfg.TelegramBotToken, cfg.TelegramAPIBase)
		tgHandler := telegram.NewHandler(eng, sender, cfg.DefaultScript)
		tgHandler.RegisterRoutes(mux)
		_ = pool.Submit(ctx, func() {
			tgHandler.NotifyDeliveryFailures(ctx, pub)
		})
	} else {
		log.Printf("TELEGRAM_BOT_TOKEN not set, telegram transport disabled")
	}

	srv.Init(ctx,
		frame.WithRegisterSubscriber(eventRef+".webhooks", eventURL, whSubscriber),
		frame.WithHTTPHandler(mux),
	)

	if err := srv.Run(ctx, ""); err != nil {
		log.Fatalf("service exited: %v", err)
	}
}
