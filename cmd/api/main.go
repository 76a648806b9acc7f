package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"github.com/datmqhust/bookstore-orders/internal/cart"
	"github.com/datmqhust/bookstore-orders/internal/catalog"
	"github.com/datmqhust/bookstore-orders/internal/config"
	"github.com/datmqhust/bookstore-orders/internal/events"
	"github.com/datmqhust/bookstore-orders/internal/httpx"
	"github.com/datmqhust/bookstore-orders/internal/kafkax"
	"github.com/datmqhust/bookstore-orders/internal/orders"
	"github.com/datmqhust/bookstore-orders/internal/payments"
	"github.com/datmqhust/bookstore-orders/internal/postgres"
	"github.com/datmqhust/bookstore-orders/internal/redisx"
	"github.com/datmqhust/bookstore-orders/internal/users"
	"github.com/datmqhust/bookstore-orders/pkg/logging"
	"github.com/datmqhust/bookstore-orders/pkg/shutdown"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New()
	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Producers get their own lifetime: they must outlive the signal context
	// so in-flight handlers can still publish during server drain.
	prodCtx, prodCancel := context.WithCancel(context.Background())
	defer prodCancel()
	prodOrder := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicOrderCreated, 1024)
	prodOrder.Start(prodCtx)
	prodPaid := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicPaymentCompleted, 1024)
	prodPaid.Start(prodCtx)
	prodFailed := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicPaymentFailed, 1024)
	prodFailed.Start(prodCtx)

	catalogRepo := &catalog.Repo{DB: db}
	cartRepo := &cart.Repo{DB: db}
	userRepo := &users.Repo{DB: db}
	orderRepo := &orders.Repo{DB: db}
	paymentRepo := &payments.Repo{DB: db}

	workflow := &orders.Workflow{
		Users:    userRepo,
		Carts:    cartRepo,
		Products: catalogRepo,
		Orders:   orderRepo,
		Payments: paymentRepo,
		Log:      logger,
	}
	reconciler := &payments.Reconciler{
		Payments: paymentRepo,
		Orders:   orderRepo,
		Gateway:  cfg.Gateway,
		Log:      logger,
	}

	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Workflow:   workflow,
		Orders:     orderRepo,
		Catalog:    catalogRepo,
		Reconciler: reconciler,
		Redis:      rdb,
		Producer:   prodOrder,
		Service:    cfg.ServiceName,
	}
	oh.Register(router)
	ch := &httpx.CartHandler{Carts: cartRepo, Catalog: catalogRepo}
	ch.Register(router)
	wh := &httpx.WebhookHandler{
		APIKey:            cfg.Gateway.APIKey,
		Reconciler:        reconciler,
		ProducerCompleted: prodPaid,
		ProducerFailed:    prodFailed,
		Service:           cfg.ServiceName,
	}
	wh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prodOrder.Close() // close inbox -> flush & close writer
	prodPaid.Close()
	prodFailed.Close()
	prodOrder.WaitClosed() // drain
	prodPaid.WaitClosed()
	prodFailed.WaitClosed()
}
