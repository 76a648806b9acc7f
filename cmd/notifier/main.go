package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"sync"

	"github.com/joho/godotenv"

	"github.com/datmqhust/bookstore-orders/internal/config"
	"github.com/datmqhust/bookstore-orders/internal/events"
	"github.com/datmqhust/bookstore-orders/internal/kafkax"
	"github.com/datmqhust/bookstore-orders/internal/notifier"
	"github.com/datmqhust/bookstore-orders/internal/redisx"
	"github.com/datmqhust/bookstore-orders/pkg/logging"
	"github.com/datmqhust/bookstore-orders/pkg/shutdown"
)

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.New()
	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &notifier.Service{
		Redis: rdb,
		Sink:  notifier.LogSink{Log: logger},
		Log:   logger,
	}

	group := getenv("NOTIFIER_GROUP", "notifier-svc")
	workers := mustAtoi(os.Getenv("NOTIFIER_WORKERS"), "4")
	topics := []string{
		events.TopicOrderCreated,
		events.TopicPaymentCompleted,
		events.TopicPaymentFailed,
	}

	var wg sync.WaitGroup
	for _, topic := range topics {
		cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, topic, workers)
		wg.Add(1)
		go func(topic string) {
			defer wg.Done()
			log.Printf("notifier consumer started: group=%s topic=%s workers=%d", group, topic, workers)
			if err := cons.Start(ctx, svc.Handle); err != nil {
				log.Printf("consumer exit (%s): %v", topic, err)
				cancel()
			}
		}(topic)
	}

	<-ctx.Done()
	log.Println("shutting down consumers...")
	wg.Wait()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
