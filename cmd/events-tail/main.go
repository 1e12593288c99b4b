// Command events-tail prints the registration, payment and membership status
// events published by the service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"dds-registration/internal/config"
	"dds-registration/internal/kafka"
	"dds-registration/internal/logger"

	"github.com/joho/godotenv"
)

func main() {
	list := flag.Bool("list", false, "list the topics on the broker and exit")
	group := flag.String("group", "events-tail", "consumer group id")
	flag.Parse()

	logger := logger.NewLogger()
	defer logger.Close()

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()

	if *list {
		topics, err := kafka.ListTopics(cfg.Kafka.Brokers)
		if err != nil {
			logger.Fatal("KAFKA", fmt.Sprintf("Failed to list topics: %v", err))
		}
		sort.Strings(topics)
		for _, t := range topics {
			fmt.Println(t)
		}
		return
	}

	topics := []string{cfg.Kafka.Topics.RegistrationStatus, cfg.Kafka.Topics.PaymentStatus, cfg.Kafka.Topics.MembershipStatus}
	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, topics, *group, logger)
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("KAFKA", fmt.Sprintf("Tailing %v on %v", topics, cfg.Kafka.Brokers))
	err := consumer.Start(ctx, func(topic string, env kafka.Envelope) {
		fmt.Printf("%s %-22s %s %s\n", env.OccurredAt.Format("2006-01-02T15:04:05Z"), topic, env.ID, env.Payload)
	})
	if err != nil {
		logger.Fatal("KAFKA", fmt.Sprintf("Consumer stopped: %v", err))
	}
}
