package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/upishield/fraud-screening/configs"
	"github.com/upishield/fraud-screening/internal/detectors"
	"github.com/upishield/fraud-screening/internal/models"
	"github.com/upishield/fraud-screening/internal/queue"
	"github.com/upishield/fraud-screening/internal/repositories"
	"github.com/upishield/fraud-screening/internal/scoring"
)

// Asynchronous screening path. Payment switches that cannot wait on the
// synchronous API publish requests to the request topic; this worker scores
// them and publishes the decisions to the decision topic. The scoring
// pipeline is identical to the API server's.

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg := configs.Load()

	setupLogging(cfg.Server.Environment)

	log.Info().
		Strs("brokers", cfg.Kafka.Brokers).
		Str("request_topic", cfg.Kafka.RequestTopic).
		Str("decision_topic", cfg.Kafka.DecisionTopic).
		Str("group_id", cfg.Kafka.GroupID).
		Msg("Starting UPIShield Kafka screening worker")

	db, err := repositories.NewDatabase(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	streamClient, err := queue.NewDecisionStreamClient(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis Stream")
	}
	defer streamClient.Close()

	cacheClient, err := queue.NewCacheClient(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis Cache")
	}
	defer cacheClient.Close()

	reviewRepo := repositories.NewReviewQueueRepository(db)

	registry := detectors.LoadRegistry(cfg.Scoring.ModelDir)
	if !registry.AllLoaded() && !cfg.Scoring.AllowDegradedMode {
		log.Fatal().Str("state", registry.String()).Msg("Model artifacts missing and degraded mode disabled")
	}

	dets := []detectors.Detector{
		detectors.NewPhishingDetector(registry),
		detectors.NewQuishingDetector(registry),
		detectors.NewCollectDetector(registry, cfg.Scoring.LargeAmount),
		detectors.NewMalwareDetector(registry),
	}

	settings := scoring.NewSettings(cfg.Scoring, cfg.HITL)
	coordinator := scoring.NewCoordinator(settings, dets, reviewRepo, cacheClient, streamClient)

	// Kafka consumer group
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Version = sarama.V3_0_0_0

	var consumerGroup sarama.ConsumerGroup
	for i := 0; i < 30; i++ {
		consumerGroup, err = sarama.NewConsumerGroup(cfg.Kafka.Brokers, cfg.Kafka.GroupID, config)
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("Failed to connect to Kafka, retrying...")
		time.Sleep(5 * time.Second)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Kafka consumer group after retries")
	}
	defer consumerGroup.Close()

	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, config)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Kafka producer")
	}
	defer producer.Close()

	handler := &screeningHandler{
		coordinator:   coordinator,
		producer:      producer,
		decisionTopic: cfg.Kafka.DecisionTopic,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Shutdown signal received, stopping Kafka worker...")
		cancel()
	}()

	topics := []string{cfg.Kafka.RequestTopic}
	for {
		if err := consumerGroup.Consume(ctx, topics, handler); err != nil {
			log.Error().Err(err).Msg("Error from consumer")
		}

		if ctx.Err() != nil {
			log.Info().Msg("Context cancelled, shutting down Kafka worker")
			return
		}
	}
}

func setupLogging(env string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// screeningHandler scores request-topic messages and publishes decisions
type screeningHandler struct {
	coordinator   *scoring.Coordinator
	producer      sarama.SyncProducer
	decisionTopic string
}

func (h *screeningHandler) Setup(sarama.ConsumerGroupSession) error {
	log.Info().Msg("Screening session started")
	return nil
}

func (h *screeningHandler) Cleanup(sarama.ConsumerGroupSession) error {
	log.Info().Msg("Screening session ended")
	return nil
}

func (h *screeningHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			h.processMessage(session.Context(), message)
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

func (h *screeningHandler) processMessage(ctx context.Context, message *sarama.ConsumerMessage) {
	var req models.TransactionRequest
	if err := json.Unmarshal(message.Value, &req); err != nil {
		log.Error().Err(err).Int64("offset", message.Offset).Msg("Failed to parse screening request")
		return
	}

	resp, err := h.coordinator.Score(ctx, &req)
	if err != nil {
		// Malformed requests are dropped after logging; the topic is not a
		// validation surface, the producer owns its payload quality.
		log.Error().Err(err).Str("transaction_id", req.TransactionID).Msg("Failed to score request")
		return
	}

	respJSON, err := json.Marshal(resp)
	if err != nil {
		log.Error().Err(err).Str("transaction_id", req.TransactionID).Msg("Failed to marshal decision")
		return
	}

	partition, offset, err := h.producer.SendMessage(&sarama.ProducerMessage{
		Topic: h.decisionTopic,
		Key:   sarama.StringEncoder(req.TransactionID),
		Value: sarama.ByteEncoder(respJSON),
	})
	if err != nil {
		log.Error().Err(err).Str("transaction_id", req.TransactionID).Msg("Failed to publish decision")
		return
	}

	log.Info().
		Str("transaction_id", req.TransactionID).
		Int("trust_score", resp.TrustScore).
		Str("action", resp.Action).
		Int32("partition", partition).
		Int64("offset", offset).
		Msg("Screening request processed")
}
