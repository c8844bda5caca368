package producers

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

const topicReadAttempts = 5

// ensureTopic creates topicName when no partitions can be read for it
func ensureTopic(conn *kafka.Conn, topicName string, numPartitions, replicationFactor int, logger *slog.Logger) error {
	var (
		partitions []kafka.Partition
		err        error
	)
	for attempt := 1; attempt <= topicReadAttempts; attempt++ {
		partitions, err = conn.ReadPartitions(topicName)
		if err == nil {
			break
		}
		logger.Warn("Failed to read topic partitions, retrying", "topic", topicName, "attempt", attempt, "error", err)
		time.Sleep(2 * time.Second)
	}

	if len(partitions) > 0 {
		logger.Info("Kafka topic already exists", "topic", topicName, "partitions", len(partitions))
		return nil
	}

	topicConfig := kafka.TopicConfig{
		Topic:             topicName,
		NumPartitions:     max(numPartitions, 1),
		ReplicationFactor: max(replicationFactor, 1),
	}
	if err := conn.CreateTopics(topicConfig); err != nil {
		return fmt.Errorf("failed to create kafka topic %s: %w", topicName, err)
	}
	logger.Info("Created Kafka topic",
		"topic", topicName,
		"partitions", topicConfig.NumPartitions,
		"replication_factor", topicConfig.ReplicationFactor,
	)
	return nil
}

// dialAndEnsure connects to the first broker and makes sure topic exists
func dialAndEnsure(brokers, topic string, numPartitions, replicationFactor int, logger *slog.Logger) error {
	conn, err := kafka.Dial("tcp", brokers)
	if err != nil {
		return fmt.Errorf("failed to dial kafka: %w", err)
	}
	defer conn.Close()
	return ensureTopic(conn, topic, numPartitions, replicationFactor, logger)
}
