package stream

import (
	"errors"
	"net"
	"strconv"

	kafka "github.com/segmentio/kafka-go"
)

// ErrNoBrokers happens when no kafka broker address is configured.
var ErrNoBrokers = errors.New("no kafka brokers provided")

// NewReader creates a consumer group reader, creating the topic first if asked to.
func NewReader(config ReaderConfig) (*kafka.Reader, error) {
	if len(config.Brokers) == 0 {
		return nil, ErrNoBrokers
	}

	if err := createTopic(config.Brokers[0], config.TopicConfig); err != nil {
		return nil, err
	}

	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  config.Brokers,
		GroupID:  config.GroupID,
		Topic:    config.Topic,
		MinBytes: config.MinBytes,
		MaxBytes: config.MaxBytes,
	}), nil
}

// NewWriter creates a writer for the decoded records topic.
func NewWriter(config WriterConfig) (*kafka.Writer, error) {
	if len(config.Brokers) == 0 {
		return nil, ErrNoBrokers
	}

	if err := createTopic(config.Brokers[0], config.TopicConfig); err != nil {
		return nil, err
	}

	return &kafka.Writer{
		Addr:     kafka.TCP(config.Brokers...),
		Topic:    config.Topic,
		Balancer: createBalancer(config.Balancer),
	}, nil
}

// createTopic creates the topic through the cluster controller.
func createTopic(addr string, config TopicConfig) error {
	if !config.CreateIfNotExist {
		return nil
	}

	conn, err := kafka.Dial("tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return err
	}

	controllerConn, err := kafka.Dial(
		"tcp",
		net.JoinHostPort(
			controller.Host,
			strconv.Itoa(controller.Port),
		),
	)
	if err != nil {
		return err
	}
	defer controllerConn.Close()

	return controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             config.Topic,
		NumPartitions:     config.NumPartitions,
		ReplicationFactor: config.ReplicationFactor,
	})
}

// createBalancer maps a balancer name to the kafka-go balancer.
// Keyed balancers keep every record of a key on one partition.
func createBalancer(balancer string) kafka.Balancer {
	switch balancer {
	case "roundrobin":
		return &kafka.RoundRobin{}

	case "leastbytes":
		return &kafka.LeastBytes{}

	// FNV-1a
	case "hash":
		return &kafka.Hash{}

	case "crc32":
		return &kafka.CRC32Balancer{}

	case "murmur2":
		return &kafka.Murmur2Balancer{}

	default:
		return &kafka.LeastBytes{}
	}
}
