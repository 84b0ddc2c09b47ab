package stream

// TopicConfig
type TopicConfig struct {
	Topic             string
	CreateIfNotExist  bool
	NumPartitions     int
	ReplicationFactor int
}

// ReaderConfig describes the consumer side of the pipeline.
type ReaderConfig struct {
	TopicConfig

	Brokers  []string
	GroupID  string
	MinBytes int
	MaxBytes int
}

// WriterConfig describes the producer side of the pipeline.
type WriterConfig struct {
	TopicConfig

	Brokers  []string
	Balancer string
}
