package processor

import (
	"context"
	"errors"
	"fmt"

	kafka "github.com/segmentio/kafka-go"

	"github.com/weak-head/kv-pipe/internal/decoder"
	"github.com/weak-head/kv-pipe/internal/logger"
)

var (
	// ErrNoDecoderProvided happens when decoder is not provided.
	ErrNoDecoderProvided = errors.New("no decoder provided")

	// ErrNoConverterProvided happens when converter is not provided.
	ErrNoConverterProvided = errors.New("no converter provided")
)

const (
	// HeaderContentType is the output message header with the record encoding.
	HeaderContentType = "content-type"

	// HeaderSourceTopic is the output message header with the topic
	// the record has been consumed from.
	HeaderSourceTopic = "source-topic"
)

// DecoderConfig selects the record fields, as set on the command line.
type DecoderConfig struct {
	KeyField   string
	ValueField string
	OmitKey    bool
	OmitValue  bool
}

// Build returns the decoder configuration, leaving omitted sides unset.
func (c DecoderConfig) Build() decoder.Config {
	var conf decoder.Config
	if !c.OmitKey {
		conf.KeyField = decoder.Field(c.KeyField)
	}
	if !c.OmitValue {
		conf.ValueField = decoder.Field(c.ValueField)
	}
	return conf
}

// ProcessorConfig holds the processor settings.
type ProcessorConfig struct {
	// ArchiveBucket is the bucket the encoded records are archived to.
	ArchiveBucket string
}

// Decoder turns a raw key/value pair into a record.
type Decoder interface {
	Decode(key, value []byte) decoder.Record
}

// Converter is the interface that wraps the basic Convert method.
//
// Convert encodes the decoded record into the bytes sent downstream.
// Convert must return a non-nil error if the record could not be encoded.
type Converter interface {
	Convert(ctx context.Context, record decoder.Record) ([]byte, error)
	ContentType() string
}

// Archive keeps a copy of every encoded record.
type Archive interface {
	Store(ctx context.Context, bucket string, objectName string, objectBytes []byte, contentType string) error
}

// processor decodes consumed messages, encodes the records
// with the converter and optionally archives them.
type processor struct {
	config ProcessorConfig

	decoder   Decoder
	converter Converter
	archive   Archive

	log logger.Log
}

// NewProcessor creates a new message processor.
// The archive is optional, a nil archive disables archiving.
func NewProcessor(
	config ProcessorConfig,
	decoder Decoder,
	converter Converter,
	archive Archive,
	log logger.Log,
) (*processor, error) {
	if decoder == nil {
		return nil, ErrNoDecoderProvided
	}

	if converter == nil {
		return nil, ErrNoConverterProvided
	}

	return &processor{
		config:    config,
		decoder:   decoder,
		converter: converter,
		archive:   archive,
		log:       log.WithField(logger.FieldPackage, "processor"),
	}, nil
}

// Process decodes the message key and value into a record and
// returns the message that carries the encoded record downstream.
func (p *processor) Process(ctx context.Context, msg kafka.Message) (kafka.Message, error) {
	log := p.log.WithFields(logger.Fields{
		logger.FieldFunction: "processor.Process",
		"topic":              msg.Topic,
		"partition":          msg.Partition,
		"offset":             msg.Offset,
	})
	log.Trace("Processing a new message.")

	record := p.decoder.Decode(msg.Key, msg.Value)

	encoded, err := p.converter.Convert(ctx, record)
	if err != nil {
		log.Error(err, "Failed to convert the decoded record.")
		return kafka.Message{}, err
	}

	if p.archive != nil {
		objectName := ArchiveObjectName(msg.Topic, msg.Partition, msg.Offset)
		if err := p.archive.Store(ctx, p.config.ArchiveBucket, objectName, encoded, p.converter.ContentType()); err != nil {
			log.Error(err, "Failed to archive the decoded record.")
			return kafka.Message{}, err
		}
	}

	log.Trace("Message has been processed.")
	return kafka.Message{
		Key:   msg.Key,
		Value: encoded,
		Headers: []kafka.Header{
			{Key: HeaderContentType, Value: []byte(p.converter.ContentType())},
			{Key: HeaderSourceTopic, Value: []byte(msg.Topic)},
		},
	}, nil
}

// ArchiveObjectName is the object a consumed message's record is archived under.
func ArchiveObjectName(topic string, partition int, offset int64) string {
	return fmt.Sprintf("%s/%d/%d.pb", topic, partition, offset)
}
