package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"github.com/weak-head/kv-pipe/internal/logger"
)

const (
	// retryFetchCount defines the number of retries
	// to fetch a message from the reader before giving up.
	retryFetchCount = 3

	// retryWriteCount defines the number of retries
	// to write a message to the writer before giving up.
	retryWriteCount = 3

	// retryCommitCount defines the number of retries
	// to commit a message to the reader before giving up.
	retryCommitCount = 3

	// processingKind labels the reported metrics.
	processingKind = "key_value"
)

const (
	failureFetch   = "fetch"
	failureProcess = "process"
	failureWrite   = "write"
	failureCommit  = "commit"
)

var (
	// ErrNoReaderProvided happens when reader is not provided.
	ErrNoReaderProvided = errors.New("no reader provided")

	// ErrNoWriterProvided happens when writer is not provided.
	ErrNoWriterProvided = errors.New("no writer provided")

	// ErrNoSleeperProvided happens when sleeper is not provided.
	ErrNoSleeperProvided = errors.New("no sleeper provided")

	// ErrNoProcessorProvided happens when processor is not provided.
	ErrNoProcessorProvided = errors.New("no processor provided")

	// ErrNoReporterProvided happens when reporter is not provided.
	ErrNoReporterProvided = errors.New("no reporter provided")

	pipelineSeq uint64
)

// Reader is a transactional message reader.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Writer is an atomic message writer.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Processor turns a consumed message into the message sent downstream.
type Processor interface {
	Process(ctx context.Context, msg kafka.Message) (kafka.Message, error)
}

// Sleeper is a routine sleeper with some sleeping strategy
// and ability to reset the strategy state.
type Sleeper interface {
	Sleep()
	Reset()
}

// Reporter is a pipeline status and progress reporter that collects
// and aggregates metrics related to pipeline flow.
type Reporter interface {
	RecordDecoded(processingKind string, milliseconds float64)
	PipelineFailed(failure string)
}

// Pipeline is a key/value decoding pipeline.
type Pipeline struct {
	processor Processor
	reader    Reader
	writer    Writer

	sleeper  Sleeper
	reporter Reporter

	log logger.Log
}

// NewPipeline creates and initializes a new decoding pipeline.
func NewPipeline(
	reader Reader,
	writer Writer,
	processor Processor,
	sleeper Sleeper,
	reporter Reporter,
	log logger.Log,
) (*Pipeline, error) {
	if reader == nil {
		return nil, ErrNoReaderProvided
	}

	if writer == nil {
		return nil, ErrNoWriterProvided
	}

	if processor == nil {
		return nil, ErrNoProcessorProvided
	}

	if sleeper == nil {
		return nil, ErrNoSleeperProvided
	}

	if reporter == nil {
		return nil, ErrNoReporterProvided
	}

	return &Pipeline{
		processor: processor,
		reader:    reader,
		writer:    writer,
		sleeper:   sleeper,
		reporter:  reporter,
		log: log.WithFields(logger.Fields{
			logger.FieldPackage: "pipeline",
			"pipeline_id":       fmt.Sprintf("p_%d", atomic.AddUint64(&pipelineSeq, 1)),
		}),
	}, nil
}

// Run starts the decoding pipeline, that ensures that
// each message is processed at least once.
//
// Every message fetched from the reader is decoded into a key/value record,
// encoded and written to the writer. The source message is committed only
// after the write succeeded. A message that cannot be processed is reported,
// committed and skipped, so it does not block the partition.
func (p *Pipeline) Run(ctx context.Context) error {
	log := p.log.WithField(logger.FieldFunction, "Pipeline.Run")
	log.Info("Starting the pipeline.")

	failedFetches := 0
	for {
		select {
		case <-ctx.Done():
			log.Info("Pipeline has been stopped.")
			return nil
		default:
			// Nop
		}

		log.Trace("Fetching the next message from the reader.")
		m, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("Pipeline has been stopped.")
				return nil
			}

			log.Error(err, "Failed to fetch a message from the kafka reader")
			p.reporter.PipelineFailed(failureFetch)

			failedFetches += 1
			if failedFetches >= retryFetchCount {
				log.Errorf(err,
					"Giving up fetching the message. Stopping pipeline because of %d consecutive failed fetches",
					retryFetchCount)
				return err
			}
			p.sleeper.Sleep()
			continue
		}
		failedFetches = 0

		started := time.Now()
		out, err := p.processor.Process(ctx, m)
		if err != nil {
			log.WithFields(logger.Fields{
				"topic":     m.Topic,
				"partition": m.Partition,
				"offset":    m.Offset,
			}).Error(err, "Failed to process the message, skipping it")
			p.reporter.PipelineFailed(failureProcess)
		} else {
			if err := p.attempt(retryWriteCount, failureWrite, func() error {
				return p.writer.WriteMessages(ctx, out)
			}); err != nil {
				log.Errorf(err,
					"Giving up writing the message. Stopping pipeline because of %d consecutive failed writes",
					retryWriteCount)
				return err
			}
			p.reporter.RecordDecoded(processingKind, float64(time.Since(started).Microseconds())/1000)
		}

		if err := p.attempt(retryCommitCount, failureCommit, func() error {
			return p.reader.CommitMessages(ctx, m)
		}); err != nil {
			log.Errorf(err,
				"Giving up committing the message. Stopping pipeline because of %d consecutive failed commits",
				retryCommitCount)
			return err
		}

		p.sleeper.Reset()
	}
}

// attempt calls fn until it succeeds or fails the given number of times,
// sleeping between the attempts. The last error is returned.
func (p *Pipeline) attempt(attempts int, failure string, fn func() error) error {
	log := p.log.WithField(logger.FieldFunction, "Pipeline.attempt")

	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}

		log.Error(err, fmt.Sprintf("Failed to %s the message", failure))
		p.reporter.PipelineFailed(failure)

		if i < attempts {
			p.sleeper.Sleep()
		}
	}
	return err
}
