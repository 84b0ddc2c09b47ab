package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gogo/protobuf/jsonpb"
	kafka "github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/weak-head/kv-pipe/internal/decoder"
	"github.com/weak-head/kv-pipe/internal/envelope"
	"github.com/weak-head/kv-pipe/internal/logger"
	"github.com/weak-head/kv-pipe/internal/metrics"
	"github.com/weak-head/kv-pipe/internal/pipeline"
	"github.com/weak-head/kv-pipe/internal/processor"
	"github.com/weak-head/kv-pipe/internal/sleeper"
	"github.com/weak-head/kv-pipe/internal/storage"
	"github.com/weak-head/kv-pipe/internal/stream"
)

const engine = "kv-pipe"

var errNoPipelines = errors.New("at least one pipeline is required")

type cli struct {
	cfg cfg
	log logger.Log

	openArchive func(conf storage.StorageConfig, log logger.Log) (archiveReader, error)
}

// archiveReader reads records archived by the pipelines.
type archiveReader interface {
	Retrieve(ctx context.Context, bucket string, objectName string) ([]byte, error)
}

func openMinioArchive(conf storage.StorageConfig, log logger.Log) (archiveReader, error) {
	s, err := storage.NewMinioStorage(conf, log)
	if err != nil {
		return nil, err
	}
	return s, nil
}

type cfg struct {
	Logger    logger.Config
	Decoder   processor.DecoderConfig
	Processor processor.ProcessorConfig
	Reader    stream.ReaderConfig
	Writer    stream.WriterConfig
	Storage   storage.StorageConfig
	Metrics   metrics.Config

	Pipelines      int
	Archive        bool
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	ShutdownGrace  time.Duration
}

func (c *cli) initConfig(cmd *cobra.Command, args []string) error {
	log, err := logger.New(c.cfg.Logger)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	c.log = log.WithField(logger.FieldPackage, "main")

	if c.cfg.Pipelines < 1 {
		return errNoPipelines
	}
	if len(c.cfg.Reader.Brokers) == 0 {
		return stream.ErrNoBrokers
	}
	if len(c.cfg.Writer.Brokers) == 0 {
		c.cfg.Writer.Brokers = c.cfg.Reader.Brokers
	}
	return nil
}

func (c *cli) run(cmd *cobra.Command, args []string) (err error) {
	log := c.log.WithField(logger.FieldFunction, "cli.run")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dec := decoder.NewKeyValueDecoder(c.cfg.Decoder.Build())
	log.Infof("Decoding records into %s.", dec.ProducedType())

	converter, err := processor.NewConverter()
	if err != nil {
		return err
	}

	var archive processor.Archive
	if c.cfg.Archive {
		s, err := storage.NewMinioStorage(c.cfg.Storage, c.log)
		if err != nil {
			return err
		}
		archive = s
	}

	proc, err := processor.NewProcessor(c.cfg.Processor, dec, converter, archive, c.log)
	if err != nil {
		return err
	}

	reporter, err := metrics.NewReporter(metrics.ServiceInfo{Engine: engine})
	if err != nil {
		return err
	}

	server, err := metrics.NewPrometheusServer(c.cfg.Metrics)
	if err != nil {
		return err
	}

	writer, err := stream.NewWriter(c.cfg.Writer)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, writer.Close())
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(server.Serve)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.cfg.ShutdownGrace)
		defer cancel()
		return server.Stop(shutdownCtx)
	})

	readers := make([]*kafka.Reader, 0, c.cfg.Pipelines)
	defer func() {
		for _, r := range readers {
			err = multierr.Append(err, r.Close())
		}
	}()

	for i := 0; i < c.cfg.Pipelines; i++ {
		reader, err := stream.NewReader(c.cfg.Reader)
		if err != nil {
			stop()
			return multierr.Append(err, g.Wait())
		}
		readers = append(readers, reader)

		slp, err := sleeper.NewExponentialSleeper(c.cfg.BackoffInitial, c.cfg.BackoffMax)
		if err != nil {
			stop()
			return multierr.Append(err, g.Wait())
		}

		p, err := pipeline.NewPipeline(reader, writer, proc, slp, reporter, c.log)
		if err != nil {
			stop()
			return multierr.Append(err, g.Wait())
		}

		g.Go(func() error {
			return p.Run(gctx)
		})
	}

	log.Infof("Started %d pipelines.", c.cfg.Pipelines)
	if err := g.Wait(); err != nil {
		log.Error(err, "Pipelines have been stopped with an error.")
		return err
	}

	log.Info("Pipelines have been stopped.")
	return nil
}

type decodeFlags struct {
	key      string
	value    string
	keyNil   bool
	valueNil bool
}

func newDecodeCommand(c *cli) *cobra.Command {
	flags := &decodeFlags{}
	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode a single key/value pair and print the record as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			var key, value []byte
			if !flags.keyNil {
				key = append([]byte{}, flags.key...)
			}
			if !flags.valueNil {
				value = append([]byte{}, flags.value...)
			}

			record := decoder.NewKeyValueDecoder(c.cfg.Decoder.Build()).Decode(key, value)

			return printRecord(cmd, record)
		},
	}

	cmd.Flags().StringVar(&flags.key, "key", "", "message key")
	cmd.Flags().StringVar(&flags.value, "value", "", "message value")
	cmd.Flags().BoolVar(&flags.keyNil, "null-key", false, "treat the key as absent")
	cmd.Flags().BoolVar(&flags.valueNil, "null-value", false, "treat the value as absent")
	return cmd
}

type archivedFlags struct {
	topic     string
	partition int
	offset    int64
}

func newArchivedCommand(c *cli) *cobra.Command {
	flags := &archivedFlags{}
	cmd := &cobra.Command{
		Use:   "archived",
		Short: "Print an archived record as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger.New(c.cfg.Logger)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			archive, err := c.openArchive(c.cfg.Storage, log)
			if err != nil {
				return err
			}

			objectName := processor.ArchiveObjectName(flags.topic, flags.partition, flags.offset)
			b, err := archive.Retrieve(cmd.Context(), c.cfg.Processor.ArchiveBucket, objectName)
			if err != nil {
				return fmt.Errorf("retrieve %s: %w", objectName, err)
			}

			record, err := envelope.Decode(b)
			if err != nil {
				return fmt.Errorf("decode %s: %w", objectName, err)
			}
			return printRecord(cmd, record)
		},
	}

	cmd.Flags().StringVar(&flags.topic, "topic", "", "topic the record was consumed from")
	cmd.Flags().IntVar(&flags.partition, "partition", 0, "partition the record was consumed from")
	cmd.Flags().Int64Var(&flags.offset, "offset", 0, "offset of the consumed message")
	_ = cmd.MarkFlagRequired("topic")
	_ = cmd.MarkFlagRequired("offset")
	return cmd
}

// printRecord writes the record as JSON, absent values as null.
func printRecord(cmd *cobra.Command, record decoder.Record) error {
	m := jsonpb.Marshaler{}
	out, err := m.MarshalToString(envelope.ToStruct(record))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}

func newRootCommand() *cobra.Command {
	return newCommand(&cli{openArchive: openMinioArchive})
}

func newCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:          engine,
		Short:        "Decode kafka key/value messages into string records",
		PreRunE:      c.initConfig,
		RunE:         c.run,
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&c.cfg.Logger.Level, "log-level", "info", "log level")
	pf.StringVar(&c.cfg.Logger.Format, "log-format", "text", "log format: text or json")
	pf.StringVar(&c.cfg.Decoder.KeyField, "key-field", decoder.DefaultKeyField, "record field for the message key")
	pf.StringVar(&c.cfg.Decoder.ValueField, "value-field", decoder.DefaultValueField, "record field for the message value")
	pf.BoolVar(&c.cfg.Decoder.OmitKey, "omit-key", false, "leave the message key out of the record")
	pf.BoolVar(&c.cfg.Decoder.OmitValue, "omit-value", false, "leave the message value out of the record")

	f := cmd.Flags()
	f.StringSliceVar(&c.cfg.Reader.Brokers, "brokers", []string{"localhost:9092"}, "kafka brokers to consume from")
	f.StringVar(&c.cfg.Reader.Topic, "input-topic", "raw", "topic to consume")
	f.StringVar(&c.cfg.Reader.GroupID, "group", engine, "consumer group")
	f.IntVar(&c.cfg.Reader.MinBytes, "min-bytes", 1, "minimum fetch size")
	f.IntVar(&c.cfg.Reader.MaxBytes, "max-bytes", 10e6, "maximum fetch size")
	f.BoolVar(&c.cfg.Reader.CreateIfNotExist, "create-input-topic", false, "create the input topic")
	f.IntVar(&c.cfg.Reader.NumPartitions, "input-partitions", 1, "partitions of a created input topic")
	f.IntVar(&c.cfg.Reader.ReplicationFactor, "input-replication", 1, "replication factor of a created input topic")

	f.StringSliceVar(&c.cfg.Writer.Brokers, "output-brokers", nil, "kafka brokers to produce to, defaults to --brokers")
	f.StringVar(&c.cfg.Writer.Topic, "output-topic", "decoded", "topic to write decoded records to")
	f.StringVar(&c.cfg.Writer.Balancer, "balancer", "hash", "partition balancer: roundrobin, leastbytes, hash, crc32, murmur2")
	f.BoolVar(&c.cfg.Writer.CreateIfNotExist, "create-output-topic", false, "create the output topic")
	f.IntVar(&c.cfg.Writer.NumPartitions, "output-partitions", 1, "partitions of a created output topic")
	f.IntVar(&c.cfg.Writer.ReplicationFactor, "output-replication", 1, "replication factor of a created output topic")

	f.BoolVar(&c.cfg.Archive, "archive", false, "archive encoded records to object storage")
	f.BoolVar(&c.cfg.Storage.CreateBucketIfNotExist, "create-bucket", true, "create the archive bucket")
	pf.StringVar(&c.cfg.Processor.ArchiveBucket, "archive-bucket", "decoded-records", "archive bucket")
	pf.StringVar(&c.cfg.Storage.Endpoint, "minio-endpoint", "localhost:9000", "object storage endpoint")
	pf.BoolVar(&c.cfg.Storage.UseSSL, "minio-ssl", false, "use TLS for object storage")
	pf.StringVar(&c.cfg.Storage.AccessKey, "minio-access-key", os.Getenv("MINIO_ACCESS_KEY"), "object storage access key")
	pf.StringVar(&c.cfg.Storage.SecretKey, "minio-secret-key", os.Getenv("MINIO_SECRET_KEY"), "object storage secret key")
	pf.StringVar(&c.cfg.Storage.Region, "minio-region", "", "object storage region")

	f.StringVar(&c.cfg.Metrics.Addr, "metrics-addr", ":9090", "prometheus metrics listen address")
	f.IntVar(&c.cfg.Pipelines, "pipelines", 1, "number of concurrent pipelines")
	f.DurationVar(&c.cfg.BackoffInitial, "backoff", 100*time.Millisecond, "initial retry backoff")
	f.DurationVar(&c.cfg.BackoffMax, "backoff-max", 10*time.Second, "maximum retry backoff")
	f.DurationVar(&c.cfg.ShutdownGrace, "shutdown-grace", 5*time.Second, "metrics server shutdown timeout")

	cmd.AddCommand(newDecodeCommand(c))
	cmd.AddCommand(newArchivedCommand(c))
	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Fatal(err)
	}
}
