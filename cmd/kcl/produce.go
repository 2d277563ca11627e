package main

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mkocikowski/kafkaclient"
	"github.com/mkocikowski/kafkaclient/batch"
	"github.com/mkocikowski/kafkaclient/compression"
	"github.com/mkocikowski/kafkaclient/producer"
)

var produceCmd = &cobra.Command{
	Use:   "produce TOPIC",
	Short: "Produce records read from stdin, one per line",
	Args:  cobra.ExactArgs(1),
	RunE:  runProduce,
}

func init() {
	produceCmd.Flags().StringP("key", "k", "", "key set on every produced record")
	produceCmd.Flags().Int32P("partition", "p", kafkaclient.PartitionAny, "partition to produce to; default picks by key hash")
	produceCmd.Flags().String("compression", "none", "batch compression: none, gzip, snappy, lz4, zstd")
	produceCmd.Flags().Duration("linger", 50*time.Millisecond, "how long a non full batch waits for more records")
	produceCmd.Flags().Int16("acks", 1, "required acks: 1 (leader) or -1 (all in sync replicas)")
	rootCmd.AddCommand(produceCmd)
}

func compressorFor(name string) (batch.Compressor, error) {
	switch name {
	case "", "none":
		return nil, nil
	case "gzip":
		return &compression.Gzip{}, nil
	case "snappy":
		return &compression.Snappy{}, nil
	case "lz4":
		return &compression.Lz4{}, nil
	case "zstd":
		return &compression.Zstd{}, nil
	}
	return nil, fmt.Errorf("unknown compression codec %q", name)
}

func runProduce(cmd *cobra.Command, args []string) error {
	topic := args[0]
	key, _ := cmd.Flags().GetString("key")
	partition, _ := cmd.Flags().GetInt32("partition")
	codec, _ := cmd.Flags().GetString("compression")
	linger, _ := cmd.Flags().GetDuration("linger")
	acks, _ := cmd.Flags().GetInt16("acks")
	compressor, err := compressorFor(codec)
	if err != nil {
		return err
	}
	p := &producer.Producer{
		Bootstrap:  cfg.Bootstrap,
		ClientId:   cfg.ClientId,
		Acks:       acks,
		Compressor: compressor,
		Linger:     linger,
		Logger:     logger,
	}
	defer p.Close()
	var produced, delivered, failed int
	report := func(m *kafkaclient.Message) {
		if m.TopicPartition.Err != nil {
			failed++
			logger.Error("delivery failed",
				zap.String("topic", m.TopicPartition.Topic),
				zap.Int32("partition", m.TopicPartition.Partition),
				zap.Error(m.TopicPartition.Err))
			return
		}
		delivered++
	}
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		m := &kafkaclient.Message{
			TopicPartition: kafkaclient.TopicPartition{Topic: topic, Partition: partition},
			Value:          append([]byte(nil), scanner.Bytes()...),
		}
		if key != "" {
			m.Key = []byte(key)
		}
		for {
			err := p.Produce(m, report)
			if kafkaclient.Code(err) == kafkaclient.ERR_LOCAL_QUEUE_FULL {
				p.Poll(100 * time.Millisecond)
				continue
			}
			if err != nil {
				return err
			}
			break
		}
		produced++
		p.Poll(0)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading stdin: %w", err)
	}
	if n := p.Flush(time.Minute); n > 0 {
		return fmt.Errorf("%d records still unresolved after flush", n)
	}
	fmt.Fprintf(os.Stderr, "produced %d, delivered %d, failed %d\n", produced, delivered, failed)
	if failed > 0 {
		return fmt.Errorf("%d records failed", failed)
	}
	return nil
}
