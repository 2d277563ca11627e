package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mkocikowski/kafkaclient"
	"github.com/mkocikowski/kafkaclient/consumer"
	"github.com/mkocikowski/kafkaclient/producer"
)

// benchScenario describes a bench run. The flags provide working
// defaults; a yaml file given with --scenario overrides them.
type benchScenario struct {
	Topic           string        `yaml:"topic"`
	Records         int           `yaml:"records"`
	RecordBytes     int           `yaml:"record_bytes"`
	Compression     string        `yaml:"compression"`
	Acks            int16         `yaml:"acks"`
	Linger          time.Duration `yaml:"linger"`
	BatchMaxRecords int           `yaml:"batch_max_records"`
	Consume         bool          `yaml:"consume"`
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Produce synthetic records and report throughput",
	Args:  cobra.NoArgs,
	RunE:  runBench,
}

func init() {
	benchCmd.Flags().String("scenario", "", "yaml file describing the run")
	benchCmd.Flags().String("topic", "kcl-bench", "topic to produce to")
	benchCmd.Flags().Int("records", 100000, "number of records to produce")
	benchCmd.Flags().Int("record-bytes", 100, "value size of each record")
	rootCmd.AddCommand(benchCmd)
}

func runBench(cmd *cobra.Command, args []string) error {
	s := benchScenario{}
	s.Topic, _ = cmd.Flags().GetString("topic")
	s.Records, _ = cmd.Flags().GetInt("records")
	s.RecordBytes, _ = cmd.Flags().GetInt("record-bytes")
	if file, _ := cmd.Flags().GetString("scenario"); file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		if err := yaml.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("error parsing scenario file: %w", err)
		}
	}
	compressor, err := compressorFor(s.Compression)
	if err != nil {
		return err
	}
	value := make([]byte, s.RecordBytes)
	for i := range value {
		value[i] = byte('a' + i%26)
	}
	p := &producer.Producer{
		Bootstrap:       cfg.Bootstrap,
		ClientId:        cfg.ClientId,
		Acks:            s.Acks,
		Compressor:      compressor,
		Linger:          s.Linger,
		BatchMaxRecords: s.BatchMaxRecords,
		Logger:          logger,
	}
	var delivered, failed int
	report := func(m *kafkaclient.Message) {
		if m.TopicPartition.Err != nil {
			failed++
			return
		}
		delivered++
	}
	start := time.Now()
	for i := 0; i < s.Records; i++ {
		m := &kafkaclient.Message{
			TopicPartition: kafkaclient.TopicPartition{Topic: s.Topic, Partition: kafkaclient.PartitionAny},
			Value:          value,
		}
		for {
			err := p.Produce(m, report)
			if kafkaclient.Code(err) == kafkaclient.ERR_LOCAL_QUEUE_FULL {
				p.Poll(10 * time.Millisecond)
				continue
			}
			if err != nil {
				return err
			}
			break
		}
		if i%1024 == 0 {
			p.Poll(0)
		}
	}
	if n := p.Flush(time.Minute); n > 0 {
		p.Close()
		return fmt.Errorf("%d records still unresolved after flush", n)
	}
	p.Close()
	elapsed := time.Since(start)
	fmt.Printf("delivered %d of %d records (%d bytes each) in %v: %.0f records/s %.2f MB/s, %d failed\n",
		delivered, s.Records, s.RecordBytes, elapsed.Round(time.Millisecond),
		float64(delivered)/elapsed.Seconds(),
		float64(delivered)*float64(s.RecordBytes)/float64(1<<20)/elapsed.Seconds(),
		failed)
	if !s.Consume {
		return nil
	}
	c := &consumer.Consumer{
		Bootstrap:   cfg.Bootstrap,
		ClientId:    cfg.ClientId,
		GroupId:     "kcl-bench-" + uuid.NewString()[:8],
		OffsetReset: "earliest",
		Logger:      logger,
	}
	defer c.Close()
	if err := c.Subscribe([]string{s.Topic}, nil, nil); err != nil {
		return err
	}
	start = time.Now()
	deadline := start.Add(time.Minute)
	var consumed int
	for consumed < s.Records && time.Now().Before(deadline) {
		m := c.Poll(time.Second)
		if m == nil || m.TopicPartition.Err != nil {
			continue
		}
		consumed++
	}
	elapsed = time.Since(start)
	fmt.Printf("consumed %d records in %v: %.0f records/s\n",
		consumed, elapsed.Round(time.Millisecond), float64(consumed)/elapsed.Seconds())
	return nil
}
