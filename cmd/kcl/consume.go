package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mkocikowski/kafkaclient"
	"github.com/mkocikowski/kafkaclient/consumer"
)

var consumeCmd = &cobra.Command{
	Use:   "consume TOPIC [TOPIC...]",
	Short: "Consume records and print their values to stdout, one per line",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runConsume,
}

func init() {
	consumeCmd.Flags().StringP("group", "g", "", "consumer group id (default kcl-<random>)")
	consumeCmd.Flags().String("offset-reset", "earliest", "where to start when the group has no committed offset: earliest or latest")
	consumeCmd.Flags().IntP("max", "n", 0, "exit after this many records; 0 means run until interrupted")
	consumeCmd.Flags().Duration("commit-interval", 5*time.Second, "how often offsets are committed; 0 disables commits")
	consumeCmd.Flags().Bool("json", false, "print full records as json instead of bare values")
	rootCmd.AddCommand(consumeCmd)
}

func runConsume(cmd *cobra.Command, args []string) error {
	group, _ := cmd.Flags().GetString("group")
	reset, _ := cmd.Flags().GetString("offset-reset")
	max, _ := cmd.Flags().GetInt("max")
	commitInterval, _ := cmd.Flags().GetDuration("commit-interval")
	jsonOut, _ := cmd.Flags().GetBool("json")
	if group == "" {
		group = "kcl-" + uuid.NewString()[:8]
	}
	c := &consumer.Consumer{
		Bootstrap:          cfg.Bootstrap,
		ClientId:           cfg.ClientId,
		GroupId:            group,
		OffsetReset:        reset,
		AutoCommitInterval: commitInterval,
		Logger:             logger,
		OnCommit: func(partitions []kafkaclient.TopicPartition, err error) {
			if err != nil {
				logger.Warn("offset commit failed", zap.Error(err))
			}
		},
	}
	logPartitions := func(what string) consumer.RebalanceCb {
		return func(partitions []kafkaclient.TopicPartition) {
			logger.Info(what, zap.Int("partitions", len(partitions)))
		}
	}
	err := c.Subscribe(args, logPartitions("partitions assigned"), logPartitions("partitions revoked"))
	if err != nil {
		return err
	}
	interrupted := make(chan os.Signal, 1)
	signal.Notify(interrupted, os.Interrupt, syscall.SIGTERM)
	enc := json.NewEncoder(os.Stdout)
	var count int
loop:
	for max == 0 || count < max {
		select {
		case <-interrupted:
			logger.Info("interrupted")
			break loop
		default:
		}
		m := c.Poll(time.Second)
		if m == nil {
			continue
		}
		if m.TopicPartition.Err != nil {
			logger.Error("partition failed",
				zap.String("topic", m.TopicPartition.Topic),
				zap.Int32("partition", m.TopicPartition.Partition),
				zap.Error(m.TopicPartition.Err))
			continue
		}
		if jsonOut {
			if err := enc.Encode(m); err != nil {
				return err
			}
		} else {
			fmt.Printf("%s\n", m.Value)
		}
		count++
	}
	if commitInterval > 0 {
		if err := c.Commit(); err != nil {
			logger.Warn("final commit failed", zap.Error(err))
		}
	}
	return c.Close()
}
