package main

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/mkocikowski/kafkaclient"
	"github.com/mkocikowski/kafkaclient/api"
	"github.com/mkocikowski/kafkaclient/client"
	"github.com/mkocikowski/kafkaclient/consumer"
)

var metadataCmd = &cobra.Command{
	Use:   "metadata [TOPIC...]",
	Short: "Print cluster metadata: brokers, topics, partition leaders",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := client.CallMetadata(cfg.Bootstrap, nil, args)
		if err != nil {
			return err
		}
		fmt.Printf("cluster %q controller %d\n", resp.ClusterId, resp.ControllerId)
		for _, b := range resp.Brokers {
			fmt.Printf("broker %d %s\n", b.NodeId, b.Addr())
		}
		for _, t := range resp.TopicMetadata {
			if err := t.Err(); err != nil {
				fmt.Printf("topic %s: %v\n", t.Topic, err)
				continue
			}
			fmt.Printf("topic %s partitions %d\n", t.Topic, len(t.PartitionMetadata))
			partitions := t.PartitionMetadata
			sort.Slice(partitions, func(i, j int) bool { return partitions[i].Partition < partitions[j].Partition })
			for _, p := range partitions {
				fmt.Printf("  %d leader %d replicas %v isr %v\n", p.Partition, p.Leader, p.Replicas, p.Isr)
			}
		}
		return nil
	},
}

var offsetsCmd = &cobra.Command{
	Use:   "offsets TOPIC",
	Short: "Print low and high watermarks, and group lag with --group",
	Args:  cobra.ExactArgs(1),
	RunE:  runOffsets,
}

var createTopicCmd = &cobra.Command{
	Use:   "create-topic TOPIC",
	Short: "Create a topic",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		partitions, _ := cmd.Flags().GetInt32("partitions")
		replication, _ := cmd.Flags().GetInt16("replication-factor")
		resp, err := client.CallCreateTopic(cfg.Bootstrap, nil, args[0], partitions, replication)
		if err != nil {
			return err
		}
		if err := resp.Err(); err != nil {
			return err
		}
		fmt.Printf("created topic %s\n", args[0])
		return nil
	},
}

var apiVersionsCmd = &cobra.Command{
	Use:   "api-versions",
	Short: "Print the api versions supported by the bootstrap broker",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := client.CallApiVersions(cfg.Bootstrap, nil)
		if err != nil {
			return err
		}
		for _, k := range resp.ApiKeys {
			name := api.Keys[int(k.ApiKey)]
			if name == "" {
				name = strconv.Itoa(int(k.ApiKey))
			}
			fmt.Printf("%-24s %d..%d\n", name, k.MinVersion, k.MaxVersion)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(metadataCmd)
	offsetsCmd.Flags().StringP("group", "g", "", "also print the group's committed offsets and lag")
	rootCmd.AddCommand(offsetsCmd)
	createTopicCmd.Flags().Int32("partitions", 1, "number of partitions")
	createTopicCmd.Flags().Int16("replication-factor", 1, "replication factor")
	rootCmd.AddCommand(createTopicCmd)
	rootCmd.AddCommand(apiVersionsCmd)
}

func runOffsets(cmd *cobra.Command, args []string) error {
	topic := args[0]
	group, _ := cmd.Flags().GetString("group")
	resp, err := client.CallMetadata(cfg.Bootstrap, nil, []string{topic})
	if err != nil {
		return err
	}
	t := resp.Topic(topic)
	if t == nil {
		return fmt.Errorf("unknown topic %q", topic)
	}
	if err := t.Err(); err != nil {
		return fmt.Errorf("topic %s: %w", topic, err)
	}
	var partitions []int32
	for _, p := range t.PartitionMetadata {
		partitions = append(partitions, p.Partition)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })
	c := &consumer.Consumer{
		Bootstrap: cfg.Bootstrap,
		ClientId:  cfg.ClientId,
		GroupId:   group,
		Logger:    logger,
	}
	defer c.Close()
	committed := make(map[int32]kafkaclient.TopicPartition)
	if group != "" {
		var tps []kafkaclient.TopicPartition
		for _, p := range partitions {
			tps = append(tps, kafkaclient.TopicPartition{Topic: topic, Partition: p})
		}
		out, err := c.Committed(tps, 5*time.Second)
		if err != nil {
			return err
		}
		for _, p := range out {
			committed[p.Partition] = p
		}
	}
	for _, p := range partitions {
		low, high, err := c.GetWatermarkOffsets(kafkaclient.TopicPartition{Topic: topic, Partition: p}, 5*time.Second, false)
		if err != nil {
			fmt.Printf("%s[%d] %v\n", topic, p, err)
			continue
		}
		line := fmt.Sprintf("%s[%d] low %d high %d", topic, p, low, high)
		if o, ok := committed[p]; ok {
			switch {
			case o.Err != nil:
				line += fmt.Sprintf(" committed error: %v", o.Err)
			case o.Offset == kafkaclient.OffsetInvalid:
				line += " committed - lag -"
			default:
				line += fmt.Sprintf(" committed %d lag %d", o.Offset, high-o.Offset)
			}
		}
		fmt.Println(line)
	}
	return nil
}
