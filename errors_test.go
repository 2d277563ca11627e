package kafkaclient

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestUnitErrorDescriptions(t *testing.T) {
	err := &Error{Code: ERR_NOT_LEADER_FOR_PARTITION}
	if !strings.HasPrefix(err.Error(), "NOT_LEADER_FOR_PARTITION") {
		t.Fatal(err)
	}
	err = &Error{Code: 9999}
	if err.Error() != "unknown error code 9999" {
		t.Fatal(err)
	}
	err = &Error{Code: ERR_INVALID_REPLICATION_FACTOR, Message: "got -1"}
	if !strings.HasSuffix(err.Error(), ": got -1") {
		t.Fatal(err)
	}
}

func TestUnitErrorCode(t *testing.T) {
	if c := Code(nil); c != ERR_NONE {
		t.Fatal(c)
	}
	err := fmt.Errorf("error committing offsets: %w", &Error{Code: ERR_REBALANCE_IN_PROGRESS})
	if c := Code(err); c != ERR_REBALANCE_IN_PROGRESS {
		t.Fatal(c)
	}
	if c := Code(errors.New("boom")); c != ERR_UNKNOWN_SERVER_ERROR {
		t.Fatal(c)
	}
}

func TestUnitErrorClasses(t *testing.T) {
	if !Retriable(ERR_LOCAL_TRANSPORT) {
		t.Fatal("transport errors are retriable")
	}
	if Retriable(ERR_TOPIC_AUTHORIZATION_FAILED) {
		t.Fatal("auth errors are not retriable")
	}
	if !StaleMetadata(ERR_NOT_LEADER_FOR_PARTITION) {
		t.Fatal("leader change should invalidate metadata")
	}
	if StaleMetadata(ERR_REQUEST_TIMED_OUT) {
		t.Fatal("timeout says nothing about metadata")
	}
	if !IsLocal(ERR_LOCAL_QUEUE_FULL) || IsLocal(ERR_UNKNOWN_SERVER_ERROR) {
		t.Fatal("local codes are below -100")
	}
}

func TestUnitTopicPartitionString(t *testing.T) {
	tp := TopicPartition{Topic: "foo", Partition: 1, Offset: 42}
	if tp.String() != "foo[1]@42" {
		t.Fatal(tp.String())
	}
	tp.Err = &Error{Code: ERR_OFFSET_OUT_OF_RANGE}
	if !strings.Contains(tp.String(), "OFFSET_OUT_OF_RANGE") {
		t.Fatal(tp.String())
	}
}
