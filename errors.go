package kafkaclient

import (
	"errors"
	"fmt"
)

// Broker error codes. These are the codes brokers return in response
// ErrorCode fields. Names and values follow the protocol spec.
const (
	ERR_UNKNOWN_SERVER_ERROR                 int16 = -1
	ERR_NONE                                 int16 = 0
	ERR_OFFSET_OUT_OF_RANGE                  int16 = 1
	ERR_CORRUPT_MESSAGE                      int16 = 2
	ERR_UNKNOWN_TOPIC_OR_PARTITION           int16 = 3
	ERR_INVALID_FETCH_SIZE                   int16 = 4
	ERR_LEADER_NOT_AVAILABLE                 int16 = 5
	ERR_NOT_LEADER_FOR_PARTITION             int16 = 6
	ERR_REQUEST_TIMED_OUT                    int16 = 7
	ERR_BROKER_NOT_AVAILABLE                 int16 = 8
	ERR_REPLICA_NOT_AVAILABLE                int16 = 9
	ERR_MESSAGE_TOO_LARGE                    int16 = 10
	ERR_STALE_CONTROLLER_EPOCH               int16 = 11
	ERR_OFFSET_METADATA_TOO_LARGE            int16 = 12
	ERR_NETWORK_EXCEPTION                    int16 = 13
	ERR_COORDINATOR_LOAD_IN_PROGRESS         int16 = 14
	ERR_COORDINATOR_NOT_AVAILABLE            int16 = 15
	ERR_NOT_COORDINATOR                      int16 = 16
	ERR_INVALID_TOPIC_EXCEPTION              int16 = 17
	ERR_RECORD_LIST_TOO_LARGE                int16 = 18
	ERR_NOT_ENOUGH_REPLICAS                  int16 = 19
	ERR_NOT_ENOUGH_REPLICAS_AFTER_APPEND     int16 = 20
	ERR_INVALID_REQUIRED_ACKS                int16 = 21
	ERR_ILLEGAL_GENERATION                   int16 = 22
	ERR_INCONSISTENT_GROUP_PROTOCOL          int16 = 23
	ERR_INVALID_GROUP_ID                     int16 = 24
	ERR_UNKNOWN_MEMBER_ID                    int16 = 25
	ERR_INVALID_SESSION_TIMEOUT              int16 = 26
	ERR_REBALANCE_IN_PROGRESS                int16 = 27
	ERR_INVALID_COMMIT_OFFSET_SIZE           int16 = 28
	ERR_TOPIC_AUTHORIZATION_FAILED           int16 = 29
	ERR_GROUP_AUTHORIZATION_FAILED           int16 = 30
	ERR_CLUSTER_AUTHORIZATION_FAILED         int16 = 31
	ERR_INVALID_TIMESTAMP                    int16 = 32
	ERR_UNSUPPORTED_SASL_MECHANISM           int16 = 33
	ERR_ILLEGAL_SASL_STATE                   int16 = 34
	ERR_UNSUPPORTED_VERSION                  int16 = 35
	ERR_TOPIC_ALREADY_EXISTS                 int16 = 36
	ERR_INVALID_PARTITIONS                   int16 = 37
	ERR_INVALID_REPLICATION_FACTOR           int16 = 38
	ERR_INVALID_REPLICA_ASSIGNMENT           int16 = 39
	ERR_INVALID_CONFIG                       int16 = 40
	ERR_NOT_CONTROLLER                       int16 = 41
	ERR_INVALID_REQUEST                      int16 = 42
	ERR_UNSUPPORTED_FOR_MESSAGE_FORMAT       int16 = 43
	ERR_POLICY_VIOLATION                     int16 = 44
	ERR_OUT_OF_ORDER_SEQUENCE_NUMBER         int16 = 45
	ERR_DUPLICATE_SEQUENCE_NUMBER            int16 = 46
	ERR_INVALID_PRODUCER_EPOCH               int16 = 47
	ERR_INVALID_TXN_STATE                    int16 = 48
	ERR_INVALID_PRODUCER_ID_MAPPING          int16 = 49
	ERR_INVALID_TRANSACTION_TIMEOUT          int16 = 50
	ERR_CONCURRENT_TRANSACTIONS              int16 = 51
	ERR_TRANSACTION_COORDINATOR_FENCED       int16 = 52
	ERR_TRANSACTIONAL_ID_AUTHORIZATION_FAILED int16 = 53
	ERR_SECURITY_DISABLED                    int16 = 54
	ERR_OPERATION_NOT_ATTEMPTED              int16 = 55
	ERR_KAFKA_STORAGE_ERROR                  int16 = 56
	ERR_LOG_DIR_NOT_FOUND                    int16 = 57
	ERR_SASL_AUTHENTICATION_FAILED           int16 = 58
	ERR_UNKNOWN_PRODUCER_ID                  int16 = 59
	ERR_REASSIGNMENT_IN_PROGRESS             int16 = 60
	ERR_DELEGATION_TOKEN_AUTH_DISABLED       int16 = 61
	ERR_DELEGATION_TOKEN_NOT_FOUND           int16 = 62
	ERR_DELEGATION_TOKEN_OWNER_MISMATCH      int16 = 63
	ERR_DELEGATION_TOKEN_REQUEST_NOT_ALLOWED int16 = 64
	ERR_DELEGATION_TOKEN_AUTHORIZATION_FAILED int16 = 65
	ERR_DELEGATION_TOKEN_EXPIRED             int16 = 66
	ERR_INVALID_PRINCIPAL_TYPE               int16 = 67
	ERR_NON_EMPTY_GROUP                      int16 = 68
	ERR_GROUP_ID_NOT_FOUND                   int16 = 69
	ERR_FETCH_SESSION_ID_NOT_FOUND           int16 = 70
	ERR_INVALID_FETCH_SESSION_EPOCH          int16 = 71
	ERR_LISTENER_NOT_FOUND                   int16 = 72
	ERR_TOPIC_DELETION_DISABLED              int16 = 73
	ERR_FENCED_LEADER_EPOCH                  int16 = 74
	ERR_UNKNOWN_LEADER_EPOCH                 int16 = 75
	ERR_UNSUPPORTED_COMPRESSION_TYPE         int16 = 76
	ERR_STALE_BROKER_EPOCH                   int16 = 77
	ERR_OFFSET_NOT_AVAILABLE                 int16 = 78
	ERR_MEMBER_ID_REQUIRED                   int16 = 79
	ERR_PREFERRED_LEADER_NOT_AVAILABLE       int16 = 80
	ERR_GROUP_MAX_SIZE_REACHED               int16 = 81
)

// Local error codes. These never come from a broker: they are generated
// by this library and are all below -100 so they can not collide with
// broker codes.
const (
	// ERR_LOCAL_TRANSPORT: connection level failure (dial, read, write).
	ERR_LOCAL_TRANSPORT int16 = -195
	// ERR_LOCAL_UNKNOWN_PARTITION: partition not present in metadata.
	ERR_LOCAL_UNKNOWN_PARTITION int16 = -190
	// ERR_LOCAL_UNKNOWN_TOPIC: topic not present in metadata.
	ERR_LOCAL_UNKNOWN_TOPIC int16 = -188
	// ERR_LOCAL_INVALID_ARG: bad argument to a library call.
	ERR_LOCAL_INVALID_ARG int16 = -186
	// ERR_LOCAL_TIMED_OUT: operation gave up waiting.
	ERR_LOCAL_TIMED_OUT int16 = -185
	// ERR_LOCAL_QUEUE_FULL: producer buffer at capacity.
	ERR_LOCAL_QUEUE_FULL int16 = -184
	// ERR_LOCAL_STATE: call not valid in current state, for example
	// committing an offset that has not been fetched.
	ERR_LOCAL_STATE int16 = -172
)

var Descriptions = map[int16]string{
	ERR_UNKNOWN_SERVER_ERROR:                 "UNKNOWN_SERVER_ERROR: unexpected server error",
	ERR_NONE:                                 "NONE",
	ERR_OFFSET_OUT_OF_RANGE:                  "OFFSET_OUT_OF_RANGE: requested offset is outside the range of offsets on the server",
	ERR_CORRUPT_MESSAGE:                      "CORRUPT_MESSAGE: message failed its checksum and is corrupt",
	ERR_UNKNOWN_TOPIC_OR_PARTITION:           "UNKNOWN_TOPIC_OR_PARTITION: this server does not host this topic-partition",
	ERR_INVALID_FETCH_SIZE:                   "INVALID_FETCH_SIZE: invalid message size",
	ERR_LEADER_NOT_AVAILABLE:                 "LEADER_NOT_AVAILABLE: there is no currently available leader for the partition",
	ERR_NOT_LEADER_FOR_PARTITION:             "NOT_LEADER_FOR_PARTITION: this server is not the leader for that topic-partition",
	ERR_REQUEST_TIMED_OUT:                    "REQUEST_TIMED_OUT: the request timed out on the server",
	ERR_BROKER_NOT_AVAILABLE:                 "BROKER_NOT_AVAILABLE: the broker is not available",
	ERR_REPLICA_NOT_AVAILABLE:                "REPLICA_NOT_AVAILABLE: the replica is not available for the requested topic-partition",
	ERR_MESSAGE_TOO_LARGE:                    "MESSAGE_TOO_LARGE: the request included a message larger than the max message size the server will accept",
	ERR_STALE_CONTROLLER_EPOCH:               "STALE_CONTROLLER_EPOCH: the controller moved to another broker",
	ERR_OFFSET_METADATA_TOO_LARGE:            "OFFSET_METADATA_TOO_LARGE: the metadata field of the offset request was too large",
	ERR_NETWORK_EXCEPTION:                    "NETWORK_EXCEPTION: the server disconnected before a response was received",
	ERR_COORDINATOR_LOAD_IN_PROGRESS:         "COORDINATOR_LOAD_IN_PROGRESS: the coordinator is loading and hence can not process requests",
	ERR_COORDINATOR_NOT_AVAILABLE:            "COORDINATOR_NOT_AVAILABLE: the coordinator is not available",
	ERR_NOT_COORDINATOR:                      "NOT_COORDINATOR: this is not the correct coordinator",
	ERR_INVALID_TOPIC_EXCEPTION:              "INVALID_TOPIC_EXCEPTION: the request attempted to perform an operation on an invalid topic",
	ERR_RECORD_LIST_TOO_LARGE:                "RECORD_LIST_TOO_LARGE: the request included message batch larger than the configured segment size on the server",
	ERR_NOT_ENOUGH_REPLICAS:                  "NOT_ENOUGH_REPLICAS: messages are rejected since there are fewer in-sync replicas than required",
	ERR_NOT_ENOUGH_REPLICAS_AFTER_APPEND:     "NOT_ENOUGH_REPLICAS_AFTER_APPEND: messages are written to the log, but to fewer in-sync replicas than required",
	ERR_INVALID_REQUIRED_ACKS:                "INVALID_REQUIRED_ACKS: produce request specified an invalid value for required acks",
	ERR_ILLEGAL_GENERATION:                   "ILLEGAL_GENERATION: specified group generation id is not valid",
	ERR_INCONSISTENT_GROUP_PROTOCOL:          "INCONSISTENT_GROUP_PROTOCOL: the group member's supported protocols are incompatible with those of existing members",
	ERR_INVALID_GROUP_ID:                     "INVALID_GROUP_ID: the configured groupId is invalid",
	ERR_UNKNOWN_MEMBER_ID:                    "UNKNOWN_MEMBER_ID: the coordinator is not aware of this member",
	ERR_INVALID_SESSION_TIMEOUT:              "INVALID_SESSION_TIMEOUT: the session timeout is not within the range allowed by the broker",
	ERR_REBALANCE_IN_PROGRESS:                "REBALANCE_IN_PROGRESS: the group is rebalancing, so a rejoin is needed",
	ERR_INVALID_COMMIT_OFFSET_SIZE:           "INVALID_COMMIT_OFFSET_SIZE: the committing offset data size is not valid",
	ERR_TOPIC_AUTHORIZATION_FAILED:           "TOPIC_AUTHORIZATION_FAILED: not authorized to access topics",
	ERR_GROUP_AUTHORIZATION_FAILED:           "GROUP_AUTHORIZATION_FAILED: not authorized to access group",
	ERR_CLUSTER_AUTHORIZATION_FAILED:         "CLUSTER_AUTHORIZATION_FAILED: cluster authorization failed",
	ERR_INVALID_TIMESTAMP:                    "INVALID_TIMESTAMP: the timestamp of the message is out of acceptable range",
	ERR_UNSUPPORTED_SASL_MECHANISM:           "UNSUPPORTED_SASL_MECHANISM: the broker does not support the requested SASL mechanism",
	ERR_ILLEGAL_SASL_STATE:                   "ILLEGAL_SASL_STATE: request is not valid given the current SASL state",
	ERR_UNSUPPORTED_VERSION:                  "UNSUPPORTED_VERSION: the version of API is not supported",
	ERR_TOPIC_ALREADY_EXISTS:                 "TOPIC_ALREADY_EXISTS: topic with this name already exists",
	ERR_INVALID_PARTITIONS:                   "INVALID_PARTITIONS: number of partitions is below 1",
	ERR_INVALID_REPLICATION_FACTOR:           "INVALID_REPLICATION_FACTOR: replication factor is below 1 or larger than the number of available brokers",
	ERR_INVALID_REPLICA_ASSIGNMENT:           "INVALID_REPLICA_ASSIGNMENT: replica assignment is invalid",
	ERR_INVALID_CONFIG:                       "INVALID_CONFIG: configuration is invalid",
	ERR_NOT_CONTROLLER:                       "NOT_CONTROLLER: this is not the correct controller for this cluster",
	ERR_INVALID_REQUEST:                      "INVALID_REQUEST: this most likely occurs because of a request being malformed by the client library or the message was sent to an incompatible broker",
	ERR_UNSUPPORTED_FOR_MESSAGE_FORMAT:       "UNSUPPORTED_FOR_MESSAGE_FORMAT: the message format version on the broker does not support the request",
	ERR_POLICY_VIOLATION:                     "POLICY_VIOLATION: request parameters do not satisfy the configured policy",
	ERR_OUT_OF_ORDER_SEQUENCE_NUMBER:         "OUT_OF_ORDER_SEQUENCE_NUMBER: the broker received an out of order sequence number",
	ERR_DUPLICATE_SEQUENCE_NUMBER:            "DUPLICATE_SEQUENCE_NUMBER: the broker received a duplicate sequence number",
	ERR_INVALID_PRODUCER_EPOCH:               "INVALID_PRODUCER_EPOCH: producer attempted an operation with an old epoch",
	ERR_INVALID_TXN_STATE:                    "INVALID_TXN_STATE: the producer attempted a transactional operation in an invalid state",
	ERR_INVALID_PRODUCER_ID_MAPPING:          "INVALID_PRODUCER_ID_MAPPING: the producer attempted to use a producer id which is not currently assigned to its transactional id",
	ERR_INVALID_TRANSACTION_TIMEOUT:          "INVALID_TRANSACTION_TIMEOUT: the transaction timeout is larger than the maximum value allowed by the broker",
	ERR_CONCURRENT_TRANSACTIONS:              "CONCURRENT_TRANSACTIONS: the producer attempted to update a transaction while another concurrent operation on the same transaction was ongoing",
	ERR_TRANSACTION_COORDINATOR_FENCED:       "TRANSACTION_COORDINATOR_FENCED: indicates that the transaction coordinator sending a WriteTxnMarker is no longer the current coordinator for a given producer",
	ERR_TRANSACTIONAL_ID_AUTHORIZATION_FAILED: "TRANSACTIONAL_ID_AUTHORIZATION_FAILED: transactional id authorization failed",
	ERR_SECURITY_DISABLED:                    "SECURITY_DISABLED: security features are disabled",
	ERR_OPERATION_NOT_ATTEMPTED:              "OPERATION_NOT_ATTEMPTED: the broker did not attempt to execute this operation",
	ERR_KAFKA_STORAGE_ERROR:                  "KAFKA_STORAGE_ERROR: disk error when trying to access log file on the disk",
	ERR_LOG_DIR_NOT_FOUND:                    "LOG_DIR_NOT_FOUND: the user-specified log directory is not found in the broker config",
	ERR_SASL_AUTHENTICATION_FAILED:           "SASL_AUTHENTICATION_FAILED: SASL authentication failed",
	ERR_UNKNOWN_PRODUCER_ID:                  "UNKNOWN_PRODUCER_ID: the broker could not locate the producer metadata associated with the producer id",
	ERR_REASSIGNMENT_IN_PROGRESS:             "REASSIGNMENT_IN_PROGRESS: a partition reassignment is in progress",
	ERR_DELEGATION_TOKEN_AUTH_DISABLED:       "DELEGATION_TOKEN_AUTH_DISABLED: delegation token feature is not enabled",
	ERR_DELEGATION_TOKEN_NOT_FOUND:           "DELEGATION_TOKEN_NOT_FOUND: delegation token is not found on server",
	ERR_DELEGATION_TOKEN_OWNER_MISMATCH:      "DELEGATION_TOKEN_OWNER_MISMATCH: specified principal is not valid owner/renewer",
	ERR_DELEGATION_TOKEN_REQUEST_NOT_ALLOWED: "DELEGATION_TOKEN_REQUEST_NOT_ALLOWED: delegation token requests are not allowed on this connection",
	ERR_DELEGATION_TOKEN_AUTHORIZATION_FAILED: "DELEGATION_TOKEN_AUTHORIZATION_FAILED: delegation token authorization failed",
	ERR_DELEGATION_TOKEN_EXPIRED:             "DELEGATION_TOKEN_EXPIRED: delegation token is expired",
	ERR_INVALID_PRINCIPAL_TYPE:               "INVALID_PRINCIPAL_TYPE: supplied principalType is not supported",
	ERR_NON_EMPTY_GROUP:                      "NON_EMPTY_GROUP: the group is not empty",
	ERR_GROUP_ID_NOT_FOUND:                   "GROUP_ID_NOT_FOUND: the group id does not exist",
	ERR_FETCH_SESSION_ID_NOT_FOUND:           "FETCH_SESSION_ID_NOT_FOUND: the fetch session id was not found",
	ERR_INVALID_FETCH_SESSION_EPOCH:          "INVALID_FETCH_SESSION_EPOCH: the fetch session epoch is invalid",
	ERR_LISTENER_NOT_FOUND:                   "LISTENER_NOT_FOUND: there is no listener on the leader broker that matches the listener on which metadata request was processed",
	ERR_TOPIC_DELETION_DISABLED:              "TOPIC_DELETION_DISABLED: topic deletion is disabled",
	ERR_FENCED_LEADER_EPOCH:                  "FENCED_LEADER_EPOCH: the leader epoch in the request is older than the epoch on the broker",
	ERR_UNKNOWN_LEADER_EPOCH:                 "UNKNOWN_LEADER_EPOCH: the leader epoch in the request is newer than the epoch on the broker",
	ERR_UNSUPPORTED_COMPRESSION_TYPE:         "UNSUPPORTED_COMPRESSION_TYPE: the requesting client does not support the compression type of given partition",
	ERR_STALE_BROKER_EPOCH:                   "STALE_BROKER_EPOCH: broker epoch has changed",
	ERR_OFFSET_NOT_AVAILABLE:                 "OFFSET_NOT_AVAILABLE: the leader high watermark has not caught up from a recent leader election so the offsets cannot be guaranteed to be monotonically increasing",
	ERR_MEMBER_ID_REQUIRED:                   "MEMBER_ID_REQUIRED: the group member needs to have a valid member id before actually entering a consumer group",
	ERR_PREFERRED_LEADER_NOT_AVAILABLE:       "PREFERRED_LEADER_NOT_AVAILABLE: the preferred leader was not available",
	ERR_GROUP_MAX_SIZE_REACHED:               "GROUP_MAX_SIZE_REACHED: the consumer group has reached its max size",
	//
	ERR_LOCAL_TRANSPORT:         "LOCAL_TRANSPORT: connection failure",
	ERR_LOCAL_UNKNOWN_PARTITION: "LOCAL_UNKNOWN_PARTITION: partition does not exist in client metadata",
	ERR_LOCAL_UNKNOWN_TOPIC:     "LOCAL_UNKNOWN_TOPIC: topic does not exist in client metadata",
	ERR_LOCAL_INVALID_ARG:       "LOCAL_INVALID_ARG: invalid argument or configuration",
	ERR_LOCAL_TIMED_OUT:         "LOCAL_TIMED_OUT: operation timed out",
	ERR_LOCAL_QUEUE_FULL:        "LOCAL_QUEUE_FULL: producer queue is full",
	ERR_LOCAL_STATE:             "LOCAL_STATE: operation not valid in current state",
}

// Error carries a broker or local error code. Message, when set, is
// additional broker-provided detail (some responses carry an
// ErrorMessage field next to the ErrorCode).
type Error struct {
	Code    int16
	Message string
}

func (e *Error) Error() string {
	d, ok := Descriptions[e.Code]
	if !ok {
		d = fmt.Sprintf("unknown error code %d", e.Code)
	}
	if e.Message != "" {
		return d + ": " + e.Message
	}
	return d
}

// IsLocal says whether the code was generated by this library as
// opposed to being returned by a broker.
func IsLocal(code int16) bool {
	return code <= -100
}

// Retriable says whether an operation that failed with this code can be
// retried as-is: the failure reflects transient broker or network state,
// not a problem with the request.
func Retriable(code int16) bool {
	switch code {
	case ERR_CORRUPT_MESSAGE,
		ERR_UNKNOWN_TOPIC_OR_PARTITION,
		ERR_LEADER_NOT_AVAILABLE,
		ERR_NOT_LEADER_FOR_PARTITION,
		ERR_REQUEST_TIMED_OUT,
		ERR_BROKER_NOT_AVAILABLE,
		ERR_REPLICA_NOT_AVAILABLE,
		ERR_NETWORK_EXCEPTION,
		ERR_COORDINATOR_LOAD_IN_PROGRESS,
		ERR_COORDINATOR_NOT_AVAILABLE,
		ERR_NOT_COORDINATOR,
		ERR_NOT_ENOUGH_REPLICAS,
		ERR_NOT_ENOUGH_REPLICAS_AFTER_APPEND,
		ERR_FETCH_SESSION_ID_NOT_FOUND,
		ERR_INVALID_FETCH_SESSION_EPOCH,
		ERR_FENCED_LEADER_EPOCH,
		ERR_UNKNOWN_LEADER_EPOCH,
		ERR_OFFSET_NOT_AVAILABLE,
		ERR_PREFERRED_LEADER_NOT_AVAILABLE,
		ERR_LOCAL_TRANSPORT,
		ERR_LOCAL_TIMED_OUT:
		return true
	}
	return false
}

// StaleMetadata says whether the code means cached metadata (leadership,
// topic layout) may be out of date and should be refreshed before the
// next attempt.
func StaleMetadata(code int16) bool {
	switch code {
	case ERR_UNKNOWN_TOPIC_OR_PARTITION,
		ERR_LEADER_NOT_AVAILABLE,
		ERR_NOT_LEADER_FOR_PARTITION,
		ERR_NOT_COORDINATOR,
		ERR_COORDINATOR_NOT_AVAILABLE,
		ERR_FENCED_LEADER_EPOCH,
		ERR_UNKNOWN_LEADER_EPOCH,
		ERR_LOCAL_UNKNOWN_TOPIC,
		ERR_LOCAL_UNKNOWN_PARTITION:
		return true
	}
	return false
}

// Code extracts the error code from err. Returns ERR_NONE for nil and
// ERR_UNKNOWN_SERVER_ERROR for errors that do not wrap *Error.
func Code(err error) int16 {
	if err == nil {
		return ERR_NONE
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ERR_UNKNOWN_SERVER_ERROR
}
