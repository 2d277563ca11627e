package producer

import (
	"hash/fnv"
	"math/rand"
)

const hashMask = uint32(0x7fffffff)

// Partitioner picks the partition for a message produced with
// kafkaclient.PartitionAny. Key is the message key (nil when there is
// none), n the number of partitions of the topic.
type Partitioner func(key []byte, n int32) int32

// HashKey is the default Partitioner: FNV-1a of the key masked non
// negative, modulo the partition count. Messages with equal keys go to
// the same partition for as long as the partition count does not change.
// Keyless messages go to a random partition. This is not the murmur2
// partitioner of the java client: the two do not co-partition.
func HashKey(key []byte, n int32) int32 {
	if n <= 1 {
		return 0
	}
	if key == nil {
		return rand.Int31n(n)
	}
	h := fnv.New32a()
	h.Write(key)
	return int32(h.Sum32()&hashMask) % n
}
