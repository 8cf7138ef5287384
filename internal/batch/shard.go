package batch

import (
	"fmt"

	"github.com/shardfeed/shardfeed/internal/config"
)

// Shard selects the sub-list of the global batch list assigned to one shard.
//
// The partition policy is position-based round-robin: global position p
// belongs to shard p mod numShards. Shards therefore receive either
// ceil(n/numShards) or floor(n/numShards) batches, their union is exactly the
// global list, and no batch appears on two shards.
func Shard(batches [][]int, numShards, shardID int) ([][]int, error) {
	if numShards < 1 {
		return nil, &config.Error{
			Field:  "num_shards",
			Reason: fmt.Sprintf("%d is not a valid shard count", numShards),
		}
	}
	if shardID < 0 || shardID >= numShards {
		return nil, &config.Error{
			Field:  "shard_id",
			Reason: fmt.Sprintf("%d is outside [0,%d)", shardID, numShards),
		}
	}
	if numShards == 1 {
		return batches, nil
	}

	shard := make([][]int, 0, (len(batches)+numShards-1)/numShards)
	for p := shardID; p < len(batches); p += numShards {
		shard = append(shard, batches[p])
	}
	return shard, nil
}
