package util

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// EntryKey returns the provider key for a request key stored in a partition.
// URLs are hashed so provider keys stay short; the full URL travels in the
// wire frame and is checked on read.
func EntryKey(ns, partition, requestKey string) string {
	sum := xxhash.Sum64String(requestKey)
	return "sw:" + ns + ":" + partition + ":" + strconv.FormatUint(sum, 16)
}

// PartitionPrefix is the provider key prefix shared by every entry of a partition.
func PartitionPrefix(ns, partition string) string {
	return "sw:" + ns + ":" + partition + ":"
}
