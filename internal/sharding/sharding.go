package sharding

import (
	"fmt"
	"hash/crc32"
)

// ShardCount is the fixed number of partitions for change subjects.
const ShardCount = 1024

// ChangePrefix roots every row-change subject.
const ChangePrefix = "app.change"

// GetShardID calculates the deterministic shard ID for a given owner ID.
func GetShardID(ownerID string) int {
	checksum := crc32.ChecksumIEEE([]byte(ownerID))
	return int(checksum % ShardCount)
}

// ChangeSubject returns the subject one row's notifications are published on.
// Format: app.change.{shard_id}.{table}.{owner_id}.{row_id}
func ChangeSubject(table, ownerID, rowID string) string {
	return fmt.Sprintf("%s.%d.%s.%s.%s", ChangePrefix, GetShardID(ownerID), table, ownerID, rowID)
}

// ChangeFilter returns the subscription subject for one owner's rows in a
// table, or for a single row when rowID is set.
func ChangeFilter(table, ownerID, rowID string) string {
	if rowID == "" {
		rowID = "*"
	}
	return ChangeSubject(table, ownerID, rowID)
}

// StreamSubjects lists the subjects the change stream captures.
func StreamSubjects() []string {
	return []string{ChangePrefix + ".>"}
}
