package ranking

import "strconv"

// secondsPerDay is the UTC day bucket width. No timezone adjustment.
const secondsPerDay = 86400

// DayOf buckets a unix timestamp into its UTC calendar day.
func DayOf(timestamp uint64) uint64 {
	return timestamp / secondsPerDay
}

// SnapshotKey builds the id of a block's snapshot for one day.
func SnapshotKey(blockID string, day uint64) string {
	return blockID + "-" + strconv.FormatUint(day, 10)
}

// PositionKey builds the id of a block's rank row for one level and day.
func PositionKey(levelID int, day uint64, blockID string) string {
	return strconv.Itoa(levelID) + "-" + strconv.FormatUint(day, 10) + "-" + blockID
}
