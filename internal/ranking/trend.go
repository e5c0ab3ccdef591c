package ranking

// Trend describes how a ranked block moved between two time buckets.
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendSame Trend = "same"
	TrendNew  Trend = "new"
)

// TrendPolicy selects how an unchanged position is reported. The two
// consumers of the comparator historically disagreed on this, so the choice
// is an explicit parameter instead of two diverging copies of the algorithm.
type TrendPolicy int

const (
	// PolicyResetSame reports an unchanged position as TrendSame.
	// Used by the server-side snapshot ranking.
	PolicyResetSame TrendPolicy = iota

	// PolicyCarryForward keeps showing the previous trend when the position
	// is unchanged. Used by the client-local position cache.
	PolicyCarryForward
)

// Movement is the outcome of comparing a block's position across two buckets.
type Movement struct {
	Trend Trend
	Diff  int
}

// Compare computes the movement of a block from its previous position to the
// current one. Positions are 1-based; a lower number is better. hasPrevious
// is false when the block had no entry in the previous bucket, which always
// yields TrendNew. lastTrend is only consulted under PolicyCarryForward and
// may be empty.
//
// Both the snapshot ranking and the local position cache must go through this
// function; they are required to agree except for the policy parameter.
func Compare(policy TrendPolicy, current, previous int, hasPrevious bool, lastTrend Trend) Movement {
	if !hasPrevious {
		return Movement{Trend: TrendNew}
	}

	switch {
	case current < previous:
		return Movement{Trend: TrendUp, Diff: previous - current}
	case current > previous:
		return Movement{Trend: TrendDown, Diff: current - previous}
	}

	if policy == PolicyCarryForward && lastTrend != "" {
		return Movement{Trend: lastTrend}
	}

	return Movement{Trend: TrendSame}
}
