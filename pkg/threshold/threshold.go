package threshold

import "fmt"

// Achievement identifies a collectible kind stored against a (user, artist) pair.
type Achievement string

const (
	// StreamedMilliseconds is the running accumulator of listening time.
	StreamedMilliseconds Achievement = "streamedMilliseconds"

	Streamed01Hour  Achievement = "streamed01Hour"
	Streamed05Hours Achievement = "streamed05Hours"
	Streamed10Hours Achievement = "streamed10Hours"
	Streamed15Hours Achievement = "streamed15Hours"
	Streamed25Hours Achievement = "streamed25Hours"

	// StreamedTrackInFirst24Hours marks listening to a track within 24 hours
	// of its album release. Evaluated per play event, not by listening time.
	StreamedTrackInFirst24Hours Achievement = "streamedTrackInFirst24Hours"
)

// HourMs is one hour in milliseconds, the unit all tier thresholds are
// expressed in.
const HourMs int64 = 3_600_000

// Tier is a listening-duration milestone that unlocks a one-time collectible.
type Tier struct {
	Achievement Achievement
	ThresholdMs int64
	Label       string
}

// Tiers is the ordered tier table, ascending by threshold.
var Tiers = []Tier{
	{Streamed01Hour, 1 * HourMs, "1 Hour Listening"},
	{Streamed05Hours, 5 * HourMs, "5 Hours Listening"},
	{Streamed10Hours, 10 * HourMs, "10 Hours Listening"},
	{Streamed15Hours, 15 * HourMs, "15 Hours Listening"},
	{Streamed25Hours, 25 * HourMs, "25 Hours Listening"},
}

// TiersCrossed returns every tier whose threshold lies in (previousMs, newMs],
// in ascending order. A tier counts as crossed the first time the accumulated
// total reaches or exceeds its threshold, so evaluating against the previous
// total makes each tier fire exactly once across repeated invocations.
func TiersCrossed(previousMs, newMs int64) []Achievement {
	var crossed []Achievement
	for _, t := range Tiers {
		if previousMs < t.ThresholdMs && newMs >= t.ThresholdMs {
			crossed = append(crossed, t.Achievement)
		}
	}
	return crossed
}

// NextTier returns the first tier the accumulated total has not yet reached.
// ok is false above the last defined tier; there is no further target.
func NextTier(accumulatedMs int64) (Tier, bool) {
	for _, t := range Tiers {
		if accumulatedMs < t.ThresholdMs {
			return t, true
		}
	}
	return Tier{}, false
}

// ProgressFraction reports progress toward the next uncrossed tier as a
// fraction of that tier's full threshold. ok is false above the last tier.
func ProgressFraction(accumulatedMs int64) (float64, bool) {
	next, ok := NextTier(accumulatedMs)
	if !ok {
		return 0, false
	}
	return float64(accumulatedMs) / float64(next.ThresholdMs), true
}

// TimeRemaining reports the listening time left until the next tier, rendered
// with the coarsest applicable units. ok is false above the last tier.
func TimeRemaining(accumulatedMs int64) (string, bool) {
	next, ok := NextTier(accumulatedMs)
	if !ok {
		return "", false
	}
	return FormatDuration(next.ThresholdMs - accumulatedMs), true
}

// FormatDuration renders a millisecond duration as "HH hours MM minutes",
// "MM minutes" or "SS seconds". Zero-valued units are omitted.
func FormatDuration(ms int64) string {
	seconds := (ms / 1000) % 60
	minutes := (ms / (1000 * 60)) % 60
	hours := ms / (1000 * 60 * 60)

	switch {
	case hours > 0 && minutes > 0:
		return fmt.Sprintf("%02d hours %02d minutes", hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%02d hours", hours)
	case minutes > 0:
		return fmt.Sprintf("%02d minutes", minutes)
	default:
		return fmt.Sprintf("%02d seconds", seconds)
	}
}

// TierFor returns the tier definition for an achievement kind.
func TierFor(kind Achievement) (Tier, bool) {
	for _, t := range Tiers {
		if t.Achievement == kind {
			return t, true
		}
	}
	return Tier{}, false
}
