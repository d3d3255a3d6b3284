package recall

import "time"

// Bucket identifies a segment's time-granularity partition. Segments start
// in the finest bucket (Bucket1H) and are merged into coarser buckets by
// compaction as they age.
type Bucket string

const (
	Bucket1H Bucket = "1h"
	Bucket1D Bucket = "1d"
	Bucket1W Bucket = "1w"
	Bucket1M Bucket = "1m"
	Bucket3M Bucket = "3m"
	Bucket6M Bucket = "6m"
	Bucket1Y Bucket = "1y"
	BucketLT Bucket = "lt" // lifetime, the terminal bucket
)

// AllBuckets lists every bucket from finest to coarsest.
var AllBuckets = []Bucket{Bucket1H, Bucket1D, Bucket1W, Bucket1M, Bucket3M, Bucket6M, Bucket1Y, BucketLT}

// CompactableBuckets are the buckets that have a coarser bucket to merge
// into. BucketLT has no coarser target and is excluded.
var CompactableBuckets = AllBuckets[:len(AllBuckets)-1]

func (b Bucket) String() string { return string(b) }

// BucketForSpan returns the finest bucket whose duration covers span.
func BucketForSpan(span time.Duration) Bucket {
	switch {
	case span <= time.Hour:
		return Bucket1H
	case span <= 24*time.Hour:
		return Bucket1D
	case span <= 7*24*time.Hour:
		return Bucket1W
	case span <= 30*24*time.Hour:
		return Bucket1M
	case span <= 90*24*time.Hour:
		return Bucket3M
	case span <= 180*24*time.Hour:
		return Bucket6M
	case span <= 365*24*time.Hour:
		return Bucket1Y
	default:
		return BucketLT
	}
}
