// Package merge implements the consensus merge algorithm: a pure
// function over N successful extraction results that produces one
// merged result with recomputed per-field confidences. No side
// effects, no I/O; deterministic given its inputs (the wall clock only
// affects the output timestamp).
package merge

import (
	"time"

	"github.com/limmutable/orchestrator/orchestrator"
)

// Config holds the two tunables the merge algorithm needs.
type Config struct {
	FuzzyThreshold                float64
	AbstentionConfidenceThreshold float64
}

// Input pairs one provider's successful result with the success_rate
// the weighting step needs.
type Input struct {
	Result      orchestrator.ExtractionResult
	SuccessRate float64
}

// Merge combines k>=1 successful results into one. For k=1 it is the
// identity transform: a single provider response has nothing to
// reconcile against, so it passes through unchanged aside from
// re-stamping email id, timestamp, and provider.
func Merge(inputs []Input, cfg Config, emailID string, now time.Time) orchestrator.ExtractionResult {
	if len(inputs) == 1 {
		out := inputs[0].Result
		out.EmailID = emailID
		out.ExtractedAt = now
		out.Provider = "consensus"
		return out
	}

	k := len(inputs)
	out := orchestrator.ExtractionResult{
		EmailID:     emailID,
		ExtractedAt: now,
		Provider:    "consensus",
	}

	fieldNames := [5]string{"person", "startup", "partner", "details", "date"}
	values := make([]*string, 5)
	confidences := make([]float64, 5)

	for fi, name := range fieldNames {
		candidates := make([]*string, k)
		fieldConfidence := make([]float64, k)
		for i, in := range inputs {
			views := in.Result.Fields()
			candidates[i] = views[fi].Value
			fieldConfidence[i] = views[fi].Confidence
		}

		buckets := bucketBySimilarity(candidates, cfg.FuzzyThreshold)
		winner := chooseWinningBucket(buckets, fieldConfidence, inputs)
		repValue := representativeValue(winner, candidates, fieldConfidence)

		agree := float64(len(winner)) / float64(k)
		meanConf := meanConfidence(winner, fieldConfidence)
		recomputed := clamp01(meanConf * (0.5 + 0.5*agree))

		if recomputed < cfg.AbstentionConfidenceThreshold {
			repValue = nil
			recomputed = 0
		}

		values[fi] = repValue
		confidences[fi] = recomputed
		_ = name
	}

	out.Person = values[0]
	out.Startup = values[1]
	out.Partner = values[2]
	out.Details = values[3]
	out.Date = values[4]
	out.Confidence = orchestrator.FieldConfidence{
		Person:  confidences[0],
		Startup: confidences[1],
		Partner: confidences[2],
		Details: confidences[3],
		Date:    confidences[4],
	}
	return out
}

// bucket is a set of input indices grouped by bucketBySimilarity, in
// first-match order.
type bucket []int

// bucketBySimilarity groups candidate indices by similarity to each
// bucket's representative (its first member): each value joins the
// first bucket whose representative it matches at >= threshold, or
// starts a new bucket. Two later members of a bucket are not compared
// with each other. Two nulls are equivalent; a null and non-null never
// group. Deterministic in input order.
func bucketBySimilarity(candidates []*string, threshold float64) []bucket {
	var buckets []bucket
	for i, v := range candidates {
		placed := false
		for bi, b := range buckets {
			rep := candidates[b[0]]
			if FuzzyMatch(rep, v, threshold) {
				buckets[bi] = append(b, i)
				placed = true
				break
			}
		}
		if !placed {
			buckets = append(buckets, bucket{i})
		}
	}
	return buckets
}

// chooseWinningBucket picks the bucket with the highest
// confidence*success_rate score (step 2), tie-broken by (a) larger
// bucket size, (b) higher max confidence inside, (c) lower input index
// of any member (step 3).
func chooseWinningBucket(buckets []bucket, confidence []float64, inputs []Input) bucket {
	bestIdx := 0
	bestScore := bucketScore(buckets[0], confidence, inputs)
	for bi := 1; bi < len(buckets); bi++ {
		score := bucketScore(buckets[bi], confidence, inputs)
		if betterBucket(buckets[bi], score, buckets[bestIdx], bestScore, confidence) {
			bestIdx = bi
			bestScore = score
		}
	}
	return buckets[bestIdx]
}

func bucketScore(b bucket, confidence []float64, inputs []Input) float64 {
	var score float64
	for _, i := range b {
		score += confidence[i] * inputs[i].SuccessRate
	}
	return score
}

func betterBucket(candidate bucket, candidateScore float64, current bucket, currentScore float64, confidence []float64) bool {
	if candidateScore != currentScore {
		return candidateScore > currentScore
	}
	if len(candidate) != len(current) {
		return len(candidate) > len(current)
	}
	if cm, curm := maxConfidence(candidate, confidence), maxConfidence(current, confidence); cm != curm {
		return cm > curm
	}
	return minIndex(candidate) < minIndex(current)
}

func maxConfidence(b bucket, confidence []float64) float64 {
	max := confidence[b[0]]
	for _, i := range b[1:] {
		if confidence[i] > max {
			max = confidence[i]
		}
	}
	return max
}

func minIndex(b bucket) int {
	min := b[0]
	for _, i := range b[1:] {
		if i < min {
			min = i
		}
	}
	return min
}

// representativeValue picks the winning bucket's highest-confidence
// member, tie-broken by longest string then input order (step 4).
func representativeValue(winner bucket, candidates []*string, confidence []float64) *string {
	best := winner[0]
	for _, i := range winner[1:] {
		if better := compareRepresentative(i, best, candidates, confidence); better {
			best = i
		}
	}
	return candidates[best]
}

func compareRepresentative(i, current int, candidates []*string, confidence []float64) bool {
	if confidence[i] != confidence[current] {
		return confidence[i] > confidence[current]
	}
	li, lc := strLen(candidates[i]), strLen(candidates[current])
	if li != lc {
		return li > lc
	}
	return i < current
}

func strLen(s *string) int {
	if s == nil {
		return 0
	}
	return len(*s)
}

func meanConfidence(b bucket, confidence []float64) float64 {
	var sum float64
	for _, i := range b {
		sum += confidence[i]
	}
	return sum / float64(len(b))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
