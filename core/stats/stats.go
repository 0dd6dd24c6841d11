// Package stats aggregates ratings and completion counts for display.
// All functions are pure: they hold no state and never fail.
package stats

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/trezcool/feedback/core/form"
)

// Band is the status color of a completion percentage.
type Band string

const (
	BandDanger  Band = "danger"  // < 50%
	BandWarning Band = "warning" // 50% - 74%
	BandSuccess Band = "success" // >= 75%
)

// Counts holds the number of ratings per value, indexed by rating-1.
type Counts [form.MaxRating]int

// Get returns the count for rating, 0 for ratings outside 1..5.
func (c Counts) Get(rating int) int {
	if rating < form.MinRating || rating > form.MaxRating {
		return 0
	}
	return c[rating-1]
}

// Total is the sum of all buckets.
func (c Counts) Total() int {
	var total int
	for _, n := range c {
		total += n
	}
	return total
}

// MarshalJSON always writes the five keys "1".."5".
func (c Counts) MarshalJSON() ([]byte, error) {
	m := make(map[string]int, len(c))
	for i, n := range c {
		m[strconv.Itoa(i+1)] = n
	}
	return json.Marshal(m)
}

type QuestionStats struct {
	QuestionID     string  `json:"question_id"`
	QuestionText   string  `json:"question_text"`
	AverageRating  float64 `json:"average_rating"` // 0 when there are no responses
	TotalResponses int     `json:"total_responses"`
	Counts         Counts  `json:"counts"`
}

// ComputeQuestionStats returns one QuestionStats per question, in the questions' order.
// Responses to unknown questions, and ratings outside 1..5, are ignored.
func ComputeQuestionStats(questions []form.Question, responses []form.Response) []QuestionStats {
	stats := make([]QuestionStats, len(questions))
	index := make(map[string]int, len(questions))
	for i, q := range questions {
		stats[i] = QuestionStats{QuestionID: q.ID, QuestionText: q.QuestionText}
		index[q.ID] = i
	}

	sums := make([]int, len(questions))
	for _, resp := range responses {
		i, ok := index[resp.QuestionID]
		if !ok || resp.Rating < form.MinRating || resp.Rating > form.MaxRating {
			continue
		}
		stats[i].Counts[resp.Rating-1]++
		sums[i] += resp.Rating
	}

	for i := range stats {
		total := stats[i].Counts.Total()
		stats[i].TotalResponses = total
		if total > 0 {
			stats[i].AverageRating = float64(sums[i]) / float64(total)
		}
	}
	return stats
}

// CompletionStats compares a number of completions against a number of eligible items.
// It is used both ways: students who completed a form, and forms a student completed.
// Completed is never capped to Total.
type CompletionStats struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
}

// ComputeCompletionStats counts submissions against total.
func ComputeCompletionStats(total int, submissions []form.Submission) CompletionStats {
	return CompletionStats{Total: total, Completed: len(submissions)}
}

// Percentage is floor(completed / total * 100), 0 when total is 0.
func (cs CompletionStats) Percentage() int {
	if cs.Total <= 0 {
		return 0
	}
	return int(math.Floor(float64(cs.Completed) / float64(cs.Total) * 100))
}

// RoundedPercentage is the rounded variant of Percentage.
func (cs CompletionStats) RoundedPercentage() int {
	if cs.Total <= 0 {
		return 0
	}
	return int(math.Round(float64(cs.Completed) / float64(cs.Total) * 100))
}

func (cs CompletionStats) Band() Band {
	switch pct := cs.Percentage(); {
	case pct >= 75:
		return BandSuccess
	case pct >= 50:
		return BandWarning
	default:
		return BandDanger
	}
}

func (cs CompletionStats) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Total             int  `json:"total"`
		Completed         int  `json:"completed"`
		Percentage        int  `json:"percentage"`
		RoundedPercentage int  `json:"rounded_percentage"`
		Band              Band `json:"band"`
	}{
		Total:             cs.Total,
		Completed:         cs.Completed,
		Percentage:        cs.Percentage(),
		RoundedPercentage: cs.RoundedPercentage(),
		Band:              cs.Band(),
	})
}

type ChartPoint struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// BuildHistogram returns exactly five points, labeled "1".."5".
func BuildHistogram(qs QuestionStats) []ChartPoint {
	points := make([]ChartPoint, 0, form.MaxRating)
	for rating := form.MinRating; rating <= form.MaxRating; rating++ {
		points = append(points, ChartPoint{Name: strconv.Itoa(rating), Count: qs.Counts.Get(rating)})
	}
	return points
}
