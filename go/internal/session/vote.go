package session

import (
	"math"
	"strconv"
	"strings"

	"github.com/mcdev12/pokerroom/go/internal/models"
)

// Markers are the non-numeric cards a participant may play.
var Markers = map[string]struct{}{
	"?":      {},
	"coffee": {},
	"☕":      {},
	"∞":      {},
	"pass":   {},
}

// NormalizeVote validates a raw vote and returns its canonical form.
// Numbers keep their textual form so "5" and "5.0" stay distinguishable to clients.
func NormalizeVote(raw string) (string, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", ErrInvalidVote
	}
	if _, ok := Markers[v]; ok {
		return v, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return "", ErrInvalidVote
	}
	return v, nil
}

// finalScore returns the mean of the numeric votes, nil when nobody played a number.
func finalScore(votes []models.HistoryVote) *float64 {
	var sum float64
	var n int
	for _, v := range votes {
		if v.Vote == nil {
			continue
		}
		f, err := strconv.ParseFloat(*v.Vote, 64)
		if err != nil {
			continue
		}
		sum += f
		n++
	}
	if n == 0 {
		return nil
	}
	mean := sum / float64(n)
	return &mean
}
