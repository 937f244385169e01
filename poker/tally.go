/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package poker

import (
	"math"
	"slices"
	"strconv"
	"strings"
)

// trailingLabels sort after everything else, in this order. "" is a
// player who did not vote.
var trailingLabels = []string{"Coffee", "?", ""}

type Bucket struct {
	Label   string   `json:"label"`
	Count   int      `json:"count"`
	Players []string `json:"players"`
}

type Results struct {
	Buckets    []Bucket     `json:"buckets"`
	Average    float64      `json:"average"`
	HasAverage bool         `json:"hasAverage"`
	MaxCount   int          `json:"maxCount"`
	Comments   []VoteRecord `json:"comments"`
}

// AverageLabel renders the average, or "N/A" when no numeric votes exist.
func (r Results) AverageLabel() string {
	if !r.HasAverage {
		return "N/A"
	}
	return strconv.FormatFloat(r.Average, 'f', -1, 64)
}

func numericLabel(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Tally groups votes by label and averages the numeric ones.
func Tally(votes []VoteRecord) Results {
	index := make(map[string]int)
	var res Results

	sum, numeric := 0, 0
	for _, v := range votes {
		i, ok := index[v.Vote]
		if !ok {
			i = len(res.Buckets)
			index[v.Vote] = i
			res.Buckets = append(res.Buckets, Bucket{Label: v.Vote})
		}
		res.Buckets[i].Count++
		res.Buckets[i].Players = append(res.Buckets[i].Players, v.Player)

		if n, ok := numericLabel(v.Vote); ok {
			sum += n
			numeric++
		}

		if strings.TrimSpace(v.Comment) != "" {
			res.Comments = append(res.Comments, v)
		}
	}

	if numeric > 0 {
		res.HasAverage = true
		res.Average = math.Round(float64(sum)/float64(numeric)*10) / 10
	}

	slices.SortStableFunc(res.Buckets, func(a, b Bucket) int {
		return compareLabels(a.Label, b.Label)
	})

	for _, b := range res.Buckets {
		res.MaxCount = max(res.MaxCount, b.Count)
	}

	return res
}

func compareLabels(a, b string) int {
	an, aNum := numericLabel(a)
	bn, bNum := numericLabel(b)
	switch {
	case aNum && bNum:
		return an - bn
	case aNum:
		return -1
	case bNum:
		return 1
	}

	at := slices.Index(trailingLabels, a)
	bt := slices.Index(trailingLabels, b)
	switch {
	case at >= 0 && bt >= 0:
		return at - bt
	case at >= 0:
		return 1
	case bt >= 0:
		return -1
	}

	return strings.Compare(a, b)
}
