/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package poker

import (
	"slices"
	"strings"
)

const (
	SizingFibonacci = "fibonacci"
	SizingTShirt    = "t-shirt"
	SizingCustom    = "custom"
)

var sizingMethods = map[string][]string{
	SizingFibonacci: {"0", "1", "2", "3", "5", "8", "13", "20", "?", "Coffee"},
	SizingTShirt:    {"XS", "S", "M", "L", "XL", "?", "Coffee"},
}

// SizingOptions resolves a sizing method to its ordered labels. Custom lists
// are comma separated; blanks and repeats are dropped.
func SizingOptions(method, custom string) ([]string, error) {
	if method == "" {
		method = SizingFibonacci
	}

	if method != SizingCustom {
		opts, ok := sizingMethods[method]
		if !ok {
			return nil, ErrInvalidSizing
		}
		return slices.Clone(opts), nil
	}

	var opts []string
	for _, s := range strings.Split(custom, ",") {
		s = strings.TrimSpace(s)
		if s == "" || slices.Contains(opts, s) {
			continue
		}
		opts = append(opts, s)
	}

	if len(opts) == 0 {
		return nil, ErrInvalidSizing
	}

	return opts, nil
}
