// Package emergency classifies dialed numbers as emergency service numbers.
package emergency

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/callbroker/callbroker/internal/resolve"
)

// universalNumbers are recognized regardless of the configured region.
var universalNumbers = []string{"911", "112"}

// regionNumbers holds per-region emergency short codes.
var regionNumbers = map[string][]string{
	"us": {"911"},
	"eu": {"112"},
	"gb": {"999", "112"},
	"au": {"000", "112"},
	"nz": {"111", "112"},
	"jp": {"110", "118", "119"},
	"in": {"112", "100", "101", "102"},
}

// Classifier matches dialed tel handles against a fixed set of emergency
// numbers. The set is built once; lookups are lock-free.
type Classifier struct {
	numbers map[string]bool
	logger  *slog.Logger
}

// NewClassifier builds a classifier for the given region code, plus any
// operator-configured extra numbers. Unknown regions fall back to the
// universal set.
func NewClassifier(region string, extra []string, logger *slog.Logger) *Classifier {
	numbers := make(map[string]bool)
	for _, n := range universalNumbers {
		numbers[n] = true
	}
	region = strings.ToLower(strings.TrimSpace(region))
	if rn, ok := regionNumbers[region]; ok {
		for _, n := range rn {
			numbers[n] = true
		}
	} else if region != "" {
		logger.Warn("unknown emergency region, using universal numbers only",
			"region", region)
	}
	for _, n := range extra {
		if n = normalize(n); n != "" {
			numbers[n] = true
		}
	}

	c := &Classifier{
		numbers: numbers,
		logger:  logger.With("subsystem", "emergency-classifier"),
	}
	c.logger.Info("emergency classifier ready",
		"region", region, "numbers", len(numbers))
	return c
}

// IsEmergencyNumber reports whether the handle dials an emergency service.
// Only tel handles can; separators in the dialed number are ignored.
func (c *Classifier) IsEmergencyNumber(h resolve.Handle) bool {
	if h.Scheme != resolve.SchemeTel {
		return false
	}
	return c.numbers[normalize(h.Address)]
}

// Numbers returns the recognized numbers in sorted order.
func (c *Classifier) Numbers() []string {
	out := make([]string, 0, len(c.numbers))
	for n := range c.numbers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// normalize strips the visual separators commonly typed into dial strings.
func normalize(number string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '.', '(', ')':
			return -1
		}
		return r
	}, strings.TrimSpace(number))
}
