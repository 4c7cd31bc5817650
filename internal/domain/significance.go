package domain

import (
	"errors"
	"strings"
)

type Significance string

const (
	SignificanceLow    Significance = "LOW"
	SignificanceMedium Significance = "MEDIUM"
	SignificanceHigh   Significance = "HIGH"
)

var ErrInvalidSignificance = errors.New("invalid significance")

// Significances lists every tier from least to most severe.
var Significances = []Significance{SignificanceLow, SignificanceMedium, SignificanceHigh}

func ParseSignificance(value string) (Significance, error) {
	switch Significance(strings.ToUpper(strings.TrimSpace(value))) {
	case SignificanceLow:
		return SignificanceLow, nil
	case SignificanceMedium:
		return SignificanceMedium, nil
	case SignificanceHigh:
		return SignificanceHigh, nil
	default:
		return "", ErrInvalidSignificance
	}
}

func (s Significance) Rank() int {
	switch s {
	case SignificanceLow:
		return 1
	case SignificanceMedium:
		return 2
	case SignificanceHigh:
		return 3
	default:
		return 0
	}
}

func (s Significance) Valid() bool {
	return s.Rank() > 0
}

// Includes reports whether a subscriber threshold of s accepts an alert of the given severity.
// A LOW threshold accepts every tier; a HIGH threshold accepts only HIGH.
func (s Significance) Includes(severity Significance) bool {
	if !s.Valid() || !severity.Valid() {
		return false
	}
	return severity.Rank() >= s.Rank()
}

// AcceptingThresholds returns the subscriber thresholds that receive an alert of this severity.
func (s Significance) AcceptingThresholds() []Significance {
	thresholds := make([]Significance, 0, len(Significances))
	for _, threshold := range Significances {
		if threshold.Includes(s) {
			thresholds = append(thresholds, threshold)
		}
	}
	return thresholds
}
