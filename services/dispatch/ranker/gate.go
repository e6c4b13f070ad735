// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ranker

// =============================================================================
// Confidence Gate
// =============================================================================

// Outcome is the gate's verdict on a ranked candidate list.
type Outcome string

const (
	// OutcomeAccept means the best candidate cleared the threshold alone.
	OutcomeAccept Outcome = "accept"

	// OutcomeAmbiguous means two or more candidates cleared the threshold
	// within epsilon of each other; the caller should ask the user.
	OutcomeAmbiguous Outcome = "ambiguous"

	// OutcomeNoMatch means nothing cleared the threshold.
	OutcomeNoMatch Outcome = "no_match"
)

// GateConfig tunes the confidence gate.
type GateConfig struct {
	// Threshold is the minimum similarity to accept, inclusive: a score
	// exactly at the threshold accepts.
	Threshold float64

	// Epsilon is the ambiguity band. When the runner-up also clears the
	// threshold and trails the best by at most Epsilon, the gate reports
	// ambiguity instead of accepting. Zero disables the band.
	Epsilon float64

	// Suggestions caps how many near-miss candidates a no-match carries.
	Suggestions int
}

// DefaultGateConfig matches interactive assistant behavior: a strict 0.8
// threshold, no ambiguity band, three suggestions on a miss.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		Threshold:   0.8,
		Epsilon:     0,
		Suggestions: 3,
	}
}

// Decision is the gate's structured verdict.
type Decision struct {
	// Outcome classifies the verdict.
	Outcome Outcome

	// Best is the accepted candidate. Non-nil only on OutcomeAccept.
	Best *Candidate

	// Contenders holds every candidate inside the ambiguity band, best
	// first. Non-empty only on OutcomeAmbiguous.
	Contenders []Candidate

	// Suggestions holds the closest near-misses for "did you mean" output.
	// Non-empty only on OutcomeNoMatch (and only if candidates existed).
	Suggestions []Candidate
}

// Gate applies cfg to a ranked candidate list.
//
// # Description
//
// Acceptance is inclusive: Score >= Threshold accepts. With a non-zero
// Epsilon, an accept downgrades to ambiguous when the runner-up both
// clears the threshold and trails the best by at most Epsilon; every
// candidate in that band becomes a contender. Below threshold, the top
// candidates are returned as suggestions regardless of score, so the
// caller can always offer something.
//
// # Inputs
//
//   - candidates: Ranked best-first, as produced by Rank. May be empty.
//   - cfg: Gate tuning. Suggestions <= 0 means no suggestions.
//
// # Outputs
//
//   - Decision: The verdict. Never holds references past the input slice.
func Gate(candidates []Candidate, cfg GateConfig) Decision {
	if len(candidates) == 0 || candidates[0].Score < cfg.Threshold {
		d := Decision{Outcome: OutcomeNoMatch}
		n := cfg.Suggestions
		if n > len(candidates) {
			n = len(candidates)
		}
		if n > 0 {
			d.Suggestions = append(d.Suggestions, candidates[:n]...)
		}
		gateDecisionsTotal.WithLabelValues(string(OutcomeNoMatch)).Inc()
		return d
	}

	best := candidates[0]
	if cfg.Epsilon > 0 && len(candidates) > 1 {
		var contenders []Candidate
		for _, c := range candidates {
			if c.Score >= cfg.Threshold && best.Score-c.Score <= cfg.Epsilon {
				contenders = append(contenders, c)
			}
		}
		if len(contenders) > 1 {
			gateDecisionsTotal.WithLabelValues(string(OutcomeAmbiguous)).Inc()
			return Decision{Outcome: OutcomeAmbiguous, Contenders: contenders}
		}
	}

	gateDecisionsTotal.WithLabelValues(string(OutcomeAccept)).Inc()
	return Decision{Outcome: OutcomeAccept, Best: &best}
}
