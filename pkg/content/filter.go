// Copyright 2026 QuizForge. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package content

import (
	"math/rand/v2"
	"strings"
)

// Match reports whether question satisfies q. This is the only definition of
// question filtering: providers and the broadened cache fallback both call it.
func (q QuestionQuery) Match(question Question) bool {
	if q.Subject != "" && !strings.EqualFold(strings.TrimSpace(q.Subject), question.Subject) {
		return false
	}
	if q.KeyStage != "" && q.KeyStage != question.KeyStage {
		return false
	}
	if q.Difficulty != nil && !q.Difficulty.Contains(question.Difficulty) {
		return false
	}
	return true
}

// Filter returns the questions matching q, in input order.
func (q QuestionQuery) Filter(questions []Question) []Question {
	out := make([]Question, 0, len(questions))
	for _, question := range questions {
		if q.Match(question) {
			out = append(out, question)
		}
	}
	return out
}

// Select filters questions by q and then draws q.Count of them at random.
// The input slice is not modified. A nil rng uses the global source.
func (q QuestionQuery) Select(questions []Question, rng *rand.Rand) []Question {
	matched := q.Filter(questions)
	shuffle(matched, rng)
	if q.Count > 0 && q.Count < len(matched) {
		matched = matched[:q.Count]
	}
	return matched
}

// Broaden returns the query with key stage and difficulty widened to "any".
func (q QuestionQuery) Broaden() QuestionQuery {
	return QuestionQuery{Subject: q.Subject}
}

func shuffle(qs []Question, rng *rand.Rand) {
	swap := func(i, j int) { qs[i], qs[j] = qs[j], qs[i] }
	if rng == nil {
		rand.Shuffle(len(qs), swap)
		return
	}
	rng.Shuffle(len(qs), swap)
}
