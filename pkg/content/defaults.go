// Copyright 2026 QuizForge. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package content

import "strings"

// Minimal datasets served when neither the provider nor the cache can answer.
// Enough to keep browsing and a short quiz working.

// DefaultSubjects returns the built-in subject list.
func DefaultSubjects() []Subject {
	return []Subject{
		{ID: "mathematics", Name: "Mathematics", Description: "Numbers, shapes and problem solving", Icon: "calculator"},
		{ID: "english", Name: "English", Description: "Reading, spelling and grammar", Icon: "book"},
		{ID: "science", Name: "Science", Description: "How the world works", Icon: "flask"},
	}
}

var defaultQuestions = []Question{
	{
		ID: "default-math-1", Subject: "Mathematics", KeyStage: KS1, Difficulty: 1,
		Text: "What is 2 + 3?", Options: []string{"4", "5", "6", "7"}, Answer: 1,
	},
	{
		ID: "default-math-2", Subject: "Mathematics", KeyStage: KS2, Difficulty: 2,
		Text: "What is 6 x 7?", Options: []string{"36", "42", "48", "49"}, Answer: 1,
	},
	{
		ID: "default-math-3", Subject: "Mathematics", KeyStage: KS3, Difficulty: 3,
		Text: "What is 15% of 200?", Options: []string{"15", "20", "30", "35"}, Answer: 2,
	},
	{
		ID: "default-eng-1", Subject: "English", KeyStage: KS1, Difficulty: 1,
		Text: "Which word is a noun?", Options: []string{"run", "happy", "dog", "quickly"}, Answer: 2,
	},
	{
		ID: "default-eng-2", Subject: "English", KeyStage: KS2, Difficulty: 2,
		Text: "Which sentence uses the correct 'their'?",
		Options: []string{"Their going home.", "The cat licked their paws.", "Put it over their.", "Their is a cat."}, Answer: 1,
	},
	{
		ID: "default-sci-1", Subject: "Science", KeyStage: KS1, Difficulty: 1,
		Text: "What do plants need to make food?", Options: []string{"Sunlight", "Sand", "Plastic", "Salt"}, Answer: 0,
	},
	{
		ID: "default-sci-2", Subject: "Science", KeyStage: KS3, Difficulty: 3,
		Text: "What is the chemical symbol for water?", Options: []string{"O2", "CO2", "H2O", "NaCl"}, Answer: 2,
	},
}

// DefaultQuestions returns built-in sample questions. When nothing matches
// the query's subject exactly, the generic set for every subject is returned
// so a quiz can still start.
func DefaultQuestions(q QuestionQuery) []Question {
	all := make([]Question, len(defaultQuestions))
	copy(all, defaultQuestions)

	matched := q.Filter(all)
	if len(matched) > 0 {
		return matched
	}
	if q.Subject != "" {
		if bySubject := (QuestionQuery{Subject: strings.TrimSpace(q.Subject)}).Filter(all); len(bySubject) > 0 {
			return bySubject
		}
	}
	return all
}
