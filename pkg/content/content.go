// Copyright 2026 QuizForge. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package content defines the quiz domain types and the provider contract
// the resilience layer wraps.
package content

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Operation names shared by the provider, the cache keys and the retry queue.
const (
	OpGetSubjects     = "get_subjects"
	OpGetQuestions    = "get_questions"
	OpGetProfiles     = "get_profiles"
	OpUpdateProgress  = "update_progress"
	OpGetCustomMixes  = "get_custom_mixes"
	OpCreateCustomMix = "create_custom_mix"
)

// Provider is the external content/data source.
type Provider interface {
	GetSubjects(ctx context.Context) ([]Subject, error)
	GetQuestions(ctx context.Context, q QuestionQuery) ([]Question, error)
	GetProfiles(ctx context.Context) ([]Profile, error)
	UpdateProgress(ctx context.Context, profileID string, result QuizResult) error
	GetCustomMixes(ctx context.Context) ([]CustomMix, error)
	CreateCustomMix(ctx context.Context, req CustomMixRequest) (CustomMix, error)
}

// KeyStage is a UK curriculum key stage.
type KeyStage string

const (
	KS1 KeyStage = "KS1"
	KS2 KeyStage = "KS2"
	KS3 KeyStage = "KS3"
	KS4 KeyStage = "KS4"
)

// ParseKeyStage normalizes s. The empty string means "any key stage".
func ParseKeyStage(s string) (KeyStage, error) {
	ks := KeyStage(strings.ToUpper(strings.TrimSpace(s)))
	switch ks {
	case "", KS1, KS2, KS3, KS4:
		return ks, nil
	default:
		return "", fmt.Errorf("unknown key stage %q", s)
	}
}

// DifficultyRange is an inclusive difficulty band on the 1..5 scale.
type DifficultyRange struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

// Contains reports whether d falls inside the range.
func (r DifficultyRange) Contains(d int) bool {
	return d >= r.Min && d <= r.Max
}

// String renders the range as "min-max".
func (r DifficultyRange) String() string {
	return fmt.Sprintf("%d-%d", r.Min, r.Max)
}

// Subject is a browsable quiz subject.
type Subject struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
}

// Question is one multiple-choice question.
type Question struct {
	ID          string   `json:"id"`
	Subject     string   `json:"subject"`
	KeyStage    KeyStage `json:"keyStage"`
	Difficulty  int      `json:"difficulty"`
	Text        string   `json:"text"`
	Options     []string `json:"options"`
	Answer      int      `json:"answer"`
	Explanation string   `json:"explanation,omitempty"`
}

// QuestionQuery selects questions. Zero-valued KeyStage and Difficulty mean
// "any"; Count <= 0 means "all matches".
type QuestionQuery struct {
	Subject    string           `json:"subject"`
	KeyStage   KeyStage         `json:"keyStage,omitempty"`
	Difficulty *DifficultyRange `json:"difficulty,omitempty"`
	Count      int              `json:"count,omitempty"`
}

// SubjectProgress is a profile's running tally for one subject.
type SubjectProgress struct {
	QuizzesTaken int       `json:"quizzesTaken"`
	TotalScore   int       `json:"totalScore"`
	TotalAsked   int       `json:"totalAsked"`
	LastPlayed   time.Time `json:"lastPlayed"`
}

// Profile is a locally held learner profile. It never leaves the device.
type Profile struct {
	ID           string                     `json:"id"`
	Name         string                     `json:"name"`
	Avatar       string                     `json:"avatar,omitempty"`
	Progress     map[string]SubjectProgress `json:"progress,omitempty"`
	Achievements []string                   `json:"achievements,omitempty"`
}

// QuizResult is the outcome of one completed quiz.
type QuizResult struct {
	Subject     string    `json:"subject"`
	Score       int       `json:"score"`
	Total       int       `json:"total"`
	CompletedAt time.Time `json:"completedAt"`
}

// Apply folds r into the profile's progress and returns the updated copy.
func (p Profile) Apply(r QuizResult) Profile {
	progress := make(map[string]SubjectProgress, len(p.Progress)+1)
	for k, v := range p.Progress {
		progress[k] = v
	}
	sp := progress[r.Subject]
	sp.QuizzesTaken++
	sp.TotalScore += r.Score
	sp.TotalAsked += r.Total
	if r.CompletedAt.After(sp.LastPlayed) {
		sp.LastPlayed = r.CompletedAt
	}
	progress[r.Subject] = sp
	p.Progress = progress
	return p
}

// CustomMix is a saved user-defined quiz mix.
type CustomMix struct {
	ID            string           `json:"id"`
	ProfileID     string           `json:"profileId"`
	Name          string           `json:"name"`
	Subjects      []string         `json:"subjects"`
	KeyStage      KeyStage         `json:"keyStage,omitempty"`
	Difficulty    *DifficultyRange `json:"difficulty,omitempty"`
	QuestionCount int              `json:"questionCount"`
	CreatedAt     time.Time        `json:"createdAt"`
	// Pending marks a mix returned to the caller while its creation waits
	// in the retry queue. The local copy is never cached; the cached mix
	// list gains the provider's copy when the queued create replays.
	Pending bool `json:"pending,omitempty"`
}

// CustomMixRequest asks the provider to create a CustomMix.
type CustomMixRequest struct {
	ProfileID     string           `json:"profileId"`
	Name          string           `json:"name"`
	Subjects      []string         `json:"subjects"`
	KeyStage      KeyStage         `json:"keyStage,omitempty"`
	Difficulty    *DifficultyRange `json:"difficulty,omitempty"`
	QuestionCount int              `json:"questionCount"`
}

// Validate checks the request before it is sent or queued.
func (r CustomMixRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("mix name is required")
	}
	if len(r.Subjects) == 0 {
		return fmt.Errorf("mix needs at least one subject")
	}
	if r.QuestionCount <= 0 {
		return fmt.Errorf("question count must be positive")
	}
	if r.Difficulty != nil && r.Difficulty.Min > r.Difficulty.Max {
		return fmt.Errorf("difficulty range %s is inverted", r.Difficulty)
	}
	return nil
}
