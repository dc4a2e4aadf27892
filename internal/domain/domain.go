package domain

import (
	"time"
)

// Announcement is the test an administrator starts for every participant.
// It is never persisted.
type Announcement struct {
	Paragraph string `json:"paragraph"`
	Duration  int    `json:"duration"`
}

// Result represents a single completed typing test of a user.
type Result struct {
	Username       string    `json:"username"`
	WPM            int       `json:"wpm"`
	Errors         int       `json:"errors"`
	IncorrectWords int       `json:"incorrectWords"`
	CorrectWords   int       `json:"correctWords"`
	BackspaceCount int       `json:"backspaceCount"`
	Accuracy       float64   `json:"accuracy"`
	TypedWords     int       `json:"typedWords"`
	TestDuration   int       `json:"testDuration"`
	TestDate       time.Time `json:"testDate,omitempty"`
}

// Leaderboard is the ranked view over all stored results.
// Entries are sorted by MaxWPM in descending order, then by username.
type Leaderboard struct {
	Entries []LeaderboardEntry
}

type LeaderboardEntry struct {
	Username    string  `json:"username"`
	MaxWPM      int     `json:"max_wpm"`
	AvgAccuracy float64 `json:"avg_accuracy"`
	TestsTaken  int     `json:"tests_taken"`
}
