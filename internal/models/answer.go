package models

import "time"

// Answer records the user's choice for one trial. Answers are appended to
// the session's sequence and never mutated.
type Answer struct {
	QuestionID     int        `json:"questionId"`
	SessionID      string     `json:"sessionId"`
	Category       Category   `json:"category"`
	ImageID        string     `json:"imageId,omitempty"`
	LeftImage      Resolution `json:"leftImage"`
	RightImage     Resolution `json:"rightImage"`
	CorrectAnswer  Side       `json:"correctAnswer"`
	UserAnswer     Side       `json:"userAnswer"`
	ResponseTimeMs int64      `json:"responseTime"`
	IsRetest       bool       `json:"isRetest"`
	AnsweredAt     time.Time  `json:"answeredAt"`
}

// IsCorrect reports whether the user picked the higher resolution
func (a *Answer) IsCorrect() bool {
	return a.UserAnswer == a.CorrectAnswer
}

// NewAnswer builds the answer for a trial
func NewAnswer(sessionID string, t Trial, choice Side, responseTimeMs int64, at time.Time) Answer {
	return Answer{
		QuestionID:     t.ID,
		SessionID:      sessionID,
		Category:       t.Category,
		ImageID:        t.ImageID,
		LeftImage:      t.LeftResolution,
		RightImage:     t.RightResolution,
		CorrectAnswer:  t.CorrectAnswer,
		UserAnswer:     choice,
		ResponseTimeMs: responseTimeMs,
		IsRetest:       t.IsRetest,
		AnsweredAt:     at,
	}
}
