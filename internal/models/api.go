package models

import "time"

// StartSessionRequest represents a request to start a survey session
type StartSessionRequest struct {
	Screen *ScreenReport `json:"screen,omitempty" validate:"omitempty"`
}

// StartSessionResponse is returned after starting a session
type StartSessionResponse struct {
	ID         string     `json:"id"`
	Offline    bool       `json:"offline"`
	DeviceInfo DeviceInfo `json:"device_info"`
	Trials     []Trial    `json:"trials"`
	StartedAt  time.Time  `json:"started_at"`
}

// SessionView is returned when fetching an existing session
type SessionView struct {
	Session  Session  `json:"session"`
	Trials   []Trial  `json:"trials"`
	Answers  []Answer `json:"answers"`
	Answered int      `json:"answered"`
	Total    int      `json:"total"`
}

// SubmitAnswerRequest carries the user's choice for one trial
type SubmitAnswerRequest struct {
	QuestionID     int   `json:"question_id" validate:"required,gt=0"`
	UserAnswer     Side  `json:"user_answer" validate:"required,oneof=left right"`
	ResponseTimeMs int64 `json:"response_time_ms" validate:"gte=0"`
}

// SubmitAnswerResponse reports progress after an answer was recorded
type SubmitAnswerResponse struct {
	Answered  int  `json:"answered"`
	Remaining int  `json:"remaining"`
	Complete  bool `json:"complete"`
}
