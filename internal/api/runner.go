package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/keen-eye/survey-engine/internal/models"
	"github.com/keen-eye/survey-engine/internal/survey"
)

const (
	runnerIdleTimeout = 10 * time.Minute
	runnerWriteWait   = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Runner message types
const (
	msgTrial    = "trial"
	msgAnswer   = "answer"
	msgProgress = "progress"
	msgResult   = "result"
	msgError    = "error"
)

// RunnerMessage is exchanged over the trial runner WebSocket
type RunnerMessage struct {
	Type       string                       `json:"type"`
	Index      int                          `json:"index,omitempty"`
	Total      int                          `json:"total,omitempty"`
	Trial      *models.Trial                `json:"trial,omitempty"`
	LeftImage  string                       `json:"leftImage,omitempty"`
	RightImage string                       `json:"rightImage,omitempty"`
	Answer     *models.SubmitAnswerRequest  `json:"answer,omitempty"`
	Progress   *models.SubmitAnswerResponse `json:"progress,omitempty"`
	Result     *models.Result               `json:"result,omitempty"`
	Error      string                       `json:"error,omitempty"`
}

// handleRunnerWS walks the client through the unanswered trials of a
// session: trial out, answer in, progress out, and the result at the end.
func (s *Server) handleRunnerWS(w http.ResponseWriter, r *http.Request) {
	id := SessionIDFromContext(r.Context())

	view, err := s.surveys.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, "get session", id)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	slog.Info("runner websocket connected", "session_id", id)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	answered := make(map[int]bool, len(view.Answers))
	for _, a := range view.Answers {
		answered[a.QuestionID] = true
	}

	total := len(view.Trials)
trials:
	for i := range view.Trials {
		trial := view.Trials[i]
		if answered[trial.ID] {
			continue
		}

		err := s.runTrial(ctx, conn, id, i+1, total, &trial)
		switch {
		case err == nil:
		case errors.Is(err, survey.ErrAlreadyAnswered):
			// answered over HTTP while the runner was waiting
			slog.Debug("runner skipping answered trial", "session_id", id, "question_id", trial.ID)
		case errors.Is(err, survey.ErrSessionCompleted):
			break trials
		default:
			slog.Info("runner websocket disconnected", "session_id", id)
			return
		}
	}

	result, err := s.surveys.Result(ctx, id)
	if err != nil {
		slog.Error("failed to get result", "error", err, "session_id", id)
		s.sendRunnerError(conn, "failed to score session")
		return
	}

	s.sendRunnerMessage(conn, RunnerMessage{Type: msgResult, Result: result})
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "survey complete"),
		time.Now().Add(time.Second))

	slog.Info("runner websocket finished", "session_id", id)
}

// runTrial sends one trial and waits until the client answers it. It returns
// the submit error when the answer was refused, or the connection error when
// the client is gone.
func (s *Server) runTrial(ctx context.Context, conn *websocket.Conn, id string, index, total int, trial *models.Trial) error {
	prompt := RunnerMessage{
		Type:       msgTrial,
		Index:      index,
		Total:      total,
		Trial:      trial,
		LeftImage:  trial.ImagePath(models.SideLeft),
		RightImage: trial.ImagePath(models.SideRight),
	}
	if err := s.sendRunnerMessage(conn, prompt); err != nil {
		return err
	}

	for {
		conn.SetReadDeadline(time.Now().Add(runnerIdleTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket read error", "error", err)
			}
			return err
		}

		var msg RunnerMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != msgAnswer || msg.Answer == nil {
			s.sendRunnerError(conn, "expected an answer message")
			continue
		}

		if msg.Answer.QuestionID == 0 {
			msg.Answer.QuestionID = trial.ID
		}
		if msg.Answer.QuestionID != trial.ID {
			s.sendRunnerError(conn, "answer does not match the current trial")
			continue
		}
		if err := s.validate.Struct(msg.Answer); err != nil {
			s.sendRunnerError(conn, validationMessage(err))
			continue
		}

		progress, err := s.surveys.SubmitAnswer(ctx, id, msg.Answer.QuestionID, msg.Answer.UserAnswer, msg.Answer.ResponseTimeMs)
		if err != nil {
			s.sendRunnerError(conn, err.Error())
			return err
		}

		return s.sendRunnerMessage(conn, RunnerMessage{Type: msgProgress, Progress: progress})
	}
}

func (s *Server) sendRunnerMessage(conn *websocket.Conn, msg RunnerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to marshal runner message", "error", err)
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(runnerWriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("failed to send runner message", "error", err)
		return err
	}
	return nil
}

func (s *Server) sendRunnerError(conn *websocket.Conn, message string) {
	s.sendRunnerMessage(conn, RunnerMessage{
		Type:  msgError,
		Error: message,
	})
}
