package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
)

type fixture struct {
	server *httptest.Server
	clock  *fakeClock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}

	store := memory.NewStore()
	store.PutUser(domain.User{ID: "teacher-1", Role: domain.RoleTeacher})
	store.PutUser(domain.User{ID: "student-1", Role: domain.RoleStudent})
	store.PutQuiz(domain.Quiz{
		ID:      "quiz-1",
		Title:   "Capitals",
		Status:  domain.QuizActive,
		OwnerID: "teacher-1",
		Questions: []domain.Question{
			{ID: "q1", Text: "Capital of France?", Answers: []domain.Answer{
				{ID: "q1-a", Text: "Paris", IsCorrect: true},
				{ID: "q1-b", Text: "Lyon"},
			}},
			{ID: "q2", Text: "Capital of Italy?", Answers: []domain.Answer{
				{ID: "q2-a", Text: "Milan"},
				{ID: "q2-b", Text: "Rome", IsCorrect: true},
			}},
		},
	})

	hub := app.NewEventHub()
	opts := app.Options{Clock: clock.Now, Events: hub}
	quizzes := memory.NewQuizCache(store, time.Minute)
	sessions := app.NewSessionService(store, quizzes, store, opts)
	attempts := app.NewAttemptService(store, quizzes, store, store, sessions, opts)

	server := httptest.NewServer(NewHandler(sessions, attempts, hub, nil, nil, cfg).Router())
	t.Cleanup(server.Close)
	return &fixture{server: server, clock: clock}
}

func (f *fixture) do(t *testing.T, method, path, user string, body any, out any) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestAttemptFlowOverHTTP(t *testing.T) {
	f := newFixture(t, Config{})

	var session domain.QuizSession
	if status := f.do(t, http.MethodPost, "/api/sessions", "teacher-1",
		app.CreateSessionRequest{QuizID: "quiz-1", AccessCode: "ab12cd"}, &session); status != http.StatusCreated {
		t.Fatalf("create session status %d", status)
	}
	if session.AccessCode != "AB12CD" || session.Status != domain.SessionActive {
		t.Fatalf("unexpected session %+v", session)
	}

	var valid map[string]bool
	f.do(t, http.MethodGet, "/api/sessions/validate?accessCode=AB12CD", "student-1", nil, &valid)
	if !valid["valid"] {
		t.Fatalf("expected access code to be valid")
	}

	var view domain.AttemptView
	if status := f.do(t, http.MethodPost, "/api/attempts", "student-1",
		map[string]string{"quizId": "quiz-1", "accessCode": "AB12CD"}, &view); status != http.StatusCreated {
		t.Fatalf("start attempt status %d", status)
	}
	if view.SessionID != session.ID || len(view.Questions) != 2 {
		t.Fatalf("unexpected attempt view %+v", view)
	}

	var resumed domain.AttemptView
	if status := f.do(t, http.MethodPost, "/api/attempts", "student-1",
		map[string]string{"quizId": "quiz-1", "accessCode": "AB12CD"}, &resumed); status != http.StatusOK {
		t.Fatalf("resume attempt status %d", status)
	}
	if resumed.ID != view.ID {
		t.Fatalf("expected resume of %s, got %s", view.ID, resumed.ID)
	}

	var raw map[string]any
	for _, answer := range []app.AnswerSubmission{{QuestionID: "q1", AnswerID: "q1-a"}, {QuestionID: "q2", AnswerID: "q2-a"}} {
		if status := f.do(t, http.MethodPost, "/api/attempts/"+view.ID+"/responses", "student-1", answer, &raw); status != http.StatusOK {
			t.Fatalf("answer status %d", status)
		}
		if _, leaked := raw["isCorrect"]; leaked {
			t.Fatalf("answer response must not reveal correctness: %v", raw)
		}
	}

	var submitted domain.QuizAttempt
	if status := f.do(t, http.MethodPost, "/api/attempts/"+view.ID+"/submit", "student-1",
		map[string]int{"totalTimeSeconds": 42}, &submitted); status != http.StatusOK {
		t.Fatalf("submit status %d", status)
	}
	if submitted.Status != domain.AttemptSubmitted || submitted.Score != 50 {
		t.Fatalf("unexpected submitted attempt %+v", submitted)
	}

	var result domain.AttemptResult
	f.do(t, http.MethodGet, "/api/attempts/"+view.ID+"/results", "student-1", nil, &result)
	if result.Status != domain.AttemptGraded || result.CorrectAnswers != 1 || result.TotalQuestions != 2 {
		t.Fatalf("unexpected result %+v", result)
	}

	var completed []domain.AttemptResult
	f.do(t, http.MethodGet, "/api/attempts/completed", "student-1", nil, &completed)
	if len(completed) != 1 || completed[0].AttemptID != view.ID {
		t.Fatalf("unexpected completed list %+v", completed)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	f := newFixture(t, Config{})

	if status := f.do(t, http.MethodGet, "/api/attempts/in-progress", "", nil, nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without caller, got %d", status)
	}
	if status := f.do(t, http.MethodGet, "/api/attempts/nope", "student-1", nil, nil); status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown attempt, got %d", status)
	}
	if status := f.do(t, http.MethodGet, "/api/sessions/code/!!", "student-1", nil, nil); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed code, got %d", status)
	}

	f.do(t, http.MethodPost, "/api/sessions", "teacher-1", app.CreateSessionRequest{QuizID: "quiz-1", DurationMinutes: 1, AccessCode: "AB12CD"}, nil)
	if status := f.do(t, http.MethodPost, "/api/sessions", "teacher-1", app.CreateSessionRequest{QuizID: "quiz-1"}, nil); status != http.StatusConflict {
		t.Fatalf("expected 409 for second live session, got %d", status)
	}

	var view domain.AttemptView
	f.do(t, http.MethodPost, "/api/attempts", "student-1", map[string]string{"quizId": "quiz-1", "accessCode": "AB12CD"}, &view)
	f.clock.Advance(90 * time.Second)
	if status := f.do(t, http.MethodPost, "/api/attempts/"+view.ID+"/submit", "student-1", map[string]int{"totalTimeSeconds": 90}, nil); status != http.StatusGone {
		t.Fatalf("expected 410 for expired session, got %d", status)
	}
	if status := f.do(t, http.MethodGet, "/api/attempts/"+view.ID+"/results", "student-1", nil, nil); status != http.StatusConflict {
		t.Fatalf("expected 409 for results of abandoned attempt, got %d", status)
	}
}

func TestAccessCodeLookupsAreRateLimited(t *testing.T) {
	f := newFixture(t, Config{AccessCodeRPS: 0.001, AccessCodeBurst: 2})

	for i := 0; i < 2; i++ {
		if status := f.do(t, http.MethodGet, "/api/sessions/validate?accessCode=ZZZZ", "student-1", nil, nil); status != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, status)
		}
	}
	if status := f.do(t, http.MethodGet, "/api/sessions/validate?accessCode=ZZZZ", "student-1", nil, nil); status != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once the burst is spent, got %d", status)
	}
	if status := f.do(t, http.MethodGet, "/api/attempts/in-progress", "student-1", nil, nil); status != http.StatusOK {
		t.Fatalf("other routes are not limited, got %d", status)
	}
}

func TestSessionFeedStreamsEvents(t *testing.T) {
	f := newFixture(t, Config{})

	var session domain.QuizSession
	f.do(t, http.MethodPost, "/api/sessions", "teacher-1", app.CreateSessionRequest{QuizID: "quiz-1", AccessCode: "AB12CD"}, &session)

	u := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/sessions/" + session.ID + "?userId=teacher-1"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if typ, _ := readNext(t, conn); typ != "session" {
		t.Fatalf("expected session snapshot first, got %s", typ)
	}

	var view domain.AttemptView
	f.do(t, http.MethodPost, "/api/attempts", "student-1", map[string]string{"quizId": "quiz-1", "accessCode": "AB12CD"}, &view)

	typ, payload := readNext(t, conn)
	if typ != string(domain.EventAttemptStarted) {
		t.Fatalf("expected attempt_started, got %s", typ)
	}
	if payload["attemptId"] != view.ID || payload["studentId"] != "student-1" {
		t.Fatalf("unexpected event payload %v", payload)
	}
}

func TestSessionFeedRejectsOtherUsers(t *testing.T) {
	f := newFixture(t, Config{})

	var session domain.QuizSession
	f.do(t, http.MethodPost, "/api/sessions", "teacher-1", app.CreateSessionRequest{QuizID: "quiz-1"}, &session)

	u := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/sessions/" + session.ID + "?userId=student-1"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 handshake response, got %+v", resp)
	}
}

func readNext(t *testing.T, conn *websocket.Conn) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	return msg.Type, msg.Payload
}
