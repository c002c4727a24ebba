package app

import "quiz-attempt-service/internal/domain"

// Scorecard is the outcome of scoring an attempt against a quiz's current questions.
type Scorecard struct {
	Total      int
	Correct    int
	Percentage float64
	// Correctness is keyed by question id; unanswered questions are false.
	Correctness map[string]bool
}

// Score computes the percentage of questions answered correctly. The denominator is the full
// question set; an unanswered question counts as incorrect. Responses to questions that are no
// longer part of the quiz are ignored.
func Score(questions []domain.Question, responses []domain.UserResponse) (Scorecard, error) {
	if len(questions) == 0 {
		return Scorecard{}, domain.ErrQuizHasNoQuestions
	}
	byQuestion := indexResponses(responses)

	card := Scorecard{
		Total:       len(questions),
		Correctness: make(map[string]bool, len(questions)),
	}
	for _, q := range questions {
		r, ok := byQuestion[q.ID]
		correct := ok && r.IsCorrect
		card.Correctness[q.ID] = correct
		if correct {
			card.Correct++
		}
	}
	card.Percentage = float64(card.Correct) * 100 / float64(card.Total)
	return card, nil
}

// BuildResults assembles the per-answer selected/correct matrix. The score is the one stored on
// the attempt at submission; nothing is re-scored here.
func BuildResults(quiz domain.Quiz, attempt domain.QuizAttempt, responses []domain.UserResponse) domain.AttemptResult {
	byQuestion := indexResponses(responses)

	result := domain.AttemptResult{
		AttemptID:      attempt.ID,
		QuizID:         quiz.ID,
		QuizTitle:      quiz.Title,
		Status:         attempt.Status,
		Score:          attempt.Score,
		AttemptTime:    attempt.AttemptTime,
		StartedAt:      attempt.StartedAt,
		CompletedAt:    attempt.CompletedAt,
		TotalQuestions: len(quiz.Questions),
		Questions:      make([]domain.QuestionResult, 0, len(quiz.Questions)),
	}
	for _, q := range quiz.Questions {
		r, answered := byQuestion[q.ID]
		qr := domain.QuestionResult{
			ID:        q.ID,
			Text:      q.Text,
			Type:      q.Type,
			IsCorrect: answered && r.IsCorrect,
			Answers:   make([]domain.AnswerResult, 0, len(q.Answers)),
		}
		for _, a := range q.Answers {
			qr.Answers = append(qr.Answers, domain.AnswerResult{
				ID:         a.ID,
				Text:       a.Text,
				IsSelected: answered && r.AnswerID == a.ID,
				IsCorrect:  a.IsCorrect,
			})
		}
		if qr.IsCorrect {
			result.CorrectAnswers++
		}
		result.Questions = append(result.Questions, qr)
	}
	return result
}

func indexResponses(responses []domain.UserResponse) map[string]domain.UserResponse {
	byQuestion := make(map[string]domain.UserResponse, len(responses))
	for _, r := range responses {
		byQuestion[r.QuestionID] = r
	}
	return byQuestion
}
