package models

// Activity summarizes recent review activity of a learner
type Activity struct {
	Days          []int   `json:"days"`   // Review counts per day, oldest first, today last
	Levels        []int   `json:"levels"` // Intensity 0-4 per day
	TotalReviews  int     `json:"total_reviews"`
	AveragePerDay float64 `json:"average_per_day"`
	Streak        int     `json:"streak"`   // Consecutive days with reviews ending today
	Progress      float64 `json:"progress"` // Scheduler progress fraction in [0,1]
	Mastered      int     `json:"mastered"` // Cards at or above the progress cap
	Cards         int     `json:"cards"`
	Quizzes       int     `json:"quizzes"` // Finished quizzes, all time
	QuizAccuracy  float64 `json:"quiz_accuracy"`

	LastQuiz *QuizResult `json:"last_quiz,omitempty"`
}
