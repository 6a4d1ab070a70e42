package topics

const (
	// Takes
	TakeRecorded = "take_recorded"

	// Grading
	GradeRequests = "grade_requests"
	PropGraded    = "prop_graded"

	// DLQs
	GradeRequestsDLQ = "grade_requests_dlq"
)
