package blogwatch

import (
	"time"
)

// DateLayout is the format used for published dates and target-date
// comparisons. The listing renders dates in this format, so matching is
// exact string equality.
const DateLayout = "01/02/2006"

// PostRecord represents a single discovered blog post.
type PostRecord struct {
	ID            string   `json:"id,omitempty" dynamodbav:"id"`
	Title         string   `json:"title" dynamodbav:"title"`
	URL           string   `json:"url" dynamodbav:"url"`
	Author        string   `json:"author" dynamodbav:"author"`
	PublishedDate string   `json:"date" dynamodbav:"date"`
	Description   string   `json:"description,omitempty" dynamodbav:"description,omitempty"`
	Category      []string `json:"category,omitempty" dynamodbav:"category,omitempty"`
	Summary       string   `json:"summary,omitempty" dynamodbav:"summary,omitempty"`
	Processed     bool     `json:"processed,omitempty" dynamodbav:"processed,omitempty"`
}

// CategoryAssignment records the set of categories assigned during one
// categorization run. Assignments are appended to the history, never merged
// into an earlier record for the same date.
type CategoryAssignment struct {
	ID         string   `json:"id" dynamodbav:"id"`
	Date       string   `json:"date" dynamodbav:"date"`
	Categories []string `json:"categories" dynamodbav:"categories"`
}

// PreviousDate returns the day before now, formatted with DateLayout. It is
// the default target date when an invocation omits one.
func PreviousDate(now time.Time) string {
	return now.AddDate(0, 0, -1).Format(DateLayout)
}
