package models

import (
	"fmt"
	"strings"
)

// Chat roles used in completion requests.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// QueryRequest is a question to answer from the indexed corpus.
type QueryRequest struct {
	Question string `json:"question"`
	K        int    `json:"k,omitempty"`
	// DocumentIDs restricts retrieval to these documents when non-empty.
	DocumentIDs []string `json:"document_ids,omitempty"`
	MinScore    float64  `json:"min_score,omitempty"`
}

// Validate trims the question and clamps K into [1, maxK], using defaultK when unset.
func (q *QueryRequest) Validate(defaultK, maxK int) error {
	q.Question = strings.TrimSpace(q.Question)
	if q.Question == "" {
		return fmt.Errorf("%w: question cannot be empty", ErrInvalidInput)
	}
	if q.K <= 0 {
		q.K = defaultK
	}
	if maxK > 0 && q.K > maxK {
		q.K = maxK
	}
	if q.MinScore < -1 || q.MinScore > 1 {
		return fmt.Errorf("%w: min_score must be in [-1, 1]", ErrInvalidInput)
	}
	return nil
}
