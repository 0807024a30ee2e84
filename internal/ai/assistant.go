// Package ai declares the language-model collaborators of the workflow.
package ai

import "context"

// Turn is one message of the conversation history given to a model.
type Turn struct {
	Inbound bool
	Content string
}

type ReplyRequest struct {
	Language       string
	Intent         string
	JobTitle       string
	JobDescription string
	CandidateName  string
	InboundText    string
	History        []Turn
}

// Replier writes a free-form answer to a candidate question.
type Replier interface {
	Reply(ctx context.Context, req ReplyRequest) (string, error)
}
