package llm

import (
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"

	"github.com/nikhilbhutani/pdfchat/internal/apperr"
)

func genericUpstream(status int) string {
	return fmt.Sprintf("upstream service returned status %d", status)
}

// classifyOpenAI maps go-openai errors onto the upstream/transport split.
// A parsed error payload keeps the provider's message.
func classifyOpenAI(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = genericUpstream(apiErr.HTTPStatusCode)
		}
		return &apperr.Error{Kind: apperr.KindUpstream, Op: op, Message: msg, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &apperr.Error{Kind: apperr.KindUpstream, Op: op, Message: genericUpstream(reqErr.HTTPStatusCode), Err: err}
	}
	return &apperr.Error{Kind: apperr.KindTransport, Op: op, Message: err.Error(), Err: err}
}

func classifyAnthropic(op string, err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &apperr.Error{Kind: apperr.KindUpstream, Op: op, Message: genericUpstream(apiErr.StatusCode), Err: err}
	}
	return &apperr.Error{Kind: apperr.KindTransport, Op: op, Message: err.Error(), Err: err}
}
