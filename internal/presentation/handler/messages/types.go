package messages

import "github.com/ikoral/burnbox/internal/domain"

type createMessageRequest struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

type listMessagesResponse struct {
	Messages []domain.Message `json:"messages"`
}
