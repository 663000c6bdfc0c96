package api

import (
	"matri_server/server/comm/domain"
	"matri_server/server/common/transport/httpresp"
)

const ErrUnauthorized = httpresp.ErrUnauthorized

type ErrorResponse = httpresp.ErrorResponse
type OKResponse = httpresp.OKResponse

type HealthResponse struct {
	Status string `json:"status"`
}

type Pagination struct {
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Pages int64 `json:"pages"`
}

type ChatPageResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

type ConversationsResponse struct {
	Conversations []domain.Conversation `json:"conversations"`
}

func NewErrorResponse(message string) ErrorResponse {
	return httpresp.NewErrorResponse(message)
}

func NewOKResponse() OKResponse {
	return httpresp.NewOKResponse()
}

func NewHealthResponse(status string) HealthResponse {
	return HealthResponse{Status: status}
}

func NewChatPageResponse(messages []domain.Message, total int64, page, pageSize int) ChatPageResponse {
	pages := total / int64(pageSize)
	if total%int64(pageSize) != 0 {
		pages++
	}
	return ChatPageResponse{
		Messages:   messages,
		Pagination: Pagination{Total: total, Page: page, Pages: pages},
	}
}

func NewConversationsResponse(conversations []domain.Conversation) ConversationsResponse {
	return ConversationsResponse{Conversations: conversations}
}
