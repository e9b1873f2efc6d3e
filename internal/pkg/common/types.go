package common

import (
	"time"
)

// APIVersion 回應 metadata 中的版本
const APIVersion = "1.0.0"

// ResponseMetadata 回應附加資訊
type ResponseMetadata struct {
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// BaseResponse 統一回應格式
type BaseResponse struct {
	Success  bool             `json:"success"`
	Data     interface{}      `json:"data,omitempty"`
	Errors   []ErrorDetail    `json:"errors,omitempty"`
	Metadata ResponseMetadata `json:"metadata"`
}

// Pagination 分頁資訊
type Pagination struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
}

// PaginatedResponse 分頁回應格式
type PaginatedResponse struct {
	BaseResponse
	Pagination Pagination `json:"pagination"`
}

// NewPagination 依總數與頁碼計算分頁資訊
func NewPagination(total int64, page, perPage int) Pagination {
	totalPages := 0
	if perPage > 0 {
		totalPages = int((total + int64(perPage) - 1) / int64(perPage))
	}
	return Pagination{
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

func newMetadata(requestID string) ResponseMetadata {
	return ResponseMetadata{
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
		Version:   APIVersion,
	}
}

// NewSuccessResponse 建立成功回應
func NewSuccessResponse(requestID string, data interface{}) BaseResponse {
	return BaseResponse{Success: true, Data: data, Metadata: newMetadata(requestID)}
}

// NewErrorResponse 建立錯誤回應
func NewErrorResponse(requestID string, details ...ErrorDetail) BaseResponse {
	return BaseResponse{Success: false, Errors: details, Metadata: newMetadata(requestID)}
}
