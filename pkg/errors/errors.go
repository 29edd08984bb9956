// Package errors 提供帶錯誤碼的應用程式錯誤
//
// 錯誤分類：
//   - INVALID_INPUT：同步拒絕的請求（未知計數欄位、缺少地理參數）
//   - SERVICE_UNAVAILABLE：快取、資料庫或協作服務無法連線
//   - INTERNAL_ERROR：其他錯誤
package errors

import (
	"errors"
	"fmt"
)

// 錯誤碼
const (
	// ErrCodeInvalidInput 無效輸入
	ErrCodeInvalidInput = "INVALID_INPUT"
	// ErrCodeNotFound 資源未找到
	ErrCodeNotFound = "NOT_FOUND"
	// ErrCodeUnavailable 依賴服務不可用
	ErrCodeUnavailable = "SERVICE_UNAVAILABLE"
	// ErrCodeInternal 內部錯誤
	ErrCodeInternal = "INTERNAL_ERROR"
)

// AppError 應用程式錯誤
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Err     error  `json:"-"`
}

// Error 實現 error 介面
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 實現 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 以錯誤碼與訊息比對預定義錯誤
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// New 創建新的應用程式錯誤
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包裝錯誤
func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Invalid 建立 INVALID_INPUT 錯誤
func Invalid(format string, args ...any) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf(format, args...))
}

// Unavailable 包裝依賴不可用錯誤
func Unavailable(err error, message string) *AppError {
	return Wrap(err, ErrCodeUnavailable, message)
}

// WithDetails 回傳附帶詳細資訊的副本，預定義錯誤不會被修改
func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// WithCause 回傳附帶底層錯誤的副本
func (e *AppError) WithCause(err error) *AppError {
	cp := *e
	cp.Err = err
	return &cp
}

// 預定義錯誤
var (
	// ErrInvalidContentID 內容 ID 必須為正整數
	ErrInvalidContentID = New(ErrCodeInvalidInput, "invalid content id")

	// ErrUnknownField 未知的計數欄位
	ErrUnknownField = New(ErrCodeInvalidInput, "unknown counter field")

	// ErrMissingLocation local 分頁缺少經緯度
	ErrMissingLocation = New(ErrCodeInvalidInput, "lat and lon are required for the local tab")

	// ErrUnknownTab 未知的 feed 分頁
	ErrUnknownTab = New(ErrCodeInvalidInput, "unknown feed tab")

	// ErrViewerRequired follow 分頁需要觀看者
	ErrViewerRequired = New(ErrCodeInvalidInput, "viewer id is required for the follow tab")

	// ErrCacheUnavailable 計數快取不可用
	ErrCacheUnavailable = New(ErrCodeUnavailable, "counter cache unavailable")

	// ErrListingUnavailable 內容列表儲存不可用
	ErrListingUnavailable = New(ErrCodeUnavailable, "content listing store unavailable")
)

// Code 取得錯誤碼，非 AppError 一律視為內部錯誤
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// IsInvalidInput 檢查是否為無效輸入錯誤
func IsInvalidInput(err error) bool {
	return err != nil && Code(err) == ErrCodeInvalidInput
}

// IsUnavailable 檢查是否為依賴不可用錯誤
func IsUnavailable(err error) bool {
	return err != nil && Code(err) == ErrCodeUnavailable
}

// IsNotFound 檢查是否為未找到錯誤
func IsNotFound(err error) bool {
	return err != nil && Code(err) == ErrCodeNotFound
}
