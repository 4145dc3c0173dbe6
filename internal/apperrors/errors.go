package apperrors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Kind 错误类别，决定 HTTP 状态码
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthenticated
	KindAuthorization
	KindNotFound
	KindConflict
	KindStore
	// KindCredentials 登录/注册凭据错误，沿用前端约定返回 403
	KindCredentials
	KindTooManyRequests
)

var kindStatusMap = map[Kind]int{
	KindInternal:        http.StatusInternalServerError,
	KindValidation:      http.StatusBadRequest,
	KindUnauthenticated: http.StatusUnauthorized,
	KindAuthorization:   http.StatusForbidden,
	KindNotFound:        http.StatusNotFound,
	KindConflict:        http.StatusConflict,
	KindStore:           http.StatusInternalServerError,
	KindCredentials:     http.StatusForbidden,
	KindTooManyRequests: http.StatusTooManyRequests,
}

type AppError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

func Validation(format string, args ...any) *AppError {
	return New(KindValidation, fmt.Sprintf(format, args...))
}

func Forbidden(message string) *AppError {
	return New(KindAuthorization, message)
}

func NotFound(message string) *AppError {
	return New(KindNotFound, message)
}

func Conflict(message string) *AppError {
	return New(KindConflict, message)
}

func Unauthenticated(message string) *AppError {
	return New(KindUnauthenticated, message)
}

func Credentials(message string) *AppError {
	return New(KindCredentials, message)
}

// Store 包装存储层错误，返回给客户端的是原始错误信息
func Store(err error) *AppError {
	return &AppError{Kind: KindStore, Message: err.Error(), Err: err}
}

// KindOf 非 AppError 一律视为 KindInternal
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is 判断 err 是否属于某个类别
func Is(err error, kind Kind) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Kind == kind
}

// Status 返回 err 对应的 HTTP 状态码
func Status(err error) int {
	if status, ok := kindStatusMap[KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// HandleError 统一处理错误响应，body 固定为 {"error": message}
func HandleError(c *gin.Context, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		c.AbortWithStatusJSON(Status(appErr), gin.H{"error": appErr.Message})
		return
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
