package xerr

import (
	"errors"
	"fmt"
)

// Kind 错误分类，决定是否重试、是否回滚以及对外的 Code
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindAccessDenied
	KindBlobStore
	KindVectorStore
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindAccessDenied:
		return "access_denied"
	case KindBlobStore:
		return "blob_store"
	case KindVectorStore:
		return "vector_store"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// Infrastructure 基础设施类错误（对象存储、向量库、关系库）
func (k Kind) Infrastructure() bool {
	return k == KindBlobStore || k == KindVectorStore || k == KindPersistence
}

// CodeError 自定义错误结构
type CodeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Kind    Kind   `json:"-"`
	Cause   error  `json:"-"`
}

// Error 实现 error 接口
func (e *CodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("Code: %d, Message: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("Code: %d, Message: %s", e.Code, e.Message)
}

func (e *CodeError) Unwrap() error {
	return e.Cause
}

// New 创建新的 CodeError
func New(code int, msg string) *CodeError {
	return &CodeError{Code: code, Message: msg}
}

// 常用通用错误码
const (
	OK                  = 200
	BadRequest          = 400
	Unauthorized        = 401
	Forbidden           = 403
	NotFound            = 404
	InternalServerError = 500
)

// 常用预定义错误
var (
	ErrSuccess     = New(OK, "Success")
	ErrServerError = New(InternalServerError, "系统错误，请联系工作人员")
	ErrParam       = New(BadRequest, "参数错误")
)

func Validation(msg string) *CodeError {
	return &CodeError{Code: BadRequest, Message: msg, Kind: KindValidation}
}

func Validationf(format string, args ...any) *CodeError {
	return Validation(fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...any) *CodeError {
	return &CodeError{Code: NotFound, Message: fmt.Sprintf(format, args...), Kind: KindNotFound}
}

func AccessDenied(msg string) *CodeError {
	return &CodeError{Code: Forbidden, Message: msg, Kind: KindAccessDenied}
}

func BlobStore(cause error, msg string) *CodeError {
	return &CodeError{Code: InternalServerError, Message: msg, Kind: KindBlobStore, Cause: cause}
}

func VectorStore(cause error, msg string) *CodeError {
	return &CodeError{Code: InternalServerError, Message: msg, Kind: KindVectorStore, Cause: cause}
}

func Persistence(cause error, msg string) *CodeError {
	return &CodeError{Code: InternalServerError, Message: msg, Kind: KindPersistence, Cause: cause}
}

// KindOf 返回错误链上第一个 CodeError 的分类
func KindOf(err error) Kind {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
