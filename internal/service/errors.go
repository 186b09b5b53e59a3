// Package service 短链接创建、跳转计数与管理的业务逻辑
package service

import (
	"errors"
	"fmt"
)

// 错误分类，handler 通过 errors.Is 映射为 HTTP 状态码
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrConflict   = errors.New("conflict")
	ErrStore      = errors.New("store failure")
)

// 对外返回的提示信息
const (
	MsgURLNotExist       = "Url does not exist!"
	MsgShortURLNotExist  = "Short Url does not exist!"
	MsgURLDeleted        = "The Url has been deleted!"
	MsgURLAlreadyDeleted = "The Url has already been deleted!"
	MsgLimitReached      = "Access to this URL cannot be granted as the visit request limit has been reached!"
	MsgAliasExists       = "Alias name already exists! Please choose a different Alias name!"
	MsgInvalidURL        = "longUrl must be a valid URL"
	MsgInvalidAlias      = "alias may only contain letters, digits, '_' and '-' (max 64 characters)"
	MsgReservedAlias     = "alias name is reserved"
	MsgInvalidLimit      = "requestLimit must not be less than 0"
	MsgStoreFailure      = "Internal server error"
	MsgRequestLimitSet   = "Request Limit set successfully!"
	MsgShortURLDeleted   = "Short Url Deleted successfully!"
)

// ServiceError 携带分类、提示信息和底层错误
type ServiceError struct {
	Kind    error
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 同时暴露分类和底层错误
func (e *ServiceError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newError(kind error, message string, err error) *ServiceError {
	return &ServiceError{Kind: kind, Message: message, Err: err}
}

func validationError(message string) error { return newError(ErrValidation, message, nil) }
func notFoundError(message string) error { return newError(ErrNotFound, message, nil) }
func storeError(err error) error { return newError(ErrStore, MsgStoreFailure, err) }

// Message 返回可以展示给调用方的提示信息
func Message(err error) string {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Message
	}
	return MsgStoreFailure
}
