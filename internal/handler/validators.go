package handler

import (
	"net/url"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	registerOnce sync.Once
	validate     = validator.New()
)

// registerValidators 注册自定义校验规则
// urlport: 带协议、主机和端口的 URL，例如 http://localhost:3000/url/abc
func registerValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("urlport", validateURLWithPort)
		}
	})
}

func validateURLWithPort(fl validator.FieldLevel) bool {
	return isURLWithPort(fl.Field().String())
}

func isURLWithPort(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Hostname() != "" && u.Port() != ""
}

// isURL 复用 validator 的 url 规则
func isURL(raw string) bool {
	return validate.Var(raw, "url") == nil
}
