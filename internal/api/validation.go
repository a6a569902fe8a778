package api

import (
	"fmt"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"cvbuilder/internal/subscription"
)

var registerOnce sync.Once

// RegisterValidators 在 gin 的 binding 引擎上注册自定义 tag。
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			panic("gin binding engine is not go-playground/validator")
		}
		mustRegister(v, "plantype", func(fl validator.FieldLevel) bool {
			return subscription.PlanType(fl.Field().String()).Valid()
		})
	})
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register validation %q: %v", tag, err))
	}
}
