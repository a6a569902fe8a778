package cv

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidDocument 表示文档违反结构约束（子记录 id 为空或重复、枚举越界、超长）。
var ErrInvalidDocument = errors.New("invalid document")

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func documentValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		mustRegister := func(tag string, fn validator.Func) {
			if err := v.RegisterValidation(tag, fn); err != nil {
				panic(fmt.Sprintf("register validation %q: %v", tag, err))
			}
		}
		mustRegister("skilllevel", func(fl validator.FieldLevel) bool {
			value := fl.Field().String()
			return value == "" || SkillLevel(value).Valid()
		})
		mustRegister("languagelevel", func(fl validator.FieldLevel) bool {
			value := fl.Field().String()
			return value == "" || LanguageLevel(value).Valid()
		})
		validate = v
	})
	return validate
}

// Valid 判断技能等级是否在封闭枚举内。
func (l SkillLevel) Valid() bool {
	switch l {
	case SkillBeginner, SkillIntermediate, SkillAdvanced, SkillExpert:
		return true
	}
	return false
}

// Valid 判断语言等级是否在封闭枚举内。
func (l LanguageLevel) Valid() bool {
	switch l {
	case LanguageA1, LanguageA2, LanguageB1, LanguageB2, LanguageC1, LanguageC2, LanguageNative:
		return true
	}
	return false
}

// Validate 在每次写入前执行。返回的错误匹配 ErrInvalidDocument。
func (d Document) Validate() error {
	err := documentValidator().Struct(d)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Document.")
	switch fe.Tag() {
	case "required":
		return field + " must not be empty"
	case "unique":
		return field + " contains duplicate ids"
	case "max":
		return fmt.Sprintf("%s exceeds %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
