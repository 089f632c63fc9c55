package domain

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MaxMessageRunes bounds the length of a chat message.
const MaxMessageRunes = 1000

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateChatRequest trims and checks a chat request. The returned request is
// the normalized one the pipeline should use.
func ValidateChatRequest(req ChatRequest) (ChatRequest, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	req.Message = strings.TrimSpace(req.Message)

	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) || len(verrs) == 0 {
			return req, NewValidationError("request", "", ErrInvalidRequest)
		}
		fe := verrs[0]
		switch fe.Field() {
		case "user_id":
			if fe.Tag() == "required" {
				return req, NewValidationError("user_id", req.UserID, ErrUserIDRequired)
			}
			return req, NewValidationError("user_id", req.UserID, ErrInvalidRequest)
		case "message":
			return req, NewValidationError("message", req.Message, ErrMessageRequired)
		default:
			return req, NewValidationError(fe.Field(), "", ErrInvalidRequest)
		}
	}

	if n := len([]rune(req.Message)); n > MaxMessageRunes {
		return req, NewValidationError("message", truncate(req.Message, 32), ErrMessageTooLong)
	}
	return req, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
