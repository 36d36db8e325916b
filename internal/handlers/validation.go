package handlers

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/burnnote/pkg/errors"
	"github.com/charlesng35/burnnote/pkg/response"
	appValidator "github.com/charlesng35/burnnote/pkg/validator"
)

// bindAndValidate decodes the JSON body into dest and validates it. On failure
// it writes a 400 and returns false.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	return bind(c, dest, false)
}

// bindOptional is bindAndValidate for endpoints whose body may be absent; an
// empty body, chunked or not, leaves dest at its zero value.
func bindOptional[T any](c *gin.Context, dest *T) bool {
	return bind(c, dest, true)
}

func bind(c *gin.Context, dest any, allowEmpty bool) bool {
	if err := c.ShouldBindJSON(dest); err != nil && !(allowEmpty && errors.Is(err, io.EOF)) {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return false
	}
	if err := appValidator.ValidateStruct(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest(validationMessage(err)))
		return false
	}
	return true
}

var ruleMessages = map[string]string{
	"required": "%s is required",
	"email":    "%s must be a valid email address",
	"otpcode":  "%s must be six digits",
	"notblank": "%s must not be blank",
}

var limitMessages = map[string]string{
	"min": "%s must be at least %s characters",
	"max": "%s must be at most %s characters",
}

func validationMessage(err error) string {
	var failures appValidator.ValidationErrors
	if !errors.As(err, &failures) || len(failures) == 0 {
		return "invalid request payload"
	}

	messages := make([]string, 0, len(failures))
	for _, f := range failures {
		field := strings.ToLower(strings.ReplaceAll(f.Field, "_", " "))
		if field == "" {
			field = "field"
		}
		switch {
		case ruleMessages[f.Tag] != "":
			messages = append(messages, fmt.Sprintf(ruleMessages[f.Tag], field))
		case limitMessages[f.Tag] != "":
			messages = append(messages, fmt.Sprintf(limitMessages[f.Tag], field, f.Param))
		case f.Param != "":
			messages = append(messages, fmt.Sprintf("%s failed validation: %s=%s", field, f.Tag, f.Param))
		default:
			messages = append(messages, fmt.Sprintf("%s failed validation: %s", field, f.Tag))
		}
	}
	return strings.Join(messages, "; ")
}

func parseIntQuery(c *gin.Context, key string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(c.Query(key)))
	if err != nil {
		return fallback
	}
	return parsed
}
