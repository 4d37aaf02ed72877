package handlers

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/rail-service/txengine/internal/domain/entities"
)

var registerOnce sync.Once

// registerValidators adds the currency tag to gin's validator and reports
// fields by their json names
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
			_, err := entities.CurrencyByCode(fl.Field().String())
			return err == nil
		})
	})
}

// respondBindError maps a binding failure to INVALID_CURRENCY when a currency
// code is unknown and INVALID_REQUEST otherwise, listing the failing fields
func respondBindError(c *gin.Context, err error) {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		respondBadRequest(c, ErrCodeInvalidRequest, err.Error())
		return
	}

	code := ErrCodeInvalidRequest
	fields := make(map[string]interface{}, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Tag() == "currency" {
			code = ErrCodeInvalidCurrency
		}
		fields[fieldPath(fe.Namespace())] = fe.Tag()
	}
	respondError(c, http.StatusBadRequest, code, "Request validation failed", map[string]interface{}{"fields": fields})
}

// fieldPath drops the struct name from a validator namespace
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}
