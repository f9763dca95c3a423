package controllers

import (
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/zaqqye/seb_proctor/internal/models"
)

// BypassCodePattern is advertised to clients for input hints only. Request
// bodies are not checked against it: any code that fails lookup is
// reported as invalid_code.
const BypassCodePattern = `^!?[A-Za-z0-9-]{4,24}$`

var registerValidate sync.Once

// RegisterValidators adds the custom binding tags to gin's validator.
func RegisterValidators() {
	registerValidate.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("incidentkind", func(fl validator.FieldLevel) bool {
			return models.IncidentKind(fl.Field().String()).Valid()
		})
		_ = v.RegisterValidation("codescope", func(fl validator.FieldLevel) bool {
			return models.CodeScope(fl.Field().String()).Valid()
		})
	})
}
