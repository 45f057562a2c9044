package attendance

import (
	"regexp"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/rollcall/core"
)

var (
	deviceIDTag   = "deviceid"
	deviceIDText  = "invalid device identifier"
	deviceIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{16,128}$`)
)

// InitValidators registers the attendance validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(deviceIDTag, deviceIDValidation)
	core.RegisterCustomTranslation(validate, translator, deviceIDTag, deviceIDText)
}

// ValidDeviceID reports whether `id` may identify an attendee device.
func ValidDeviceID(id string) bool {
	return deviceIDRegex.MatchString(id)
}

func deviceIDValidation(fl validator.FieldLevel) bool {
	return ValidDeviceID(fl.Field().String())
}
