package registry

import (
	"errors"
	"slices"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/goliatone/go-barangay-registry/repository"
)

// validationFailure converts an ozzo error into a VALIDATION_ERROR. The
// alphabetically first failing field becomes Error.Field and every field's
// message goes to Details.
func validationFailure(err error) *repository.Error {
	if err == nil {
		return nil
	}

	var fields validation.Errors
	if !errors.As(err, &fields) {
		var internal validation.InternalError
		if errors.As(err, &internal) {
			return repository.NewError(repository.CodeUnknown, internal.Error())
		}
		return repository.ValidationError("", err.Error(), nil)
	}

	keys := make([]string, 0, len(fields))
	details := make(map[string]string, len(fields))
	for k, v := range fields {
		keys = append(keys, k)
		details[k] = v.Error()
	}
	slices.Sort(keys)

	first := keys[0]
	return repository.ValidationError(first, first+": "+details[first], details)
}
