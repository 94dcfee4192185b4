package mapper

import (
	"errors"
	"fmt"

	"backoffice-service/service/meta"
)

// MappingError a raw record that cannot be normalized; the record is skipped, the batch continues
type MappingError struct {
	Code  string // meta.SyncError* code
	Field string
	Value string
}

func (e *MappingError) Error() string {
	switch e.Code {
	case meta.SyncErrorMissingField:
		return fmt.Sprintf("missing field %q", e.Field)
	case meta.SyncErrorInvalidDate:
		return fmt.Sprintf("invalid date %q in field %q, expected dd-mm-yyyy", e.Value, e.Field)
	case meta.SyncErrorInvalidEnum:
		return fmt.Sprintf("invalid value %q for enum field %q", e.Value, e.Field)
	default:
		return fmt.Sprintf("invalid value %q in field %q", e.Value, e.Field)
	}
}

// MissingField builds a missing_field error
func MissingField(field string) *MappingError {
	return &MappingError{Code: meta.SyncErrorMissingField, Field: field}
}

// InvalidDate builds an invalid_date error
func InvalidDate(field, value string) *MappingError {
	return &MappingError{Code: meta.SyncErrorInvalidDate, Field: field, Value: value}
}

// InvalidEnum builds an invalid_enum error
func InvalidEnum(field, value string) *MappingError {
	return &MappingError{Code: meta.SyncErrorInvalidEnum, Field: field, Value: value}
}

// InvalidValue builds an invalid_value error
func InvalidValue(field, value string) *MappingError {
	return &MappingError{Code: meta.SyncErrorInvalidValue, Field: field, Value: value}
}

// AsMappingError unwraps err into a *MappingError
func AsMappingError(err error) (*MappingError, bool) {
	var me *MappingError
	if errors.As(err, &me) {
		return me, true
	}
	return nil, false
}
