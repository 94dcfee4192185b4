package mapper

import (
	"fmt"
	"strings"
	"time"

	"backoffice-service/service/meta"
	"backoffice-service/service/models"
	"backoffice-service/service/utils"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// fieldReader reads typed values out of a raw payload. Keys are matched
// ignoring case, underscores and dashes, so dueDate, due_date and DUE-DATE are the same field.
type fieldReader struct {
	values map[string]interface{}
}

func newFieldReader(fields map[string]interface{}) fieldReader {
	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[foldKey(k)] = v
	}
	return fieldReader{values: values}
}

func foldKey(k string) string {
	k = strings.ToLower(k)
	k = strings.ReplaceAll(k, "_", "")
	return strings.ReplaceAll(k, "-", "")
}

// raw returns the value and whether it is present and non-empty
func (r fieldReader) raw(field string) (interface{}, bool) {
	v, ok := r.values[foldKey(field)]
	if !ok || v == nil {
		return nil, false
	}
	if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
		return nil, false
	}
	return v, true
}

func (r fieldReader) optionalString(field string) (string, error) {
	v, ok := r.raw(field)
	if !ok {
		return "", nil
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", InvalidValue(field, fmt.Sprint(v))
	}
	return strings.TrimSpace(s), nil
}

func (r fieldReader) requiredString(field string) (string, error) {
	if _, ok := r.raw(field); !ok {
		return "", MissingField(field)
	}
	return r.optionalString(field)
}

func (r fieldReader) optionalInt(field string) (int64, error) {
	v, ok := r.raw(field)
	if !ok {
		return 0, nil
	}
	n, err := cast.ToInt64E(v)
	if err != nil {
		return 0, InvalidValue(field, fmt.Sprint(v))
	}
	return n, nil
}

// optionalDate parses a dd-mm-yyyy value
func (r fieldReader) optionalDate(field string) (*models.Date, error) {
	v, ok := r.raw(field)
	if !ok {
		return nil, nil
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return nil, InvalidDate(field, fmt.Sprint(v))
	}
	s = strings.TrimSpace(s)
	t, err := time.Parse(meta.ExternalDateLayout, s)
	if err != nil {
		return nil, InvalidDate(field, s)
	}
	return &models.Date{Time: t}, nil
}

func (r fieldReader) requiredDate(field string) (models.Date, error) {
	if _, ok := r.raw(field); !ok {
		return models.Date{}, MissingField(field)
	}
	d, err := r.optionalDate(field)
	if err != nil {
		return models.Date{}, err
	}
	return *d, nil
}

// requiredEnum folds the value and resolves it through the allowed/alias table
func (r fieldReader) requiredEnum(field string, allowed map[string]string) (string, error) {
	s, err := r.requiredString(field)
	if err != nil {
		return "", err
	}
	canonical, ok := allowed[utils.FoldToken(s)]
	if !ok {
		return "", InvalidEnum(field, s)
	}
	return canonical, nil
}

// requiredDecimal accepts numbers, "1234.56" and the pt-BR form "1.234,56"
func (r fieldReader) requiredDecimal(field string) (decimal.Decimal, error) {
	v, ok := r.raw(field)
	if !ok {
		return decimal.Zero, MissingField(field)
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return decimal.Zero, InvalidValue(field, fmt.Sprint(v))
	}
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "R$"))
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, InvalidValue(field, fmt.Sprint(v))
	}
	return d.Round(2), nil
}
