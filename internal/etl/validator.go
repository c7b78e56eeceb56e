package etl

import (
	"github.com/BartekS5/salesetl/pkg/models"
	"github.com/BartekS5/salesetl/pkg/utils"
)

// Validator checks that a row carries every field aggregation needs.
type Validator struct {
	Required []string
}

func NewValidator() *Validator {
	return &Validator{Required: models.RequiredColumns}
}

// MissingField returns the first required field the row lacks.
func (v *Validator) MissingField(row models.RawSale) (string, bool) {
	for _, field := range v.Required {
		if utils.IsMissing(row.Values[field]) {
			return field, true
		}
	}
	return "", false
}
