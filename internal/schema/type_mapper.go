package schema

import (
	"fmt"

	"github.com/sumfields/sumfields/internal/registry"
)

// TypeMapper maps summary field data types to MySQL column types
type TypeMapper struct{}

// NewTypeMapper creates a new type mapper
func NewTypeMapper() *TypeMapper {
	return &TypeMapper{}
}

// MapType returns the column type for a field
func (tm *TypeMapper) MapType(f *registry.Field) (string, error) {
	switch f.DataType {
	case registry.Money:
		return "DECIMAL(20,2)", nil
	case registry.Int:
		return "INT", nil
	case registry.Date:
		return "DATETIME", nil
	case registry.String:
		if f.TextLength <= 0 {
			return "", fmt.Errorf("String field needs a positive text_length, got %d", f.TextLength)
		}
		if f.TextLength > 16383 {
			return "TEXT", nil
		}
		return fmt.Sprintf("VARCHAR(%d)", f.TextLength), nil
	default:
		return "", fmt.Errorf("unsupported data type: %q", f.DataType)
	}
}
