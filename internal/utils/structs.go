package utils

import (
	"reflect"
	"slices"
)

var ColumnTag = "db"

// column is one exported struct field carrying a usable ColumnTag.
type column struct {
	name  string
	index int
}

func columnsOf(input any) (reflect.Value, []column) {
	value := reflect.ValueOf(input)
	if value.Kind() == reflect.Ptr {
		value = value.Elem()
	}

	if value.Kind() != reflect.Struct {
		panic("input must be a pointer to a struct or a struct")
	}

	fields := reflect.VisibleFields(value.Type())
	columns := make([]column, 0, len(fields))

	for _, field := range fields {
		if !field.IsExported() || len(field.Index) != 1 {
			continue
		}

		name := field.Tag.Get(ColumnTag)
		if name == "" || name == "-" {
			continue
		}

		columns = append(columns, column{name: name, index: field.Index[0]})
	}

	return value, columns
}

// StructTagValues returns the column names of input, skipping any listed in
// exclude.
func StructTagValues(input any, exclude ...string) []string {
	_, columns := columnsOf(input)

	result := make([]string, 0, len(columns))
	for _, c := range columns {
		if slices.Contains(exclude, c.name) {
			continue
		}
		result = append(result, c.name)
	}

	return result
}

// StructToMap maps column name to field value for every tagged field of
// input, skipping the columns listed in exclude (serial ids, defaults).
func StructToMap(input any, exclude ...string) map[string]any {
	value, columns := columnsOf(input)

	result := make(map[string]any, len(columns))
	for _, c := range columns {
		if slices.Contains(exclude, c.name) {
			continue
		}
		result[c.name] = value.Field(c.index).Interface()
	}

	return result
}
