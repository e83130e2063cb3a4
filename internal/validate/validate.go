// Package validate checks client input before any storage or database work
// happens. Every function returns a *types.ValidationError carrying one
// message per offending field, or nil.
package validate

import (
	"errors"
	"fmt"
	"mime"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"logbook/pkg/types"

	"github.com/go-playground/validator/v10"
)

const (
	MinEventNameLength = 3
	MaxNameLength      = 255
)

var documentTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   true,
	"application/vnd.ms-excel":                                                  true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         true,
	"application/vnd.ms-powerpoint":                                             true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
	"application/vnd.oasis.opendocument.text":                                   true,
	"application/vnd.oasis.opendocument.spreadsheet":                            true,
	"application/vnd.oasis.opendocument.presentation":                           true,
	"application/rtf":              true,
	"text/plain":                   true,
	"text/csv":                     true,
	"application/zip":              true,
	"application/x-zip-compressed": true,
}

var imageTypes = map[string]bool{
	"image/jpeg":    true,
	"image/jpg":     true,
	"image/png":     true,
	"image/gif":     true,
	"image/webp":    true,
	"image/bmp":     true,
	"image/svg+xml": true,
}

// MediaType lowercases a Content-Type header and drops its parameters.
func MediaType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mediaType
}

func IsDocumentType(contentType string) bool {
	return documentTypes[MediaType(contentType)]
}

func IsImageType(contentType string) bool {
	return imageTypes[MediaType(contentType)]
}

// structs checks the declarative `validate` rules on input types. Field
// names in its errors follow the form tag, then the json tag.
var structs = newStructValidator()

// messages are keyed by "<field>.<rule>".
var messages = map[string]string{
	"name.notblank":             "Tool name is required.",
	"name.max":                  fmt.Sprintf("Tool name must be at most %d characters.", MaxNameLength),
	"category.notblank":         "Category is required.",
	"total.min":                 "Total must be at least 1.",
	"initialCondition.notblank": "Initial condition is required.",
	"finalCondition.notblank":   "Final condition is required.",
	"toolId.gt":                 "Tool id must be positive.",
}

func newStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		for _, key := range []string{"form", "json"} {
			name, _, _ := strings.Cut(field.Tag.Get(key), ",")
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return ""
	})

	// notblank rejects strings that are empty once trimmed.
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		if fl.Field().Kind() != reflect.String {
			return !fl.Field().IsZero()
		}
		return strings.TrimSpace(fl.Field().String()) != ""
	})

	return v
}

func checkStruct(errs *types.ValidationError, prefix string, in any) {
	err := structs.Struct(in)
	if err == nil {
		return
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		errs.Add(prefix+"input", err.Error())
		return
	}

	for _, fe := range fieldErrs {
		msg, ok := messages[fe.Field()+"."+fe.Tag()]
		if !ok {
			msg = fmt.Sprintf("%s is invalid.", fe.Field())
		}
		errs.Add(prefix+fe.Field(), msg)
	}
}

func CreateEvent(in types.CreateEventInput, maxBytes int64) error {
	errs := types.NewValidationError()

	eventName(errs, "name", in.Name)
	document(errs, "document", in.Document, maxBytes)

	return errs.OrNil()
}

// UpdateEvent checks only the fields that are present.
func UpdateEvent(in types.UpdateEventInput, maxBytes int64) error {
	errs := types.NewValidationError()

	if in.Name == nil && in.Document == nil {
		errs.Add("name", "Nothing to update.")
		return errs
	}

	if in.Name != nil {
		eventName(errs, "name", *in.Name)
	}

	if in.Document != nil {
		document(errs, "document", *in.Document, maxBytes)
	}

	return errs.OrNil()
}

func AddTool(in types.AddToolInput, maxBytes int64) error {
	errs := types.NewValidationError()

	checkStruct(errs, "", in)

	if in.Images.ImageType != types.ImageTypeInitial {
		errs.Add("images", "Images must be initial condition photos.")
	}
	if in.Images.Len() == 0 {
		errs.Add("images", "At least one photo is required.")
	}
	images(errs, "images", in.Images.Files, maxBytes)

	return errs.OrNil()
}

func ToolPatch(p *types.ToolPatch) error {
	errs := types.NewValidationError()

	if p == nil || p.Empty() {
		errs.Add("tool", "Nothing to update.")
		return errs
	}

	checkStruct(errs, "", p)

	return errs.OrNil()
}

// EndEvent checks the close-out payload of an event against its tools.
// Every tool needs exactly one entry. An entry that does not carry the
// initial condition over needs a final condition and, unless the tool is
// missing, at least one final photo.
func EndEvent(tools []*types.Tool, conditions []types.ToolConditionInput, maxBytes int64) error {
	errs := types.NewValidationError()

	known := make(map[int64]bool, len(tools))
	for _, tool := range tools {
		known[tool.ID] = true
	}

	seen := make(map[int64]bool, len(conditions))
	for i, c := range conditions {
		prefix := fmt.Sprintf("toolConditions[%d]", i)

		switch {
		case !known[c.ToolID]:
			errs.Add(prefix+".toolId", "Tool does not belong to this event.")
			continue
		case seen[c.ToolID]:
			errs.Add(prefix+".toolId", "Tool is listed more than once.")
			continue
		}
		seen[c.ToolID] = true

		if c.SameAsInitial {
			continue
		}

		condition := strings.TrimSpace(c.FinalCondition)
		if condition == "" {
			errs.Add(prefix+".finalCondition", "Final condition is required.")
			continue
		}

		if c.FinalImages.Len() > 0 && c.FinalImages.ImageType != types.ImageTypeFinal {
			errs.Add(prefix+".finalImages", "Images must be final condition photos.")
		}

		if strings.EqualFold(condition, types.ConditionMissing) {
			images(errs, prefix+".finalImages", c.FinalImages.Files, maxBytes)
			continue
		}

		if c.FinalImages.Len() == 0 {
			errs.Add(prefix+".finalImages", "At least one photo of the final condition is required.")
			continue
		}
		images(errs, prefix+".finalImages", c.FinalImages.Files, maxBytes)
	}

	for _, tool := range tools {
		if !seen[tool.ID] {
			errs.Add(fmt.Sprintf("tools[%d]", tool.ID), fmt.Sprintf("Final condition of %q is missing.", tool.Name))
		}
	}

	return errs.OrNil()
}

// FinalConditionUpdates is the bulk check applied to the rows written when
// an event is closed.
func FinalConditionUpdates(updates []types.FinalConditionUpdate) error {
	errs := types.NewValidationError()

	for i, u := range updates {
		checkStruct(errs, fmt.Sprintf("updates[%d].", i), u)
	}

	return errs.OrNil()
}

func ReportRange(from, to time.Time) error {
	errs := types.NewValidationError()

	if from.IsZero() {
		errs.Add("from", "Start date is required.")
	}
	if to.IsZero() {
		errs.Add("to", "End date is required.")
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		errs.Add("to", "End date must not be before the start date.")
	}

	return errs.OrNil()
}

func eventName(errs *types.ValidationError, field, name string) {
	name = strings.TrimSpace(name)
	switch n := utf8.RuneCountInString(name); {
	case n < MinEventNameLength:
		errs.Add(field, fmt.Sprintf("Event name must be at least %d characters.", MinEventNameLength))
	case n > MaxNameLength:
		errs.Add(field, fmt.Sprintf("Event name must be at most %d characters.", MaxNameLength))
	}
}

func document(errs *types.ValidationError, field string, doc types.DocumentUpload, maxBytes int64) {
	if doc.File == nil {
		errs.Add(field, "An assignment letter is required.")
		return
	}

	if doc.DocumentType != "" && doc.DocumentType != types.DocTypeAssignmentLetter {
		errs.Add(field, "Unknown document type.")
		return
	}

	if !IsDocumentType(doc.File.ContentType) {
		errs.Add(field, "Unsupported document type.")
		return
	}

	fileSize(errs, field, doc.File, maxBytes)
}

func images(errs *types.ValidationError, field string, files []*types.FileUpload, maxBytes int64) {
	for i, file := range files {
		if file == nil {
			errs.Add(field, fmt.Sprintf("Photo %d is empty.", i+1))
			return
		}
		if !IsImageType(file.ContentType) {
			errs.Add(field, fmt.Sprintf("%s is not a supported image.", file.Name))
			return
		}
		fileSize(errs, field, file, maxBytes)
	}
}

func fileSize(errs *types.ValidationError, field string, file *types.FileUpload, maxBytes int64) {
	size := int64(len(file.Body))
	switch {
	case size == 0:
		errs.Add(field, fmt.Sprintf("%s is empty.", file.Name))
	case maxBytes > 0 && size > maxBytes:
		errs.Add(field, fmt.Sprintf("%s exceeds the %d MB limit.", file.Name, maxBytes>>20))
	}
}
