package validate

import (
	"errors"
	"strings"
	"testing"
	"time"

	"logbook/pkg/types"
)

const maxBytes = 5 << 20

func file(name, contentType string, size int) *types.FileUpload {
	return &types.FileUpload{Name: name, ContentType: contentType, Size: int64(size), Body: make([]byte, size)}
}

func fields(t *testing.T, err error) map[string]string {
	t.Helper()
	if err == nil {
		return nil
	}

	var verr *types.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *types.ValidationError, got %T", err)
	}
	if !errors.Is(err, types.ErrValidation) {
		t.Fatalf("expected error to wrap ErrValidation")
	}
	return verr.Fields
}

func TestCreateEvent(t *testing.T) {
	pdf := types.DocumentUpload{File: file("letter.pdf", "application/pdf", 10), DocumentType: types.DocTypeAssignmentLetter}

	tests := []struct {
		name  string
		in    types.CreateEventInput
		field string
	}{
		{"valid", types.CreateEventInput{Name: "Konser Amal", Document: pdf}, ""},
		{"short name", types.CreateEventInput{Name: "  ab ", Document: pdf}, "name"},
		{"no document", types.CreateEventInput{Name: "Konser"}, "document"},
		{"image document", types.CreateEventInput{Name: "Konser", Document: types.DocumentUpload{File: file("a.png", "image/png", 10)}}, "document"},
		{"oversized", types.CreateEventInput{Name: "Konser", Document: types.DocumentUpload{File: file("a.pdf", "application/pdf", maxBytes+1)}}, "document"},
		{"empty file", types.CreateEventInput{Name: "Konser", Document: types.DocumentUpload{File: file("a.pdf", "application/pdf", 0)}}, "document"},
		{"content type params", types.CreateEventInput{Name: "Konser", Document: types.DocumentUpload{File: file("a.txt", "Text/Plain; charset=utf-8", 4)}}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fields(t, CreateEvent(tt.in, maxBytes))
			if tt.field == "" {
				if got != nil {
					t.Fatalf("expected no errors, got %v", got)
				}
				return
			}
			if _, ok := got[tt.field]; !ok {
				t.Fatalf("expected error on %s, got %v", tt.field, got)
			}
		})
	}
}

func TestUpdateEvent(t *testing.T) {
	name := "ok"
	if _, ok := fields(t, UpdateEvent(types.UpdateEventInput{Name: &name}, maxBytes))["name"]; !ok {
		t.Error("expected short rename to fail")
	}

	if got := fields(t, UpdateEvent(types.UpdateEventInput{}, maxBytes)); got == nil {
		t.Error("expected empty update to fail")
	}

	name = "Pentas Seni"
	if err := UpdateEvent(types.UpdateEventInput{Name: &name}, maxBytes); err != nil {
		t.Errorf("expected rename to pass, got %v", err)
	}
}

func TestAddTool(t *testing.T) {
	valid := types.AddToolInput{
		Name:             "Mic",
		Category:         "audio",
		Total:            2,
		InitialCondition: types.ConditionGood,
		Images: types.ImageSetUpload{
			ImageType: types.ImageTypeInitial,
			Files:     []*types.FileUpload{file("mic.jpg", "image/jpeg", 100)},
		},
	}
	if err := AddTool(valid, maxBytes); err != nil {
		t.Fatalf("expected valid tool, got %v", err)
	}

	bad := valid
	bad.Name = " "
	bad.Total = 0
	bad.Images = types.ImageSetUpload{ImageType: types.ImageTypeInitial}
	got := fields(t, AddTool(bad, maxBytes))
	for _, field := range []string{"name", "total", "images"} {
		if _, ok := got[field]; !ok {
			t.Errorf("expected error on %s, got %v", field, got)
		}
	}

	if msg := got["name"]; msg != "Tool name is required." {
		t.Errorf("blank name message = %q", msg)
	}
	if msg := got["total"]; msg != "Total must be at least 1." {
		t.Errorf("total message = %q", msg)
	}

	pdf := valid
	pdf.Images = types.ImageSetUpload{ImageType: types.ImageTypeInitial, Files: []*types.FileUpload{file("a.pdf", "application/pdf", 10)}}
	if _, ok := fields(t, AddTool(pdf, maxBytes))["images"]; !ok {
		t.Error("expected non-image upload to fail")
	}
}

func TestToolPatch(t *testing.T) {
	if err := ToolPatch(&types.ToolPatch{}); err == nil {
		t.Error("expected empty patch to fail")
	}

	zero := 0
	if _, ok := fields(t, ToolPatch(&types.ToolPatch{Total: &zero}))["total"]; !ok {
		t.Error("expected zero total to fail")
	}

	notes := ""
	if err := ToolPatch(&types.ToolPatch{Notes: &notes}); err != nil {
		t.Errorf("clearing notes should pass, got %v", err)
	}

	blank := "   "
	long := strings.Repeat("a", MaxNameLength+1)
	got := fields(t, ToolPatch(&types.ToolPatch{Name: &long, Category: &blank, FinalCondition: &blank}))
	want := map[string]string{
		"name":           "Tool name must be at most 255 characters.",
		"category":       "Category is required.",
		"finalCondition": "Final condition is required.",
	}
	for field, msg := range want {
		if got[field] != msg {
			t.Errorf("%s = %q, want %q", field, got[field], msg)
		}
	}
	if len(got) != len(want) {
		t.Errorf("unexpected fields %v", got)
	}
}

func TestEndEvent(t *testing.T) {
	tools := []*types.Tool{
		{ID: 1, Name: "Mic", InitialCondition: types.ConditionGood},
		{ID: 2, Name: "Kabel", InitialCondition: types.ConditionGood},
	}
	photo := types.ImageSetUpload{ImageType: types.ImageTypeFinal, Files: []*types.FileUpload{file("f.jpg", "image/jpeg", 10)}}

	t.Run("all same as initial", func(t *testing.T) {
		err := EndEvent(tools, []types.ToolConditionInput{
			{ToolID: 1, SameAsInitial: true},
			{ToolID: 2, SameAsInitial: true},
		}, maxBytes)
		if err != nil {
			t.Fatalf("expected pass, got %v", err)
		}
	})

	t.Run("missing needs no photo", func(t *testing.T) {
		err := EndEvent(tools, []types.ToolConditionInput{
			{ToolID: 1, FinalCondition: "Missing"},
			{ToolID: 2, FinalCondition: types.ConditionDamaged, FinalImages: photo},
		}, maxBytes)
		if err != nil {
			t.Fatalf("expected pass, got %v", err)
		}
	})

	t.Run("damaged without photo", func(t *testing.T) {
		got := fields(t, EndEvent(tools, []types.ToolConditionInput{
			{ToolID: 1, SameAsInitial: true},
			{ToolID: 2, FinalCondition: types.ConditionDamaged},
		}, maxBytes))
		if _, ok := got["toolConditions[1].finalImages"]; !ok {
			t.Fatalf("expected photo error, got %v", got)
		}
	})

	t.Run("blank condition", func(t *testing.T) {
		got := fields(t, EndEvent(tools, []types.ToolConditionInput{
			{ToolID: 1, SameAsInitial: true},
			{ToolID: 2, FinalCondition: "  ", FinalImages: photo},
		}, maxBytes))
		if _, ok := got["toolConditions[1].finalCondition"]; !ok {
			t.Fatalf("expected condition error, got %v", got)
		}
	})

	t.Run("unknown duplicate and uncovered", func(t *testing.T) {
		got := fields(t, EndEvent(tools, []types.ToolConditionInput{
			{ToolID: 1, SameAsInitial: true},
			{ToolID: 1, SameAsInitial: true},
			{ToolID: 99, SameAsInitial: true},
		}, maxBytes))
		for _, field := range []string{"toolConditions[1].toolId", "toolConditions[2].toolId", "tools[2]"} {
			if _, ok := got[field]; !ok {
				t.Errorf("expected error on %s, got %v", field, got)
			}
		}
	})

	t.Run("no tools no conditions", func(t *testing.T) {
		if err := EndEvent(nil, nil, maxBytes); err != nil {
			t.Fatalf("expected pass, got %v", err)
		}
	})

	t.Run("tools but no conditions", func(t *testing.T) {
		if err := EndEvent(tools, nil, maxBytes); err == nil {
			t.Fatal("expected failure")
		}
	})
}

func TestFinalConditionUpdates(t *testing.T) {
	err := FinalConditionUpdates([]types.FinalConditionUpdate{
		{ToolID: 1, FinalCondition: types.ConditionGood},
		{ToolID: 0, FinalCondition: ""},
	})
	got := fields(t, err)
	if len(got) != 2 {
		t.Fatalf("expected two field errors, got %v", got)
	}
	if !strings.Contains(err.Error(), "updates[1].toolId") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestReportRange(t *testing.T) {
	from := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if _, ok := fields(t, ReportRange(from, to))["to"]; !ok {
		t.Error("expected reversed range to fail")
	}
	if err := ReportRange(to, from); err != nil {
		t.Errorf("expected valid range, got %v", err)
	}
	if err := ReportRange(from, from); err != nil {
		t.Errorf("expected single day range, got %v", err)
	}
	if got := fields(t, ReportRange(time.Time{}, time.Time{})); len(got) != 2 {
		t.Errorf("expected both dates required, got %v", got)
	}
}
