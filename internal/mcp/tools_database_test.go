package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/nerrad567/homeworks-core/internal/database"
)

// fakeCatalogue serves a fixed fixture and records search queries.
type fakeCatalogue struct {
	areas      []database.Area
	outputs    []database.Output
	lastQuery  string
	refreshErr error
	refreshed  int
}

func (f *fakeCatalogue) Areas() []database.Area { return f.areas }

func (f *fakeCatalogue) AreaByIID(iid int) (database.Area, bool) {
	for _, a := range f.areas {
		if a.IID == iid {
			return a, true
		}
	}
	return database.Area{}, false
}

func (f *fakeCatalogue) Outputs() []database.Output { return f.outputs }

func (f *fakeCatalogue) OutputByIID(iid int) (database.Output, bool) {
	for _, o := range f.outputs {
		if o.IID == iid {
			return o, true
		}
	}
	return database.Output{}, false
}

func (f *fakeCatalogue) OutputsByType(outputType string) []database.Output {
	var matched []database.Output
	for _, o := range f.outputs {
		if strings.EqualFold(o.OutputType, outputType) {
			matched = append(matched, o)
		}
	}
	return matched
}

func (f *fakeCatalogue) OutputTypes() []string { return []string{"INC", "SYSTEM_SHADE"} }

func (f *fakeCatalogue) FindAreas(query string) ([]database.Area, error) {
	f.lastQuery = query
	return f.areas, nil
}

func (f *fakeCatalogue) FindOutputs(query string) ([]database.Output, error) {
	f.lastQuery = query
	return f.outputs, nil
}

func (f *fakeCatalogue) FindOutputsByType(outputType, query string) ([]database.Output, error) {
	f.lastQuery = outputType + ":" + query
	return f.OutputsByType(outputType), nil
}

func (f *fakeCatalogue) Refresh(_ context.Context) error {
	f.refreshed++
	return f.refreshErr
}

func testCatalogue() *fakeCatalogue {
	return &fakeCatalogue{
		areas: []database.Area{
			{IID: 3, Name: "Kitchen", Path: "House / First Floor / Kitchen"},
		},
		outputs: []database.Output{
			{IID: 7, OutputType: "INC", Name: "Pendants", Path: "House / First Floor / Kitchen / Pendants"},
			{IID: 8, OutputType: "SYSTEM_SHADE", Name: "Blind", Path: "House / First Floor / Kitchen / Blind"},
		},
	}
}

func databaseRegistry(db Catalogue) *ToolRegistry {
	r := NewToolRegistry()
	RegisterDatabaseTools(r, db)
	return r
}

func TestRegisterDatabaseTools_Catalogue(t *testing.T) {
	r := databaseRegistry(testCatalogue())

	wantTools := []string{
		"get_areas", "get_outputs", "get_output_by_iid", "get_output_types",
		"get_outputs_by_subtype", "find_areas_by_name", "find_outputs_by_name",
		"find_outputs_by_subtype", "refresh_device_database",
	}
	for _, name := range wantTools {
		if !r.Has(name) {
			t.Errorf("missing tool %q", name)
		}
	}
}

func TestDatabaseTools_GetOutputByIID(t *testing.T) {
	r := databaseRegistry(testCatalogue())

	result, err := r.Call(context.Background(), "get_output_by_iid", json.RawMessage(`{"iid":7}`))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}

	out, ok := result.(database.Output)
	if !ok {
		t.Fatalf("result type = %T, want database.Output", result)
	}
	if out.Name != "Pendants" {
		t.Errorf("name = %q, want Pendants", out.Name)
	}
}

func TestDatabaseTools_GetOutputByIID_Missing(t *testing.T) {
	r := databaseRegistry(testCatalogue())

	_, err := r.Call(context.Background(), "get_output_by_iid", json.RawMessage(`{"iid":99}`))
	if err == nil || !strings.Contains(err.Error(), "no output with iid 99") {
		t.Errorf("error = %v, want no output with iid 99", err)
	}
}

func TestDatabaseTools_FindOutputsPassesQuery(t *testing.T) {
	db := testCatalogue()
	r := databaseRegistry(db)

	if _, err := r.Call(context.Background(), "find_outputs_by_name",
		json.RawMessage(`{"name":"kitchen lamp"}`)); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if db.lastQuery != "kitchen lamp" {
		t.Errorf("query = %q, want kitchen lamp", db.lastQuery)
	}
}

func TestDatabaseTools_SubtypeRequired(t *testing.T) {
	r := databaseRegistry(testCatalogue())

	for _, tool := range []string{"get_outputs_by_subtype", "find_outputs_by_subtype"} {
		if _, err := r.Call(context.Background(), tool, json.RawMessage(`{}`)); err == nil {
			t.Errorf("%s: expected error for missing subtype", tool)
		}
	}
}

func TestDatabaseTools_GetOutputsBySubtype(t *testing.T) {
	r := databaseRegistry(testCatalogue())

	result, err := r.Call(context.Background(), "get_outputs_by_subtype",
		json.RawMessage(`{"subtype":"inc"}`))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}

	outputs := result.([]database.Output)
	if len(outputs) != 1 || outputs[0].IID != 7 {
		t.Errorf("outputs = %v, want [IID 7]", outputs)
	}
}

func TestDatabaseTools_Refresh(t *testing.T) {
	db := testCatalogue()
	r := databaseRegistry(db)

	result, err := r.Call(context.Background(), "refresh_device_database", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result != "refreshed" {
		t.Errorf("result = %v, want refreshed", result)
	}
	if db.refreshed != 1 {
		t.Errorf("refresh count = %d, want 1", db.refreshed)
	}
}

func TestDatabaseTools_RefreshFailure(t *testing.T) {
	db := testCatalogue()
	db.refreshErr = errors.New("export unreachable")
	r := databaseRegistry(db)

	if _, err := r.Call(context.Background(), "refresh_device_database", nil); err == nil {
		t.Error("expected refresh error to propagate")
	}
}
