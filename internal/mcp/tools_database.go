package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nerrad567/homeworks-core/internal/database"
)

// Catalogue is the slice of the device database the catalogue tools need.
type Catalogue interface {
	Areas() []database.Area
	AreaByIID(iid int) (database.Area, bool)
	Outputs() []database.Output
	OutputByIID(iid int) (database.Output, bool)
	OutputsByType(outputType string) []database.Output
	OutputTypes() []string
	FindAreas(query string) ([]database.Area, error)
	FindOutputs(query string) ([]database.Output, error)
	FindOutputsByType(outputType, query string) ([]database.Output, error)
	Refresh(ctx context.Context) error
}

// Input schemas for the catalogue tools.
const (
	schemaName = `{"type":"object","properties":{"name":{"type":"string","description":"Words to match against the entity's hierarchy path, in order"}},"required":["name"]}`

	schemaSubtype = `{"type":"object","properties":{"subtype":{"type":"string","description":"Output type, e.g. INC or SYSTEM_SHADE"}},"required":["subtype"]}`

	schemaSubtypeName = `{"type":"object","properties":{"subtype":{"type":"string","description":"Output type, e.g. INC or SYSTEM_SHADE"},"name":{"type":"string","description":"Words to match against the output's hierarchy path, in order"}},"required":["subtype","name"]}`
)

type nameArgs struct {
	Name string `json:"name"`
}

type subtypeArgs struct {
	Subtype string `json:"subtype"`
	Name    string `json:"name"`
}

// RegisterDatabaseTools adds the device catalogue tools to the registry.
// Results come from the in-memory snapshot; refresh_device_database pulls
// the processor's export again.
func RegisterDatabaseTools(r *ToolRegistry, db Catalogue) {
	r.mustRegister(Tool{
		Name:        "get_areas",
		Description: "List every area in the device database with its integration ID and hierarchy path.",
		InputSchema: json.RawMessage(schemaEmpty),
	}, func(_ context.Context, _ json.RawMessage) (any, error) {
		return db.Areas(), nil
	})

	r.mustRegister(Tool{
		Name:        "get_outputs",
		Description: "List every controllable output in the device database.",
		InputSchema: json.RawMessage(schemaEmpty),
	}, func(_ context.Context, _ json.RawMessage) (any, error) {
		return db.Outputs(), nil
	})

	r.mustRegister(Tool{
		Name:        "get_output_by_iid",
		Description: "Look up one output by its integration ID.",
		InputSchema: json.RawMessage(schemaIID),
	}, func(_ context.Context, args json.RawMessage) (any, error) {
		var a iidArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		out, ok := db.OutputByIID(a.IID)
		if !ok {
			return nil, fmt.Errorf("no output with iid %d", a.IID)
		}
		return out, nil
	})

	r.mustRegister(Tool{
		Name:        "get_output_types",
		Description: "List the distinct output types present in the device database.",
		InputSchema: json.RawMessage(schemaEmpty),
	}, func(_ context.Context, _ json.RawMessage) (any, error) {
		return db.OutputTypes(), nil
	})

	r.mustRegister(Tool{
		Name:        "get_outputs_by_subtype",
		Description: "List outputs of one type (case-insensitive).",
		InputSchema: json.RawMessage(schemaSubtype),
	}, func(_ context.Context, args json.RawMessage) (any, error) {
		var a subtypeArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if a.Subtype == "" {
			return nil, errors.New("subtype is required")
		}
		return db.OutputsByType(a.Subtype), nil
	})

	r.mustRegister(Tool{
		Name:        "find_areas_by_name",
		Description: "Search areas by name. Words must appear in the area's hierarchy path in order; configured synonyms are expanded.",
		InputSchema: json.RawMessage(schemaName),
	}, func(_ context.Context, args json.RawMessage) (any, error) {
		var a nameArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return db.FindAreas(a.Name)
	})

	r.mustRegister(Tool{
		Name:        "find_outputs_by_name",
		Description: "Search outputs by name. Words must appear in the output's hierarchy path in order; configured synonyms are expanded.",
		InputSchema: json.RawMessage(schemaName),
	}, func(_ context.Context, args json.RawMessage) (any, error) {
		var a nameArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return db.FindOutputs(a.Name)
	})

	r.mustRegister(Tool{
		Name:        "find_outputs_by_subtype",
		Description: "Search outputs of one type by name words in path order.",
		InputSchema: json.RawMessage(schemaSubtypeName),
	}, func(_ context.Context, args json.RawMessage) (any, error) {
		var a subtypeArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if a.Subtype == "" {
			return nil, errors.New("subtype is required")
		}
		return db.FindOutputsByType(a.Subtype, a.Name)
	})

	r.mustRegister(Tool{
		Name:        "refresh_device_database",
		Description: "Refetch the processor's programming database export and rebuild the catalogue.",
		InputSchema: json.RawMessage(schemaEmpty),
	}, func(ctx context.Context, _ json.RawMessage) (any, error) {
		if err := db.Refresh(ctx); err != nil {
			return nil, err
		}
		return "refreshed", nil
	})
}
