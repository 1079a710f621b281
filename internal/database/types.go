package database

// EntityType classifies an entry in the processor's programming database.
type EntityType string

// Entity types found in the XML export.
const (
	EntityArea   EntityType = "area"
	EntityOutput EntityType = "output"
)

// Entity is one node of the processor's programming database: an area in
// the building hierarchy or a controllable output inside one.
//
// DBID is stable across refreshes: the integration ID when the export
// assigns one, otherwise a hash of the node's position in the tree. IID
// is zero for entities with no integration ID (structural areas that
// cannot be addressed over the wire).
type Entity struct {
	DBID       string
	IID        int
	Name       string
	Type       EntityType
	Subtype    string
	SortOrder  int
	ParentDBID string

	// Path is the slash-joined hierarchy from the root area down to this
	// entity, e.g. "First Floor / Kitchen / Pendant Lights". Searches
	// match against it so "kitchen pendant" finds the output.
	Path string
}

// Area is the tool-facing projection of an area entity.
type Area struct {
	IID  int    `json:"iid"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// Output is the tool-facing projection of an output entity.
type Output struct {
	IID        int    `json:"iid"`
	OutputType string `json:"output_type"`
	Name       string `json:"name"`
	Path       string `json:"path"`
}

func areaFromEntity(e Entity) Area {
	return Area{IID: e.IID, Name: e.Name, Path: e.Path}
}

func outputFromEntity(e Entity) Output {
	return Output{IID: e.IID, OutputType: e.Subtype, Name: e.Name, Path: e.Path}
}

// Logger defines the logging interface for the device database.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
