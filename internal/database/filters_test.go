package database

import "testing"

func TestNewFilter(t *testing.T) {
	tests := []struct {
		name     string
		filter   string
		args     []string
		entity   Entity
		wantName string
		wantSub  string
	}{
		{
			name:     "name_replace",
			filter:   "name_replace",
			args:     []string{"KIT", "Kitchen"},
			entity:   Entity{Name: "KIT Pendants"},
			wantName: "Kitchen Pendants",
		},
		{
			name:     "preserve_number spells digits",
			filter:   "preserve_number",
			args:     []string{"Bed"},
			entity:   Entity{Name: "Bed 2 Lamp"},
			wantName: "Bed Two Lamp",
		},
		{
			name:     "preserve_number leaves non-matching names",
			filter:   "preserve_number",
			args:     []string{"Bed"},
			entity:   Entity{Name: "Zone 2 Lamp"},
			wantName: "Zone 2 Lamp",
		},
		{
			name:     "subtype_fix",
			filter:   "subtype_fix",
			args:     []string{"Fan", "CEILING_FAN"},
			entity:   Entity{Name: "Bedroom Fan", Subtype: "INC"},
			wantName: "Bedroom Fan",
			wantSub:  "CEILING_FAN",
		},
		{
			name:     "type_suffix appends",
			filter:   "type_suffix",
			args:     []string{"SYSTEM_SHADE", "Shade"},
			entity:   Entity{Name: "Kitchen Window", Subtype: "SYSTEM_SHADE"},
			wantName: "Kitchen Window Shade",
			wantSub:  "SYSTEM_SHADE",
		},
		{
			name:     "type_suffix skips when already present",
			filter:   "type_suffix",
			args:     []string{"SYSTEM_SHADE", "Shade"},
			entity:   Entity{Name: "Window Shade", Subtype: "SYSTEM_SHADE"},
			wantName: "Window Shade",
			wantSub:  "SYSTEM_SHADE",
		},
		{
			name:     "strip_numeric_prefix",
			filter:   "strip_numeric_prefix",
			args:     nil,
			entity:   Entity{Name: "01 Living Room"},
			wantName: "Living Room",
		},
		{
			name:     "strip_numeric_suffix with match",
			filter:   "strip_numeric_suffix",
			args:     []string{"Downlight"},
			entity:   Entity{Name: "Downlight 3"},
			wantName: "Downlight",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFilter(tt.filter, tt.args)
			if err != nil {
				t.Fatalf("NewFilter() error: %v", err)
			}

			got := f(tt.entity)
			if got.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", got.Name, tt.wantName)
			}
			if tt.wantSub != "" && got.Subtype != tt.wantSub {
				t.Errorf("Subtype = %q, want %q", got.Subtype, tt.wantSub)
			}
		})
	}
}

func TestNewFilter_Errors(t *testing.T) {
	if _, err := NewFilter("no_such_filter", nil); err == nil {
		t.Error("NewFilter() accepted an unknown name")
	}
	if _, err := NewFilter("name_replace", []string{"only-one"}); err == nil {
		t.Error("NewFilter() accepted wrong arity")
	}
}

func TestBuildFilters(t *testing.T) {
	filters, err := BuildFilters([]FilterSpec{
		{Name: "name_replace", Args: []string{"KIT", "Kitchen"}},
		{Name: "strip_numeric_suffix", Args: nil},
	})
	if err != nil {
		t.Fatalf("BuildFilters() error: %v", err)
	}

	got := applyFilters(Entity{Name: "KIT Pendants 2"}, filters)
	if got.Name != "Kitchen Pendants" {
		t.Errorf("Name = %q, want %q", got.Name, "Kitchen Pendants")
	}

	if _, err := BuildFilters([]FilterSpec{{Name: "bogus"}}); err == nil {
		t.Error("BuildFilters() accepted an unknown filter")
	}
}
