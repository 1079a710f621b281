package database

import (
	"fmt"
	"regexp"
	"strings"
)

// Filter is a cleanup rule applied to each entity as the XML export is
// parsed. Installers name things for their programming software, not for
// people ("KIT PEND 1", "Bed 2 Shade"); filters normalise those names so
// search and tool output read sensibly.
type Filter func(Entity) Entity

func applyFilters(e Entity, filters []Filter) Entity {
	for _, f := range filters {
		e = f(e)
	}
	return e
}

// NewFilter builds a filter by name with positional string arguments.
//
// Available filters:
//
//	name_replace <old> <new>        replace a name fragment
//	preserve_number <match>         spell out digits 0-9 in matching names
//	subtype_fix <match> <subtype>   force subtype when the name matches
//	type_suffix <subtype> <suffix>  append a suffix to outputs of a subtype
//	strip_numeric_prefix [match]    drop a leading number from names
//	strip_numeric_suffix [match]    drop a trailing number from names
func NewFilter(name string, args []string) (Filter, error) {
	switch name {
	case "name_replace":
		if len(args) != 2 {
			return nil, fmt.Errorf("database: filter %s wants 2 args, got %d", name, len(args))
		}
		old, repl := args[0], args[1]
		return func(e Entity) Entity {
			e.Name = strings.ReplaceAll(e.Name, old, repl)
			return e
		}, nil

	case "preserve_number":
		if len(args) != 1 {
			return nil, fmt.Errorf("database: filter %s wants 1 arg, got %d", name, len(args))
		}
		match := args[0]
		return func(e Entity) Entity {
			if strings.Contains(e.Name, match) {
				e.Name = digitRe.ReplaceAllStringFunc(e.Name, spellDigit)
			}
			return e
		}, nil

	case "subtype_fix":
		if len(args) != 2 {
			return nil, fmt.Errorf("database: filter %s wants 2 args, got %d", name, len(args))
		}
		match, subtype := args[0], args[1]
		return func(e Entity) Entity {
			if strings.Contains(e.Name, match) {
				e.Subtype = subtype
			}
			return e
		}, nil

	case "type_suffix":
		if len(args) != 2 {
			return nil, fmt.Errorf("database: filter %s wants 2 args, got %d", name, len(args))
		}
		subtype, suffix := args[0], args[1]
		return func(e Entity) Entity {
			if e.Subtype == subtype && !strings.Contains(e.Name, suffix) {
				e.Name = e.Name + " " + suffix
			}
			return e
		}, nil

	case "strip_numeric_prefix":
		match := optionalMatch(args)
		return func(e Entity) Entity {
			if match == "" || strings.Contains(e.Name, match) {
				e.Name = numericPrefixRe.ReplaceAllString(e.Name, "")
			}
			return e
		}, nil

	case "strip_numeric_suffix":
		match := optionalMatch(args)
		return func(e Entity) Entity {
			if match == "" || strings.Contains(e.Name, match) {
				e.Name = numericSuffixRe.ReplaceAllString(e.Name, "")
			}
			return e
		}, nil

	default:
		return nil, fmt.Errorf("database: unknown filter %q", name)
	}
}

// FilterSpec names a filter and its arguments, as configuration
// expresses them.
type FilterSpec struct {
	Name string
	Args []string
}

// BuildFilters turns filter specs from configuration into the filter
// chain, preserving order.
func BuildFilters(specs []FilterSpec) ([]Filter, error) {
	filters := make([]Filter, 0, len(specs))
	for _, spec := range specs {
		f, err := NewFilter(spec.Name, spec.Args)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return filters, nil
}

func optionalMatch(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

var (
	digitRe         = regexp.MustCompile(`\d`)
	numericPrefixRe = regexp.MustCompile(`^\d+ *`)
	numericSuffixRe = regexp.MustCompile(` *\d+$`)
)

var digitWords = map[string]string{
	"0": "Zero", "1": "One", "2": "Two", "3": "Three", "4": "Four",
	"5": "Five", "6": "Six", "7": "Seven", "8": "Eight", "9": "Nine",
}

func spellDigit(d string) string {
	if w, ok := digitWords[d]; ok {
		return w
	}
	return d
}
