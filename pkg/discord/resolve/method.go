package resolve

import (
	"fmt"
	"strings"
)

// Method selects how option values that reference entities are turned into objects.
type Method int

const (
	// Auto tries Resolve, Fetch, Cache and finally Raw.
	Auto Method = iota
	// Resolve reads the entities embedded in the interaction payload.
	Resolve
	// Fetch asks the REST API.
	Fetch
	// Cache reads the local entity cache and gateway state.
	Cache
	// Raw returns the id as received.
	Raw
)

func (m Method) String() string {
	switch m {
	case Auto:
		return "auto"
	case Resolve:
		return "resolve"
	case Fetch:
		return "fetch"
	case Cache:
		return "cache"
	case Raw:
		return "raw"
	}
	return fmt.Sprintf("method(%d)", int(m))
}

// ParseMethod parses a method name (case-insensitive). Empty means Auto.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return Auto, nil
	case "resolve":
		return Resolve, nil
	case "fetch":
		return Fetch, nil
	case "cache":
		return Cache, nil
	case "raw":
		return Raw, nil
	}
	return Auto, fmt.Errorf("unknown parse method %q", s)
}
