package errors

// Template defines a registered error type.
type Template struct {
	Category Category
	Message  string
	Detail   string
}

// registry maps error codes to their templates.
var registry = map[string]Template{
	// Config errors (E100-E199)

	"E100": {
		Category: CategoryConfig,
		Message:  "Invalid configuration file",
		Detail:   "slicestore.json could not be parsed.",
	},
	"E101": {
		Category: CategoryConfig,
		Message:  "Configuration file not found",
	},
	"E102": {
		Category: CategoryConfig,
		Message:  "Invalid environment override",
		Detail:   "A SLICESTORE_* environment variable could not be parsed.",
	},
	"E103": {
		Category: CategoryConfig,
		Message:  "Invalid port",
		Detail:   "The devtools port must be between 0 and 65535.",
	},
	"E104": {
		Category: CategoryConfig,
		Message:  "Unknown storage driver",
		Detail:   "storage.driver must be one of memory, sqlite, postgres, mysql or s3.",
	},
	"E105": {
		Category: CategoryConfig,
		Message:  "Incomplete storage settings",
	},
	"E106": {
		Category: CategoryConfig,
		Message:  "Invalid log setting",
		Detail:   "log.level must be debug, info, warn or error and log.format must be text or json.",
	},
	"E107": {
		Category: CategoryConfig,
		Message:  "Invalid duration",
	},
	"E108": {
		Category: CategoryConfig,
		Message:  "Invalid slice definition",
		Detail:   "Each entry in slices needs a non-empty key.",
	},

	// Storage errors (E200-E299)

	"E200": {
		Category: CategoryStorage,
		Message:  "Failed to open storage",
	},
	"E201": {
		Category: CategoryStorage,
		Message:  "Failed to read snapshot",
	},
	"E202": {
		Category: CategoryStorage,
		Message:  "Failed to write snapshot",
	},
	"E203": {
		Category: CategoryStorage,
		Message:  "Snapshot version mismatch",
		Detail:   "The stored snapshot was written with a different persist.version and no migration is configured.",
	},

	// Devtools errors (E300-E399)

	"E300": {
		Category: CategoryDevtools,
		Message:  "Devtools server unreachable",
	},
	"E301": {
		Category: CategoryDevtools,
		Message:  "Devtools request failed",
	},
	"E302": {
		Category: CategoryDevtools,
		Message:  "Action stream closed",
	},

	// CLI errors (E400-E499)

	"E400": {
		Category: CategoryCLI,
		Message:  "Invalid argument",
	},
}

// Lookup returns the template registered for code.
func Lookup(code string) (Template, bool) {
	t, ok := registry[code]
	return t, ok
}
