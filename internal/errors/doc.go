// Package errors provides structured, actionable error messages for the
// slicestore command line.
//
// Each error has a code (e.g., "E101") registered with a category, a short
// message and a longer explanation. Callers attach a suggestion, a detail
// line or a wrapped cause:
//
//	err := errors.New("E101").
//	    WithDetail("No slicestore.json found in " + dir).
//	    WithSuggestion("Run 'slicestore serve' with --config or create slicestore.json")
//
//	errors.Print(os.Stderr, err)
//	// ERROR E101: Configuration file not found
//	//
//	//   No slicestore.json found in /srv/app
//	//
//	//   Hint: Run 'slicestore serve' with --config or create slicestore.json
//
// # Error Categories
//
//   - config: loading and validating slicestore.json and the environment
//   - storage: opening and reading snapshot backends
//   - devtools: reaching a running devtools server
//   - cli: command usage
package errors
