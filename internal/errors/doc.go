// Package errors provides coded, actionable error messages for reactor.
//
// Each error has a unique code (e.g., "R001") that maps to a short message, a
// detailed explanation, an optional fix suggestion and a documentation URL.
//
// # Error Categories
//
//   - runtime: misuse of the reactive API (cycles, writes in derived values)
//   - reconcile: invalid container operations
//   - protocol: frame encoding and viewer connections
//   - config: reactor.json problems
//   - storage: snapshot stores
//   - cli: command failures
//
// # Usage
//
//	err := errors.New("R120").
//	    Wrap(jsonErr).
//	    WithSuggestion("Check for a trailing comma")
//
//	fmt.Println(err.Format())
//	// Output:
//	// ERROR R120: Invalid reactor.json
//	//
//	//   The reactor.json configuration file is malformed.
//	//
//	//   Cause: invalid character '}' looking for beginning of object key string
//	//
//	//   Hint: Check for a trailing comma
//	//
//	//   Learn more: https://reactor.vango.dev/errors/R120
package errors
