package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category   Category
	Message    string
	Detail     string
	Suggestion string
	DocURL     string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Runtime Errors (R001-R019)
	// ============================================

	"R001": {
		Category:   CategoryRuntime,
		Message:    "Duplicate key in keyed list",
		Detail:     "Two items of one keyed list evaluation produced the same key. Keys identify the scope and node of an item, so they must be unique.",
		Suggestion: "Derive keys from a stable unique field such as an ID.",
		DocURL:     "https://reactor.vango.dev/errors/R001",
	},
	"R002": {
		Category:   CategoryRuntime,
		Message:    "Cell written inside its own derived computation",
		Detail:     "A derived computation wrote a cell it depends on. Derived values must be pure functions of their inputs.",
		Suggestion: "Move the write into an effect, or derive the value instead of storing it.",
		DocURL:     "https://reactor.vango.dev/errors/R002",
	},
	"R003": {
		Category:   CategoryRuntime,
		Message:    "Circular dependency detected",
		Detail:     "A derived value read itself while being computed, directly or through other derived values.",
		Suggestion: "Break the cycle by reading one of the values with Peek or Untrack.",
		DocURL:     "https://reactor.vango.dev/errors/R003",
	},
	"R004": {
		Category:   CategoryRuntime,
		Message:    "Effect run budget exceeded",
		Detail:     "A single settle ran more effects than allowed. Effects are probably re-triggering each other.",
		Suggestion: "Check for effects that write cells they read, or raise runtime.maxEffectRuns.",
		DocURL:     "https://reactor.vango.dev/errors/R004",
	},
	"R005": {
		Category: CategoryRuntime,
		Message:  "Owner disposed",
		Detail:   "The operation targets an ownership scope that was already disposed.",
		DocURL:   "https://reactor.vango.dev/errors/R005",
	},
	"R006": {
		Category: CategoryRuntime,
		Message:  "Effect panicked",
		Detail:   "An effect function panicked. The effect keeps the dependencies it read before the panic and runs again when they change.",
		DocURL:   "https://reactor.vango.dev/errors/R006",
	},
	"R007": {
		Category: CategoryRuntime,
		Message:  "Cleanup panicked",
		Detail:   "A cleanup callback panicked. The remaining cleanups of the scope still ran.",
		DocURL:   "https://reactor.vango.dev/errors/R007",
	},

	// ============================================
	// Reconcile Errors (R020-R039)
	// ============================================

	"R020": {
		Category: CategoryReconcile,
		Message:  "Node is not a child of the container",
		Detail:   "A reconcile operation referenced a node that is not attached to the container.",
		DocURL:   "https://reactor.vango.dev/errors/R020",
	},
	"R021": {
		Category: CategoryReconcile,
		Message:  "Node would become its own ancestor",
		Detail:   "Inserting the node would create a cycle in the tree.",
		DocURL:   "https://reactor.vango.dev/errors/R021",
	},

	// ============================================
	// Protocol Errors (R060-R079)
	// ============================================

	"R060": {
		Category: CategoryProtocol,
		Message:  "Invalid frame",
		Detail:   "The received frame could not be decoded. The protocol version may be mismatched.",
		DocURL:   "https://reactor.vango.dev/errors/R060",
	},
	"R061": {
		Category: CategoryProtocol,
		Message:  "Unknown frame type",
		Detail:   "The frame type is not recognized.",
		DocURL:   "https://reactor.vango.dev/errors/R061",
	},
	"R062": {
		Category: CategoryProtocol,
		Message:  "Frame too large",
		Detail:   "The frame payload exceeds the maximum allowed size.",
		DocURL:   "https://reactor.vango.dev/errors/R062",
	},
	"R063": {
		Category: CategoryProtocol,
		Message:  "WebSocket connection failed",
		Detail:   "Unable to upgrade or write to the viewer connection.",
		DocURL:   "https://reactor.vango.dev/errors/R063",
	},

	// ============================================
	// Config Errors (R120-R139)
	// ============================================

	"R120": {
		Category:   CategoryConfig,
		Message:    "Invalid reactor.json",
		Detail:     "The reactor.json configuration file is malformed.",
		Suggestion: "Fix the JSON syntax, or delete the file to run with defaults.",
		DocURL:     "https://reactor.vango.dev/errors/R120",
	},
	"R121": {
		Category: CategoryConfig,
		Message:  "Missing required configuration",
		Detail:   "A required configuration value is not set.",
		DocURL:   "https://reactor.vango.dev/errors/R121",
	},
	"R122": {
		Category: CategoryConfig,
		Message:  "Invalid configuration value",
		Detail:   "A configuration value is out of range or not one of the allowed options.",
		DocURL:   "https://reactor.vango.dev/errors/R122",
	},

	// ============================================
	// Storage Errors (R140-R149)
	// ============================================

	"R140": {
		Category: CategoryStorage,
		Message:  "Snapshot write failed",
		Detail:   "The snapshot could not be written to its store.",
		DocURL:   "https://reactor.vango.dev/errors/R140",
	},
	"R141": {
		Category: CategoryStorage,
		Message:  "Snapshot not found",
		Detail:   "No snapshot exists under the requested name.",
		DocURL:   "https://reactor.vango.dev/errors/R141",
	},

	// ============================================
	// CLI Errors (R160-R179)
	// ============================================

	"R160": {
		Category: CategoryCLI,
		Message:  "Server failed",
		Detail:   "The mirror server stopped with an error.",
		DocURL:   "https://reactor.vango.dev/errors/R160",
	},
	"R161": {
		Category: CategoryCLI,
		Message:  "Invalid argument",
		Detail:   "A command line argument is out of range.",
		DocURL:   "https://reactor.vango.dev/errors/R161",
	},
	"R162": {
		Category:   CategoryCLI,
		Message:    "Viewers diverged",
		Detail:     "At least one viewer ended the benchmark with a tree different from the server's.",
		Suggestion: "Rerun with the same --seed and compare snapshots from the server and a viewer.",
		DocURL:     "https://reactor.vango.dev/errors/R162",
	},
	"R170": {
		Category:   CategoryCLI,
		Message:    "Tracing setup failed",
		Detail:     "The trace exporter could not be created.",
		Suggestion: "Check tracing.exporter and tracing.endpoint in reactor.json.",
		DocURL:     "https://reactor.vango.dev/errors/R170",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
