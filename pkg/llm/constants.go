package llm

// Role constants define the normalized conversation roles used throughout
// the message pipeline. All engines map these to their native roles.
const (
	RoleSystem    = "system"    // Persona / instruction turn
	RoleUser      = "user"      // End-user input
	RoleAssistant = "assistant" // Model output (may carry ToolCalls)
	RoleTool      = "tool"      // Tool execution result
)

// EngineRole constants classify an engine group by its strength.
// The AgentRouter uses them to pick the detector and the synthesizer.
const (
	EngineRoleStructured = "structured" // Function-calling specialist
	EngineRoleReasoning  = "reasoning"  // Free-form answer specialist
)

// contextKey keeps this package's context keys distinct from plain
// strings set by other packages.
type contextKey string

// DebugDirContextKey is the context key carrying the per-request debug
// directory name for grouping raw response dumps and log correlation.
const DebugDirContextKey contextKey = "llm_debug_dir"
