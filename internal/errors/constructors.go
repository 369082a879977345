package errors

// Constructors for the failure taxonomy of the generation cycle. The
// orchestrator decides escalation from the category alone: structure failures
// are terminal for the cycle, cache/persist failures are logged and absorbed,
// page generation failures are contained to the page.

// CacheUnavailable marks a failed cache read. Non-fatal; the cycle proceeds
// as a cache miss.
func CacheUnavailable(err error, message string) *WikiGenError {
	return Wrap(err, CategoryCache, SeverityWarning, message)
}

// StructureUnavailable marks a cycle that could obtain no page structure from
// either the cache or the generation backend. Fatal for the cycle.
func StructureUnavailable(err error, message string) *WikiGenError {
	return Wrap(err, CategoryStructure, SeverityFatal, message)
}

// GenerationFailed marks a single page whose content generation failed.
// Recovered locally; never escalates past the page.
func GenerationFailed(err error, pageID string) *WikiGenError {
	return Wrap(err, CategoryGeneration, SeverityError, "page generation failed").
		WithContext("page_id", pageID)
}

// PersistUnavailable marks a failed best-effort cache write. Non-fatal.
func PersistUnavailable(err error, message string) *WikiGenError {
	return Wrap(err, CategoryPersist, SeverityWarning, message)
}

// ExportUnavailable is returned synchronously to an export caller when no
// structure is available. Does not affect orchestrator state.
func ExportUnavailable(message string) *WikiGenError {
	return New(CategoryExport, SeverityError, message)
}

// ValidationError creates a new validation error
func ValidationError(message string) *WikiGenError {
	return New(CategoryValidation, SeverityWarning, message)
}
