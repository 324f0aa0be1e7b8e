package errors

// Convenience functions for common error patterns.

// Config errors

func ConfigNotFound(path string) *PipelineError {
	return New(CategoryConfig, SeverityFatal, "configuration file not found").
		WithContext("path", path)
}

func ConfigRequired(field string) *PipelineError {
	return New(CategoryConfig, SeverityFatal, "required configuration missing").
		WithContext("field", field)
}

func ValidationFailed(field, reason string) *PipelineError {
	return New(CategoryValidation, SeverityFatal, "validation failed").
		WithContext("field", field).
		WithContext("reason", reason)
}

// Custody errors

// MissingChecker reports that a custody entry type was used without a
// registered staleness checker. Always fatal: the graph cannot be trusted
// if a recorded entry cannot be validated.
func MissingChecker(entryType string) *PipelineError {
	return New(CategoryCustody, SeverityFatal, "no staleness checker registered for entry type").
		WithContext("entry_type", entryType)
}

// UnknownRoot reports a custody key whose leading segment names no configured root.
func UnknownRoot(key string) *PipelineError {
	return New(CategoryCustody, SeverityFatal, "custody key does not start with a configured root").
		WithContext("key", key)
}

// MetaMalformed reports prior metadata of an unrecognized shape. Treated as a
// configuration error, not a soft failure.
func MetaMalformed(key string, cause error) *PipelineError {
	return Wrap(cause, CategoryCustody, SeverityFatal, "custody metadata has unrecognized shape").
		WithContext("key", key)
}

// State errors

func StateCorrupt(path string, cause error) *PipelineError {
	return Wrap(cause, CategoryState, SeverityFatal, "custody state file could not be parsed").
		WithContext("path", path)
}

func StateWriteFailed(path string, cause error) *PipelineError {
	return Wrap(cause, CategoryState, SeverityFatal, "custody state file could not be written").
		WithContext("path", path)
}

// Build pipeline errors

func StepFailed(step, source string, cause error) *PipelineError {
	return Wrap(cause, CategoryBuild, SeverityFatal, "step execution failed").
		WithContext("step", step).
		WithContext("source", source)
}

// StepUnavailable reports a rule naming a step that is not registered.
func StepUnavailable(step string, available []string) *PipelineError {
	return New(CategoryConfig, SeverityFatal, "unknown step").
		WithContext("step", step).
		WithContext("available", available)
}

func WorkspaceError(operation string, cause error) *PipelineError {
	return Wrap(cause, CategoryFileSystem, SeverityFatal, "workspace operation failed").
		WithContext("operation", operation)
}
