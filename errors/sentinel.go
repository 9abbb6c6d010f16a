// Package errors provides predefined sentinel errors for common failure cases.
package errors

// Ingest / normalization errors.
var (
	// ErrLineMalformed indicates a single NDJSON line failed to parse.
	ErrLineMalformed = &AnalysisError{
		Kind:      ErrMalformedRecord,
		Detail:    "malformed audit record",
		Detection: -1,
	}

	// ErrSocketTupleMissing indicates a connect/accept record has no usable endpoint.
	ErrSocketTupleMissing = &AnalysisError{
		Kind:      ErrMissingSocketTuple,
		Detail:    "no socket tuple could be assembled",
		Detection: -1,
	}
)

// Tag pool / driver errors.
var (
	// ErrTagPoolEmpty indicates the configured tag pool has no usable entries.
	ErrTagPoolEmpty = &AnalysisError{
		Kind:      ErrEmptyTagPool,
		Detail:    "tag pool is empty",
		Detection: -1,
	}

	// ErrTagPoolFileMissing indicates the tag pool file does not exist.
	ErrTagPoolFileMissing = &AnalysisError{
		Kind:      ErrInvalidConfig,
		Detail:    "tag pool file not found",
		Detection: -1,
	}

	// ErrStreamEmpty indicates no events were parsed from the log file.
	ErrStreamEmpty = &AnalysisError{
		Kind:      ErrNoEventsParsed,
		Detail:    "no events parsed from log file",
		Detection: -1,
	}
)

// Tracer errors.
var (
	// ErrStartKindInvalid indicates a tracer was asked for an unsupported start kind.
	ErrStartKindInvalid = &AnalysisError{
		Kind:      ErrInvalidStartKind,
		Detail:    "start_type must be inode, pid, or socket",
		Detection: -1,
	}

	// ErrStartUnresolved indicates no start node could be inferred from a detection's event.
	ErrStartUnresolved = &AnalysisError{
		Kind:      ErrUnknownStart,
		Detail:    "Unable to infer start node",
		Detection: -1,
	}
)

// Config errors.
var (
	// ErrConfigMalformed indicates the engine config file could not be parsed.
	ErrConfigMalformed = &AnalysisError{
		Kind:      ErrInvalidConfig,
		Detail:    "malformed engine config",
		Detection: -1,
	}
)
