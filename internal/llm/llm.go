package llm

import "context"

// Client defines the interface for text-completion providers.
type Client interface {
	// ExtractCustomerDetails runs a structured-extraction request over a
	// call transcript and returns the raw structured JSON payload. Parsing
	// and validation of the payload belong to the caller.
	ExtractCustomerDetails(ctx context.Context, transcript string) (string, error)

	// Complete generates a single completion for a system/user prompt pair.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
