// Package prompt assembles the grounded instruction sent to the generation
// service.
package prompt

import (
	"fmt"
	"strings"

	"github.com/mark3labs/spec2client/internal/index"
)

// ServerURLNotSpecified replaces the server URL when the specification
// declares no servers.
const ServerURLNotSpecified = "Not specified in the OpenAPI spec"

// Constraints are appended to every prompt, in order.
var Constraints = []string{
	"Only use endpoints that are explicitly present in the API documentation above. Never invent paths.",
	"Only use an HTTP method (GET, POST, etc.) that the documentation declares for the chosen path.",
	"The code must be complete and immediately runnable, with no placeholders or placeholder comments.",
	"The code must include a function that calls the endpoint with the native fetch API, a function that transforms the response into the requested output shape, and a usage example.",
	"Do not add any import statements or third-party dependencies; use only what the runtime provides natively.",
}

// FormatContext joins retrieved document contents, most similar first.
func FormatContext(r index.Retrieval) string {
	parts := make([]string, 0, len(r.Documents))
	for _, d := range r.Documents {
		parts = append(parts, d.Content)
	}
	return strings.Join(parts, "\n\n")
}

// Assemble builds the instruction block: context documents, server URL,
// question and constraints, in that order.
func Assemble(r index.Retrieval, serverURL, question string) string {
	if serverURL == "" {
		serverURL = ServerURLNotSpecified
	}

	var b strings.Builder
	b.WriteString("You are an expert TypeScript developer who specializes in creating API clients.\n\n")
	b.WriteString("Use the following OpenAPI specification information to generate TypeScript code:\n\n")
	b.WriteString(FormatContext(r))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Server URL: %s\n\n", serverURL)
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	b.WriteString("IMPORTANT:\n")
	for i, c := range Constraints {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c)
	}
	return b.String()
}

// BuildQuestion renders the user's request for a client that fetches data
// and reshapes it into outputShape.
func BuildQuestion(specLocation, dataDescription, outputShape string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I need to create a TypeScript client for the API described by this OpenAPI specification: %s\n\n", specLocation)
	fmt.Fprintf(&b, "I want to retrieve the following data: %s\n\n", dataDescription)
	fmt.Fprintf(&b, "The data should be transformed to match this TypeScript interface:\n%s\n\n", strings.TrimSpace(outputShape))
	b.WriteString(`Requirements:
- Generate a complete, working TypeScript file with all necessary code
- Use the native fetch API (not axios or other libraries)
- Include a main function that makes the actual API call using fetch
- Include the function that transforms the API response to the desired shape
- Only use endpoints and HTTP methods that are explicitly defined in the OpenAPI specification
- Do not use any imports

The code must include:
- The actual API URL from the OpenAPI specification (not a placeholder)
- A function that makes the API call (e.g. 'async function fetchData() {...}')
- A function that transforms the response (e.g. 'function transformResponse(data) {...}')
- All necessary type definitions
- A usage example showing how to call the function

Use the actual endpoint paths, parameter names and response structures from the OpenAPI specification. Do not return only interfaces or type definitions.`)
	return b.String()
}
