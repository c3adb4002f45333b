// Package schemasassets provides embedded JSON schemas for standalone binary behavior.
//
// Schemas are embedded at compile time so request validation works regardless
// of the working directory or installation location.
package schemasassets

import _ "embed"

// RunRequestSchema is the embedded run-request JSON schema.
//
//go:embed run-request.schema.json
var RunRequestSchema []byte
