// Package schemasassets provides embedded JSON schemas for API payloads.
//
// Schemas are embedded at compile time so payload validation works in any
// consumer of the library without schema files on disk.
package schemasassets

import _ "embed"

// InferenceResponseSchema describes the envelope of a result payload
// ({"inference": {...}}). The "result" subtree is left open; field nodes are
// validated structurally by the field package.
//
//go:embed inference-response.schema.json
var InferenceResponseSchema []byte

// JobResponseSchema describes the envelope of enqueue and poll responses
// ({"job": {...}}).
//
//go:embed job-response.schema.json
var JobResponseSchema []byte

// InferenceParametersSchema describes a parameters file read by
// client.LoadParameters.
//
//go:embed inference-parameters.schema.json
var InferenceParametersSchema []byte
