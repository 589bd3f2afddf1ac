// Package api embeds the OpenAPI description of the HTTP API.
package api

import _ "embed"

// OpenAPISpec is the raw OpenAPI 3.1 YAML description of the HTTP API.
//
//go:embed openapi.yaml
var OpenAPISpec []byte
