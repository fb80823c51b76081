// Package api embeds the OpenAPI document.
package api

import _ "embed"

// OpenAPISpec is the OpenAPI 3.1 document in YAML.
//
//go:embed openapi.yaml
var OpenAPISpec []byte
