package schema

import _ "embed"

// ConfigV1Schema contains the JSON schema for runcap.yaml documents.
//
//go:embed runcap.v1.json
var ConfigV1Schema []byte
