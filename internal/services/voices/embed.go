package voices

import _ "embed"

//go:embed voices.yaml
var Catalog []byte
