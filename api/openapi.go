// Пакет api — OpenAPI-контракт Pastorale, встроенный в бинарник.
package api

import _ "embed"

// Spec — содержимое openapi.yaml.
//
//go:embed openapi.yaml
var Spec []byte
