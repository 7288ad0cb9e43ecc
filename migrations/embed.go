// Package migrations carries the goose-formatted SQL migrations so the
// server binary can apply them without a checkout.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
