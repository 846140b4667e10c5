package migrations

import "embed"

// FS holds the Go migration sources so goose can locate them without a checkout on disk.
//
//go:embed *.go
var FS embed.FS
