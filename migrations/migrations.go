// Package migrations embeds the SQL schema so binaries and tests apply the
// same DDL without depending on the working directory.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

// Init is the initial schema.
const Init = "001_init.sql"
