// Package migrations holds the SQL schema for every supported dialect.
package migrations

import "embed"

// FS contains sqlite/, postgres/ and mysql/ migration directories
//
//go:embed sqlite/*.sql postgres/*.sql mysql/*.sql
var FS embed.FS
