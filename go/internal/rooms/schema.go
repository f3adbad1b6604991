package rooms

import _ "embed"

// Schema creates the rooms table. Statements are idempotent.
//
//go:embed schema.sql
var Schema string
