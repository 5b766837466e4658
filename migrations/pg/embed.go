// Package migrations embeds the SQL migrations for the pg driver.
package migrations

import "embed"

// FS contains the documents-table migrations, applied with goose.
//
//go:embed *.sql
var FS embed.FS
