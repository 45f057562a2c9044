// Package appfs holds the files shipped inside the binaries: database
// migrations, email templates and the common passwords list.
package appfs

import "embed"

//go:embed migrations/*.sql templates/email/* data/*
var FS embed.FS
