package model

import (
	"fmt"

	"github.com/alecthomas/kong"
)

// VersionFlag prints the version passed in kong.Vars and exits.
type VersionFlag string

// Decode implements the kong.MapperValue interface.
func (v VersionFlag) Decode(ctx *kong.DecodeContext) error { return nil }

// IsBool implements the kong.BoolMapper interface.
func (v VersionFlag) IsBool() bool { return true }

// BeforeApply prints the version to the application's stdout.
func (v VersionFlag) BeforeApply(app *kong.Kong, vars kong.Vars) error {
	fmt.Fprintln(app.Stdout, vars["version"])
	app.Exit(0)
	return nil
}
