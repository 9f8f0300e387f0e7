// Command enumvalidator runs the enum literal check over relay packages:
//
//	go run ./tools/linters/enumvalidator/cmd ./internal/...
//
// Pass -types=Name1,Name2 to check enum types outside internal/model.
package main

import (
	"golang.org/x/tools/go/analysis/singlechecker"

	"companion.app/relay/tools/linters/enumvalidator"
)

func main() {
	singlechecker.Main(enumvalidator.Analyzer)
}
