// Package lang provides the RPG dialect registry and the node-kind vocabulary
// shared by the parser and the extractors.
package lang

import (
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// Dialect holds the configuration for a supported source dialect.
type Dialect struct {
	Name       string
	Extensions []string

	// Grammar is the tree-sitter grammar for the dialect. When nil the
	// built-in scanner is used.
	Grammar *sitter.Language
}

// Dialects maps dialect names to their configuration.
var Dialects = map[string]*Dialect{
	"rpgle": {
		Name:       "rpgle",
		Extensions: []string{".rpgle", ".sqlrpgle", ".rpg", ".rpg4", ".rpgile", ".sqlrpg"},
	},
}

var (
	extensionMap  map[string]string
	extensionOnce sync.Once
)

func getExtensionMap() map[string]string {
	extensionOnce.Do(func() {
		extensionMap = make(map[string]string)
		for _, d := range Dialects {
			for _, ext := range d.Extensions {
				extensionMap[ext] = d.Name
			}
		}
	})
	return extensionMap
}

// ForExtension returns the dialect name for a file extension, or "" if
// unsupported. Matching ignores case since IBM i sources are often upper case.
func ForExtension(ext string) string {
	return getExtensionMap()[strings.ToLower(ext)]
}
