// Package storage holds helpers shared by the blob store and repository
// adapters.
package storage

import (
	"fmt"
	"path"
	"strings"

	"github.com/JakeFAU/equipment-crawler/internal/equipment"
)

// ObjectNamer builds unique object names of the form <prefix>/<id>-<hint>.
type ObjectNamer struct {
	Prefix string
	IDs    equipment.IDGenerator
}

// Name returns a fresh object name. Every call yields a different name.
func (n ObjectNamer) Name(hint string) (string, error) {
	if n.IDs == nil {
		return "", fmt.Errorf("object namer: id generator is required")
	}
	id, err := n.IDs.NewID()
	if err != nil {
		return "", fmt.Errorf("object name: %w", err)
	}
	hint = strings.TrimSpace(path.Base("/" + hint))
	name := id
	if hint != "" && hint != "/" && hint != "." {
		name += "-" + hint
	}
	prefix := strings.Trim(n.Prefix, "/")
	if prefix == "" {
		return name, nil
	}
	return prefix + "/" + name, nil
}
