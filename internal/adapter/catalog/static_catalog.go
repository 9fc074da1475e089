package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rl1809/branch-delivery/internal/core/domain"
	"github.com/rl1809/branch-delivery/internal/port"
)

// StaticCatalog serves descriptors from a fixed table. Unknown identities
// resolve to a bare descriptor carrying only the identity.
type StaticCatalog struct {
	entries map[domain.ItemIdentity]port.ItemDescriptor
}

var _ port.Catalog = (*StaticCatalog)(nil)

func NewStaticCatalog(descriptors []port.ItemDescriptor) *StaticCatalog {
	c := &StaticCatalog{entries: make(map[domain.ItemIdentity]port.ItemDescriptor, len(descriptors))}
	for _, d := range descriptors {
		c.entries[d.Identity] = d
	}
	return c
}

// LoadStaticCatalog reads a JSON array of descriptors. An empty path yields
// an empty catalog.
func LoadStaticCatalog(path string) (*StaticCatalog, error) {
	if path == "" {
		return NewStaticCatalog(nil), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var descriptors []port.ItemDescriptor
	if err := json.Unmarshal(raw, &descriptors); err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", path, err)
	}
	for _, d := range descriptors {
		if err := d.Identity.Validate(); err != nil {
			return nil, fmt.Errorf("catalog entry %q: %w", d.Identity.String(), err)
		}
	}
	return NewStaticCatalog(descriptors), nil
}

func (c *StaticCatalog) Resolve(ctx context.Context, item domain.ItemIdentity) (port.ItemDescriptor, error) {
	if d, ok := c.entries[item]; ok {
		return d, nil
	}
	return port.ItemDescriptor{Identity: item}, nil
}
