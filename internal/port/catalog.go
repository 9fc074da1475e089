package port

import (
	"context"

	"github.com/rl1809/branch-delivery/internal/core/domain"
)

// ItemDescriptor is the display view of a catalog entry.
type ItemDescriptor struct {
	Identity    domain.ItemIdentity `json:"identity"`
	Description string              `json:"description"`
	Brand       string              `json:"brand,omitempty"`
	Vendor      string              `json:"vendor,omitempty"`
}

type Catalog interface {
	Resolve(ctx context.Context, item domain.ItemIdentity) (ItemDescriptor, error)
}
