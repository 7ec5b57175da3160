package cache

import (
	"context"

	"github.com/LeventeLantos/group-campaigns/internal/model"
)

// GroupNames caches group display names per endpoint. A miss is reported as
// ok == false with a nil error.
type GroupNames interface {
	GroupName(ctx context.Context, endpoint, groupID string) (name string, ok bool, err error)
	StoreGroupNames(ctx context.Context, endpoint string, groups []model.Group) error
}
