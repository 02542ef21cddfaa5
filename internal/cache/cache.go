package cache

import (
	"context"
	"time"

	"kopkasir/backend/internal/domain"
)

// MemberCache holds member ledger snapshots keyed by member id. Entries are
// deleted whenever a settlement or approval mutates the ledger.
type MemberCache interface {
	Get(ctx context.Context, key string) (*domain.Member, bool, error)
	Set(ctx context.Context, key string, value *domain.Member, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type NoopMemberCache struct{}

func (NoopMemberCache) Get(_ context.Context, _ string) (*domain.Member, bool, error) {
	return nil, false, nil
}

func (NoopMemberCache) Set(_ context.Context, _ string, _ *domain.Member, _ time.Duration) error {
	return nil
}

func (NoopMemberCache) Delete(_ context.Context, _ string) error {
	return nil
}
