package manager

import (
	"context"

	"github.com/Sh00ty/lbaas-driver/internal/models"
	"github.com/Sh00ty/lbaas-driver/internal/servicebuilder"
)

type MemberManager struct {
	base
}

func NewMemberManager(cfg Config, deps Deps) *MemberManager {
	return &MemberManager{base: newBase(cfg, deps)}
}

func memberGraph(member *models.Member) servicebuilder.Partial {
	return servicebuilder.Partial{
		Pools: func(ctx context.Context, lb *models.LoadBalancer, ap servicebuilder.Appender) error {
			return ap.AddPool(ctx, member.Pool)
		},
	}
}

func (m *MemberManager) Create(ctx context.Context, member *models.Member) error {
	return m.createEntity(ctx, member, m.strategy(memberGraph(member)))
}

func (m *MemberManager) Update(ctx context.Context, oldMember, member *models.Member) error {
	return m.updateEntity(ctx, oldMember, member)
}

func (m *MemberManager) Delete(ctx context.Context, member *models.Member) error {
	return m.deleteEntity(ctx, member, m.strategy(memberGraph(member)))
}
