// Package admin は管理者向けの集計・一覧機能を提供する。
package admin

import (
	"context"
	"fmt"

	"github.com/hitoshi/soulishere/internal/model"
	"github.com/hitoshi/soulishere/internal/policy"
	"github.com/hitoshi/soulishere/internal/repository"
)

// Service は管理者向けのビジネスロジックを提供する。
// 全ての操作は管理者ロールを要求する。
type Service struct {
	users     repository.UserRepository
	memorials repository.MemorialRepository
}

// NewService はServiceを生成する。
func NewService(users repository.UserRepository, memorials repository.MemorialRepository) *Service {
	return &Service{users: users, memorials: memorials}
}

// Stats はユーザー数・メモリアル件数・売上合計を返す。
func (s *Service) Stats(ctx context.Context, actor *policy.Actor) (*model.MemorialStats, error) {
	if err := policy.Check(actor, policy.ActionAdminRead, nil); err != nil {
		return nil, err
	}

	stats, err := s.memorials.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate memorial stats: %w", err)
	}
	totalUsers, err := s.users.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	stats.TotalUsers = totalUsers
	return stats, nil
}

// ListUsers は全ユーザーを登録日の新しい順に返す。
func (s *Service) ListUsers(ctx context.Context, actor *policy.Actor) ([]*model.User, error) {
	if err := policy.Check(actor, policy.ActionAdminRead, nil); err != nil {
		return nil, err
	}
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// ListMemorials は全メモリアルを所有者の名前・メールアドレス付きで返す。
func (s *Service) ListMemorials(ctx context.Context, actor *policy.Actor) ([]*model.MemorialWithOwner, error) {
	if err := policy.Check(actor, policy.ActionAdminRead, nil); err != nil {
		return nil, err
	}
	list, err := s.memorials.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list memorials: %w", err)
	}
	return list, nil
}
