package services

import (
	"context"
	"fmt"
	"time"

	localCache "git.solsynth.dev/hypernet/relay/pkg/internal/cache"
	"git.solsynth.dev/hypernet/relay/pkg/internal/database"
	"git.solsynth.dev/hypernet/relay/pkg/internal/models"
	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/marshaler"
	"github.com/eko/gocache/lib/v4/store"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm/clause"
)

// MembershipOracle answers whether a user may act inside a channel or a
// conversation. Answers reflect membership at call time.
type MembershipOracle interface {
	IsChannelMember(ctx context.Context, userId, channelId uint) (bool, error)
	IsConversationParticipant(ctx context.Context, userId, conversationId uint) (bool, error)
}

// CachedMembership reads the membership tables and memoizes answers in the
// shared cache store. Membership changes made through this package drop the
// affected entries.
type CachedMembership struct {
	TTL time.Duration
}

type membershipCacheEntry struct {
	Member bool
}

func membershipCacheKey(scope models.Scope, user uint) string {
	return fmt.Sprintf("membership-%s#%d", scope, user)
}

func (v *CachedMembership) lookup(ctx context.Context, scope models.Scope, user uint, query func() (bool, error)) (bool, error) {
	if localCache.S == nil {
		return query()
	}

	marshal := marshaler.New(cache.New[any](localCache.S))
	key := membershipCacheKey(scope, user)
	if val, err := marshal.Get(ctx, key, new(membershipCacheEntry)); err == nil {
		return val.(*membershipCacheEntry).Member, nil
	}

	ok, err := query()
	if err != nil {
		return false, err
	}

	var options []store.Option
	if v.TTL > 0 {
		options = append(options, store.WithExpiration(v.TTL))
	}
	if err := marshal.Set(ctx, key, membershipCacheEntry{Member: ok}, options...); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Unable to cache membership...")
	}
	return ok, nil
}

func (v *CachedMembership) IsChannelMember(ctx context.Context, userId, channelId uint) (bool, error) {
	return v.lookup(ctx, models.ChannelScope(channelId), userId, func() (bool, error) {
		var count int64
		if err := database.C.WithContext(ctx).
			Model(&models.ChannelMember{}).
			Where("channel_id = ? AND account_id = ?", channelId, userId).
			Count(&count).Error; err != nil {
			return false, fmt.Errorf("unable to check channel membership: %w", err)
		}
		return count > 0, nil
	})
}

func (v *CachedMembership) IsConversationParticipant(ctx context.Context, userId, conversationId uint) (bool, error) {
	return v.lookup(ctx, models.ConversationScope(conversationId), userId, func() (bool, error) {
		var count int64
		if err := database.C.WithContext(ctx).
			Model(&models.ConversationParticipant{}).
			Where("conversation_id = ? AND account_id = ?", conversationId, userId).
			Count(&count).Error; err != nil {
			return false, fmt.Errorf("unable to check conversation participation: %w", err)
		}
		return count > 0, nil
	})
}

// Authorize checks the user against the scope and returns an
// *UnauthorizedError when the oracle says no. User scopes only admit their
// own user.
func Authorize(ctx context.Context, oracle MembershipOracle, userId uint, scope models.Scope) error {
	var ok bool
	var err error
	switch scope.Type {
	case models.ScopeChannel:
		ok, err = oracle.IsChannelMember(ctx, userId, scope.ID)
	case models.ScopeConversation:
		ok, err = oracle.IsConversationParticipant(ctx, userId, scope.ID)
	case models.ScopeUser:
		ok = scope.ID == userId
	default:
		return ErrInvalidScope
	}
	if err != nil {
		return err
	}
	if !ok {
		return &UnauthorizedError{UserID: userId, Target: scope}
	}
	return nil
}

func invalidateMembership(ctx context.Context, scope models.Scope, user uint) {
	if localCache.S == nil {
		return
	}
	marshal := marshaler.New(cache.New[any](localCache.S))
	if err := marshal.Delete(ctx, membershipCacheKey(scope, user)); err != nil {
		log.Debug().Err(err).Str("scope", scope.String()).Msg("Unable to drop cached membership...")
	}
}

func GetChannelMember(accountId, channelId uint) (models.ChannelMember, error) {
	var member models.ChannelMember
	if err := database.C.
		Where(&models.ChannelMember{AccountID: accountId, ChannelID: channelId}).
		First(&member).Error; err != nil {
		return member, err
	}
	return member, nil
}

// AddChannelMember is idempotent: adding an existing member keeps the
// stored row untouched.
func AddChannelMember(ctx context.Context, channelId, accountId uint, powerLevel int) (models.ChannelMember, error) {
	member := models.ChannelMember{
		ChannelID:  channelId,
		AccountID:  accountId,
		PowerLevel: powerLevel,
	}
	if err := database.C.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&member).Error; err != nil {
		return member, err
	}
	invalidateMembership(ctx, models.ChannelScope(channelId), accountId)
	return GetChannelMember(accountId, channelId)
}

func RemoveChannelMember(ctx context.Context, channelId, accountId uint) error {
	if err := database.C.WithContext(ctx).
		Where("channel_id = ? AND account_id = ?", channelId, accountId).
		Delete(&models.ChannelMember{}).Error; err != nil {
		return err
	}
	scope := models.ChannelScope(channelId)
	invalidateMembership(ctx, scope, accountId)
	revokeSubscriptions(ctx, scope, accountId)
	return nil
}

func AddConversationParticipant(ctx context.Context, conversationId, accountId uint) error {
	participant := models.ConversationParticipant{
		ConversationID: conversationId,
		AccountID:      accountId,
	}
	if err := database.C.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&participant).Error; err != nil {
		return err
	}
	invalidateMembership(ctx, models.ConversationScope(conversationId), accountId)
	return nil
}

func RemoveConversationParticipant(ctx context.Context, conversationId, accountId uint) error {
	if err := database.C.WithContext(ctx).
		Where("conversation_id = ? AND account_id = ?", conversationId, accountId).
		Delete(&models.ConversationParticipant{}).Error; err != nil {
		return err
	}
	scope := models.ConversationScope(conversationId)
	invalidateMembership(ctx, scope, accountId)
	revokeSubscriptions(ctx, scope, accountId)
	return nil
}
