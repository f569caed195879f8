package social

import (
	"context"
	"fmt"

	"github.com/ft-transcendence/server/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service orchestrates the friend/block relation graph and the
// per-user notification queue. Two-sided mutations run inside a
// single transaction; a half-accepted friendship would make the
// relationship one-directional.
type Service struct {
	db     *gorm.DB
	dir    *Directory
	events *Events
	log    *zap.Logger
}

func NewService(db *gorm.DB, events *Events, log *zap.Logger) *Service {
	return &Service{
		db:     db,
		dir:    NewDirectory(db),
		events: events,
		log:    log,
	}
}

func (s *Service) Directory() *Directory {
	return s.dir
}

// SendFriendRequest queues a friend notification for the target.
// Self-targeting fails with ErrInvalidArgument, a duplicate pending
// request with ErrConflict. When the target has blocked the actor the
// call silently no-ops: no notification, no error.
func (s *Service) SendFriendRequest(ctx context.Context, actorEmail, targetNick string) error {
	actor, err := s.dir.FindByEmail(ctx, actorEmail)
	if err != nil {
		return err
	}
	if actor == nil {
		return fmt.Errorf("%w: user %s", ErrNotFound, actorEmail)
	}
	target, err := s.dir.FindByNick(ctx, targetNick)
	if err != nil {
		return err
	}
	if target == nil {
		return fmt.Errorf("%w: user %s", ErrNotFound, targetNick)
	}
	if actor.ID == target.ID {
		return fmt.Errorf("%w: cannot friend yourself", ErrInvalidArgument)
	}

	for _, n := range target.Notifications {
		if n.Type == model.NotificationFriend && n.SourceUser != nil && n.SourceUser.Nick == actor.Nick {
			return fmt.Errorf("%w: request already pending", ErrConflict)
		}
	}

	if IsBlocked(actor, target) {
		s.log.Debug("friend request dropped, actor is blocked",
			zap.String("actor", actor.Nick),
			zap.String("target", target.Nick))
		return nil
	}

	notif := &model.Notification{
		OwnerID:      target.ID,
		Type:         model.NotificationFriend,
		SourceUserID: actor.ID,
	}
	if err := s.db.WithContext(ctx).Create(notif).Error; err != nil {
		return fmt.Errorf("%w: create notification: %v", ErrInternal, err)
	}

	s.events.Push(ctx, target.Nick, EventNotificationNew, NotificationView{
		ID:         notif.ID,
		Type:       notif.Type,
		SourceNick: actor.Nick,
		CreatedAt:  notif.CreatedAt,
	})
	return nil
}

// PopNotification removes one notification from the owner's queue.
// An absent id is a no-op, not an error.
func (s *Service) PopNotification(ctx context.Context, ownerEmail string, notificationID int64) error {
	owner, err := s.dir.FindByEmail(ctx, ownerEmail)
	if err != nil {
		return err
	}
	if owner == nil {
		return fmt.Errorf("%w: user %s", ErrNotFound, ownerEmail)
	}
	notif := findNotification(owner, notificationID)
	if notif == nil {
		return nil
	}
	if err := s.db.WithContext(ctx).Delete(&model.Notification{}, notif.ID).Error; err != nil {
		return fmt.Errorf("%w: pop notification: %v", ErrInternal, err)
	}

	// Other open sessions of the owner drop the entry too.
	s.events.Push(ctx, owner.Nick, EventNotificationRemoved, NotificationView{
		ID:   notif.ID,
		Type: notif.Type,
	})
	return nil
}

// AcceptFriend turns a pending friend notification into a reciprocal
// friend relation pair and pops the notification, atomically.
func (s *Service) AcceptFriend(ctx context.Context, ownerEmail string, notificationID int64) error {
	owner, notif, source, err := s.resolveNotification(ctx, ownerEmail, notificationID)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pair := []*model.Relation{
			{OwnerID: owner.ID, Type: model.RelationFriend, PassiveUserID: source.ID},
			{OwnerID: source.ID, Type: model.RelationFriend, PassiveUserID: owner.ID},
		}
		for _, r := range pair {
			if err := tx.Create(r).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&model.Notification{}, notif.ID).Error
	})
	if err != nil {
		return fmt.Errorf("%w: accept friend: %v", ErrInternal, err)
	}

	s.events.Push(ctx, owner.Nick, EventFriendNew, FriendView{Nick: source.Nick, AvatarURL: source.AvatarURL})
	s.events.Push(ctx, source.Nick, EventFriendNew, FriendView{Nick: owner.Nick, AvatarURL: owner.AvatarURL})
	return nil
}

// BlockUserByNotification blocks the notification's source and pops the
// notification. The block is one-directional; an existing friend pair
// between the two users is left in place.
func (s *Service) BlockUserByNotification(ctx context.Context, ownerEmail string, notificationID int64) error {
	owner, notif, source, err := s.resolveNotification(ctx, ownerEmail, notificationID)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		blocked := &model.Relation{OwnerID: owner.ID, Type: model.RelationBlocked, PassiveUserID: source.ID}
		if err := tx.Create(blocked).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Notification{}, notif.ID).Error
	})
	if err != nil {
		return fmt.Errorf("%w: block by notification: %v", ErrInternal, err)
	}

	s.events.Push(ctx, owner.Nick, EventBlockedNew, BlockedView{Nick: source.Nick, AvatarURL: source.AvatarURL})
	return nil
}

// RemoveFriend deletes the friend relation from both sides.
func (s *Service) RemoveFriend(ctx context.Context, ownerEmail, friendNick string) error {
	owner, other, err := s.loadPair(ctx, ownerEmail, friendNick)
	if err != nil {
		return err
	}

	if err := s.deleteFriendPair(ctx, s.db, owner.ID, other.ID); err != nil {
		return fmt.Errorf("%w: remove friend: %v", ErrInternal, err)
	}

	s.events.Push(ctx, owner.Nick, EventFriendRemoved, FriendView{Nick: other.Nick})
	s.events.Push(ctx, other.Nick, EventFriendRemoved, FriendView{Nick: owner.Nick})
	return nil
}

// AddBlocked removes any friend pair between the two users and adds a
// one-directional block owner→target.
func (s *Service) AddBlocked(ctx context.Context, ownerEmail, targetNick string) error {
	owner, target, err := s.loadPair(ctx, ownerEmail, targetNick)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.deleteFriendPair(ctx, tx, owner.ID, target.ID); err != nil {
			return err
		}
		return tx.Create(&model.Relation{
			OwnerID:       owner.ID,
			Type:          model.RelationBlocked,
			PassiveUserID: target.ID,
		}).Error
	})
	if err != nil {
		return fmt.Errorf("%w: add blocked: %v", ErrInternal, err)
	}

	s.events.Push(ctx, owner.Nick, EventBlockedNew, BlockedView{Nick: target.Nick, AvatarURL: target.AvatarURL})
	s.events.Push(ctx, target.Nick, EventFriendRemoved, FriendView{Nick: owner.Nick})
	return nil
}

// RemoveBlocked lifts a block. Only the owner's side is touched.
func (s *Service) RemoveBlocked(ctx context.Context, ownerEmail, targetNick string) error {
	owner, target, err := s.loadPair(ctx, ownerEmail, targetNick)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).
		Where("owner_id = ? AND type = ? AND passive_user_id = ?",
			owner.ID, model.RelationBlocked, target.ID).
		Delete(&model.Relation{}).Error
	if err != nil {
		return fmt.Errorf("%w: remove blocked: %v", ErrInternal, err)
	}

	s.events.Push(ctx, owner.Nick, EventBlockedRemoved, BlockedView{Nick: target.Nick})
	return nil
}

// IsBlocked reports whether active's relation set contains a block
// targeting passive. Pure predicate over preloaded aggregates.
func IsBlocked(passive, active *model.User) bool {
	for _, r := range active.Relations {
		if r.Type == model.RelationBlocked && r.PassiveUser != nil && r.PassiveUser.Nick == passive.Nick {
			return true
		}
	}
	return false
}

func (s *Service) loadPair(ctx context.Context, ownerEmail, otherNick string) (*model.User, *model.User, error) {
	owner, err := s.dir.FindByEmail(ctx, ownerEmail)
	if err != nil {
		return nil, nil, err
	}
	if owner == nil {
		return nil, nil, fmt.Errorf("%w: user %s", ErrNotFound, ownerEmail)
	}
	other, err := s.dir.FindByNick(ctx, otherNick)
	if err != nil {
		return nil, nil, err
	}
	if other == nil {
		return nil, nil, fmt.Errorf("%w: user %s", ErrNotFound, otherNick)
	}
	return owner, other, nil
}

// resolveNotification loads the owner, locates the notification in the
// owner's queue and resolves its source user. A missing notification is
// an InvalidArgument per the accept-friend contract.
func (s *Service) resolveNotification(ctx context.Context, ownerEmail string, notificationID int64) (*model.User, *model.Notification, *model.User, error) {
	owner, err := s.dir.FindByEmail(ctx, ownerEmail)
	if err != nil {
		return nil, nil, nil, err
	}
	if owner == nil {
		return nil, nil, nil, fmt.Errorf("%w: user %s", ErrNotFound, ownerEmail)
	}
	notif := findNotification(owner, notificationID)
	if notif == nil {
		return nil, nil, nil, fmt.Errorf("%w: friend not found", ErrInvalidArgument)
	}
	source := notif.SourceUser
	if source == nil {
		source, err = s.dir.FindByID(ctx, notif.SourceUserID)
		if err != nil {
			return nil, nil, nil, err
		}
	}
	if source == nil {
		return nil, nil, nil, fmt.Errorf("%w: source user %d", ErrNotFound, notif.SourceUserID)
	}
	return owner, notif, source, nil
}

func (s *Service) deleteFriendPair(ctx context.Context, tx *gorm.DB, a, b int64) error {
	return tx.WithContext(ctx).
		Where("type = ? AND ((owner_id = ? AND passive_user_id = ?) OR (owner_id = ? AND passive_user_id = ?))",
			model.RelationFriend, a, b, b, a).
		Delete(&model.Relation{}).Error
}

func findNotification(owner *model.User, id int64) *model.Notification {
	for i := range owner.Notifications {
		if owner.Notifications[i].ID == id {
			return &owner.Notifications[i]
		}
	}
	return nil
}
