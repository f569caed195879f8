package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ft-transcendence/server/cache"
	"github.com/ft-transcendence/server/config"
	"github.com/ft-transcendence/server/model"
	"github.com/ft-transcendence/server/presence"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxMsgLen = 200

var (
	ErrChatNotFound = errors.New("chat not found")
	ErrUserNotFound = errors.New("user not found")
	ErrNotMember    = errors.New("not a member of this chat")
	ErrNotAllowed   = errors.New("not allowed")
	ErrMuted        = errors.New("you are muted in this chat")
	ErrBanned       = errors.New("you are banned from this chat")
	ErrBlocked      = errors.New("user has blocked you")
	ErrChatFull     = errors.New("chat is full")
	ErrEmptyMessage = errors.New("empty message")
	ErrTooLong      = errors.New("message too long")
)

// ChatChannel is the pub/sub channel carrying packets for one chat.
func ChatChannel(chatID int64) string {
	return fmt.Sprintf("chat:%d", chatID)
}

// Service manages direct and group chats: membership, moderation,
// message fan-out and history.
type Service struct {
	db     *gorm.DB
	cache  cache.Cache
	pubsub cache.PubSub
	sm     *presence.SessionManager
	cfg    config.SocialConfig
	logger *zap.Logger
}

func NewService(db *gorm.DB, c cache.Cache, ps cache.PubSub, sm *presence.SessionManager, cfg config.SocialConfig, logger *zap.Logger) *Service {
	return &Service{db: db, cache: c, pubsub: ps, sm: sm, cfg: cfg, logger: logger}
}

// CreateDirect returns the direct chat between the two users, creating
// it if absent. A second call with the same pair returns the existing
// chat instead of a duplicate.
func (s *Service) CreateDirect(ctx context.Context, ownerID int64, targetNick string) (*model.Chat, error) {
	target, err := s.userByNick(ctx, targetNick)
	if err != nil {
		return nil, err
	}
	if s.hasBlock(ctx, target.ID, ownerID) {
		return nil, ErrBlocked
	}

	if existing, err := s.findDirect(ctx, ownerID, target.ID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	chat := &model.Chat{Type: model.ChatDirect, OwnerID: ownerID}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(chat).Error; err != nil {
			return err
		}
		members := []model.ChatMember{
			{ChatID: chat.ID, UserID: ownerID, Role: model.ChatRoleMember},
			{ChatID: chat.ID, UserID: target.ID, Role: model.ChatRoleMember},
		}
		return tx.Create(&members).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create direct chat: %w", err)
	}
	return chat, nil
}

// CreateGroup creates a group chat owned by ownerID with the given
// initial members.
func (s *Service) CreateGroup(ctx context.Context, ownerID int64, name string, memberNicks []string) (*model.Chat, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: group name required", ErrNotAllowed)
	}
	if len(memberNicks)+1 > s.maxMembers() {
		return nil, ErrChatFull
	}

	chat := &model.Chat{Type: model.ChatGroup, Name: name, OwnerID: ownerID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(chat).Error; err != nil {
			return err
		}
		members := []model.ChatMember{{ChatID: chat.ID, UserID: ownerID, Role: model.ChatRoleOwner}}
		for _, nick := range memberNicks {
			// Member lookups must go through tx: the transaction owns
			// the connection.
			var u model.User
			if err := tx.Where("nick = ?", nick).First(&u).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrUserNotFound
				}
				return fmt.Errorf("load user: %w", err)
			}
			if u.ID == ownerID {
				continue
			}
			members = append(members, model.ChatMember{ChatID: chat.ID, UserID: u.ID, Role: model.ChatRoleMember})
		}
		return tx.Create(&members).Error
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("create group chat: %w", err)
	}
	return chat, nil
}

// Join adds a user to a group chat. Banned users cannot rejoin.
func (s *Service) Join(ctx context.Context, chatID, userID int64) error {
	chat, err := s.chatByID(ctx, chatID)
	if err != nil {
		return err
	}
	if chat.Type != model.ChatGroup {
		return fmt.Errorf("%w: cannot join a direct chat", ErrNotAllowed)
	}

	if m, err := s.member(ctx, chatID, userID); err != nil {
		return err
	} else if m != nil {
		if m.Banned {
			return ErrBanned
		}
		return nil // already a member
	}

	var n int64
	if err := s.db.WithContext(ctx).Model(&model.ChatMember{}).
		Where("chat_id = ?", chatID).Count(&n).Error; err != nil {
		return fmt.Errorf("count members: %w", err)
	}
	if int(n) >= s.maxMembers() {
		return ErrChatFull
	}

	return s.db.WithContext(ctx).Create(&model.ChatMember{
		ChatID: chatID, UserID: userID, Role: model.ChatRoleMember,
	}).Error
}

// Leave removes a user from a group chat. When the owner leaves, the
// longest-standing admin (or failing that, member) is promoted; an
// emptied chat is deleted outright.
func (s *Service) Leave(ctx context.Context, chatID, userID int64) error {
	chat, err := s.chatByID(ctx, chatID)
	if err != nil {
		return err
	}
	if chat.Type != model.ChatGroup {
		return fmt.Errorf("%w: cannot leave a direct chat", ErrNotAllowed)
	}
	m, err := s.member(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if m == nil {
		return ErrNotMember
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_id = ? AND user_id = ?", chatID, userID).
			Delete(&model.ChatMember{}).Error; err != nil {
			return err
		}

		var rest []model.ChatMember
		if err := tx.Where("chat_id = ?", chatID).Order("joined_at asc").Find(&rest).Error; err != nil {
			return err
		}
		if len(rest) == 0 {
			if err := tx.Where("chat_id = ?", chatID).Delete(&model.ChatMessage{}).Error; err != nil {
				return err
			}
			return tx.Delete(&model.Chat{}, chatID).Error
		}

		if m.Role == model.ChatRoleOwner {
			heir := pickHeir(rest)
			if err := tx.Model(&model.ChatMember{}).
				Where("chat_id = ? AND user_id = ?", chatID, heir.UserID).
				Update("role", model.ChatRoleOwner).Error; err != nil {
				return err
			}
			if err := tx.Model(&model.Chat{}).Where("id = ?", chatID).
				Update("owner_id", heir.UserID).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Rename changes a group chat's name. Owner or admin only.
func (s *Service) Rename(ctx context.Context, chatID, actorID int64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: group name required", ErrNotAllowed)
	}
	if err := s.requireModerator(ctx, chatID, actorID); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&model.Chat{}).
		Where("id = ? AND type = ?", chatID, model.ChatGroup).
		Update("name", name).Error
}

// Promote makes a member an admin. Owner only.
func (s *Service) Promote(ctx context.Context, chatID, actorID int64, targetNick string) error {
	actor, err := s.member(ctx, chatID, actorID)
	if err != nil {
		return err
	}
	if actor == nil || actor.Role != model.ChatRoleOwner {
		return ErrNotAllowed
	}
	target, err := s.memberByNick(ctx, chatID, targetNick)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&model.ChatMember{}).
		Where("chat_id = ? AND user_id = ?", chatID, target.UserID).
		Update("role", model.ChatRoleAdmin).Error
}

// Ban flags a member as banned. The row is kept so the user cannot
// rejoin. Owner and admins can ban; nobody bans the owner.
func (s *Service) Ban(ctx context.Context, chatID, actorID int64, targetNick string) error {
	return s.moderate(ctx, chatID, actorID, targetNick, "banned", true)
}

// Mute silences a member without removing them.
func (s *Service) Mute(ctx context.Context, chatID, actorID int64, targetNick string) error {
	return s.moderate(ctx, chatID, actorID, targetNick, "muted", true)
}

// Unmute lifts a mute.
func (s *Service) Unmute(ctx context.Context, chatID, actorID int64, targetNick string) error {
	return s.moderate(ctx, chatID, actorID, targetNick, "muted", false)
}

func (s *Service) moderate(ctx context.Context, chatID, actorID int64, targetNick, column string, value bool) error {
	if err := s.requireModerator(ctx, chatID, actorID); err != nil {
		return err
	}
	target, err := s.memberByNick(ctx, chatID, targetNick)
	if err != nil {
		return err
	}
	if target.Role == model.ChatRoleOwner {
		return ErrNotAllowed
	}
	return s.db.WithContext(ctx).Model(&model.ChatMember{}).
		Where("chat_id = ? AND user_id = ?", chatID, target.UserID).
		Update(column, value).Error
}

func (s *Service) requireModerator(ctx context.Context, chatID, actorID int64) error {
	m, err := s.member(ctx, chatID, actorID)
	if err != nil {
		return err
	}
	if m == nil {
		return ErrNotMember
	}
	if m.Role != model.ChatRoleOwner && m.Role != model.ChatRoleAdmin {
		return ErrNotAllowed
	}
	return nil
}

func (s *Service) chatByID(ctx context.Context, chatID int64) (*model.Chat, error) {
	var chat model.Chat
	err := s.db.WithContext(ctx).First(&chat, chatID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load chat: %w", err)
	}
	return &chat, nil
}

func (s *Service) userByNick(ctx context.Context, nick string) (*model.User, error) {
	var u model.User
	err := s.db.WithContext(ctx).Where("nick = ?", nick).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &u, nil
}

func (s *Service) member(ctx context.Context, chatID, userID int64) (*model.ChatMember, error) {
	var m model.ChatMember
	err := s.db.WithContext(ctx).
		Where("chat_id = ? AND user_id = ?", chatID, userID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load member: %w", err)
	}
	return &m, nil
}

func (s *Service) memberByNick(ctx context.Context, chatID int64, nick string) (*model.ChatMember, error) {
	u, err := s.userByNick(ctx, nick)
	if err != nil {
		return nil, err
	}
	m, err := s.member(ctx, chatID, u.ID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNotMember
	}
	return m, nil
}

// findDirect returns the existing direct chat both users belong to.
func (s *Service) findDirect(ctx context.Context, a, b int64) (*model.Chat, error) {
	var chat model.Chat
	err := s.db.WithContext(ctx).
		Where("type = ?", model.ChatDirect).
		Where("id IN (?)", s.db.Model(&model.ChatMember{}).Select("chat_id").Where("user_id = ?", a)).
		Where("id IN (?)", s.db.Model(&model.ChatMember{}).Select("chat_id").Where("user_id = ?", b)).
		First(&chat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find direct chat: %w", err)
	}
	return &chat, nil
}

// hasBlock reports whether owner has a blocked relation targeting passive.
func (s *Service) hasBlock(ctx context.Context, ownerID, passiveID int64) bool {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Relation{}).
		Where("owner_id = ? AND type = ? AND passive_user_id = ?",
			ownerID, model.RelationBlocked, passiveID).
		Count(&n).Error
	if err != nil {
		s.logger.Warn("block lookup failed", zap.Error(err))
		return false
	}
	return n > 0
}

func (s *Service) maxMembers() int {
	if s.cfg.MaxGroupMembers > 0 {
		return s.cfg.MaxGroupMembers
	}
	return 50
}

func pickHeir(members []model.ChatMember) model.ChatMember {
	for _, m := range members {
		if m.Role == model.ChatRoleAdmin {
			return m
		}
	}
	return members[0]
}

// message payload sent to clients as a chat_recv packet.
type recvPayload struct {
	ChatID   int64  `json:"chat_id"`
	FromID   int64  `json:"from_id"`
	FromNick string `json:"from_nick"`
	Content  string `json:"content"`
	TS       int64  `json:"ts"`
}

// SendMessage validates, persists and fans out one chat message.
// Muted and banned members are rejected; in a direct chat a sender
// blocked by the other party is rejected too.
func (s *Service) SendMessage(ctx context.Context, chatID, senderID int64, content string) (*model.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	if len([]rune(content)) > maxMsgLen {
		return nil, ErrTooLong
	}

	chat, err := s.chatByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	m, err := s.member(ctx, chatID, senderID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNotMember
	}
	if m.Banned {
		return nil, ErrBanned
	}
	if m.Muted {
		return nil, ErrMuted
	}

	var members []model.ChatMember
	if err := s.db.WithContext(ctx).Where("chat_id = ?", chatID).Find(&members).Error; err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}
	if chat.Type == model.ChatDirect {
		for _, other := range members {
			if other.UserID != senderID && s.hasBlock(ctx, other.UserID, senderID) {
				return nil, ErrBlocked
			}
		}
	}

	var sender model.User
	if err := s.db.WithContext(ctx).First(&sender, senderID).Error; err != nil {
		return nil, fmt.Errorf("load sender: %w", err)
	}

	msg := &model.ChatMessage{ChatID: chatID, SenderID: senderID, Content: content}
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}

	payload, _ := json.Marshal(recvPayload{
		ChatID:   chatID,
		FromID:   senderID,
		FromNick: sender.Nick,
		Content:  content,
		TS:       time.Now().UnixMilli(),
	})
	recvPkt, _ := json.Marshal(&presence.Packet{Type: "chat_recv", Payload: payload})

	// Fan out to live member sessions, keep a trimmed history in the
	// cache and publish for SSE and other nodes.
	for _, member := range members {
		if member.Banned {
			continue
		}
		if sess := s.sm.Get(member.UserID); sess != nil {
			sess.SendRaw(recvPkt)
		}
	}
	ch := ChatChannel(chatID)
	_ = s.pubsub.Publish(ctx, ch, string(recvPkt))
	_ = s.cache.LPush(ctx, ch, string(recvPkt))
	_ = s.cache.LTrim(ctx, ch, 0, int64(s.historyLimit())-1)

	return msg, nil
}

// History returns the most recent messages of a chat, newest first.
// Served from the cache when warm, from the database otherwise.
func (s *Service) History(ctx context.Context, chatID, userID int64, limit int) ([]model.ChatMessage, error) {
	m, err := s.member(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNotMember
	}
	if m.Banned {
		return nil, ErrBanned
	}
	if limit <= 0 || limit > s.historyLimit() {
		limit = s.historyLimit()
	}

	var msgs []model.ChatMessage
	err = s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("id desc").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return msgs, nil
}

// IsMember reports whether the user is an active (not banned) member
// of the chat.
func (s *Service) IsMember(ctx context.Context, chatID, userID int64) bool {
	m, err := s.member(ctx, chatID, userID)
	return err == nil && m != nil && !m.Banned
}

// SendCachedHistory pushes the cached recent packets of a chat to a
// freshly connected session, oldest first.
func (s *Service) SendCachedHistory(ctx context.Context, sess *presence.Session, chatID int64) {
	msgs, err := s.cache.LRange(ctx, ChatChannel(chatID), 0, int64(s.historyLimit())-1)
	if err != nil {
		return
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		sess.SendRaw([]byte(msgs[i]))
	}
}

func (s *Service) historyLimit() int {
	if s.cfg.ChatHistory > 0 {
		return s.cfg.ChatHistory
	}
	return 200
}
