package social

import (
	"time"

	"github.com/ft-transcendence/server/model"
)

// StatusFunc resolves a nickname to a presence status string
// (online, ingame, offline).
type StatusFunc func(nick string) string

// NotificationView is a lightweight notification summary.
type NotificationView struct {
	ID         int64     `json:"id"`
	Type       string    `json:"type"`
	SourceNick string    `json:"source_nick"`
	Info       string    `json:"info,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// FriendView is one entry of a user's friend list.
type FriendView struct {
	Nick      string `json:"nick"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Status    string `json:"status,omitempty"`
}

// BlockedView is one entry of a user's block list.
type BlockedView struct {
	Nick      string `json:"nick"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// ChatView summarizes one chat membership. Members excludes the
// profile owner.
type ChatView struct {
	ID      int64    `json:"id"`
	Type    string   `json:"type"`
	Name    string   `json:"name,omitempty"`
	Members []string `json:"members"`
}

// ProfileView is the read model returned to a signed-in user. It is
// recomputed from the aggregate on every call and holds no state.
type ProfileView struct {
	ID            int64              `json:"id"`
	Email         string             `json:"email"`
	Nick          string             `json:"nick"`
	FirstName     string             `json:"first_name"`
	FullName      string             `json:"full_name"`
	AvatarURL     string             `json:"avatar_url"`
	Matches       string             `json:"matches"`
	Wins          string             `json:"wins"`
	Losses        string             `json:"losses"`
	TFAEnabled    bool               `json:"tfa_enabled"`
	Notifications []NotificationView `json:"notifications"`
	Friends       []FriendView       `json:"friends"`
	Blocked       []BlockedView      `json:"blocked"`
	Chats         []ChatView         `json:"chats"`
}

// BuildProfile projects a user aggregate into its profile view.
// statusOf may be nil; friend statuses are then left empty.
func BuildProfile(u *model.User, statusOf StatusFunc) ProfileView {
	view := ProfileView{
		ID:            u.ID,
		Email:         u.Email,
		Nick:          u.Nick,
		FirstName:     u.FirstName,
		FullName:      u.FullName,
		AvatarURL:     u.AvatarURL,
		Matches:       u.Matches,
		Wins:          u.Wins,
		Losses:        u.Losses,
		TFAEnabled:    u.TFAEnabled,
		Notifications: make([]NotificationView, 0, len(u.Notifications)),
		Friends:       []FriendView{},
		Blocked:       []BlockedView{},
		Chats:         make([]ChatView, 0, len(u.Chats)),
	}

	for _, n := range u.Notifications {
		nv := NotificationView{
			ID:        n.ID,
			Type:      n.Type,
			Info:      string(n.AdditionalInfo),
			CreatedAt: n.CreatedAt,
		}
		if n.SourceUser != nil {
			nv.SourceNick = n.SourceUser.Nick
		}
		view.Notifications = append(view.Notifications, nv)
	}

	for _, r := range u.Relations {
		if r.PassiveUser == nil {
			continue
		}
		switch r.Type {
		case model.RelationFriend:
			fv := FriendView{Nick: r.PassiveUser.Nick, AvatarURL: r.PassiveUser.AvatarURL}
			if statusOf != nil {
				fv.Status = statusOf(fv.Nick)
			}
			view.Friends = append(view.Friends, fv)
		case model.RelationBlocked:
			view.Blocked = append(view.Blocked, BlockedView{
				Nick:      r.PassiveUser.Nick,
				AvatarURL: r.PassiveUser.AvatarURL,
			})
		}
	}

	for _, chat := range u.Chats {
		cv := ChatView{
			ID:      chat.ID,
			Type:    chat.Type,
			Name:    chat.Name,
			Members: []string{},
		}
		for _, m := range chat.Members {
			if m.ID == u.ID {
				continue
			}
			cv.Members = append(cv.Members, m.Nick)
		}
		view.Chats = append(view.Chats, cv)
	}

	return view
}
