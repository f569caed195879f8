package model

import "time"

// Match records one finished game between two users. Counters on the User
// rows and the leaderboard sorted set are derived from these rows.
type Match struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	WinnerID    int64     `gorm:"index:idx_match_winner;not null" json:"winner_id"`
	LoserID     int64     `gorm:"index:idx_match_loser;not null" json:"loser_id"`
	WinnerScore int       `json:"winner_score"`
	LoserScore  int       `json:"loser_score"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}
