package rest

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ft-transcendence/server/cache"
	"github.com/ft-transcendence/server/model"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const leaderboardZKey = "leaderboard:wins"
const leaderboardTop = 100

// LeaderboardHandler serves the wins leaderboard and records match
// results.
type LeaderboardHandler struct {
	db     *gorm.DB
	cache  cache.Cache
	logger *zap.Logger
}

// NewLeaderboardHandler creates a LeaderboardHandler.
func NewLeaderboardHandler(db *gorm.DB, c cache.Cache, logger *zap.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{db: db, cache: c, logger: logger}
}

// LeaderboardEntry is one row in the leaderboard.
type LeaderboardEntry struct {
	Rank      int    `json:"rank"`
	Nick      string `json:"nick"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Wins      int64  `json:"wins"`
}

// Top returns the users with the most wins.
// GET /api/leaderboard?limit=20
func (h *LeaderboardHandler) Top(c *gin.Context) {
	limit := 20
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= leaderboardTop {
		limit = l
	}

	// Try the cached sorted set first.
	ctx := c.Request.Context()
	members, err := h.cache.ZRevRange(ctx, leaderboardZKey, 0, int64(limit-1))
	if err == nil && len(members) > 0 {
		entries := make([]LeaderboardEntry, 0, len(members))
		for i, nick := range members {
			score, _ := h.cache.ZScore(ctx, leaderboardZKey, nick)
			entries = append(entries, LeaderboardEntry{
				Rank: i + 1,
				Nick: nick,
				Wins: int64(score),
			})
		}
		h.enrichAvatars(entries)
		c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
		return
	}

	// Fall back to the DB. Wins are stored as strings, so order by the
	// numeric cast.
	var users []model.User
	h.db.Select("nick, avatar_url, wins").
		Order("CAST(wins AS INTEGER) DESC").
		Limit(limit).
		Find(&users)

	entries := make([]LeaderboardEntry, len(users))
	for i, u := range users {
		wins, _ := strconv.ParseInt(u.Wins, 10, 64)
		entries[i] = LeaderboardEntry{
			Rank:      i + 1,
			Nick:      u.Nick,
			AvatarURL: u.AvatarURL,
			Wins:      wins,
		}
		_ = h.cache.ZAdd(ctx, leaderboardZKey, float64(wins), u.Nick)
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
}

// Refresh rebuilds the leaderboard sorted set from the DB. Registered
// as a scheduler ticker and exposed as POST /api/admin/leaderboard/refresh.
func (h *LeaderboardHandler) Refresh(c *gin.Context) {
	n, err := h.RebuildCache(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"refreshed": n})
}

// RebuildCache reloads the top rows into the sorted set.
func (h *LeaderboardHandler) RebuildCache(ctx context.Context) (int, error) {
	var users []model.User
	err := h.db.Select("nick, wins").
		Order("CAST(wins AS INTEGER) DESC").
		Limit(leaderboardTop).
		Find(&users).Error
	if err != nil {
		return 0, err
	}
	for _, u := range users {
		wins, _ := strconv.ParseInt(u.Wins, 10, 64)
		_ = h.cache.ZAdd(ctx, leaderboardZKey, float64(wins), u.Nick)
	}
	return len(users), nil
}

type matchRequest struct {
	WinnerNick  string `json:"winner_nick" binding:"required"`
	LoserNick   string `json:"loser_nick" binding:"required"`
	WinnerScore int    `json:"winner_score"`
	LoserScore  int    `json:"loser_score"`
}

// RecordMatch handles POST /api/matches.
// Stores the match and bumps both players' string counters.
func (h *LeaderboardHandler) RecordMatch(c *gin.Context) {
	var req matchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.WinnerNick == req.LoserNick {
		c.JSON(http.StatusBadRequest, gin.H{"error": "winner and loser must differ"})
		return
	}

	var winner, loser model.User
	if err := h.db.Where("nick = ?", req.WinnerNick).First(&winner).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "winner not found"})
		return
	}
	if err := h.db.Where("nick = ?", req.LoserNick).First(&loser).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "loser not found"})
		return
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&model.Match{
			WinnerID:    winner.ID,
			LoserID:     loser.ID,
			WinnerScore: req.WinnerScore,
			LoserScore:  req.LoserScore,
		}).Error; err != nil {
			return err
		}
		if err := tx.Model(&winner).Updates(map[string]interface{}{
			"matches": bump(winner.Matches),
			"wins":    bump(winner.Wins),
		}).Error; err != nil {
			return err
		}
		return tx.Model(&loser).Updates(map[string]interface{}{
			"matches": bump(loser.Matches),
			"losses":  bump(loser.Losses),
		}).Error
	})
	if err != nil {
		h.logger.Error("record match failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	wins, _ := strconv.ParseInt(bump(winner.Wins), 10, 64)
	_ = h.cache.ZAdd(c.Request.Context(), leaderboardZKey, float64(wins), winner.Nick)

	c.JSON(http.StatusCreated, gin.H{"message": "recorded"})
}

// bump increments a numeric counter kept as a string column.
func bump(s string) string {
	n, _ := strconv.ParseInt(s, 10, 64)
	return strconv.FormatInt(n+1, 10)
}

func (h *LeaderboardHandler) enrichAvatars(entries []LeaderboardEntry) {
	if len(entries) == 0 {
		return
	}
	nicks := make([]string, len(entries))
	for i, e := range entries {
		nicks[i] = e.Nick
	}
	var users []model.User
	h.db.Select("nick, avatar_url").Where("nick IN ?", nicks).Find(&users)
	avatars := make(map[string]string, len(users))
	for _, u := range users {
		avatars[u.Nick] = u.AvatarURL
	}
	for i := range entries {
		entries[i].AvatarURL = avatars[entries[i].Nick]
	}
}
