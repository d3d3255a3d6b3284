// Package affection implements the per-user relationship-state engine
// (spec.md §4.4): a bounded score in [0, 13] mapped onto sixteen named
// levels, nudged by a turn-scoring heuristic after every exchange and
// exposed as a per-level generation-temperature override.
//
// Grounded on original_source/src/core/Affection/Affection.py.
package affection

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/kurame123/confidant/internal/sqlitedriver"
)

// Level names, in ascending score order.
var levelNames = map[int]string{
	-2: "讨厌", -1: "差劲", 0: "不起眼", 1: "陌生", 2: "一般", 3: "稍熟",
	4: "熟悉", 5: "热情", 6: "亲密", 7: "喜欢", 8: "喜欢+", 9: "爱慕",
	10: "深爱", 11: "挚爱", 12: "命运", 13: "永恒",
}

type levelRange struct {
	level    int
	min, max float64
}

var levelRanges = []levelRange{
	{-2, 0.0, 1.0}, {-1, 1.1, 2.0}, {0, 2.1, 3.0}, {1, 3.1, 4.0},
	{2, 4.1, 5.0}, {3, 5.1, 6.0}, {4, 6.1, 7.0}, {5, 7.1, 8.0},
	{6, 8.1, 9.0}, {7, 9.1, 10.0}, {8, 10.1, 11.0}, {9, 11.1, 11.5},
	{10, 11.6, 12.0}, {11, 12.1, 12.5}, {12, 12.6, 12.9}, {13, 13.0, 13.0},
}

// TempEnvKeys maps a level to the environment variable name that can
// override its generation temperature (spec.md §4.4, config.AffectionConfig).
var TempEnvKeys = map[int]string{
	-2: "AFF_TEMP_HATE", -1: "AFF_TEMP_BAD", 0: "AFF_TEMP_UNNOTICED",
	1: "AFF_TEMP_STRANGER", 2: "AFF_TEMP_NORMAL", 3: "AFF_TEMP_LITTLE",
	4: "AFF_TEMP_FAMILIAR", 5: "AFF_TEMP_WARM", 6: "AFF_TEMP_INTIMATE",
	7: "AFF_TEMP_LIKE", 8: "AFF_TEMP_LIKE_PLUS", 9: "AFF_TEMP_ADORE",
	10: "AFF_TEMP_DEEP_LOVE", 11: "AFF_TEMP_TRUE_LOVE", 12: "AFF_TEMP_DESTINY",
	13: "AFF_TEMP_ETERNAL",
}

var positiveLightWords = []string{
	"谢谢", "辛苦了", "真好", "可爱", "抱抱", "想你", "喜欢你",
	"厉害", "棒", "好棒", "开心", "高兴", "感谢", "爱你", "么么",
	"亲亲", "摸摸", "贴贴", "蹭蹭", "好喜欢", "超棒",
}

var positiveStrongWords = []string{
	"超喜欢你", "最爱你", "离不开你", "我爱你", "永远喜欢",
	"太爱了", "超级爱", "最喜欢你", "爱死你了",
}

var negativeLightWords = []string{"无聊", "烦", "不高兴", "不开心", "累了", "算了", "懒得"}

var negativeStrongWords = []string{
	"讨厌你", "闭嘴", "滚", "垃圾", "傻逼", "不想理你",
	"烦死了", "去死", "恶心", "讨厌",
}

var emoticonPatterns = []string{
	"~", "w", "ww", "qwq", "QwQ", "T_T", "TvT", "owo", "OwO",
	"哈哈", "嘿嘿", "嘻嘻", "呜呜", "(*´ω｀*)", "(´・ω・`)",
	"≧▽≦", "^_^", ">_<", "QAQ", "TAT",
}

var coldShortReplies = map[string]bool{
	"嗯": true, "哦": true, "行": true, "好": true, "？": true, "?": true,
	"。": true, "...": true, "……": true,
}

// ScoreToLevel maps a score to its named level, clamping out-of-range
// scores to the nearest boundary. A score falling between two bands'
// listed bounds (e.g. 1.05) maps to the higher band.
func ScoreToLevel(score float64) int {
	if score < 0.0 {
		return -2
	}
	for _, r := range levelRanges {
		if score <= r.max {
			return r.level
		}
	}
	return 13
}

// LevelName returns the display name for level, or "未知" if unknown.
func LevelName(level int) string {
	if n, ok := levelNames[level]; ok {
		return n
	}
	return "未知"
}

// Record is one user's stored relationship state.
type Record struct {
	UserID            string
	Score             float64
	Level             int
	TotalInteractions int
	LastInteractAt    time.Time
}

// Store persists relationship state in SQLite, one row per user.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the affection database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("affection: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	const schema = `
CREATE TABLE IF NOT EXISTS user_affection (
	user_id TEXT PRIMARY KEY,
	affection_score REAL NOT NULL DEFAULT 0.0,
	last_level INTEGER NOT NULL DEFAULT -2,
	total_interactions INTEGER NOT NULL DEFAULT 0,
	last_interact_at TEXT
)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("affection: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// GetOrCreate returns userID's current score and level, inserting a fresh
// "讨厌"-level row (score 0.0) if none exists.
func (s *Store) GetOrCreate(ctx context.Context, userID string) (score float64, level int, err error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT affection_score, last_level FROM user_affection WHERE user_id = ?`, userID)
	if err := row.Scan(&score, &level); err == nil {
		return score, level, nil
	} else if err != sql.ErrNoRows {
		return 0, 0, fmt.Errorf("affection: get %s: %w", userID, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO user_affection (user_id, affection_score, last_level, total_interactions, last_interact_at)
		 VALUES (?, 0.0, -2, 0, ?)`, userID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, 0, fmt.Errorf("affection: create %s: %w", userID, err)
	}
	return 0.0, -2, nil
}

func (s *Store) setScore(ctx context.Context, userID string, score float64, level int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE user_affection
		 SET affection_score = ?, last_level = ?,
		     total_interactions = total_interactions + 1,
		     last_interact_at = ?
		 WHERE user_id = ?`,
		score, level, time.Now().UTC().Format(time.RFC3339), userID)
	if err != nil {
		return fmt.Errorf("affection: update %s: %w", userID, err)
	}
	return nil
}

// Override forces userID's score to an admin-supplied value, recomputing
// its level, without counting as a turn (spec.md §6 admin "affection score
// override"). Score is clamped to the same [0, 13] range as Update.
func (s *Store) Override(ctx context.Context, userID string, score float64) (Info, error) {
	if _, _, err := s.GetOrCreate(ctx, userID); err != nil {
		return Info{}, err
	}
	score = clamp(score, 0.0, 13.0)
	level := ScoreToLevel(score)
	if _, err := s.db.ExecContext(ctx,
		`UPDATE user_affection SET affection_score = ?, last_level = ? WHERE user_id = ?`,
		score, level, userID); err != nil {
		return Info{}, fmt.Errorf("affection: override %s: %w", userID, err)
	}
	return s.GetInfo(ctx, userID)
}

// Update scores one turn and persists the new state, returning the updated
// score. Algorithm ported verbatim from the original service: a base delta
// of +0.05 adjusted by message length, keyword/punctuation/emoticon
// signals, a level-dependent growth coefficient, and a ±0.5 per-turn clamp.
func (s *Store) Update(ctx context.Context, userID, userMessage, _ string) (float64, error) {
	oldScore, _, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return 0, err
	}

	delta := turnDelta(userMessage, oldScore)
	newScore := clamp(oldScore+delta, 0.0, 13.0)
	newLevel := ScoreToLevel(newScore)

	if err := s.setScore(ctx, userID, newScore, newLevel); err != nil {
		return 0, err
	}
	return newScore, nil
}

func turnDelta(userMessage string, oldScore float64) float64 {
	u := strings.TrimSpace(userMessage)
	length := len([]rune(u))

	delta := 0.05

	if length > 40 {
		delta += 0.05
	}
	if length > 100 {
		delta += 0.05
	}

	lightHits := 0
	for _, w := range positiveLightWords {
		if strings.Contains(u, w) {
			lightHits++
		}
	}
	if bonus := float64(lightHits) * 0.05; bonus > 0.15 {
		delta += 0.15
	} else {
		delta += bonus
	}

	for _, w := range positiveStrongWords {
		if strings.Contains(u, w) {
			delta += 0.15
			break
		}
	}

	if strings.Contains(u, "?") || strings.Contains(u, "？") {
		delta += 0.05
	}

	for _, p := range emoticonPatterns {
		if strings.Contains(u, p) {
			delta += 0.05
			break
		}
	}

	for _, w := range negativeLightWords {
		if strings.Contains(u, w) {
			delta -= 0.1
			break
		}
	}

	for _, w := range negativeStrongWords {
		if strings.Contains(u, w) {
			delta -= 0.3
			break
		}
	}

	if length <= 3 && coldShortReplies[u] {
		delta -= 0.05
	}

	delta *= growthCoefficient(oldScore)

	return clamp(delta, -0.5, 0.5)
}

func growthCoefficient(oldScore float64) float64 {
	switch {
	case oldScore <= 3.0:
		return 1.2
	case oldScore <= 6.0:
		return 1.0
	case oldScore <= 9.0:
		return 0.7
	case oldScore <= 11.0:
		return 0.5
	case oldScore <= 12.5:
		return 0.3
	default:
		return 0.1
	}
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// TemperatureFor resolves the generation temperature bound to userID's
// current level, falling back to defaultTemp for new users (score <= 0)
// or levels without a configured override.
func (s *Store) TemperatureFor(ctx context.Context, userID string, defaultTemp float64, levelTemps map[int]float64) (float64, error) {
	score, _, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return 0, err
	}
	if score <= 0.0 {
		return defaultTemp, nil
	}
	level := ScoreToLevel(score)
	if t, ok := levelTemps[level]; ok {
		return t, nil
	}
	return defaultTemp, nil
}

// Info is the display-ready relationship snapshot (spec.md §6 admin surface).
type Info struct {
	Score             float64
	Level             int
	LevelName         string
	TotalInteractions int
}

// GetInfo returns a display-ready snapshot for userID.
func (s *Store) GetInfo(ctx context.Context, userID string) (Info, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT affection_score, last_level, total_interactions FROM user_affection WHERE user_id = ?`, userID)

	var score float64
	var level, interactions int
	switch err := row.Scan(&score, &level, &interactions); err {
	case nil:
		return Info{Score: round2(score), Level: level, LevelName: LevelName(level), TotalInteractions: interactions}, nil
	case sql.ErrNoRows:
		return Info{LevelName: LevelName(-2), Level: -2}, nil
	default:
		return Info{}, fmt.Errorf("affection: info %s: %w", userID, err)
	}
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
