// Package adminhttp implements the admin HTTP surface spec.md §6 describes
// as "not part of the core contract; specified as a view over core data":
// read endpoints for statistics, affection, graph, and raw table data, plus
// mutation endpoints for affection override, graph clear, and ban/unban.
// Every route authenticates via a shared token in ?token= or an
// Authorization: Bearer header.
//
// Grounded on the gin-gonic/gin router the pack's codeready-toolchain-tarsy
// repo builds its API server on (pkg/api/handlers.go), since the teacher
// itself exposes no HTTP admin surface of its own.
package adminhttp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kurame123/confidant/internal/affection"
	"github.com/kurame123/confidant/internal/blacklist"
	"github.com/kurame123/confidant/internal/config"
	"github.com/kurame123/confidant/internal/jsontime"
	"github.com/kurame123/confidant/internal/kgraph"
	"github.com/kurame123/confidant/internal/stats"
	_ "github.com/kurame123/confidant/internal/sqlitedriver"
)

// Deps bundles the stores the admin surface reads and mutates. Graph is
// optional: nil disables every /graph route with 404.
type Deps struct {
	Affection *affection.Store
	Blacklist *blacklist.Store
	Graph     *kgraph.Store
	Stats     *stats.Store
	Logger    *slog.Logger
}

// browsableTable allow-lists one SELECT-able table within one named
// database, so /api/tables and /api/select can never reach beyond the
// persisted layout spec.md §6 actually documents.
type browsableTable struct {
	db, table string
}

// browsable is the fixed allow-list backing the per-table browser and the
// constrained SELECT executor (spec.md §6 "per-table browsing ... and a
// constrained SELECT executor"). memstore's per-user/per-group databases
// are deliberately excluded: their count is unbounded and per-scope, not
// part of the small fixed admin surface the spec calls out.
var browsable = []browsableTable{
	{"affection", "user_affection"},
	{"guard", "temp_blacklist"},
	{"stats", "global_stats"},
	{"stats", "model_usage"},
	{"stats", "daily_stats"},
	{"stats", "daily_model_usage"},
	{"stats", "user_stats"},
	{"knowledge_graph", "kg_nodes"},
	{"knowledge_graph", "kg_edges"},
}

func isBrowsable(db, table string) bool {
	for _, b := range browsable {
		if b.db == db && b.table == table {
			return true
		}
	}
	return false
}

// Server is the admin HTTP server. Construct with New and run with
// ListenAndServe.
type Server struct {
	deps   Deps
	cfg    config.AdminHTTPConfig
	engine *gin.Engine
	browse map[string]*sql.DB // db name -> read-only handle, for table/select routes
}

// New builds the admin server, opening a read-only handle to each named
// database in dbPaths (keys matching browsable's db field) for the
// table-browser and SELECT routes. dbPaths entries not present in
// browsable are ignored.
func New(deps Deps, cfg config.AdminHTTPConfig, dbPaths map[string]string) (*Server, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.Token == "" {
		deps.Logger.Warn("adminhttp: no token configured, admin surface will reject every request")
	}

	browse := make(map[string]*sql.DB, len(dbPaths))
	for name, path := range dbPaths {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", path))
		if err != nil {
			return nil, fmt.Errorf("adminhttp: open %s read-only: %w", path, err)
		}
		browse[name] = db
	}

	s := &Server{deps: deps, cfg: cfg, browse: browse}
	s.engine = s.buildRouter()
	return s, nil
}

// Close releases the read-only table-browser handles.
func (s *Server) Close() {
	for _, db := range s.browse {
		db.Close()
	}
}

// ListenAndServe blocks serving the admin surface on cfg.Addr.
func (s *Server) ListenAndServe() error {
	return s.engine.Run(s.cfg.Addr)
}

func (s *Server) buildRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := r.Group("/api", s.authMiddleware())
	api.GET("/stats/global", s.getGlobalStats)
	api.GET("/stats/daily", s.getDailyStats)
	api.GET("/affection/:user", s.getAffection)
	api.POST("/affection/:user", s.overrideAffection)
	api.GET("/graph/users", s.getGraphUsers)
	api.GET("/graph/:user/entities", s.getGraphEntities)
	api.DELETE("/graph/:user", s.clearGraphUser)
	api.DELETE("/graph", s.clearGraphAll)
	api.GET("/blacklist", s.listBans)
	api.POST("/blacklist/:user", s.banUser)
	api.DELETE("/blacklist/:user", s.unbanUser)
	api.GET("/tables/:db/:table", s.browseTable)
	api.POST("/select", s.runSelect)

	return r
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.Token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin token not configured"})
			return
		}
		token := c.Query("token")
		if token == "" {
			if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				token = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if token != s.cfg.Token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}

func (s *Server) getGlobalStats(c *gin.Context) {
	g, err := s.deps.Stats.GetGlobalStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, g)
}

func (s *Server) getDailyStats(c *gin.Context) {
	days, _ := strconv.Atoi(c.Query("days"))
	d, err := s.deps.Stats.GetDailyStats(c.Request.Context(), days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) getAffection(c *gin.Context) {
	info, err := s.deps.Affection.GetInfo(c.Request.Context(), c.Param("user"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, info)
}

type overrideAffectionRequest struct {
	Score float64 `json:"score" binding:"required"`
}

func (s *Server) overrideAffection(c *gin.Context) {
	var req overrideAffectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	info, err := s.deps.Affection.Override(c.Request.Context(), c.Param("user"), req.Score)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) getGraphUsers(c *gin.Context) {
	if s.deps.Graph == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "graph disabled"})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	if limit <= 0 {
		limit = 100
	}
	users, err := s.deps.Graph.UsersWithNodes(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (s *Server) getGraphEntities(c *gin.Context) {
	if s.deps.Graph == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "graph disabled"})
		return
	}
	entities, err := s.deps.Graph.Entities(c.Request.Context(), c.Param("user"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entities": entities})
}

func (s *Server) clearGraphUser(c *gin.Context) {
	if s.deps.Graph == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "graph disabled"})
		return
	}
	if err := s.deps.Graph.ClearUser(c.Request.Context(), c.Param("user")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) clearGraphAll(c *gin.Context) {
	if s.deps.Graph == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "graph disabled"})
		return
	}
	if err := s.deps.Graph.ClearAll(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// banView is blacklist.Ban's wire shape: timestamps go over the admin API
// as Unix seconds rather than RFC3339, via internal/jsontime, the same
// epoch convention the teacher's device-telemetry APIs use.
type banView struct {
	UserID    string        `json:"user_id"`
	ExpiresAt jsontime.Unix `json:"expires_at"`
	Reason    string        `json:"reason"`
	BlockedAt jsontime.Unix `json:"blocked_at"`
	BlockedBy string        `json:"blocked_by"`
	HitCount  int           `json:"hit_count"`
}

func toBanView(b blacklist.Ban) banView {
	return banView{
		UserID:    b.UserID,
		ExpiresAt: jsontime.Unix(b.ExpiresAt),
		Reason:    b.Reason,
		BlockedAt: jsontime.Unix(b.BlockedAt),
		BlockedBy: b.BlockedBy,
		HitCount:  b.HitCount,
	}
}

func (s *Server) listBans(c *gin.Context) {
	bans, err := s.deps.Blacklist.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	views := make([]banView, len(bans))
	for i, b := range bans {
		views[i] = toBanView(b)
	}
	c.JSON(http.StatusOK, gin.H{"bans": views})
}

type banRequest struct {
	Minutes int    `json:"minutes" binding:"required"`
	Reason  string `json:"reason"`
}

func (s *Server) banUser(c *gin.Context) {
	var req banRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ban, err := s.deps.Blacklist.Ban(c.Request.Context(), c.Param("user"), req.Minutes, req.Reason, "admin")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toBanView(ban))
}

func (s *Server) unbanUser(c *gin.Context) {
	ok, err := s.deps.Blacklist.Unban(c.Request.Context(), c.Param("user"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unbanned": ok})
}

// identRe matches a bare SQL identifier, used to validate path/query
// parameters before they are interpolated into a query string (the
// sqlite3 driver has no placeholder syntax for table/column names).
var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (s *Server) browseTable(c *gin.Context) {
	dbName, table := c.Param("db"), c.Param("table")
	if !isBrowsable(dbName, table) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown table"})
		return
	}
	db, ok := s.browse[dbName]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "database not available"})
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset, _ := strconv.Atoi(c.Query("offset"))

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	rows, cols, err := queryRows(ctx, db, fmt.Sprintf("SELECT * FROM %s LIMIT ? OFFSET ?", table), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"columns": cols, "rows": rows})
}

type selectRequest struct {
	DB    string `json:"db" binding:"required"`
	Query string `json:"query" binding:"required"`
}

var disallowedSQL = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|attach|pragma|create)\b`)

// runSelect executes a read-only, single-statement SELECT against one of
// the allow-listed admin databases (spec.md §6 "a constrained SELECT
// executor"). It rejects anything but a single SELECT statement touching
// an allow-listed table, and caps the result at 500 rows.
func (s *Server) runSelect(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	query := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(req.Query), ";"))
	if strings.Contains(query, ";") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only a single statement is allowed"})
		return
	}
	if !strings.HasPrefix(strings.ToLower(query), "select") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only SELECT statements are allowed"})
		return
	}
	if disallowedSQL.MatchString(query) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "statement contains a disallowed keyword"})
		return
	}
	if !referencesOnlyBrowsable(req.DB, query) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query does not reference an allow-listed table"})
		return
	}

	db, ok := s.browse[req.DB]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown database"})
		return
	}
	if !strings.Contains(strings.ToLower(query), "limit") {
		query += " LIMIT 500"
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	rows, cols, err := queryRows(ctx, db, query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"columns": cols, "rows": rows})
}

// referencesOnlyBrowsable is a coarse guard: it requires the query text
// to mention at least one allow-listed table name for dbName and none of
// this database's tables not on the allow-list (every table in this
// binary's schemas happens to already be allow-listed, so this reduces
// to "mentions a real table").
func referencesOnlyBrowsable(dbName, query string) bool {
	lower := strings.ToLower(query)
	for _, b := range browsable {
		if b.db == dbName && strings.Contains(lower, strings.ToLower(b.table)) {
			return true
		}
	}
	return false
}

// queryRows runs query and scans every row into a slice of column->value
// maps, since the admin browser has no static row type per table.
func queryRows(ctx context.Context, db *sql.DB, query string, args ...any) ([]map[string]any, []string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	sorted := append([]string(nil), cols...)
	sort.Strings(sorted) // stable column ordering for callers

	var out []map[string]any
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = raw[i]
		}
		out = append(out, row)
	}
	return out, sorted, rows.Err()
}
