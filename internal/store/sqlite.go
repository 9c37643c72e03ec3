package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/mimiza/smm/internal/domain"
)

const dateLayout = "2006-01-02"

// SQLite is the production Store backed by a sqlite database file.
type SQLite struct {
	db   *sql.DB
	path string
}

// NewSQLite opens (or creates) the database at path and migrates the schema.
func NewSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLite{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLite) Path() string {
	return s.path
}

func (s *SQLite) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS activity_plan (
		id TEXT PRIMARY KEY,
		enabled INTEGER NOT NULL DEFAULT 1,
		kind TEXT NOT NULL,
		start_date TEXT,
		end_date TEXT,
		start_time_seconds INTEGER NOT NULL DEFAULT 0,
		end_time_seconds INTEGER NOT NULL DEFAULT 0,
		duration_seconds INTEGER NOT NULL DEFAULT 0,
		agents_json TEXT,
		agent_groups_json TEXT,
		mechanisms_json TEXT,
		activities_json TEXT,
		plans_json TEXT,
		owner TEXT
	);

	CREATE TABLE IF NOT EXISTS agent (
		id TEXT PRIMARY KEY,
		provider TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		uid TEXT,
		alias TEXT,
		display_name TEXT,
		description TEXT,
		audience_size INTEGER NOT NULL DEFAULT 0,
		credentials_json TEXT
	);

	CREATE TABLE IF NOT EXISTS agent_group (
		id TEXT PRIMARY KEY,
		agents_json TEXT
	);

	CREATE TABLE IF NOT EXISTS content_mechanism (
		id TEXT PRIMARY KEY,
		enabled INTEGER NOT NULL DEFAULT 1,
		prompts_json TEXT,
		feed_providers_json TEXT,
		feeds_json TEXT,
		length INTEGER NOT NULL DEFAULT 0,
		generate_image INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS prompt (
		id TEXT PRIMARY KEY,
		description TEXT
	);

	CREATE TABLE IF NOT EXISTS content (
		id TEXT PRIMARY KEY,
		mechanism TEXT,
		title TEXT,
		description TEXT,
		image TEXT,
		created DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS network_activity (
		id TEXT PRIMARY KEY,
		plan TEXT,
		agent TEXT NOT NULL,
		kind TEXT NOT NULL,
		schedule DATETIME NOT NULL,
		status TEXT NOT NULL,
		links_json TEXT,
		links_hash TEXT NOT NULL,
		mechanism TEXT,
		predecessor TEXT,
		content TEXT,
		external_id TEXT,
		payload TEXT,
		response TEXT,
		response_status INTEGER NOT NULL DEFAULT 0,
		created DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_activity_scan
		ON network_activity(status, schedule);
	CREATE INDEX IF NOT EXISTS idx_activity_context
		ON network_activity(plan, agent, schedule);
	-- Conditional-insert guard: at most one Pending activity per
	-- (plan, agent, resolved slot bindings, schedule). Concurrent walks for
	-- the same combination compute the same earliest slot and collide here;
	-- a later walk may still queue a second Pending at a later slot.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_activity_pending_unique
		ON network_activity(plan, agent, links_hash, schedule)
		WHERE status = 'Pending';

	CREATE TABLE IF NOT EXISTS feed_provider (
		id TEXT PRIMARY KEY,
		enabled INTEGER NOT NULL DEFAULT 1,
		type TEXT NOT NULL,
		url TEXT,
		refresh_seconds INTEGER NOT NULL DEFAULT 0,
		fetched DATETIME,
		virtual INTEGER NOT NULL DEFAULT 0,
		payload TEXT,
		response TEXT,
		response_status INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS feed (
		id TEXT PRIMARY KEY,
		provider TEXT,
		title TEXT,
		description TEXT,
		url TEXT,
		image TEXT,
		created DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_feed_provider ON feed(provider, created);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLite) GetPlan(ctx context.Context, id string) (*domain.ActivityPlan, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, enabled, kind, start_date, end_date, start_time_seconds,
		       end_time_seconds, duration_seconds, agents_json,
		       agent_groups_json, mechanisms_json, activities_json,
		       plans_json, owner
		FROM activity_plan WHERE id = ?`, id)
	return scanPlan(row)
}

func (s *SQLite) ListEnabledPlans(ctx context.Context) ([]*domain.ActivityPlan, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, enabled, kind, start_date, end_date, start_time_seconds,
		       end_time_seconds, duration_seconds, agents_json,
		       agent_groups_json, mechanisms_json, activities_json,
		       plans_json, owner
		FROM activity_plan WHERE enabled = 1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.ActivityPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PutPlan upserts a plan. Reference data management, not part of the engine
// Store surface.
func (s *SQLite) PutPlan(ctx context.Context, p *domain.ActivityPlan) error {
	var startDate, endDate any
	if p.StartDate != nil {
		startDate = p.StartDate.Format(dateLayout)
	}
	if p.EndDate != nil {
		endDate = p.EndDate.Format(dateLayout)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_plan (id, enabled, kind, start_date, end_date,
			start_time_seconds, end_time_seconds, duration_seconds,
			agents_json, agent_groups_json, mechanisms_json,
			activities_json, plans_json, owner)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			enabled = excluded.enabled, kind = excluded.kind,
			start_date = excluded.start_date, end_date = excluded.end_date,
			start_time_seconds = excluded.start_time_seconds,
			end_time_seconds = excluded.end_time_seconds,
			duration_seconds = excluded.duration_seconds,
			agents_json = excluded.agents_json,
			agent_groups_json = excluded.agent_groups_json,
			mechanisms_json = excluded.mechanisms_json,
			activities_json = excluded.activities_json,
			plans_json = excluded.plans_json, owner = excluded.owner`,
		p.ID, p.Enabled, string(p.Kind), startDate, endDate,
		int(p.StartTime.Seconds()), int(p.EndTime.Seconds()),
		int(p.Duration.Seconds()), marshal(p.Agents), marshal(p.AgentGroups),
		marshal(p.Mechanisms), marshal(p.Activities), marshal(p.Plans), p.Owner)
	return err
}

func (s *SQLite) GetAgent(ctx context.Context, id string) (*domain.Agent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, provider, enabled, uid, alias, display_name, description,
		       audience_size, credentials_json
		FROM agent WHERE id = ?`, id)
	return scanAgent(row)
}

func (s *SQLite) ListAgents(ctx context.Context, provider domain.Provider) ([]*domain.Agent, error) {
	query := `SELECT id, provider, enabled, uid, alias, display_name,
		description, audience_size, credentials_json FROM agent`
	args := []any{}
	if provider != "" {
		query += ` WHERE provider = ?`
		args = append(args, string(provider))
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLite) AgentsInGroups(ctx context.Context, groups []string) ([]*domain.Agent, error) {
	if len(groups) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(groups)-1) + "?"
	args := make([]any, len(groups))
	for i, g := range groups {
		args[i] = g
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT agents_json FROM agent_group WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := make(map[string]bool)
	var ids []string
	for rows.Next() {
		var raw sql.NullString
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		for _, id := range unmarshalStrings(raw) {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []*domain.Agent
	for _, id := range ids {
		a, err := s.GetAgent(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *SQLite) UpdateAgent(ctx context.Context, agent *domain.Agent) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE agent SET provider = ?, enabled = ?, uid = ?, alias = ?,
			display_name = ?, description = ?, audience_size = ?,
			credentials_json = ?
		WHERE id = ?`,
		string(agent.Provider), agent.Enabled, agent.UID, agent.Alias,
		agent.DisplayName, agent.Description, agent.AudienceSize,
		marshal(agent.Credentials), agent.ID)
	if err != nil {
		return err
	}
	return affected(res)
}

func (s *SQLite) GetMechanism(ctx context.Context, id string) (*domain.ContentMechanism, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, enabled, prompts_json, feed_providers_json, feeds_json,
		       length, generate_image
		FROM content_mechanism WHERE id = ?`, id)

	var (
		m                          domain.ContentMechanism
		prompts, providers, pinned sql.NullString
	)
	err := row.Scan(&m.ID, &m.Enabled, &prompts, &providers, &pinned,
		&m.Length, &m.GenerateImage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.Prompts = unmarshalStrings(prompts)
	m.Feeds = unmarshalStrings(pinned)
	if providers.Valid && providers.String != "" {
		if err := json.Unmarshal([]byte(providers.String), &m.FeedProviders); err != nil {
			return nil, fmt.Errorf("invalid feed_providers_json for mechanism %s: %w", m.ID, err)
		}
	}
	return &m, nil
}

func (s *SQLite) GetPrompt(ctx context.Context, id string) (*domain.Prompt, error) {
	var p domain.Prompt
	err := s.db.QueryRowContext(ctx,
		`SELECT id, description FROM prompt WHERE id = ?`, id).
		Scan(&p.ID, &p.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLite) GetContent(ctx context.Context, id string) (*domain.Content, error) {
	var c domain.Content
	err := s.db.QueryRowContext(ctx, `
		SELECT id, mechanism, title, description, image, created
		FROM content WHERE id = ?`, id).
		Scan(&c.ID, &c.Mechanism, &c.Title, &c.Description, &c.Image, &c.Created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLite) CreateContent(ctx context.Context, content *domain.Content) error {
	if content.ID == "" {
		content.ID = NewID()
	}
	if content.Created.IsZero() {
		content.Created = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO content (id, mechanism, title, description, image, created)
		VALUES (?, ?, ?, ?, ?, ?)`,
		content.ID, content.Mechanism, content.Title, content.Description,
		content.Image, content.Created)
	return err
}

func (s *SQLite) GetActivity(ctx context.Context, id string) (*domain.NetworkActivity, error) {
	row := s.db.QueryRowContext(ctx, activitySelect+` WHERE id = ?`, id)
	return scanActivity(row)
}

func (s *SQLite) CountActivities(ctx context.Context, q ActivityQuery) (int, error) {
	where, args := activityWhere(q)
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM network_activity`+where, args...).Scan(&n)
	return n, err
}

func (s *SQLite) ListActivities(ctx context.Context, q ActivityQuery) ([]*domain.NetworkActivity, error) {
	where, args := activityWhere(q)
	query := activitySelect + where
	if q.Order == OrderDesc {
		query += ` ORDER BY schedule DESC`
	} else {
		query += ` ORDER BY schedule ASC`
	}
	if q.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.NetworkActivity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLite) CreateActivity(ctx context.Context, activity *domain.NetworkActivity) error {
	if activity.ID == "" {
		activity.ID = NewID()
	}
	if activity.Created.IsZero() {
		activity.Created = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO network_activity (id, plan, agent, kind, schedule, status,
			links_json, links_hash, mechanism, predecessor, content,
			external_id, payload, response, response_status, created)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		activity.ID, activity.Plan, activity.Agent, string(activity.Kind),
		activity.Schedule, string(activity.Status), marshal(activity.Links),
		LinksHash(activity.Links), activity.Mechanism(), activity.Predecessor(),
		activity.Content, activity.ExternalID, activity.Payload,
		activity.Response, activity.ResponseStatus, activity.Created)
	if isUniqueViolation(err) {
		return ErrDuplicatePending
	}
	return err
}

func (s *SQLite) UpdateActivity(ctx context.Context, activity *domain.NetworkActivity) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE network_activity SET status = ?, content = ?, external_id = ?,
			payload = ?, response = ?, response_status = ?
		WHERE id = ?`,
		string(activity.Status), activity.Content, activity.ExternalID,
		activity.Payload, activity.Response, activity.ResponseStatus,
		activity.ID)
	if err != nil {
		return err
	}
	return affected(res)
}

func (s *SQLite) PriorPlanActivities(ctx context.Context, plan, agent string) ([]*domain.NetworkActivity, error) {
	rows, err := s.db.QueryContext(ctx, activitySelect+`
		WHERE plan = ? AND agent != ? AND kind = ? AND status = ?
		  AND id NOT IN (
			SELECT DISTINCT predecessor FROM network_activity
			WHERE agent = ? AND predecessor != ''
			  AND kind IN (?, ?) AND status IN (?, ?)
		  )
		ORDER BY schedule ASC`,
		plan, agent, string(domain.KindPostContent), string(domain.StatusSuccess),
		agent, string(domain.KindPostComment), string(domain.KindShareContent),
		string(domain.StatusPending), string(domain.StatusSuccess))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.NetworkActivity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLite) ListFeedProviders(ctx context.Context) ([]*domain.FeedProvider, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, enabled, type, url, refresh_seconds, fetched, virtual,
		       payload, response, response_status
		FROM feed_provider ORDER BY fetched ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.FeedProvider
	for rows.Next() {
		p, err := scanFeedProvider(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLite) GetFeedProvider(ctx context.Context, id string) (*domain.FeedProvider, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, enabled, type, url, refresh_seconds, fetched, virtual,
		       payload, response, response_status
		FROM feed_provider WHERE id = ?`, id)
	return scanFeedProvider(row)
}

func (s *SQLite) UpdateFeedProvider(ctx context.Context, provider *domain.FeedProvider) error {
	var fetched any
	if !provider.Fetched.IsZero() {
		fetched = provider.Fetched
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE feed_provider SET enabled = ?, type = ?, url = ?,
			refresh_seconds = ?, fetched = ?, virtual = ?, payload = ?,
			response = ?, response_status = ?
		WHERE id = ?`,
		provider.Enabled, string(provider.Type), provider.URL,
		int(provider.RefreshInterval.Seconds()), fetched, provider.Virtual,
		provider.Payload, provider.Response, provider.ResponseStatus,
		provider.ID)
	if err != nil {
		return err
	}
	return affected(res)
}

func (s *SQLite) FeedExistsByURL(ctx context.Context, url string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM feed WHERE url = ?`, url).Scan(&n)
	return n > 0, err
}

func (s *SQLite) CreateFeed(ctx context.Context, feed *domain.Feed) error {
	if feed.ID == "" {
		feed.ID = NewID()
	}
	if feed.Created.IsZero() {
		feed.Created = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feed (id, provider, title, description, url, image, created)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		feed.ID, feed.Provider, feed.Title, feed.Description, feed.URL,
		feed.Image, feed.Created)
	return err
}

func (s *SQLite) ListFeeds(ctx context.Context, q FeedQuery) ([]*domain.Feed, error) {
	query := `SELECT id, provider, title, description, url, image, created FROM feed`
	args := []any{}
	if q.Provider != "" {
		query += ` WHERE provider = ?`
		args = append(args, q.Provider)
	}
	if q.Order == OrderAsc {
		query += ` ORDER BY created ASC`
	} else {
		query += ` ORDER BY created DESC`
	}
	if q.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Feed
	for rows.Next() {
		var f domain.Feed
		if err := rows.Scan(&f.ID, &f.Provider, &f.Title, &f.Description,
			&f.URL, &f.Image, &f.Created); err != nil {
			return nil, err
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

const activitySelect = `
	SELECT id, plan, agent, kind, schedule, status, links_json, content,
	       external_id, payload, response, response_status, created
	FROM network_activity`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActivity(row rowScanner) (*domain.NetworkActivity, error) {
	var (
		a     domain.NetworkActivity
		links sql.NullString
	)
	err := row.Scan(&a.ID, &a.Plan, &a.Agent, &a.Kind, &a.Schedule, &a.Status,
		&links, &a.Content, &a.ExternalID, &a.Payload, &a.Response,
		&a.ResponseStatus, &a.Created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if links.Valid && links.String != "" {
		if err := json.Unmarshal([]byte(links.String), &a.Links); err != nil {
			return nil, fmt.Errorf("invalid links_json for activity %s: %w", a.ID, err)
		}
	}
	return &a, nil
}

func scanPlan(row rowScanner) (*domain.ActivityPlan, error) {
	var (
		p                                       domain.ActivityPlan
		startDate, endDate                      sql.NullString
		startSeconds, endSeconds, spacing       int64
		agents, groups, mechs, activities, deps sql.NullString
	)
	err := row.Scan(&p.ID, &p.Enabled, &p.Kind, &startDate, &endDate,
		&startSeconds, &endSeconds, &spacing, &agents, &groups, &mechs,
		&activities, &deps, &p.Owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.StartDate, err = parseDate(startDate)
	if err != nil {
		return nil, err
	}
	p.EndDate, err = parseDate(endDate)
	if err != nil {
		return nil, err
	}
	p.StartTime = time.Duration(startSeconds) * time.Second
	p.EndTime = time.Duration(endSeconds) * time.Second
	p.Duration = time.Duration(spacing) * time.Second
	p.Agents = unmarshalStrings(agents)
	p.AgentGroups = unmarshalStrings(groups)
	p.Mechanisms = unmarshalStrings(mechs)
	p.Activities = unmarshalStrings(activities)
	p.Plans = unmarshalStrings(deps)
	return &p, nil
}

func scanAgent(row rowScanner) (*domain.Agent, error) {
	var (
		a     domain.Agent
		creds sql.NullString
	)
	err := row.Scan(&a.ID, &a.Provider, &a.Enabled, &a.UID, &a.Alias,
		&a.DisplayName, &a.Description, &a.AudienceSize, &creds)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if creds.Valid && creds.String != "" {
		if err := json.Unmarshal([]byte(creds.String), &a.Credentials); err != nil {
			return nil, fmt.Errorf("invalid credentials_json for agent %s: %w", a.ID, err)
		}
	}
	return &a, nil
}

func scanFeedProvider(row rowScanner) (*domain.FeedProvider, error) {
	var (
		p       domain.FeedProvider
		fetched sql.NullTime
		refresh int64
	)
	err := row.Scan(&p.ID, &p.Enabled, &p.Type, &p.URL, &refresh, &fetched,
		&p.Virtual, &p.Payload, &p.Response, &p.ResponseStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.RefreshInterval = time.Duration(refresh) * time.Second
	if fetched.Valid {
		p.Fetched = fetched.Time
	}
	return &p, nil
}

func activityWhere(q ActivityQuery) (string, []any) {
	var conds []string
	var args []any

	if q.Plan != "" {
		conds = append(conds, "plan = ?")
		args = append(args, q.Plan)
	}
	if q.Agent != "" {
		conds = append(conds, "agent = ?")
		args = append(args, q.Agent)
	}
	if q.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(q.Status))
	}
	if q.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(q.Kind))
	}
	if q.ScheduleFrom != nil {
		conds = append(conds, "schedule >= ?")
		args = append(args, *q.ScheduleFrom)
	}
	if q.ScheduleUntil != nil {
		conds = append(conds, "schedule <= ?")
		args = append(args, *q.ScheduleUntil)
	}
	if q.HasContent != nil {
		if *q.HasContent {
			conds = append(conds, "content != ''")
		} else {
			conds = append(conds, "content = ''")
		}
	}
	for field, value := range q.Links {
		switch field {
		case "mechanism":
			conds = append(conds, "mechanism = ?")
		case "activity":
			conds = append(conds, "predecessor = ?")
		default:
			conds = append(conds, "json_extract(links_json, '$.'||?) = ?")
			args = append(args, field)
		}
		args = append(args, value)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func parseDate(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(dateLayout, v.String, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", v.String, err)
	}
	return &t, nil
}

func marshal(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalStrings(v sql.NullString) []string {
	if !v.Valid || v.String == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(v.String), &out); err != nil {
		return nil
	}
	return out
}

func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
