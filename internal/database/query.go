package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"tms-go/internal/model"
)

// ErrBadField marks a query spec naming a non-existent sort column or an
// illegal parameter combination. It indicates programmer error and is
// surfaced synchronously, never swallowed.
var ErrBadField = errors.New("bad query field")

// Truncation bounds for the two-stage FTS plan: the inner select keeps the
// newest ftsHitLimit index hits, the middle stage keeps the candidateLimit
// best-seeded of those, and only candidates reach the ranking function.
const (
	ftsHitLimit    = 10000
	candidateLimit = 1000
	popularLimit   = 100
	popularWindow  = 24 * time.Hour
)

// QueryFilter is the value form of a query spec: every field optional,
// compiled by the builder into one of four plans (simple, FTS two-stage,
// FTS within origin, popular).
type QueryFilter struct {
	MetadataTypes      []model.MetadataType
	ChannelPK          []byte  // 20 bytes; model.NullKey selects free-for-all records
	OriginID           *uint64 // 0 selects roots
	ID                 *uint64
	InfoHash           []byte
	InfoHashSet        [][]byte
	TxtFilter          string
	Category           *string
	HideXXX            bool
	SelfChecked        *bool
	HealthCheckedAfter *uint32
	Popular            bool
	ExcludeLegacy      bool
	MaxRowID           *int64 // snapshot bound for stable paging
	SortBy             string // "HEALTH", "size", or a whitelisted column
	SortDesc           bool
	First, Last        int // 1-based inclusive pagination bounds
}

// sortColumns whitelists plain column sorts; the value marks text columns,
// which sort with case-insensitive collation.
var sortColumns = map[string]bool{
	"title":        true,
	"tags":         true,
	"tracker_info": true,
	"size":         false,
	"timestamp":    false,
	"torrent_date": false,
	"status":       false,
}

// EmptyFTSQuery reports whether a text filter carries no searchable tokens
// (e.g. "" or "*"). Such queries return no results by contract.
func EmptyFTSQuery(s string) bool {
	return len(matchTokens(s)) == 0
}

func matchTokens(s string) []string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '"', '*', '\'', '(', ')', ':', '^':
			return ' '
		}
		return r
	}, s)
	return strings.Fields(clean)
}

// matchExpr renders a user query as an FTS5 MATCH expression: every token
// quoted, the last one as a prefix term so that the prefix indices apply.
func matchExpr(s string) string {
	tokens := matchTokens(s)
	for i, tok := range tokens {
		if i == len(tokens)-1 {
			tokens[i] = `"` + tok + `"*`
		} else {
			tokens[i] = `"` + tok + `"`
		}
	}
	return strings.Join(tokens, " ")
}

const selectCols = `m.row_id, m.public_key, m.id, m.metadata_type, m.origin_id,
	m.timestamp, m.torrent_date, m.infohash, m.size, m.title, m.tags,
	m.tracker_info, m.xxx, m.status,
	h.seeders, h.leechers, h.last_check, h.self_checked`

// wireCols extends selectCols with the stored signature, for selects that
// reconstruct gossip payloads instead of API summaries.
const wireCols = `m.row_id, m.public_key, m.id, m.metadata_type, m.origin_id,
	m.timestamp, m.torrent_date, m.infohash, m.size, m.title, m.tags,
	m.tracker_info, m.xxx, m.signature, m.status,
	h.seeders, h.leechers, h.last_check, h.self_checked`

type planKind int

const (
	planSimple planKind = iota
	planFTS
	planFTSWithinOrigin
	planPopular
)

func (q *QueryFilter) plan() (planKind, error) {
	if q.Popular {
		for _, t := range q.MetadataTypes {
			if t != model.TypeRegularTorrent {
				return 0, fmt.Errorf("%w: popular=true cannot combine with metadata_type %d", ErrBadField, t)
			}
		}
		return planPopular, nil
	}
	if q.TxtFilter != "" {
		if q.OriginID != nil {
			return planFTSWithinOrigin, nil
		}
		return planFTS, nil
	}
	if q.SortBy != "" && q.SortBy != "HEALTH" {
		if _, ok := sortColumns[q.SortBy]; !ok {
			return 0, fmt.Errorf("%w: unknown sort column %q", ErrBadField, q.SortBy)
		}
	}
	return planSimple, nil
}

// filterConds renders the plain filters shared by every plan, against the
// aliases m (metadata) and h (health).
func (q *QueryFilter) filterConds() (conds []string, args []any) {
	if len(q.MetadataTypes) > 0 {
		ph := make([]string, len(q.MetadataTypes))
		for i, t := range q.MetadataTypes {
			ph[i] = "?"
			args = append(args, int64(t))
		}
		conds = append(conds, "m.metadata_type IN ("+strings.Join(ph, ", ")+")")
	}
	if q.ChannelPK != nil {
		conds = append(conds, "m.public_key = ?")
		args = append(args, q.ChannelPK)
	}
	if q.OriginID != nil {
		conds = append(conds, "m.origin_id = ?")
		args = append(args, int64(*q.OriginID))
	}
	if q.ID != nil {
		conds = append(conds, "m.id = ?")
		args = append(args, int64(*q.ID))
	}
	if q.InfoHash != nil {
		conds = append(conds, "m.infohash = ?")
		args = append(args, q.InfoHash)
	}
	if len(q.InfoHashSet) > 0 {
		ph := make([]string, len(q.InfoHashSet))
		for i, ih := range q.InfoHashSet {
			ph[i] = "?"
			args = append(args, ih)
		}
		conds = append(conds, "m.infohash IN ("+strings.Join(ph, ", ")+")")
	}
	if q.Category != nil {
		conds = append(conds, "m.tags = ?")
		args = append(args, *q.Category)
	}
	if q.HideXXX {
		conds = append(conds, "m.xxx = 0")
	}
	if q.SelfChecked != nil {
		conds = append(conds, "COALESCE(h.self_checked, 0) = ?")
		args = append(args, boolToInt(*q.SelfChecked))
	}
	if q.HealthCheckedAfter != nil {
		conds = append(conds, "COALESCE(h.last_check, 0) >= ?")
		args = append(args, int64(*q.HealthCheckedAfter))
	}
	if q.ExcludeLegacy {
		conds = append(conds, "m.status != ?")
		args = append(args, int64(model.StatusLegacy))
	}
	if q.MaxRowID != nil {
		conds = append(conds, "m.row_id <= ?")
		args = append(args, *q.MaxRowID)
	}
	return conds, args
}

// rankedOrder is the FTS-plan ordering: the ranking function as the primary
// key, then deterministic tie-breaks.
func rankedOrder(rawQuery string, now int64) (string, []any) {
	clause := `ORDER BY search_rank(?, m.title, COALESCE(h.seeders, 0),
		COALESCE(h.leechers, 0), ? - m.torrent_date) DESC,
		COALESCE(h.seeders, 0) DESC, COALESCE(h.last_check, 0) DESC, m.row_id DESC`
	return clause, []any{rawQuery, now}
}

func (q *QueryFilter) simpleOrder() string {
	dir := "ASC"
	if q.SortDesc {
		dir = "DESC"
	}
	switch {
	case q.SortBy == "":
		// Newest first.
		return "ORDER BY m.row_id DESC"
	case q.SortBy == "HEALTH":
		return fmt.Sprintf("ORDER BY COALESCE(h.seeders, 0) %s, COALESCE(h.leechers, 0) %s, m.row_id DESC", dir, dir)
	case sortColumns[q.SortBy]:
		return fmt.Sprintf("ORDER BY m.%s COLLATE NOCASE %s, m.row_id DESC", q.SortBy, dir)
	default:
		return fmt.Sprintf("ORDER BY m.%s %s, m.row_id DESC", q.SortBy, dir)
	}
}

// paging renders the first/last window as LIMIT/OFFSET. first defaults to
// 1; last is the inclusive upper bound, 0 meaning unbounded.
func (q *QueryFilter) paging() (string, []any) {
	first := q.First
	if first < 1 {
		first = 1
	}
	switch {
	case q.Last > 0:
		limit := q.Last - first + 1
		if limit < 0 {
			limit = 0
		}
		return "LIMIT ? OFFSET ?", []any{limit, first - 1}
	case first > 1:
		return "LIMIT -1 OFFSET ?", []any{first - 1}
	default:
		return "", nil
	}
}

// buildSelect compiles the filter into SQL and arguments. now anchors the
// ranker's age term and the popular window; paged applies first/last.
func (q *QueryFilter) buildSelect(now time.Time, paged bool) (string, []any, error) {
	return q.buildSelectCols(selectCols, now, paged)
}

func (q *QueryFilter) buildSelectCols(cols string, now time.Time, paged bool) (string, []any, error) {
	kind, err := q.plan()
	if err != nil {
		return "", nil, err
	}

	conds, condArgs := q.filterConds()
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var b strings.Builder
	var args []any

	switch kind {
	case planSimple:
		fmt.Fprintf(&b, "SELECT %s FROM metadata m LEFT JOIN torrent_health h ON h.infohash = m.infohash %s %s",
			cols, where, q.simpleOrder())
		args = condArgs

	case planFTS:
		hitsWhere := "fts_title MATCH ?"
		args = append(args, matchExpr(q.TxtFilter))
		if q.MaxRowID != nil {
			hitsWhere += " AND rowid <= ?"
			args = append(args, *q.MaxRowID)
		}
		order, orderArgs := rankedOrder(q.TxtFilter, now.Unix())
		fmt.Fprintf(&b, `WITH hits AS (
			SELECT rowid FROM fts_title WHERE %s ORDER BY rowid DESC LIMIT %d
		),
		candidates AS (
			SELECT m.row_id AS row_id FROM hits
			JOIN metadata m ON m.row_id = hits.rowid
			LEFT JOIN torrent_health h ON h.infohash = m.infohash
			ORDER BY COALESCE(h.seeders, 0) DESC, m.row_id DESC LIMIT %d
		)
		SELECT %s FROM candidates c
		JOIN metadata m ON m.row_id = c.row_id
		LEFT JOIN torrent_health h ON h.infohash = m.infohash
		%s %s`, hitsWhere, ftsHitLimit, candidateLimit, cols, where, order)
		args = append(args, condArgs...)
		args = append(args, orderArgs...)

	case planFTSWithinOrigin:
		// The caller already bounded the scan: every hit in the origin
		// goes through the ranker, no truncation.
		order, orderArgs := rankedOrder(q.TxtFilter, now.Unix())
		fmt.Fprintf(&b, `SELECT %s FROM metadata m
		LEFT JOIN torrent_health h ON h.infohash = m.infohash
		WHERE m.row_id IN (SELECT rowid FROM fts_title WHERE fts_title MATCH ?)%s %s`,
			cols, andConds(conds), order)
		args = append(args, matchExpr(q.TxtFilter))
		args = append(args, condArgs...)
		args = append(args, orderArgs...)

	case planPopular:
		fmt.Fprintf(&b, `SELECT %s FROM (
			SELECT infohash FROM torrent_health
			WHERE has_data = 1 AND last_check >= ? AND (seeders > 0 OR leechers > 0)
			ORDER BY seeders DESC, leechers DESC, last_check DESC LIMIT %d
		) pop
		JOIN metadata m ON m.infohash = pop.infohash
		LEFT JOIN torrent_health h ON h.infohash = m.infohash
		WHERE m.metadata_type = %d%s
		ORDER BY COALESCE(h.seeders, 0) DESC, COALESCE(h.leechers, 0) DESC,
			COALESCE(h.last_check, 0) DESC, m.row_id DESC`,
			cols, popularLimit, int(model.TypeRegularTorrent), andConds(conds))
		args = append(args, now.Add(-popularWindow).Unix())
		args = append(args, condArgs...)
	}

	if paged {
		clause, pageArgs := q.paging()
		if clause != "" {
			b.WriteString(" " + clause)
			args = append(args, pageArgs...)
		}
	}
	return b.String(), args, nil
}

// buildCount wraps the select in COUNT(*). paged=false yields the total
// count; paged=true yields the count inside the first/last window.
func (q *QueryFilter) buildCount(now time.Time, paged bool) (string, []any, error) {
	inner, args, err := q.buildSelect(now, paged)
	if err != nil {
		return "", nil, err
	}
	return "SELECT COUNT(*) FROM (" + inner + ")", args, nil
}

func andConds(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " AND " + strings.Join(conds, " AND ")
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
