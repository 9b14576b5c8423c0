package database

import (
	"errors"
	"testing"
	"time"

	"tms-go/internal/model"
)

func TestEmptyFTSQuery(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{query: "", want: true},
		{query: "*", want: true},
		{query: "  ", want: true},
		{query: `"" ()`, want: true},
		{query: "ubuntu", want: false},
		{query: "ubuntu server", want: false},
		{query: "*ubuntu*", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			if got := EmptyFTSQuery(tt.query); got != tt.want {
				t.Errorf("EmptyFTSQuery(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestMatchExpr(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{name: "single token becomes prefix term", query: "ubuntu", want: `"ubuntu"*`},
		{name: "only last token is a prefix term", query: "ubuntu server", want: `"ubuntu" "server"*`},
		{name: "fts metacharacters are stripped", query: `ubu"ntu (serv:er)`, want: `"ubu" "ntu" "serv" "er"*`},
		{name: "stray wildcard dropped", query: "ubuntu *", want: `"ubuntu"*`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchExpr(tt.query); got != tt.want {
				t.Errorf("matchExpr(%q) = %q, want %q", tt.query, got, tt.want)
			}
		})
	}
}

func TestQueryFilter_plan_badFields(t *testing.T) {
	tests := []struct {
		name string
		q    QueryFilter
	}{
		{name: "unknown sort column", q: QueryFilter{SortBy: "no_such_column"}},
		{name: "injection in sort column", q: QueryFilter{SortBy: "title; DROP TABLE metadata"}},
		{
			name: "popular with non-torrent type",
			q: QueryFilter{
				Popular:       true,
				MetadataTypes: []model.MetadataType{model.TypeDeprecatedChannel},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.q.plan()
			if !errors.Is(err, ErrBadField) {
				t.Errorf("plan() error = %v, want ErrBadField", err)
			}
		})
	}

	t.Run("popular with torrent type is fine", func(t *testing.T) {
		q := QueryFilter{Popular: true, MetadataTypes: []model.MetadataType{model.TypeRegularTorrent}}
		kind, err := q.plan()
		if err != nil {
			t.Fatalf("plan() error = %v", err)
		}
		if kind != planPopular {
			t.Errorf("plan() = %d, want planPopular", kind)
		}
	})

	t.Run("builder surfaces the error", func(t *testing.T) {
		q := QueryFilter{SortBy: "bogus"}
		if _, _, err := q.buildSelect(time.Now(), true); !errors.Is(err, ErrBadField) {
			t.Errorf("buildSelect() error = %v, want ErrBadField", err)
		}
		if _, _, err := q.buildCount(time.Now(), false); !errors.Is(err, ErrBadField) {
			t.Errorf("buildCount() error = %v, want ErrBadField", err)
		}
	})
}

func TestQueryFilter_planSelection(t *testing.T) {
	origin := uint64(5)

	tests := []struct {
		name string
		q    QueryFilter
		want planKind
	}{
		{name: "no filters", q: QueryFilter{}, want: planSimple},
		{name: "plain filters", q: QueryFilter{HideXXX: true, SortBy: "size"}, want: planSimple},
		{name: "text filter", q: QueryFilter{TxtFilter: "ubuntu"}, want: planFTS},
		{name: "text within origin", q: QueryFilter{TxtFilter: "ubuntu", OriginID: &origin}, want: planFTSWithinOrigin},
		{name: "popular", q: QueryFilter{Popular: true}, want: planPopular},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, err := tt.q.plan()
			if err != nil {
				t.Fatalf("plan() error = %v", err)
			}
			if kind != tt.want {
				t.Errorf("plan() = %d, want %d", kind, tt.want)
			}
		})
	}
}

func TestQueryFilter_paging(t *testing.T) {
	tests := []struct {
		name       string
		first      int
		last       int
		wantClause string
		wantArgs   []any
	}{
		{name: "unpaged", first: 0, last: 0, wantClause: ""},
		{name: "window", first: 11, last: 20, wantClause: "LIMIT ? OFFSET ?", wantArgs: []any{10, 10}},
		{name: "first page", first: 1, last: 50, wantClause: "LIMIT ? OFFSET ?", wantArgs: []any{50, 0}},
		{name: "open ended", first: 6, last: 0, wantClause: "LIMIT -1 OFFSET ?", wantArgs: []any{5}},
		{name: "inverted window is empty", first: 20, last: 11, wantClause: "LIMIT ? OFFSET ?", wantArgs: []any{0, 19}},
		{name: "zero first defaults to one", first: 0, last: 5, wantClause: "LIMIT ? OFFSET ?", wantArgs: []any{5, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := QueryFilter{First: tt.first, Last: tt.last}
			clause, args := q.paging()
			if clause != tt.wantClause {
				t.Errorf("paging() clause = %q, want %q", clause, tt.wantClause)
			}
			if len(args) != len(tt.wantArgs) {
				t.Fatalf("paging() args = %v, want %v", args, tt.wantArgs)
			}
			for i := range args {
				if args[i] != tt.wantArgs[i] {
					t.Errorf("paging() args[%d] = %v, want %v", i, args[i], tt.wantArgs[i])
				}
			}
		})
	}
}
