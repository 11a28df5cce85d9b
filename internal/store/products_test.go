package store

import (
	"reflect"
	"strings"
	"testing"
)

func TestBuildListQuery(t *testing.T) {
	tests := []struct {
		name         string
		filter       ProductFilter
		limit        int
		offset       int
		wantContains []string
		wantAbsent   []string
		wantArgs     []any
	}{
		{
			name:   "no filters",
			filter: ProductFilter{},
			limit:  12,
			offset: 0,
			wantContains: []string{
				"COUNT(*) OVER() AS total_count",
				"GROUP BY p.id",
				"ORDER BY p.id ASC",
				"LIMIT $1 OFFSET $2",
			},
			wantAbsent: []string{"\nWHERE ", "ILIKE", "EXISTS ("},
			wantArgs:   []any{12, 0},
		},
		{
			name:   "name filter wraps in wildcards",
			filter: ProductFilter{Name: "chair"},
			limit:  12,
			offset: 12,
			wantContains: []string{
				"WHERE p.name ILIKE $1",
				"LIMIT $2 OFFSET $3",
			},
			wantArgs: []any{"%chair%", 12, 12},
		},
		{
			name:   "category filter uses EXISTS over the join table",
			filter: ProductFilter{CategoryIDs: []int64{3, 5}},
			limit:  12,
			offset: 0,
			wantContains: []string{
				"EXISTS (SELECT 1 FROM category_product x WHERE x.product_id = p.id AND x.category_id = ANY($1))",
				"LIMIT $2 OFFSET $3",
			},
			wantArgs: []any{[]int64{3, 5}, 12, 0},
		},
		{
			name:   "sort ascending by price",
			filter: ProductFilter{Sort: "asc"},
			limit:  12,
			offset: 0,
			wantContains: []string{
				"ORDER BY p.price ASC, p.id ASC",
			},
			wantArgs: []any{12, 0},
		},
		{
			name:   "sort descending by price",
			filter: ProductFilter{Sort: "desc"},
			limit:  12,
			offset: 0,
			wantContains: []string{
				"ORDER BY p.price DESC, p.id ASC",
			},
			wantArgs: []any{12, 0},
		},
		{
			name:   "all filters combine as AND",
			filter: ProductFilter{Name: "desk", Sort: "desc", CategoryIDs: []int64{7}},
			limit:  12,
			offset: 24,
			wantContains: []string{
				"WHERE p.name ILIKE $1 AND EXISTS",
				"category_id = ANY($2)",
				"ORDER BY p.price DESC, p.id ASC",
				"LIMIT $3 OFFSET $4",
			},
			wantArgs: []any{"%desk%", []int64{7}, 12, 24},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := buildListQuery(tt.filter, tt.limit, tt.offset)

			for _, want := range tt.wantContains {
				if !strings.Contains(query, want) {
					t.Fatalf("query missing %q:\n%s", want, query)
				}
			}
			for _, absent := range tt.wantAbsent {
				if strings.Contains(query, absent) {
					t.Fatalf("query unexpectedly contains %q:\n%s", absent, query)
				}
			}
			if !reflect.DeepEqual(args, tt.wantArgs) {
				t.Fatalf("args = %#v, want %#v", args, tt.wantArgs)
			}
		})
	}
}
