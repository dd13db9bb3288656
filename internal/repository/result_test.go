package repository

import (
	"strings"
	"testing"
)

func TestBuildListQuery(t *testing.T) {
	tests := []struct {
		name     string
		filter   ListFilter
		contains []string
		absent   []string
		wantArgs int
	}{
		{
			name:     "默认过滤器",
			filter:   DefaultListFilter(),
			contains: []string{"ORDER BY created_at DESC", "OFFSET $1 LIMIT $2"},
			absent:   []string{"WHERE"},
			wantArgs: 2,
		},
		{
			name:     "窗口范围过滤",
			filter:   DefaultListFilter().WithDateRange("2026-06-01", "2026-06-28"),
			contains: []string{"window_end >= $1", "window_start <= $2", "OFFSET $3 LIMIT $4"},
			wantArgs: 4,
		},
		{
			name:     "口径过滤走基线子查询",
			filter:   DefaultListFilter().WithScope("role:介护"),
			contains: []string{"need_baselines", "scope = $1"},
			wantArgs: 3,
		},
		{
			name:     "非白名单排序列回退",
			filter:   DefaultListFilter().WithOrder("summary; DROP TABLE analysis_runs", "asc"),
			contains: []string{"ORDER BY started_at ASC"},
			absent:   []string{"DROP"},
			wantArgs: 2,
		},
		{
			name:     "升序排序",
			filter:   DefaultListFilter().WithOrder("finished_at", "ASC"),
			contains: []string{"ORDER BY finished_at ASC"},
			wantArgs: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := buildListQuery(tt.filter)
			for _, s := range tt.contains {
				if !strings.Contains(query, s) {
					t.Errorf("query %q should contain %q", query, s)
				}
			}
			for _, s := range tt.absent {
				if strings.Contains(query, s) {
					t.Errorf("query %q should not contain %q", query, s)
				}
			}
			if len(args) != tt.wantArgs {
				t.Errorf("got %d args %v, want %d", len(args), args, tt.wantArgs)
			}
		})
	}
}
