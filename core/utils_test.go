package core

import "testing"

func TestCleanString(t *testing.T) {
	tests := []struct {
		name  string
		s     string
		lower bool
		want  string
	}{
		{name: "empty", s: "", want: ""},
		{name: "spaces", s: "  \t Awe \n", want: "Awe"},
		{name: "lower", s: " AWE@Test.CD ", lower: true, want: "awe@test.cd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanString(tt.s, tt.lower); got != tt.want {
				t.Errorf("CleanString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOrderByClause(t *testing.T) {
	allowed := map[string]string{"name": "name", "created_at": "created_at"}

	tests := []struct {
		name     string
		ordering []DBOrdering
		want     string
	}{
		{name: "none", want: " ORDER BY created_at DESC"},
		{name: "unknown field", ordering: []DBOrdering{{Field: "password_hash", Ascending: true}}, want: " ORDER BY created_at DESC"},
		{
			name:     "multiple",
			ordering: []DBOrdering{{Field: "name", Ascending: true}, {Field: "created_at"}},
			want:     " ORDER BY name ASC, created_at DESC",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OrderByClause(tt.ordering, allowed, "created_at DESC"); got != tt.want {
				t.Errorf("OrderByClause() = %q, want %q", got, tt.want)
			}
		})
	}
}
