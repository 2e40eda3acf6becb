package catalog_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scanforge/scanforge/internal/catalog"
)

func jsonUnmarshal(data string, v any) error {
	return json.Unmarshal([]byte(data), v)
}

func TestQuerySpecBuild(t *testing.T) {
	tests := []struct {
		name string
		spec catalog.QuerySpec
		want string
	}{
		{
			name: "empty spec matches everything",
			spec: catalog.QuerySpec{},
			want: "*:*",
		},
		{
			name: "override wins",
			spec: catalog.QuerySpec{
				Override:    "identifier:foo",
				Subject:     "ignored",
				Collections: []string{"also-ignored"},
			},
			want: "identifier:foo",
		},
		{
			name: "single collection",
			spec: catalog.QuerySpec{Collections: []string{"gazetteers"}},
			want: "collection:gazetteers",
		},
		{
			name: "multiple collections OR-joined",
			spec: catalog.QuerySpec{Collections: []string{"a", "b"}},
			want: "collection:(a OR b)",
		},
		{
			name: "subject is quoted",
			spec: catalog.QuerySpec{Subject: "India -- Gazetteers"},
			want: `subject:"India -- Gazetteers"`,
		},
		{
			name: "year range",
			spec: catalog.QuerySpec{StartYear: 1815, EndYear: 1960},
			want: "year:[1815 TO 1960]",
		},
		{
			name: "open-ended year range",
			spec: catalog.QuerySpec{StartYear: 1900},
			want: "year:[1900 TO *]",
		},
		{
			name: "all clauses AND-joined",
			spec: catalog.QuerySpec{
				Collections: []string{"texts"},
				Subject:     "maps",
				StartYear:   1800,
				EndYear:     1900,
			},
			want: `collection:texts AND subject:"maps" AND year:[1800 TO 1900]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.spec.Build())
		})
	}
}

func TestFlexStringAbsorbsLists(t *testing.T) {
	var doc catalog.SearchDoc
	err := jsonUnmarshal(`{"identifier":"x","collection":["a","b"],"title":"T"}`, &doc)
	assert.NoError(t, err)
	assert.Equal(t, "a; b", doc.Collection.String())
	assert.Equal(t, "T", doc.Title.String())
}

func TestFlexStringKeepsNumericLiterals(t *testing.T) {
	var f catalog.FileInfo
	err := jsonUnmarshal(`{"name":"a.pdf","size":12345}`, &f)
	assert.NoError(t, err)
	assert.Equal(t, "12345", f.Size.String())
}
