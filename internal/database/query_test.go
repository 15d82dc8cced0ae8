package database

import (
	"reflect"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

func TestSearchQueryBuild(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		query    *SearchQuery
		expected bson.M
	}{
		{
			name:     "nil query",
			query:    nil,
			expected: bson.M{"organisationId": "org"},
		},
		{
			name:     "empty query",
			query:    new(SearchQuery),
			expected: bson.M{"organisationId": "org"},
		},
		{
			name:  "between",
			query: new(SearchQuery).Between(from, to),
			expected: bson.M{
				"organisationId": "org",
				"date":           bson.M{"$gte": from, "$lte": to},
			},
		},
		{
			name:  "after",
			query: new(SearchQuery).After(from),
			expected: bson.M{
				"organisationId": "org",
				"date":           bson.M{"$gte": from},
			},
		},
		{
			name:  "before",
			query: new(SearchQuery).Before(to),
			expected: bson.M{
				"organisationId": "org",
				"date":           bson.M{"$lte": to},
			},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			result := c.query.Build("org")
			if !reflect.DeepEqual(result, c.expected) {
				t.Errorf("expected %v, got %v", c.expected, result)
			}
		})
	}
}
