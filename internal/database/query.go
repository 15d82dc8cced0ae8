package database

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// SearchQuery restricts the call records returned by a search. The zero
// value matches every record of the organisation.
type SearchQuery struct {
	from *time.Time
	to   *time.Time
}

func (q *SearchQuery) After(t time.Time) *SearchQuery {
	q.from = &t

	return q
}

func (q *SearchQuery) Before(t time.Time) *SearchQuery {
	q.to = &t

	return q
}

func (q *SearchQuery) Between(from, to time.Time) *SearchQuery {
	return q.After(from).Before(to)
}

// Build returns the mongo filter for the query scoped to orgID.
func (q *SearchQuery) Build(orgID string) bson.M {
	result := bson.M{
		"organisationId": orgID,
	}

	if q == nil {
		return result
	}

	date := bson.M{}

	if q.from != nil {
		date["$gte"] = *q.from
	}

	if q.to != nil {
		date["$lte"] = *q.to
	}

	if len(date) > 0 {
		result["date"] = date
	}

	return result
}
