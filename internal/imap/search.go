package imap

import "strings"

// SearchCriterion selects messages in a SEARCH command. The implementations
// are All, Seen and Keyword.
type SearchCriterion interface {
	searchKey() string
}

// All matches every message.
type All struct{}

func (All) searchKey() string { return "ALL" }

// Seen matches messages carrying the \Seen flag.
type Seen struct{}

func (Seen) searchKey() string { return "SEEN" }

// Keyword matches messages carrying the named keyword flag.
type Keyword string

func (k Keyword) searchKey() string { return "KEYWORD " + quote(string(k)) }

// SearchQuery is a criterion with optional negation. The zero value matches
// all messages.
type SearchQuery struct {
	Criterion SearchCriterion
	Negated   bool
}

// String renders the query as SEARCH arguments.
func (q SearchQuery) String() string {
	c := q.Criterion
	if c == nil {
		c = All{}
	}
	key := c.searchKey()
	if q.Negated {
		return "NOT " + key
	}
	return key
}

// ParseSearchQuery parses the textual form produced by String, with
// case-insensitive keywords. It is used by the command line front end.
func ParseSearchQuery(s string) (SearchQuery, error) {
	var q SearchQuery
	fields := strings.Fields(s)
	if len(fields) > 0 && strings.EqualFold(fields[0], "NOT") {
		q.Negated = true
		fields = fields[1:]
	}
	switch {
	case len(fields) == 0:
		return q, ErrInvalidSearch
	case len(fields) == 1 && strings.EqualFold(fields[0], "ALL"):
		q.Criterion = All{}
	case len(fields) == 1 && strings.EqualFold(fields[0], "SEEN"):
		q.Criterion = Seen{}
	case len(fields) == 2 && strings.EqualFold(fields[0], "KEYWORD"):
		q.Criterion = Keyword(strings.Trim(fields[1], `"`))
	default:
		return q, ErrInvalidSearch
	}
	return q, nil
}
