// Package quotes stores channel quotes and parses the "!quote <text>" syntax
// used to add them from chat.
package quotes

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
)

// DateLayout is the day.month.year form quotes are written and shown in.
const DateLayout = "02.01.2006"

// parseLayout accepts one or two digit day and month.
const parseLayout = "2.1.2006"

// ErrNoQuotes is returned when a random quote is requested from an empty store.
var ErrNoQuotes = errors.New("quotes: no quotes stored")

// Quote is a remembered line from the stream.
type Quote struct {
	ID        int64
	Text      string
	Author    string
	Date      time.Time
	CreatedBy string
	CreatedAt time.Time
}

// String formats the quote for chat: "text" - author dd.mm.yyyy
func (q Quote) String() string {
	return `"` + q.Text + `" - ` + q.Author + " " + q.Date.Format(DateLayout)
}

var quotePattern = regexp.MustCompile(`["']?([^"']*)["']?\s*-?\s*(.*?),?\s*([0-9]{1,2}\.[0-9]{1,2}\.[0-9]{4})`)

// Parse builds a quote from the argument of an add request. Surrounding
// quotes are stripped. Input written as "text" - author, dd.mm.yyyy yields
// that text, author and date; otherwise the whole argument is the quote,
// attributed to defaultAuthor on now.
func Parse(arg, defaultAuthor, createdBy string, now time.Time) Quote {
	arg = strings.TrimSpace(arg)
	if len(arg) > 2 && (arg[0] == '"' && arg[len(arg)-1] == '"' || arg[0] == '\'' && arg[len(arg)-1] == '\'') {
		arg = arg[1 : len(arg)-1]
	}

	q := Quote{Text: arg, Author: defaultAuthor, Date: now, CreatedBy: createdBy, CreatedAt: now}
	m := quotePattern.FindStringSubmatch(arg)
	if m == nil {
		return q
	}
	q.Text = strings.TrimSpace(m[1])
	if author := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(m[2]), ",")); author != "" {
		q.Author = author
	}
	if d, err := time.ParseInLocation(parseLayout, m[3], now.Location()); err == nil {
		q.Date = d
	}
	return q
}

// Store persists quotes.
type Store interface {
	Add(ctx context.Context, q *Quote) error
	Random(ctx context.Context) (Quote, error)
	List(ctx context.Context) ([]Quote, error)
	Count(ctx context.Context) (int, error)
	Close() error
}
