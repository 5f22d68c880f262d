package request

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var (
	userPattern    = regexp.MustCompile(`(?m)^User: @?(.*)$`)
	requestPattern = regexp.MustCompile(`(?m)^Request: (.*)$`)
	datePattern    = regexp.MustCompile(`(?m)^Date: (.*)$`)

	// numericDate is text made only of digits and separators. It is either one of the
	// fixed layouts or not a date at all.
	numericDate = regexp.MustCompile(`^[0-9\s./:-]+$`)
)

// dateLayouts are tried in order before falling back to natural-language parsing.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02-Jan-06",
	"02-Jan-2006",
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

// Fields are the text-derived parts of a request. Empty strings and a nil date mean
// the block did not provide the field.
type Fields struct {
	Author           string     `yaml:"author"`
	ShortDescription string     `yaml:"shortDescription"`
	RequestDate      *time.Time `yaml:"requestDate"`
	Extra            string     `yaml:"extra"`
}

// Valid reports whether the fields would make a valid request.
func (f Fields) Valid() bool {
	return f.Author != "" && f.ShortDescription != ""
}

// Clock supplies the reference time for relative dates such as "tomorrow".
// Tests replace it.
var Clock = time.Now

var (
	naturalOnce sync.Once
	natural     *when.Parser
)

func naturalParser() *when.Parser {
	naturalOnce.Do(func() {
		natural = when.New(nil)
		natural.Add(en.All...)
		natural.Add(common.All...)
	})
	return natural
}

// ParseFields extracts the labelled fields from a message block.
func ParseFields(block string) Fields {
	content := normalize(block)
	return Fields{
		Author:           firstMatch(userPattern, content),
		ShortDescription: firstMatch(requestPattern, content),
		RequestDate:      ParseDate(firstMatch(datePattern, content)),
		Extra:            extra(content),
	}
}

// normalize unifies line endings and strips a surrounding code fence and whitespace.
func normalize(block string) string {
	content := strings.ReplaceAll(block, "\r\n", "\n")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

func firstMatch(re *regexp.Regexp, content string) string {
	m := re.FindStringSubmatch(content)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// extra returns everything after the first blank line.
func extra(content string) string {
	i := strings.Index(content, "\n\n")
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(content[i+2:])
}

// ParseDate turns free text into a calendar date at UTC midnight. It returns nil when
// the text is empty or cannot be understood. Natural-language text must be understood
// as a whole; a phrase that only partly reads as a date is rejected.
func ParseDate(text string) *time.Time {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return calendarDate(t)
		}
	}

	if numericDate.MatchString(text) {
		return nil
	}

	r, err := naturalParser().Parse(text, Clock())
	if err != nil || r == nil {
		return nil
	}
	if !strings.EqualFold(strings.TrimSpace(r.Text), text) {
		return nil
	}
	return calendarDate(r.Time)
}

func calendarDate(t time.Time) *time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}
