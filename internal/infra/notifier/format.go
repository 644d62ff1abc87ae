package notifier

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"statuswatch/internal/domain/entity"
)

const (
	// discordMessageLimit is Discord's hard limit on message content.
	discordMessageLimit = 2000

	// discordContentBudget leaves room for the header, footer and Discord's own
	// accounting of mentions and markdown.
	discordContentBudget = 1950

	// slackSectionLimit is the maximum text length of a Block Kit section.
	slackSectionLimit = 3000

	timestampLayout = "January 02, 2006 at 03:04 PM MST"
	ellipsis        = "..."
)

var (
	blankLines = regexp.MustCompile(`\n\s*\n`)
	spaceRuns  = regexp.MustCompile(` +`)
	bareURL    = regexp.MustCompile(`https?://\S+`)
)

// CleanHTML converts post HTML into chat-friendly text.
// Line breaks and paragraphs become newlines, entities are decoded, blank
// lines and runs of spaces are collapsed, and bare URLs are wrapped in <...>
// so chat clients do not unfurl them. Input that fails to parse is returned trimmed.
func CleanHTML(content string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return strings.TrimSpace(content)
	}
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p").PrependHtml("\n\n")

	text := doc.Text()
	text = blankLines.ReplaceAllString(text, "\n\n")
	text = spaceRuns.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	return wrapBareURLs(text)
}

// wrapBareURLs wraps URLs not already enclosed by (), [] or <>.
func wrapBareURLs(text string) string {
	matches := bareURL.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		b.WriteString(text[last:start])
		if start > 0 && strings.ContainsRune("([<", rune(text[start-1])) {
			b.WriteString(text[start:end])
		} else {
			b.WriteString("<" + text[start:end] + ">")
		}
		last = end
	}
	b.WriteString(text[last:])
	return b.String()
}

// MessageFormatter renders posts for a chat channel.
type MessageFormatter struct {
	// Label is the word used for a post in the header, e.g. "post" or "truth".
	Label string

	// Location is the time zone of the footer timestamp. Defaults to UTC.
	Location *time.Location
}

func (f MessageFormatter) label() string {
	label := f.Label
	if label == "" {
		label = "post"
	}
	runes := []rune(strings.ToLower(label))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func (f MessageFormatter) timestamp(t time.Time) string {
	loc := f.Location
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(timestampLayout)
}

// Discord renders post as Discord markdown within the 2000 character limit.
func (f MessageFormatter) Discord(post entity.Post) string {
	header := fmt.Sprintf("**New %s from %s (@%s)**\n", f.label(), post.Account.Name(), post.Account.Username)
	footer := fmt.Sprintf("\n*Posted at: %s*", f.timestamp(post.CreatedAt))

	budget := discordContentBudget - runeLen(header) - runeLen(footer)
	content := truncateSummary(CleanHTML(post.Text), max(budget, 0), ellipsis)

	return truncateSummary(header+content+footer, discordMessageLimit, ellipsis)
}

// Slack renders post as Slack mrkdwn. Media are listed as links.
func (f MessageFormatter) Slack(post entity.Post) string {
	header := fmt.Sprintf("*New %s from %s (@%s)*\n", f.label(), post.Account.Name(), post.Account.Username)

	var links strings.Builder
	for i, m := range post.Media {
		if u := m.BestURL(); u != "" {
			fmt.Fprintf(&links, "\n<%s|%s %d>", u, m.Kind, i+1)
		}
	}
	if post.URL != "" {
		fmt.Fprintf(&links, "\n<%s|View original>", post.URL)
	}
	footer := fmt.Sprintf("\n_Posted at: %s_", f.timestamp(post.CreatedAt))

	budget := slackSectionLimit - runeLen(header) - runeLen(links.String()) - runeLen(footer)
	content := truncateSummary(CleanHTML(post.Text), max(budget, 0), ellipsis)

	return truncateSummary(header+content+links.String()+footer, slackSectionLimit, ellipsis)
}

func runeLen(s string) int {
	return len([]rune(s))
}
