// Package keys builds Redis keys for cached FeatureCollections.
package keys

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const namespace = "fc"

// Points marks an unbinned collection in place of an H3 resolution.
const Points = -1

// Prefix covers every key of a dataset; invalidation deletes by prefix.
func Prefix(dataset string) string {
	return namespace + ":" + sanitize(strings.TrimSpace(dataset), false) + ":"
}

// Key identifies one collection: dataset, year filter, binning resolution
// and any extra $where clause. Equivalent clauses that differ only in spacing
// share a key; the readable clause is truncated and a hash of the full
// normalised clause keeps keys distinct.
func Key(dataset string, res int, year, where string) string {
	whereText := normalizeWhere(where)
	whereSafe := sanitize(whereText, true)

	const maxWhereTextLen = 160
	if len(whereSafe) > maxWhereTextLen {
		whereSafe = whereSafe[:maxWhereTextLen]
	}

	bin := "pts"
	if res != Points {
		bin = "h3r" + strconv.Itoa(res)
	}
	sum := xxhash.Sum64String(whereText)

	return fmt.Sprintf("%s%s:%s:where=%s:f=%016x",
		Prefix(dataset), sanitize(strings.TrimSpace(year), false), bin, whereSafe, sum)
}

var punctSpace = regexp.MustCompile(`\s*([=<>!\.,\(\)])\s*`)

func normalizeWhere(s string) string {
	if s == "" {
		return ""
	}
	s = collapseASCIIWhitespace(strings.TrimSpace(s))
	return punctSpace.ReplaceAllString(s, "$1")
}

// sanitize maps whitespace to '_' and anything outside [A-Za-z0-9:_-] to '-',
// collapsing repeats. allowEq also keeps '='.
func sanitize(s string, allowEq bool) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for _, r := range s {
		var out rune
		switch {
		case isASCIISpace(r):
			out = '_'
		case isAlphaNum(r) || r == ':' || r == '_' || r == '-' || (allowEq && r == '='):
			out = r
		default:
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

// converts any run of ASCII whitespace to a single space.
func collapseASCIIWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	wasWS := false
	for _, r := range s {
		if isASCIISpace(r) {
			if !wasWS {
				b.WriteByte(' ')
				wasWS = true
			}
			continue
		}
		b.WriteRune(r)
		wasWS = false
	}
	return strings.TrimSpace(b.String())
}

func isASCIISpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f'
}

func isAlphaNum(r rune) bool {
	return r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r))
}
