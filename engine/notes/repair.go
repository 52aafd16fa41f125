package notes

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	fenceWrap   = regexp.MustCompile("(?is)^```(?:markdown)?\\s*\\n?(.*?)\\n?```\\s*$")
	wikiFromMd  = regexp.MustCompile(`\[([^\]\[]+)\]\(([^()]+)\)`)
	wikiLink    = regexp.MustCompile(`\[\[([^\]\[]+)\]\]`)
	supTag      = regexp.MustCompile(`([^<\s]*)<sup>([^<]+)</sup>`)
	subTag      = regexp.MustCompile(`([^<\s]*)<sub>([^<]+)</sub>`)
	blankRun    = regexp.MustCompile(`\n{3,}`)
	bulletNoGap = regexp.MustCompile(`(?m)^([-*])([^\s*-])`)
	numNoGap    = regexp.MustCompile(`(?m)^(\d+\.)([^\s])`)
)

// Repair applies the markdown-repair pass described for generated notes:
// fence stripping, wiki-link normalization, sup/sub conversion, dangling
// link pruning, delimiter balancing, and whitespace cleanup, in that order.
func Repair(note string, validConceptIDs map[string]bool) string {
	note = stripFence(note)
	note = mdLinksToWiki(note)
	note = supTag.ReplaceAllString(note, `$$${1}^{${2}}$$`)
	note = subTag.ReplaceAllString(note, `$$${1}_{${2}}$$`)
	if validConceptIDs != nil {
		note = dropInvalidWikiLinks(note, validConceptIDs)
	}
	note = balanceDelimiters(note)
	note = blankRun.ReplaceAllString(note, "\n\n")
	note = bulletNoGap.ReplaceAllString(note, "$1 $2")
	note = numNoGap.ReplaceAllString(note, "$1 $2")
	note = trimLines(note)
	return note
}

func stripFence(note string) string {
	if m := fenceWrap.FindStringSubmatch(strings.TrimSpace(note)); m != nil {
		return m[1]
	}
	return note
}

// mdLinksToWiki converts [x](x) markdown links to [[x]] wiki links; a
// link whose text differs from its target is left untouched.
func mdLinksToWiki(note string) string {
	return wikiFromMd.ReplaceAllStringFunc(note, func(match string) string {
		groups := wikiFromMd.FindStringSubmatch(match)
		if groups[1] != groups[2] {
			return match
		}
		return fmt.Sprintf("[[%s]]", groups[1])
	})
}

func dropInvalidWikiLinks(note string, validConceptIDs map[string]bool) string {
	return wikiLink.ReplaceAllStringFunc(note, func(match string) string {
		target := wikiLink.FindStringSubmatch(match)[1]
		if validConceptIDs[strings.ToLower(target)] {
			return match
		}
		return target
	})
}

// balanceDelimiters drops the last stray occurrence of any of $, ```, `, **
// that appears an odd number of times, so inline formatting never leaks past
// the end of the note. Order matches the fence-then-inline check order of
// the markdown-repair pass this is ported from: $, then ```, then `, then **.
func balanceDelimiters(note string) string {
	note = balanceSingleChar(note, '$')
	note = balanceDelim(note, "```")
	note = balanceSingleChar(note, '`')
	note = balanceDelim(note, "**")
	return note
}

func balanceDelim(s, delim string) string {
	if strings.Count(s, delim)%2 == 1 {
		idx := strings.LastIndex(s, delim)
		return s[:idx] + s[idx+len(delim):]
	}
	return s
}

func balanceSingleChar(s string, ch rune) string {
	count := strings.Count(s, string(ch))
	if count%2 == 1 {
		idx := strings.LastIndex(s, string(ch))
		return s[:idx] + s[idx+len(string(ch)):]
	}
	return s
}

func trimLines(note string) string {
	lines := strings.Split(note, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	note = strings.Join(lines, "\n")
	return strings.Trim(note, "\n") + "\n"
}
