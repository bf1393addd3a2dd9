package processor

import (
	"strings"

	"golang.org/x/net/html"
)

// bannerPhrases are provider-injected warning lines stripped from message
// bodies before classification; they are noise the classifier keys on.
var bannerPhrases = []string{
	"You don't often get email from",
	"Learn why this is important",
}

// CleanBody extracts readable text from an HTML message body: tags are
// dropped, block boundaries become newlines, banner lines and blank lines
// are removed.
func CleanBody(htmlBody string) string {
	root, err := html.Parse(strings.NewReader(htmlBody))
	if err != nil {
		// Not parseable as HTML; treat the raw content as text.
		return filterLines(htmlBody)
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "head":
				return
			case "br", "p", "div", "tr", "li":
				b.WriteString("\n")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return filterLines(b.String())
}

// filterLines trims each line, drops blanks and banner lines, and rejoins.
func filterLines(text string) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		banned := false
		for _, phrase := range bannerPhrases {
			if strings.Contains(line, phrase) {
				banned = true
				break
			}
		}
		if !banned {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
