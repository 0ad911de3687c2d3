package format

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// ToPlainText renders an HTML message body for chat platforms that do not
// accept HTML. Line breaks and block ends become newlines, tags are dropped
// and entities decoded.
func ToPlainText(body string) string {
	z := html.NewTokenizer(strings.NewReader(body))
	var b strings.Builder

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return strings.TrimRight(b.String(), "\n")
			}
			return body
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.SelfClosingTagToken, html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "br":
				b.WriteString("\n")
			case "p", "div", "li", "tr":
				if tt == html.EndTagToken {
					b.WriteString("\n")
				}
			}
		}
	}
}
