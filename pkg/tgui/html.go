package tgui

import "html"

// H is HTML that is safe to hand to Telegram when ParseMode="HTML".
// Treat values of this type as already escaped.
type H string

func (h H) String() string { return string(h) }

// Esc escapes text for Telegram HTML parse mode.
func Esc(s string) H { return H(html.EscapeString(s)) }

func wrap(tag string, inner H) H { return H("<" + tag + ">" + inner.String() + "</" + tag + ">") }

// Code renders inline monospace.
func Code(s string) H { return wrap("code", Esc(s)) }

// Pre renders a preformatted block. Telegram needs balanced tags per
// message, so keep the content within one message.
func Pre(s string) H {
	return H("<pre><code>" + html.EscapeString(s) + "</code></pre>")
}
