package templates

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

const pageHead = `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">` +
	`<meta name="viewport" content="width=device-width, initial-scale=1">` +
	`<title>QuickBooks Authorization</title></head><body>`

const pageTail = `</body></html>`

// TokenIssuedPage is shown in the consent popup after a successful callback.
// It closes its own window so the operator lands back in the calling app.
func TokenIssuedPage(props TokenIssuedProps) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		return write(w,
			pageHead,
			`<h1>New Token Issued</h1>`,
			optional(`<p>Company: `, props.RealmID, `</p>`),
			optional(`<p>Access token valid until `, props.ExpiresAt, `</p>`),
			`<p>You can close this window.</p>`,
			`<script>window.close();</script>`,
			pageTail,
		)
	})
}

// ErrorPage reports a failed authorization callback.
func ErrorPage(props ErrorPageProps) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		return write(w,
			pageHead,
			`<h1>Authorization Failed</h1>`,
			`<p><strong>`, templ.EscapeString(props.Error), `</strong></p>`,
			optional(`<p>`, props.Message, `</p>`),
			pageTail,
		)
	})
}

// optional escapes value and wraps it, or returns "" when value is empty.
func optional(open, value, closing string) string {
	if value == "" {
		return ""
	}
	return open + templ.EscapeString(value) + closing
}

func write(w io.Writer, parts ...string) error {
	for _, p := range parts {
		if _, err := io.WriteString(w, p); err != nil {
			return err
		}
	}
	return nil
}
