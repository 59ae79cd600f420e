package generate

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const buildInstructions = `You are an expert web developer. Generate a complete, minimal, fully
functional single-page web application from the brief below.

Requirements:
- Plain HTML, CSS and JavaScript only, no build step.
- Include a complete MIT LICENSE file and a README.md.
- The entry point must be index.html.

Return ONLY file blocks in exactly this format, with no other text:

<FILE name="index.html">
...content...
</FILE>
`

const reviseInstructions = `You are an expert web developer revising an existing static web
application. Apply the revision brief below to the current files, keeping
existing functionality that the brief does not change.

Return the COMPLETE replacement file set, not a diff. Include every file the
application needs, including LICENSE and README.md, with index.html as the
entry point.

Return ONLY file blocks in exactly this format, with no other text:

<FILE name="index.html">
...content...
</FILE>
`

// BuildPrompt renders the full prompt for a generation request.
func BuildPrompt(req Request) string {
	var b strings.Builder
	if req.Existing != nil {
		b.WriteString(reviseInstructions)
	} else {
		b.WriteString(buildInstructions)
	}

	b.WriteString("\n## Brief\n\n")
	b.WriteString(req.Brief)
	b.WriteString("\n")

	if len(req.Checks) > 0 {
		b.WriteString("\n## Acceptance checks\n\n")
		for _, c := range req.Checks {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}

	if len(req.Attachments) > 0 {
		b.WriteString("\n## Attachments\n\n")
		for _, a := range req.Attachments {
			if utf8.Valid(a.Bytes) {
				fmt.Fprintf(&b, "### %s\n\n%s\n\n", a.Name, a.Bytes)
			} else {
				fmt.Fprintf(&b, "### %s\n\n(binary attachment, %d bytes)\n\n", a.Name, len(a.Bytes))
			}
		}
	}

	if req.Existing != nil {
		b.WriteString("\n## Current files\n\n")
		for _, f := range req.Existing {
			fmt.Fprintf(&b, "<FILE name=%q>\n%s\n</FILE>\n\n", f.Path, f.Content)
		}
	}

	return b.String()
}
