package generate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lucasnoah/siteforge/internal/artifact"
)

var fileBlockRe = regexp.MustCompile(`(?s)<FILE name="([^"]+)">\n?(.*?)\n?</FILE>`)

// ParseFileBlocks extracts an artifact set from a backend response in the
//
//	<FILE name="index.html">
//	...
//	</FILE>
//
// format. Text outside FILE blocks is ignored, which tolerates backends
// that wrap their output in prose or code fences.
func ParseFileBlocks(response string) (artifact.Set, error) {
	matches := fileBlockRe.FindAllStringSubmatch(response, -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("no FILE blocks in response (%d bytes)", len(response))
	}

	var set artifact.Set
	for _, m := range matches {
		name := strings.TrimSpace(m[1])
		if name == "" {
			return nil, fmt.Errorf("FILE block with empty name")
		}
		set = set.Add(name, []byte(m[2]))
	}
	return set, nil
}
