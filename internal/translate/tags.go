package translate

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/GriffinCanCode/game-translator/internal/errors"
)

// Item is one region's text in a batch. Batches keep region order.
type Item struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

var (
	tagPattern      = regexp.MustCompile(`<\|(\d+)\|>`)
	linePattern     = regexp.MustCompile(`^\s*<\|\s*(\d+)\s*\|>\s*(.*)$`)
	trailingPartial = regexp.MustCompile(`\s*<\|\d*\|?>?\s*$`)
)

// Format renders the non-empty items as "<|i|> text" lines numbered from 1 and
// returns the tag to region mapping.
func Format(batch []Item) (string, map[int]string) {
	mapping := make(map[int]string, len(batch))
	var b strings.Builder
	n := 0
	for _, it := range batch {
		// OCR padding is not content; whitespace-only regions count as empty.
		text := strings.TrimSpace(it.Text)
		if text == "" {
			continue
		}
		n++
		mapping[n] = it.Name
		if n > 1 {
			b.WriteByte('\n')
		}
		b.WriteString("<|")
		b.WriteString(strconv.Itoa(n))
		b.WriteString("|> ")
		b.WriteString(text)
	}
	return b.String(), mapping
}

// ParseOutput maps a model reply back to region names. Every tag in mapping
// gets an entry; tags the reply omitted carry MissingPlaceholder.
func ParseOutput(raw string, mapping map[int]string) (map[string]string, error) {
	if len(mapping) == 0 {
		return map[string]string{}, nil
	}

	found := scanTags(raw, mapping)
	if len(found) == 0 {
		found = scanLines(raw, mapping)
	}
	if len(found) == 0 && len(mapping) == 1 {
		trimmed := strings.TrimSpace(raw)
		if trimmed != "" && !strings.HasPrefix(trimmed, "<|") {
			for tag := range mapping {
				found[tag] = trimmed
			}
		}
	}
	if len(found) == 0 {
		return nil, invalidResponse(raw, "no tagged segments in reply")
	}

	out := make(map[string]string, len(mapping))
	for tag, name := range mapping {
		if text, ok := found[tag]; ok {
			out[name] = text
		} else {
			out[name] = MissingPlaceholder
		}
	}
	if len(out) == 0 {
		return nil, invalidResponse(raw, "empty parse result")
	}
	return out, nil
}

// scanTags splits raw at each <|N|> marker; a segment runs to the next marker.
// The first occurrence of a tag wins.
func scanTags(raw string, mapping map[int]string) map[int]string {
	found := make(map[int]string)
	locs := tagPattern.FindAllStringSubmatchIndex(raw, -1)
	for i, loc := range locs {
		end := len(raw)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		tag, err := strconv.Atoi(raw[loc[2]:loc[3]])
		if err != nil {
			continue
		}
		if _, ok := mapping[tag]; !ok {
			continue
		}
		if _, dup := found[tag]; dup {
			continue
		}
		content := trailingPartial.ReplaceAllString(raw[loc[1]:end], "")
		found[tag] = strings.TrimSpace(content)
	}
	return found
}

func scanLines(raw string, mapping map[int]string) map[int]string {
	found := make(map[int]string)
	for _, line := range strings.Split(raw, "\n") {
		m := linePattern.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		tag, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if _, ok := mapping[tag]; !ok {
			continue
		}
		if _, dup := found[tag]; !dup {
			found[tag] = strings.TrimSpace(m[2])
		}
	}
	return found
}

// Names returns the region names of mapping in tag order.
func Names(mapping map[int]string) []string {
	tags := make([]int, 0, len(mapping))
	for t := range mapping {
		tags = append(tags, t)
	}
	sort.Ints(tags)
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = mapping[t]
	}
	return names
}

func invalidResponse(raw, msg string) error {
	return apperrors.Newf(apperrors.CodeLLMInvalidResponse, "%s; raw response: %q", msg, raw).
		WithMetadata("raw", raw)
}
