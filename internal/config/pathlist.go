package config

import (
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"
)

// PathList is a list of excluded directories or files. At the boundary it
// accepts either a proper list, a JSON array string, or a single
// comma-separated string. Comma splitting is quote-aware: a literal comma
// inside single or double quotes does not split the entry. This exact parsing
// rule is a compatibility requirement with existing callers.
type PathList []string

// UnmarshalYAML accepts a sequence node or a scalar string.
func (p *PathList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return err
		}
		*p = items
		return nil
	default:
		var raw string
		if err := value.Decode(&raw); err != nil {
			return err
		}
		*p = SplitPathList(raw)
		return nil
	}
}

// SplitPathList parses an excluded-path value into a list. A JSON array is
// decoded as-is; anything else is split on commas outside quotes.
func SplitPathList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	if strings.HasPrefix(raw, "[") {
		var items []string
		if err := json.Unmarshal([]byte(raw), &items); err == nil {
			return items
		}
		// Not valid JSON after all; fall through to comma splitting.
	}

	var (
		items   []string
		current strings.Builder
		quote   rune // active quote character, 0 when outside quotes
	)
	flush := func() {
		item := strings.TrimSpace(current.String())
		item = trimMatchingQuotes(item)
		if item != "" {
			items = append(items, item)
		}
		current.Reset()
	}
	for _, r := range raw {
		switch {
		case quote == 0 && (r == '"' || r == '\''):
			quote = r
			current.WriteRune(r)
		case quote != 0 && r == quote:
			quote = 0
			current.WriteRune(r)
		case r == ',' && quote == 0:
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return items
}

// trimMatchingQuotes strips one pair of surrounding quotes, if present.
func trimMatchingQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
