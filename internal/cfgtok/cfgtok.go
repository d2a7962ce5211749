// Package cfgtok implements the brace-delimited configuration mini-language
// used to configure the bus and its plugins: "{name: key = value, ...}"
// groups nested inside a flat configuration string.
package cfgtok

import "strings"

// Locate finds token within src outside any braces and returns the trimmed
// text following the token, up to but not including delim or an unmatched
// closing brace, whichever comes first (or the trimmed rest of src if delim
// is zero). It returns ("", false) if the token is not present outside
// braces.
func Locate(token string, src string, delim byte) (string, bool) {
	depth := 0
	i := 0
	for i < len(src) {
		switch src[i] {
		case '{':
			depth++
			i++
			continue
		case '}':
			depth--
			i++
			continue
		}
		if depth == 0 && matchesTokenAt(src, i, token) {
			start := i + len(token)
			if delim == 0 {
				return strings.TrimSpace(src[start:]), true
			}
			end := start
			d := 0
			for end < len(src) {
				switch src[end] {
				case '{':
					d++
				case '}':
					if d == 0 {
						return strings.TrimSpace(src[start:end]), true
					}
					d--
				}
				if d == 0 && src[end] == delim {
					return strings.TrimSpace(src[start:end]), true
				}
				end++
			}
			return strings.TrimSpace(src[start:end]), true
		}
		i++
	}
	return "", false
}

func matchesTokenAt(src string, i int, token string) bool {
	if i+len(token) > len(src) {
		return false
	}
	if src[i:i+len(token)] != token {
		return false
	}
	// require the token to stand as its own identifier, not a prefix of a
	// longer one (e.g. "imu" must not match inside "imu_const")
	if i > 0 && isIdentChar(src[i-1]) {
		return false
	}
	end := i + len(token)
	if end < len(src) && isIdentChar(src[end]) {
		return false
	}
	return true
}

func isIdentChar(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}

// Group extracts the brace-delimited body of the first occurrence of a
// named subsystem group, e.g. Group("imu", "{gnss: ...}{imu: freq = 100}")
// returns "freq = 100", true.
func Group(name string, src string) (string, bool) {
	groups := GroupAll(name, src)
	if len(groups) == 0 {
		return "", false
	}
	return groups[0], true
}

// GroupAll extracts the brace-delimited bodies of every occurrence of a
// named subsystem group in src, in order of appearance. Subsystems such as
// gnss may be declared more than once, one group per receiver/constellation.
func GroupAll(name string, src string) []string {
	var groups []string
	marker := "{" + name + ":"
	pos := 0
	for {
		rel := strings.Index(src[pos:], marker)
		if rel < 0 {
			break
		}
		idx := pos + rel
		bodyStart := idx + len(marker)
		depth := 1
		end := -1
		for i := bodyStart; i < len(src); i++ {
			switch src[i] {
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					end = i
				}
			}
			if end >= 0 {
				break
			}
		}
		if end < 0 {
			break
		}
		groups = append(groups, strings.TrimSpace(src[bodyStart:end]))
		pos = end + 1
	}
	return groups
}

// Value finds "key = value" within src (typically a Group body) and returns
// the trimmed value up to the next comma or closing brace at the same
// nesting depth.
func Value(key string, src string) (string, bool) {
	raw, ok := Locate(key, src, 0)
	if !ok {
		return "", false
	}
	raw = strings.TrimPrefix(raw, "=")
	raw = strings.TrimSpace(raw)
	// cut at the first top-level comma
	depth := 0
	for i := 0; i < len(raw); i++ {
		switch raw[i] {
		case '{':
			depth++
		case '}':
			if depth == 0 {
				return strings.TrimSpace(raw[:i]), true
			}
			depth--
		case ',':
			if depth == 0 {
				return strings.TrimSpace(raw[:i]), true
			}
		}
	}
	return strings.TrimSpace(raw), true
}
