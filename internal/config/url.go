package config

import (
	"fmt"
	"regexp"
	"strings"
)

// ErrMissingPlaceholder reports that a ${...} placeholder in a connection
// URL could not be resolved against the active property set.
type ErrMissingPlaceholder struct {
	Key string
}

func (e *ErrMissingPlaceholder) Error() string {
	return fmt.Sprintf("unresolved connection URL placeholder: %s", e.Key)
}

// ErrMalformedURL reports a connection URL that does not match the
// jdbc:ojp[<host>:<port>]_<backendUrl> form.
type ErrMalformedURL struct {
	URL string
}

func (e *ErrMalformedURL) Error() string {
	return fmt.Sprintf("malformed OJP connection URL: %q", e.URL)
}

// ojpURLPrefix matches "jdbc:ojp[host:port]_" and captures host:port.
var ojpURLPrefix = regexp.MustCompile(`^jdbc:ojp\[([^\]]*)\]_`)

// placeholderPattern matches ${property.name} placeholders.
var placeholderPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ParseBackendURL strips the "ojp[host:port]_" prefix from a client
// connection URL, then substitutes every ${property} placeholder in
// the remaining native backend URL using props. It fails loudly —
// returning *ErrMissingPlaceholder — on the first unresolved key.
func ParseBackendURL(rawURL string, props map[string]string) (string, error) {
	m := ojpURLPrefix.FindStringSubmatchIndex(rawURL)
	if m == nil {
		return "", &ErrMalformedURL{URL: rawURL}
	}
	native := rawURL[m[1]:]

	return SubstitutePlaceholders(native, props)
}

// SubstitutePlaceholders replaces every ${key} occurrence in s with
// props[key]. It fails on the first key not present in props.
func SubstitutePlaceholders(s string, props map[string]string) (string, error) {
	var firstErr error
	result := placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}
		key := strings.TrimSpace(match[2 : len(match)-1])
		val, ok := props[key]
		if !ok {
			firstErr = &ErrMissingPlaceholder{Key: key}
			return match
		}
		return val
	})
	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}
