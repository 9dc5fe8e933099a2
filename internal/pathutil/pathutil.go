// Package pathutil implements the normative path helpers shared by the
// hierarchy builder and the browser: computing a
// path's parent, its basename, and escaping a user pattern for SQL LIKE.
package pathutil

import "strings"

// ParentDir returns the parent of p, always ending in a single trailing
// separator, or "" if p has no parent under the BVFS path model.
//
// Rules (normative, see spec §6.4):
//   - a Windows drive root "X:/" (exactly 3 chars, alpha, ':', '/') has no parent
//   - a trailing separator is stripped before scanning
//   - scanning back to the nearest separator keeps that separator in the result
//   - no separator found (e.g. a bare plugin tag) truncates to ""
//   - the root "/" has no parent
func ParentDir(p string) string {
	if len(p) == 3 && isAlpha(p[0]) && p[1] == ':' && p[2] == '/' {
		return ""
	}

	trimmed := p
	if n := len(trimmed); n > 0 && trimmed[n-1] == '/' {
		trimmed = trimmed[:n-1]
	}
	if trimmed == "" {
		return ""
	}

	idx := strings.LastIndexByte(trimmed, '/')
	if idx < 0 {
		return ""
	}
	return trimmed[:idx+1]
}

func isAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// BasenameDir returns the last path component of p, skipping one
// trailing separator if present. For "/a/b/" this returns "b/"; for a
// file "x" appended without a trailing separator it returns "x".
func BasenameDir(p string) string {
	trimmed := p
	hadSep := false
	if n := len(trimmed); n > 0 && trimmed[n-1] == '/' {
		trimmed = trimmed[:n-1]
		hadSep = true
	}
	idx := strings.LastIndexByte(trimmed, '/')
	base := trimmed
	if idx >= 0 {
		base = trimmed[idx+1:]
	}
	if hadSep {
		return base + "/"
	}
	return base
}

// EscapeLike escapes the LIKE metacharacters %, _, and \ in raw so that,
// once substituted into a LIKE pattern via a parameterized query, they
// match themselves literally rather than acting as wildcards. Any
// additional wildcard characters the caller wants to keep live (e.g. a
// trailing "%" appended by the caller after escaping) must be appended
// after this call.
func EscapeLike(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		switch raw[i] {
		case '\\', '%', '_':
			b.WriteByte('\\')
		}
		b.WriteByte(raw[i])
	}
	return b.String()
}
