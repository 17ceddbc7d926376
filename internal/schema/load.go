// Package schema loads migration sets from directories of SQL files, either
// on disk or embedded with go:embed.
package schema

import (
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"

	"github.com/joestump/relaydb/internal/bridge"
)

// fileName matches {version}_{description}.sql, e.g. 001_create_users.sql.
// The numeric prefix keeps lexical order equal to apply order.
var fileName = regexp.MustCompile(`^(\d+)_([A-Za-z0-9_-]+)\.sql$`)

// Load reads every migration file at the root of fsys and returns them as a
// migration set ordered by filename. The migration name is the filename
// without its .sql suffix, so the bookkeeping table records which files ran.
func Load(fsys fs.FS) (bridge.MigrationSet, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		if !fileName.MatchString(entry.Name()) {
			return nil, fmt.Errorf("migration file %q does not match {version}_{description}.sql", entry.Name())
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	set := make(bridge.MigrationSet, 0, len(names))
	for _, name := range names {
		src, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read migration %q: %w", name, err)
		}
		stmts := SplitStatements(string(src))
		if len(stmts) == 0 {
			return nil, fmt.Errorf("migration %q contains no statements", name)
		}
		set = append(set, bridge.Migration{
			Name:       strings.TrimSuffix(name, ".sql"),
			Statements: stmts,
		})
	}
	return set, nil
}

// SplitStatements splits a migration file into individual statements on
// semicolons, honoring single-quoted literals (including '' escapes) and
// line comments. Chunks that hold nothing but whitespace and comments are
// dropped.
func SplitStatements(src string) []string {
	var stmts []string
	var b strings.Builder

	flush := func() {
		stmt := strings.TrimSpace(b.String())
		b.Reset()
		if stmt != "" && !commentsOnly(stmt) {
			stmts = append(stmts, stmt)
		}
	}

	inString := false
	inComment := false
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case inComment:
			b.WriteByte(c)
			if c == '\n' {
				inComment = false
			}
		case inString:
			b.WriteByte(c)
			if c == '\'' {
				// '' inside a literal is an escaped quote, not the end.
				if i+1 < len(src) && src[i+1] == '\'' {
					b.WriteByte(src[i+1])
					i++
					continue
				}
				inString = false
			}
		case c == '\'':
			inString = true
			b.WriteByte(c)
		case c == '-' && i+1 < len(src) && src[i+1] == '-':
			inComment = true
			b.WriteByte(c)
		case c == ';':
			flush()
		default:
			b.WriteByte(c)
		}
	}
	flush()
	return stmts
}

func commentsOnly(s string) bool {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			return false
		}
	}
	return true
}
