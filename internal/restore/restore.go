// Package restore implements the Restore-List Builder: it turns a
// heterogeneous selection (file IDs, directory IDs, hardlink pairs)
// over a session's job set into a deduplicated, most-recent-wins set of
// restore tuples materialized as a session-scoped temporary relation.
package restore

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bareos/bvfs/internal/browser"
	"github.com/bareos/bvfs/internal/catalog"
)

// tokenPattern is the valid restore-list table name shape (spec §6.5):
// "b2" followed by one or more decimal digits.
var tokenPattern = regexp.MustCompile(`^b2[0-9]+$`)

// validateToken refuses any outputTable that does not match tokenPattern.
func validateToken(token string) error {
	if !tokenPattern.MatchString(token) {
		return fmt.Errorf("%w: invalid restore-list token %q", catalog.ErrBadArgument, token)
	}
	return nil
}

// ComputeRestoreList builds the restore-list table outputTable (shape
// "b2<digits>") from fileIDs, dirIDs and hardlinks — each a
// comma-separated decimal list, with hardlinks flattened as
// jobId,fileIndex pairs. At least one of the three must be non-empty.
// It returns true on success; any catalog failure drops the partial
// btemp<token> relation (best-effort) and returns an error.
func ComputeRestoreList(ctx context.Context, gw catalog.Gateway, sess *browser.Session,
	fileIDs, dirIDs, hardlinks, outputTable string) (bool, error) {

	if err := validateToken(outputTable); err != nil {
		return false, err
	}

	fileIDs = strings.TrimSpace(fileIDs)
	dirIDs = strings.TrimSpace(dirIDs)
	hardlinks = strings.TrimSpace(hardlinks)
	if fileIDs == "" && dirIDs == "" && hardlinks == "" {
		return false, fmt.Errorf("%w: at least one of fileIds, dirIds, hardlinks is required", catalog.ErrBadArgument)
	}

	gw.Lock()
	defer gw.Unlock()

	btemp := "btemp" + outputTable[len("b2"):]
	_, _ = gw.Execute(ctx, "DROP TABLE IF EXISTS "+btemp)
	_, _ = gw.Execute(ctx, "DROP TABLE IF EXISTS "+outputTable)

	selects, err := buildSelectClauses(ctx, gw, sess, fileIDs, dirIDs, hardlinks)
	if err != nil {
		_, _ = gw.Execute(ctx, "DROP TABLE IF EXISTS "+btemp)
		return false, err
	}
	if len(selects) == 0 {
		return false, nil
	}

	createBtemp := fmt.Sprintf("CREATE TABLE %s AS %s", btemp, strings.Join(selects, " UNION "))
	if _, err := gw.Execute(ctx, createBtemp); err != nil {
		_, _ = gw.Execute(ctx, "DROP TABLE IF EXISTS "+btemp)
		return false, fmt.Errorf("%w: %v", catalog.ErrCatalogFailure, err)
	}

	materialize := fmt.Sprintf(`
		CREATE TABLE %s AS
		SELECT t.* FROM %s t
		JOIN (
			SELECT PathId, Name, MAX(JobTDate) AS maxtdate
			FROM %s GROUP BY PathId, Name
		) latest ON latest.PathId = t.PathId AND latest.Name = t.Name AND latest.maxtdate = t.JobTDate`,
		outputTable, btemp, btemp)
	if _, err := gw.Execute(ctx, materialize); err != nil {
		_, _ = gw.Execute(ctx, "DROP TABLE IF EXISTS "+btemp)
		return false, fmt.Errorf("%w: %v", catalog.ErrCatalogFailure, err)
	}

	if _, err := gw.Execute(ctx, "DROP TABLE IF EXISTS "+btemp); err != nil {
		return false, fmt.Errorf("%w: %v", catalog.ErrCatalogFailure, err)
	}

	return true, nil
}

// fileSelectColumns is the common column projection shared by every
// branch of the union query: JobId, JobTDate, FileIndex, Name, PathId,
// FileId.
const fileSelectColumns = "Job.JobId, Job.JobTDate, File.FileIndex, File.Name, File.PathId, File.FileId"

func buildSelectClauses(ctx context.Context, gw catalog.Gateway, sess *browser.Session,
	fileIDs, dirIDs, hardlinks string) ([]string, error) {

	var selects []string

	if fileIDs != "" {
		ids, err := parseIDCSV(fileIDs)
		if err != nil {
			return nil, err
		}
		selects = append(selects, fmt.Sprintf(
			"SELECT %s FROM File JOIN Job ON Job.JobId = File.JobId WHERE File.FileId IN (%s)",
			fileSelectColumns, joinUint64(ids)))
	}

	if dirIDs != "" {
		ids, err := parseIDCSV(dirIDs)
		if err != nil {
			return nil, err
		}
		for _, d := range ids {
			clauses, err := dirSelectClauses(ctx, gw, sess, d)
			if err != nil {
				return nil, err
			}
			selects = append(selects, clauses...)
		}
	}

	if hardlinks != "" {
		clauses, err := hardlinkSelectClauses(hardlinks)
		if err != nil {
			return nil, err
		}
		selects = append(selects, clauses...)
	}

	return selects, nil
}

// dirSelectClauses emits the File-table and BaseFiles-table branches
// for one directory ID, restricted to the session's job set. If the
// PathId resolves to no Path row, the branch is silently skipped (spec
// §7: path-not-found terminates only this branch).
func dirSelectClauses(ctx context.Context, gw catalog.Gateway, sess *browser.Session, pathID uint64) ([]string, error) {
	var path string
	found := false
	err := gw.Query(ctx, "SELECT Path FROM Path WHERE PathId = ?", func(r catalog.Row) error {
		found = true
		return r.Scan(&path)
	}, pathID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	esc := gw.Escape(escapeLikeLiteral(path) + "%")
	jobCSV := sess.JobIDsCSV()
	if jobCSV == "" {
		return nil, nil
	}

	direct := fmt.Sprintf(
		"SELECT %s FROM Path JOIN File ON File.PathId = Path.PathId JOIN Job ON Job.JobId = File.JobId "+
			"WHERE Path.Path LIKE %s ESCAPE '\\' AND File.JobId IN (%s)",
		fileSelectColumns, esc, jobCSV)

	fromBase := fmt.Sprintf(
		"SELECT %s FROM Path JOIN File ON File.PathId = Path.PathId "+
			"JOIN BaseFiles ON BaseFiles.FileId = File.FileId JOIN Job ON Job.JobId = BaseFiles.JobId "+
			"WHERE Path.Path LIKE %s ESCAPE '\\' AND BaseFiles.JobId IN (%s)",
		fileSelectColumns, esc, jobCSV)

	return []string{direct, fromBase}, nil
}

func hardlinkSelectClauses(hardlinks string) ([]string, error) {
	parts := strings.Split(hardlinks, ",")
	if len(parts)%2 != 0 {
		return nil, fmt.Errorf("%w: hardlinks list has odd length", catalog.ErrBadArgument)
	}

	type pair struct{ jobID, fileIndex uint64 }
	pairs := make([]pair, 0, len(parts)/2)
	for i := 0; i < len(parts); i += 2 {
		j, err := strconv.ParseUint(strings.TrimSpace(parts[i]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed hardlink jobId %q", catalog.ErrBadArgument, parts[i])
		}
		fi, err := strconv.ParseUint(strings.TrimSpace(parts[i+1]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed hardlink fileIndex %q", catalog.ErrBadArgument, parts[i+1])
		}
		pairs = append(pairs, pair{j, fi})
	}

	// Group consecutive pairs sharing a JobId into one IN (...) clause,
	// mirroring the source's single left-to-right pass (spec §4.5.2).
	var selects []string
	i := 0
	for i < len(pairs) {
		j := pairs[i].jobID
		indices := []string{strconv.FormatUint(pairs[i].fileIndex, 10)}
		i++
		for i < len(pairs) && pairs[i].jobID == j {
			indices = append(indices, strconv.FormatUint(pairs[i].fileIndex, 10))
			i++
		}
		selects = append(selects, fmt.Sprintf(
			"SELECT %s FROM File JOIN Job ON Job.JobId = File.JobId WHERE File.JobId = %d AND File.FileIndex IN (%s)",
			fileSelectColumns, j, strings.Join(indices, ",")))
	}
	return selects, nil
}

// parseIDCSV parses a comma-separated decimal id list, rejecting any
// element longer than 30 characters or non-numeric (spec §6.6).
func parseIDCSV(csv string) ([]uint64, error) {
	parts := strings.Split(csv, ",")
	out := make([]uint64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || len(p) > 30 {
			return nil, fmt.Errorf("%w: malformed id %q", catalog.ErrBadArgument, p)
		}
		v, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed id %q", catalog.ErrBadArgument, p)
		}
		out = append(out, v)
	}
	return out, nil
}

func joinUint64(ids []uint64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(id, 10)
	}
	return strings.Join(parts, ",")
}

// escapeLikeLiteral escapes LIKE metacharacters in a path before it is
// SQL-literal-quoted by the Gateway (spec §4.5.2: "escape LIKE
// metacharacters in p, then escape SQL-literally").
func escapeLikeLiteral(raw string) string {
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

// DropRestoreList validates token's shape and drops it, returning true
// iff validation passed (spec §4.5.4).
func DropRestoreList(ctx context.Context, gw catalog.Gateway, token string) (bool, error) {
	if err := validateToken(token); err != nil {
		return false, err
	}
	if _, err := gw.Execute(ctx, "DROP TABLE IF EXISTS "+token); err != nil {
		return false, fmt.Errorf("%w: %v", catalog.ErrCatalogFailure, err)
	}
	return true, nil
}
