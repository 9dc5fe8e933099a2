// Package browser implements the Browser: a session's navigation state
// (current directory, job set, pattern filter, paging window) and the
// directory/file/version listing operations that read it back against
// the catalog.
package browser

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bareos/bvfs/internal/catalog"
	"github.com/bareos/bvfs/internal/pathutil"
)

// Row is one listing result, shaped per the row-sink contract of spec
// §6.3. Md5, VolName and VolInChanger are only populated for Type='V'
// rows (file-version listings).
type Row struct {
	Type         byte
	PathId       uint64
	Name         string
	JobId        uint64
	LStat        string
	FileId       uint64
	Md5          string
	VolName      string
	VolInChanger int
}

// Handler receives one call per listing row.
type Handler func(Row) error

// Session holds one browsing session's mutable state. A Session is not
// safe for concurrent use: the spec's concurrency model assumes a
// single caller goroutine per session (see spec §5), matching the
// "single catalog connection per session" resource policy.
type Session struct {
	gw catalog.Gateway

	jobIDs []uint64

	pwdPathID uint64
	rootID    uint64
	rootKnown bool

	pattern        string
	limit          uint32
	offset         uint32
	seeCopies      bool
	seeAllVersions bool

	handler Handler
}

// NewSession returns a Session backed by gw with the default limit of
// 1000 rows per page.
func NewSession(gw catalog.Gateway) *Session {
	return &Session{gw: gw, limit: 1000}
}

// SetJobID sets the session's job set to the single job id.
func (s *Session) SetJobID(id uint64) {
	s.jobIDs = []uint64{id}
}

// SetJobIDs parses a comma-separated decimal id list (spec §6.6) and
// sets the session's job set to it.
func (s *Session) SetJobIDs(csv string) error {
	ids, err := parseIDList(csv)
	if err != nil {
		return err
	}
	s.jobIDs = ids
	return nil
}

func parseIDList(csv string) ([]uint64, error) {
	csv = strings.TrimSpace(csv)
	if csv == "" {
		return nil, nil
	}
	parts := strings.Split(csv, ",")
	out := make([]uint64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if len(p) == 0 || len(p) > 30 {
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

// SetLimit sets the page size. A limit of 0 means LsDirs and LsFiles
// return zero rows (spec §8.3); GetAllFileVersions does not page.
func (s *Session) SetLimit(n uint32) { s.limit = n }

// SetOffset sets the paging offset.
func (s *Session) SetOffset(n uint32) { s.offset = n }

// SetPattern escapes raw for use as a SQL LIKE filter and stores it;
// literal '%', '_', '\' in raw are escaped so they match themselves
// rather than acting as wildcards (spec §4.4.1, §8.3). A trailing "%"
// wildcard is appended so the pattern matches by prefix.
func (s *Session) SetPattern(raw string) {
	if raw == "" {
		s.pattern = ""
		return
	}
	s.pattern = pathutil.EscapeLike(raw) + "%"
}

func (s *Session) SetSeeCopies(v bool)      { s.seeCopies = v }
func (s *Session) SetSeeAllVersions(v bool) { s.seeAllVersions = v }

// SetHandler installs the row sink invoked once per listing row.
func (s *Session) SetHandler(h Handler) { s.handler = h }

// jobIDsCSV renders the session's job set as the comma-separated
// decimal list the query templates expect.
func (s *Session) jobIDsCSV() string {
	return s.JobIDsCSV()
}

// JobIDsCSV renders the session's job set as a comma-separated decimal
// list, for collaborators (the restore-list builder) that need to
// restrict their own queries to the same job set.
func (s *Session) JobIDsCSV() string {
	parts := make([]string, len(s.jobIDs))
	for i, id := range s.jobIDs {
		parts[i] = strconv.FormatUint(id, 10)
	}
	return strings.Join(parts, ",")
}

// Root resolves and returns the PathId of the empty path "", creating
// the row if the catalog does not yet have one. This is the synthetic
// root above every client's own filesystem root ("/", "C:/", …).
func (s *Session) Root(ctx context.Context) (uint64, error) {
	if s.rootKnown {
		return s.rootID, nil
	}
	id, err := lookupOrCreatePath(ctx, s.gw, "")
	if err != nil {
		return 0, err
	}
	s.rootID = id
	s.rootKnown = true
	return id, nil
}

func lookupOrCreatePath(ctx context.Context, gw catalog.Gateway, path string) (uint64, error) {
	var id uint64
	found := false
	err := gw.Query(ctx, "SELECT PathId FROM Path WHERE Path = ?", func(r catalog.Row) error {
		found = true
		return r.Scan(&id)
	}, path)
	if err != nil {
		return 0, err
	}
	if found {
		return id, nil
	}
	if _, err := gw.Execute(ctx, "INSERT OR IGNORE INTO Path (Path) VALUES (?)", path); err != nil {
		return 0, err
	}
	err = gw.Query(ctx, "SELECT PathId FROM Path WHERE Path = ?", func(r catalog.Row) error {
		return r.Scan(&id)
	}, path)
	return id, err
}

// ChDir changes the current directory to pathText, returning false
// (with no error) if no such path exists in the catalog.
func (s *Session) ChDir(ctx context.Context, pathText string) (bool, error) {
	var id uint64
	found := false
	err := s.gw.Query(ctx, "SELECT PathId FROM Path WHERE Path = ?", func(r catalog.Row) error {
		found = true
		return r.Scan(&id)
	}, pathText)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	s.pwdPathID = id
	return true, nil
}

// ChDirID changes the current directory directly to a known PathId,
// without a catalog round trip.
func (s *Session) ChDirID(id uint64) {
	s.pwdPathID = id
}

// Pwd returns the PathId of the current directory.
func (s *Session) Pwd() uint64 { return s.pwdPathID }

// NextPage advances the paging window by the current limit.
func (s *Session) NextPage() { s.offset += s.limit }

// LsDirs lists the special entries "." and ".." followed by child
// directories of pwd visible in any of the session's jobs, matching the
// session's pattern filter if set. It returns true iff the page was
// full (spec §4.4.2, §4.4.5).
func (s *Session) LsDirs(ctx context.Context) (bool, error) {
	if len(s.jobIDs) == 0 {
		return false, nil
	}
	if s.limit == 0 {
		return false, nil
	}

	if err := s.emitSpecialDirs(ctx); err != nil {
		return false, err
	}

	query, err := s.gw.Template(catalog.TmplLsSubDirs, map[string]any{
		"PPathId": s.pwdPathID,
		"JobIds":  s.jobIDsCSV(),
		"Pattern": s.pattern != "",
		"Limit":   s.limit,
		"Offset":  s.offset,
	})
	if err != nil {
		return false, err
	}

	var args []any
	if s.pattern != "" {
		args = append(args, s.pattern)
	}

	n := 0
	lastName := ""
	err = s.gw.Query(ctx, query, func(r catalog.Row) error {
		var typ, fullPath string
		var pathID, jobID, fileID uint64
		var lstat, md5 string
		var volName string
		if err := r.Scan(&typ, &pathID, &fullPath, &jobID, &lstat, &fileID, &md5, &volName); err != nil {
			return err
		}
		name := pathutil.BasenameDir(fullPath)
		if name == lastName {
			return nil
		}
		lastName = name
		n++
		if s.handler != nil {
			return s.handler(Row{Type: 'D', PathId: pathID, Name: name, JobId: jobID})
		}
		return nil
	}, args...)
	if err != nil {
		return false, err
	}
	return uint32(n) >= s.limit, nil
}

func (s *Session) emitSpecialDirs(ctx context.Context) error {
	if s.handler == nil {
		return nil
	}
	if err := s.handler(Row{Type: 'D', PathId: s.pwdPathID, Name: "."}); err != nil {
		return err
	}

	query, err := s.gw.Template(catalog.TmplSelect, map[string]any{"PathId": s.pwdPathID})
	if err != nil {
		return err
	}

	var parentID uint64
	found := false
	err = s.gw.Query(ctx, query, func(r catalog.Row) error {
		var pathID uint64
		found = true
		return r.Scan(&pathID, &parentID)
	})
	if err != nil {
		return err
	}
	if found {
		return s.handler(Row{Type: 'D', PathId: parentID, Name: ".."})
	}
	return nil
}

// LsFiles lists files at pwd across the session's job set, in 'F' rows,
// returning true iff the page was full.
func (s *Session) LsFiles(ctx context.Context) (bool, error) {
	if len(s.jobIDs) == 0 {
		return false, nil
	}
	if s.limit == 0 {
		return false, nil
	}

	query, err := s.gw.Template(catalog.TmplLsFiles, map[string]any{
		"PathId":  s.pwdPathID,
		"JobIds":  s.jobIDsCSV(),
		"Pattern": s.pattern != "",
		"Limit":   s.limit,
		"Offset":  s.offset,
	})
	if err != nil {
		return false, err
	}

	var args []any
	if s.pattern != "" {
		args = append(args, s.pattern)
	}

	n := 0
	err = s.gw.Query(ctx, query, func(r catalog.Row) error {
		var typ, name, lstat, md5, volName string
		var pathID, jobID, fileID uint64
		if err := r.Scan(&typ, &pathID, &name, &jobID, &lstat, &fileID, &md5, &volName); err != nil {
			return err
		}
		n++
		if s.handler != nil {
			return s.handler(Row{Type: 'F', PathId: pathID, Name: name, JobId: jobID, LStat: lstat, FileId: fileID})
		}
		return nil
	}, args...)
	if err != nil {
		return false, err
	}
	return uint32(n) >= s.limit, nil
}

// GetAllFileVersions emits every backed-up occurrence of name at
// pathID, on the named client, as Type='V' rows carrying the media
// location (VolName, VolInChanger) each version was written to. The
// Type filter on the underlying Job relation is restricted to 'B'
// (full/incremental/differential backups) normally, widened to
// ('C','B') (include copy jobs) when seeCopies is set (spec §4.4.4).
func (s *Session) GetAllFileVersions(ctx context.Context, pathID uint64, name, clientName string) error {
	query, err := s.gw.Template(catalog.TmplVersions, map[string]any{
		"PathId":         pathID,
		"JobIds":         s.jobIDsCSV(),
		"SeeCopies":      s.seeCopies,
		"SeeAllVersions": s.seeAllVersions,
	})
	if err != nil {
		return err
	}

	return s.gw.Query(ctx, query, func(r catalog.Row) error {
		var typ, rowName string
		var rowPathID, jobID, fileID uint64
		var lstat, md5, volName string
		var volInChanger int
		if err := r.Scan(&typ, &rowPathID, &rowName, &jobID, &lstat, &fileID, &md5, &volName, &volInChanger); err != nil {
			return err
		}
		if s.handler == nil {
			return nil
		}
		return s.handler(Row{
			Type: 'V', PathId: rowPathID, Name: rowName, JobId: jobID,
			LStat: lstat, FileId: fileID, Md5: md5,
			VolName: volName, VolInChanger: volInChanger,
		})
	}, name, clientName)
}
