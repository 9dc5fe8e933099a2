package catalog

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"text/template"
)

// Named query templates, keyed the way the operations that use them are
// named in the BVFS component spec. Each one is a text/template string
// rendered against a map[string]any of bound fragments (table names,
// column lists) — never against untrusted user input; user-supplied
// values always travel as bound parameters ("?"), substituted at
// Gateway.Query/Execute time, not at template-render time.
const (
	TmplLsSpecialDirs     = "bvfs_ls_special_dirs_3"
	TmplLsSubDirs         = "bvfs_lsdirs_4"
	TmplLsFiles           = "bvfs_list_files"
	TmplVersions          = "bvfs_versions_6"
	TmplSelect            = "bvfs_select"
	TmplUpdatePathVisible = "bvfs_update_path_visibility_3"
	TmplLockHierarchy     = "bvfs_lock_pathhierarchy_0"
	TmplUnlockTables      = "bvfs_unlock_tables_0"
	TmplClearCache        = "bvfs_clear_cache_0"
	TmplMatchQuery        = "match_query"
	TmplMatchQuery2       = "match_query2"
)

// defaultTemplates holds the SQLite-dialect rendering of every named
// template. A deployment can override individual entries (see
// internal/config) without forking the Gateway implementation.
var defaultTemplates = map[string]string{
	TmplLsSpecialDirs: `
SELECT DISTINCT '{{.Type}}' AS type, Path.PathId AS pathid, '.' AS name,
       Job.JobId AS jobid, '' AS lstat, 0 AS fileid, '' AS md5, '0' AS volname
FROM Path
JOIN PathVisibility ON PathVisibility.PathId = Path.PathId
JOIN Job ON Job.JobId = PathVisibility.JobId
WHERE Path.PathId = {{.PathId}} AND Job.JobId IN ({{.JobIds}})`,

	TmplLsSubDirs: `
SELECT DISTINCT 'D' AS type, PathHierarchy.PathId AS pathid,
       Path.Path AS name, PathVisibility.JobId AS jobid,
       '' AS lstat, 0 AS fileid, '' AS md5, '0' AS volname
FROM PathHierarchy
JOIN Path ON Path.PathId = PathHierarchy.PathId
JOIN PathVisibility ON PathVisibility.PathId = PathHierarchy.PathId
WHERE PathHierarchy.PPathId = {{.PPathId}}
  AND PathVisibility.JobId IN ({{.JobIds}})
{{if .Pattern}} AND substr(Path.Path, length((SELECT pp.Path FROM Path pp WHERE pp.PathId = {{.PPathId}})) + 1) LIKE ? ESCAPE '\' {{end}}
ORDER BY name
LIMIT {{.Limit}} OFFSET {{.Offset}}`,

	TmplLsFiles: `
SELECT DISTINCT 'F' AS type, File.PathId AS pathid, File.Name AS name,
       File.JobId AS jobid, File.LStat AS lstat, File.FileId AS fileid,
       File.MD5 AS md5, '0' AS volname
FROM File
WHERE File.PathId = {{.PathId}} AND File.JobId IN ({{.JobIds}})
{{if .Pattern}} AND File.Name LIKE ? ESCAPE '\' {{end}}
ORDER BY name
LIMIT {{.Limit}} OFFSET {{.Offset}}`,

	TmplVersions: `
SELECT 'V' AS type, File.PathId AS pathid, File.Name AS name,
       File.JobId AS jobid, File.LStat AS lstat, File.FileId AS fileid,
       File.MD5 AS md5, File.VolumeName AS volname, File.VolInChanger AS volinchanger
FROM File
JOIN Job ON Job.JobId = File.JobId
WHERE File.PathId = {{.PathId}} AND File.Name = ?
  AND Job.ClientName = ?
{{if .SeeCopies}} AND Job.Type IN ('C', 'B') {{else}} AND Job.Type = 'B' {{end}}
{{if not .SeeAllVersions}} AND Job.JobId IN ({{.JobIds}}) {{end}}
ORDER BY Job.JobTDate DESC`,

	TmplSelect: `
SELECT PathHierarchy.PathId, PathHierarchy.PPathId
FROM PathHierarchy
WHERE PathHierarchy.PathId = {{.PathId}}`,

	TmplUpdatePathVisible: `
INSERT OR IGNORE INTO PathVisibility (PathId, JobId)
SELECT PathHierarchy.PPathId, {{.JobId}}
FROM PathHierarchy
JOIN PathVisibility ON PathVisibility.PathId = PathHierarchy.PathId
WHERE PathVisibility.JobId = {{.JobId}}
{{if .IncludeBaseFiles}}
UNION
SELECT PathHierarchy.PPathId, {{.JobId}}
FROM PathHierarchy
JOIN PathVisibility ON PathVisibility.PathId = PathHierarchy.PathId
JOIN BaseFiles ON BaseFiles.FileId IN (
    SELECT FileId FROM File WHERE File.PathId = PathVisibility.PathId
)
WHERE BaseFiles.JobId = {{.JobId}}
{{end}}`,

	TmplLockHierarchy: `SELECT 1 FROM PathHierarchy LIMIT 1`,
	TmplUnlockTables:  ``,
	TmplClearCache:    `UPDATE Job SET HasCache = 0`,

	TmplMatchQuery: `
SELECT Path.PathId FROM Path WHERE Path.Path LIKE ? ESCAPE '\'`,

	TmplMatchQuery2: `
SELECT File.FileId FROM File
JOIN Path ON Path.PathId = File.PathId
WHERE Path.Path || File.Name LIKE ? ESCAPE '\'`,
}

// templateFuncs is the vocabulary available inside a template body. Kept
// intentionally small: templates only ever splice already-validated
// identifiers (table/column names, comma-joined ID lists), never raw
// user input.
var templateFuncs = template.FuncMap{
	"join": func(sep string, xs []string) string { return strings.Join(xs, sep) },
}

// templateCache stores parsed templates keyed by their source text, the
// same scheme used by the rest of the retrieved codebase for rendering
// query fragments: parse once, Execute many times (text/template.Execute
// is safe for concurrent use against a single *Template).
var templateCache sync.Map // template source (string) -> *template.Template

// renderTemplate parses (or fetches from cache) and executes tmpl
// against data.
func renderTemplate(tmpl string, data map[string]any) (string, error) {
	var t *template.Template
	if cached, ok := templateCache.Load(tmpl); ok {
		t = cached.(*template.Template)
	} else {
		parsed, err := template.New("").Funcs(templateFuncs).Parse(tmpl)
		if err != nil {
			return "", fmt.Errorf("catalog: parse template: %w", err)
		}
		t = parsed
		templateCache.Store(tmpl, t)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("catalog: render template: %w", err)
	}
	return buf.String(), nil
}
