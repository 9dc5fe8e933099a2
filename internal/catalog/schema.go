package catalog

// schemaDDL creates the catalog relations BVFS reads and writes, scoped
// to the subset spec §3.E names: Path, Job, File, PathHierarchy,
// PathVisibility and BaseFiles. A production Bareos catalog already has
// these tables (and many more); CREATE TABLE IF NOT EXISTS lets BVFS
// bootstrap a standalone catalog for tests and the bundled fixtures
// without disturbing an existing one.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS Path (
		PathId   INTEGER PRIMARY KEY,
		Path     TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS Job (
		JobId      INTEGER PRIMARY KEY,
		Name       TEXT NOT NULL DEFAULT '',
		Type       TEXT NOT NULL DEFAULT 'B',
		ClientName TEXT NOT NULL DEFAULT '',
		JobTDate   INTEGER NOT NULL DEFAULT 0,
		HasCache   INTEGER NOT NULL DEFAULT 0,
		JobStatus  TEXT NOT NULL DEFAULT 'T'
	)`,
	`CREATE TABLE IF NOT EXISTS File (
		FileId       INTEGER PRIMARY KEY,
		JobId        INTEGER NOT NULL,
		PathId       INTEGER NOT NULL,
		FileIndex    INTEGER NOT NULL DEFAULT 0,
		Name         TEXT NOT NULL DEFAULT '',
		LStat        TEXT NOT NULL DEFAULT '',
		MD5          TEXT NOT NULL DEFAULT '',
		VolumeName   TEXT NOT NULL DEFAULT '',
		VolInChanger INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS file_jobid_pathid_idx ON File (JobId, PathId)`,
	`CREATE TABLE IF NOT EXISTS PathHierarchy (
		PathId  INTEGER NOT NULL,
		PPathId INTEGER NOT NULL,
		PRIMARY KEY (PathId)
	)`,
	`CREATE INDEX IF NOT EXISTS pathhierarchy_ppathid_idx ON PathHierarchy (PPathId)`,
	`CREATE TABLE IF NOT EXISTS PathVisibility (
		PathId INTEGER NOT NULL,
		JobId  INTEGER NOT NULL,
		PRIMARY KEY (JobId, PathId)
	)`,
	`CREATE TABLE IF NOT EXISTS BaseFiles (
		BaseId INTEGER PRIMARY KEY,
		FileId INTEGER NOT NULL,
		JobId  INTEGER NOT NULL,
		BaseJobId INTEGER NOT NULL DEFAULT 0,
		FileIndex INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS basefiles_jobid_idx ON BaseFiles (JobId)`,
}
