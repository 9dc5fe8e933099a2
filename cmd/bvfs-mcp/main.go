// Command bvfs-mcp exposes the browser and restore-list engine as MCP
// tools over stdio, so an automated restore agent can drive the same
// catalog operations as bvfsctl without a TTY.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/bareos/bvfs/internal/browser"
	"github.com/bareos/bvfs/internal/catalog"
	"github.com/bareos/bvfs/internal/config"
	"github.com/bareos/bvfs/internal/hierarchy"
	"github.com/bareos/bvfs/internal/restore"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	dsn := envOr("BVFS_DSN", "file:bareos.db")
	ctx := context.Background()

	var gw *catalog.SQLiteGateway
	var err error
	if cfgPath := os.Getenv("BVFS_CONFIG"); cfgPath != "" {
		cfg, cerr := config.Load(cfgPath)
		if cerr != nil {
			fmt.Fprintln(os.Stderr, cerr)
			os.Exit(1)
		}
		gw, err = catalog.Open(ctx, cfg.Catalog.DSN)
		if err == nil {
			cfg.ApplyTemplateOverrides(gw)
		}
	} else {
		gw, err = catalog.Open(ctx, dsn)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "open catalog:", err)
		os.Exit(1)
	}
	defer gw.Close()

	a := &agent{gw: gw, sessions: map[string]*browser.Session{}, hb: hierarchy.New(gw)}

	s := server.NewMCPServer("bvfs-mcp", "1.0.0")

	s.AddTool(mcp.NewTool("chdir",
		mcp.WithDescription("Change a browsing session's current directory"),
		mcp.WithString("session", mcp.Required(), mcp.Description("session id; created on first use")),
		mcp.WithString("path", mcp.Required(), mcp.Description("catalog path, e.g. \"/etc/\"")),
	), a.chdir)

	s.AddTool(mcp.NewTool("ls_dirs",
		mcp.WithDescription("List subdirectories of the session's current directory"),
		mcp.WithString("session", mcp.Required()),
		mcp.WithString("jobids", mcp.Description("comma-separated job id set; required before first listing")),
	), a.lsDirs)

	s.AddTool(mcp.NewTool("ls_files",
		mcp.WithDescription("List files in the session's current directory"),
		mcp.WithString("session", mcp.Required()),
		mcp.WithString("jobids", mcp.Description("comma-separated job id set; required before first listing")),
	), a.lsFiles)

	s.AddTool(mcp.NewTool("file_versions",
		mcp.WithDescription("List every backed-up version of one file"),
		mcp.WithString("session", mcp.Required()),
		mcp.WithNumber("pathId", mcp.Required()),
		mcp.WithString("name", mcp.Required()),
		mcp.WithString("clientName", mcp.Required()),
		mcp.WithBoolean("seeCopies", mcp.Description("include copy jobs, not just full/incremental/differential backups")),
	), a.fileVersions)

	s.AddTool(mcp.NewTool("update_cache",
		mcp.WithDescription("Build PathHierarchy/PathVisibility rows for a set of jobs"),
		mcp.WithString("jobids", mcp.Required(), mcp.Description("comma-separated job id list")),
	), a.updateCache)

	s.AddTool(mcp.NewTool("compute_restore_list",
		mcp.WithDescription("Build a restore-list table from file ids, directory ids and/or hardlink pairs"),
		mcp.WithString("session", mcp.Required()),
		mcp.WithString("fileIds", mcp.Description("comma-separated File ids")),
		mcp.WithString("dirIds", mcp.Description("comma-separated directory PathIds")),
		mcp.WithString("hardlinks", mcp.Description("comma-separated jobId,fileIndex pairs")),
		mcp.WithString("token", mcp.Required(), mcp.Description("output table name, shape \"b2<digits>\"")),
	), a.computeRestoreList)

	s.AddTool(mcp.NewTool("drop_restore_list",
		mcp.WithDescription("Drop a previously computed restore-list table"),
		mcp.WithString("token", mcp.Required()),
	), a.dropRestoreList)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// agent holds one browser.Session per MCP client-assigned session id,
// since an MCP tool call carries no connection-scoped state of its own
// (spec §5: one caller goroutine per Session, serialized here by mu).
type agent struct {
	gw       catalog.Gateway
	hb       *hierarchy.Builder
	mu       sync.Mutex
	sessions map[string]*browser.Session
}

func (a *agent) sessionFor(id string) *browser.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	sess, ok := a.sessions[id]
	if !ok {
		sess = browser.NewSession(a.gw)
		a.sessions[id] = sess
	}
	return sess
}

func errResult(err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(err.Error()), nil
}

func argString(req mcp.CallToolRequest, key string) string {
	if v, ok := req.Params.Arguments[key].(string); ok {
		return v
	}
	return ""
}

func argNumber(req mcp.CallToolRequest, key string) uint64 {
	switch v := req.Params.Arguments[key].(type) {
	case float64:
		return uint64(v)
	case string:
		n, _ := strconv.ParseUint(v, 10, 64)
		return n
	}
	return 0
}

func argBool(req mcp.CallToolRequest, key string) bool {
	v, _ := req.Params.Arguments[key].(bool)
	return v
}

func (a *agent) chdir(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess := a.sessionFor(argString(req, "session"))
	ok, err := sess.ChDir(ctx, argString(req, "path"))
	if err != nil {
		return errResult(err)
	}
	if !ok {
		return mcp.NewToolResultText("no such path"), nil
	}
	return mcp.NewToolResultText("ok"), nil
}

// drainRows runs op (one listing call per invocation) across every page
// and renders the collected rows as a tab-separated text block, the
// simplest shape an LLM tool caller can parse without a JSON schema.
func drainRows(sess *browser.Session, op func() (bool, error)) (*mcp.CallToolResult, error) {
	var b strings.Builder
	sess.SetHandler(func(r browser.Row) error {
		fmt.Fprintf(&b, "%c\t%d\t%s\t%d\t%d\t%s\t%s\t%d\n",
			r.Type, r.PathId, r.Name, r.JobId, r.FileId, r.Md5, r.VolName, r.VolInChanger)
		return nil
	})
	defer sess.SetHandler(nil)

	sess.SetOffset(0)
	for {
		full, err := op()
		if err != nil {
			return errResult(err)
		}
		if !full {
			break
		}
		sess.NextPage()
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (a *agent) lsDirs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess := a.sessionFor(argString(req, "session"))
	if jobids := argString(req, "jobids"); jobids != "" {
		if err := sess.SetJobIDs(jobids); err != nil {
			return errResult(err)
		}
	}
	return drainRows(sess, func() (bool, error) { return sess.LsDirs(ctx) })
}

func (a *agent) lsFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess := a.sessionFor(argString(req, "session"))
	if jobids := argString(req, "jobids"); jobids != "" {
		if err := sess.SetJobIDs(jobids); err != nil {
			return errResult(err)
		}
	}
	return drainRows(sess, func() (bool, error) { return sess.LsFiles(ctx) })
}

func (a *agent) fileVersions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess := a.sessionFor(argString(req, "session"))
	pathID := argNumber(req, "pathId")
	clientName := argString(req, "clientName")
	name := argString(req, "name")
	sess.SetSeeCopies(argBool(req, "seeCopies"))
	return drainRows(sess, func() (bool, error) {
		return false, sess.GetAllFileVersions(ctx, pathID, name, clientName)
	})
}

func (a *agent) updateCache(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	parts := strings.Split(argString(req, "jobids"), ",")
	ids := make([]uint64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return errResult(fmt.Errorf("malformed job id %q: %w", p, err))
		}
		ids = append(ids, id)
	}
	if err := a.hb.BulkUpdate(ctx, ids); err != nil {
		return errResult(err)
	}
	return mcp.NewToolResultText("ok"), nil
}

func (a *agent) computeRestoreList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess := a.sessionFor(argString(req, "session"))
	ok, err := restore.ComputeRestoreList(ctx, a.gw, sess,
		argString(req, "fileIds"), argString(req, "dirIds"), argString(req, "hardlinks"), argString(req, "token"))
	if err != nil {
		return errResult(err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("%v", ok)), nil
}

func (a *agent) dropRestoreList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ok, err := restore.DropRestoreList(ctx, a.gw, argString(req, "token"))
	if err != nil {
		return errResult(err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("%v", ok)), nil
}
