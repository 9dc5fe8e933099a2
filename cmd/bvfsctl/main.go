// Command bvfsctl is an interactive console for driving the browser and
// restore-list engine against a real Bareos catalog, modeled on the
// corpus's mount/list/unmount operator shell.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/bareos/bvfs/internal/browser"
	"github.com/bareos/bvfs/internal/catalog"
	"github.com/bareos/bvfs/internal/config"
	"github.com/bareos/bvfs/internal/hierarchy"
	"github.com/bareos/bvfs/internal/restore"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "none"
)

var (
	dsnFlag       string
	configFlag    string
	jobIDsFlag    string
	jsonOutput    bool
	selectExpr    string
	defaultLimit  uint32
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dsnFlag, "dsn", "file:bareos.db", "catalog DSN (ignored if --config is set)")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "path to a bvfsd.hcl config file")
	rootCmd.PersistentFlags().StringVar(&jobIDsFlag, "jobids", "", "comma-separated initial job id set")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit rows as JSON (ojg/oj) instead of a text table")
	rootCmd.PersistentFlags().StringVar(&selectExpr, "select", "", "JSONPath expression (ojg/jp) filtering ls/lsmark/versions rows")
	rootCmd.PersistentFlags().Uint32Var(&defaultLimit, "limit", 1000, "default page size")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("bvfsctl version %s (commit %s)\n", Version, Commit)
	},
}

var rootCmd = &cobra.Command{
	Use:   "bvfsctl",
	Short: "Interactive console for the Bareos virtual filesystem catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConsole()
	},
}

// console wraps the session state the REPL's command table mutates.
type console struct {
	ctx  context.Context
	gw   *catalog.SQLiteGateway
	sess *browser.Session
	hb   *hierarchy.Builder
	out  *bufio.Writer
}

func runConsole() error {
	ctx := context.Background()

	dsn := dsnFlag
	var cfg *config.Config
	if configFlag != "" {
		c, err := config.Load(configFlag)
		if err != nil {
			return err
		}
		cfg = c
		dsn = cfg.Catalog.DSN
	}

	gw, err := catalog.Open(ctx, dsn)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer gw.Close()

	if cfg != nil {
		cfg.ApplyTemplateOverrides(gw)
		defaultLimit = cfg.DefaultLimit(defaultLimit)
	}

	sess := browser.NewSession(gw)
	sess.SetLimit(defaultLimit)
	if jobIDsFlag != "" {
		if err := sess.SetJobIDs(jobIDsFlag); err != nil {
			return err
		}
	}

	c := &console{ctx: ctx, gw: gw, sess: sess, hb: hierarchy.New(gw), out: bufio.NewWriter(os.Stdout)}
	defer c.out.Flush()

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Fprintln(c.out, "bvfsctl ready — type 'help' for commands, 'quit' to exit")
	c.out.Flush()
	for {
		fmt.Fprint(os.Stdout, "bvfs> ")
		if !scanner.Scan() {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd, rest := fields[0], fields[1:]
		if cmd == "quit" || cmd == "exit" {
			return nil
		}
		if err := c.dispatch(cmd, rest); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		c.out.Flush()
	}
}

func (c *console) dispatch(cmd string, args []string) error {
	switch cmd {
	case "help":
		c.printHelp()
	case "cd":
		if len(args) != 1 {
			return fmt.Errorf("usage: cd <path>")
		}
		ok, err := c.sess.ChDir(c.ctx, args[0])
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(c.out, "no such path")
		}
	case "jobids":
		if len(args) != 1 {
			return fmt.Errorf("usage: jobids <csv>")
		}
		return c.sess.SetJobIDs(args[0])
	case "pattern":
		if len(args) > 1 {
			return fmt.Errorf("usage: pattern [prefix]")
		}
		if len(args) == 0 {
			c.sess.SetPattern("")
			return nil
		}
		c.sess.SetPattern(args[0])
	case "limit":
		if len(args) != 1 {
			return fmt.Errorf("usage: limit <n>")
		}
		n, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return err
		}
		c.sess.SetLimit(uint32(n))
	case "ls":
		return c.listRows(func() (bool, error) { return c.sess.LsDirs(c.ctx) })
	case "lsmark":
		return c.listRows(func() (bool, error) { return c.sess.LsFiles(c.ctx) })
	case "versions":
		if len(args) != 3 {
			return fmt.Errorf("usage: versions <pathId> <name> <clientName>")
		}
		pathID, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return err
		}
		return c.listRows(func() (bool, error) {
			return false, c.sess.GetAllFileVersions(c.ctx, pathID, args[1], args[2])
		})
	case "see-copies":
		if len(args) != 1 {
			return fmt.Errorf("usage: see-copies <true|false>")
		}
		v, err := strconv.ParseBool(args[0])
		if err != nil {
			return err
		}
		c.sess.SetSeeCopies(v)
	case "update-cache":
		if len(args) != 1 {
			return fmt.Errorf("usage: update-cache <jobids-csv>")
		}
		ids, err := parseIDs(args[0])
		if err != nil {
			return err
		}
		if err := c.hb.BulkUpdate(c.ctx, ids); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "ok")
	case "clear-cache":
		if err := c.hb.ClearCache(c.ctx); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "ok")
	case "restore":
		if len(args) != 4 {
			return fmt.Errorf("usage: restore <fileIds> <dirIds> <hardlinks> <token>")
		}
		ok, err := restore.ComputeRestoreList(c.ctx, c.gw, c.sess, dash(args[0]), dash(args[1]), dash(args[2]), args[3])
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, ok)
	case "drop-restore":
		if len(args) != 1 {
			return fmt.Errorf("usage: drop-restore <token>")
		}
		ok, err := restore.DropRestoreList(c.ctx, c.gw, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, ok)
	default:
		return fmt.Errorf("unknown command %q (try 'help')", cmd)
	}
	return nil
}

// dash turns a literal "-" into the empty argument, letting a caller
// skip one of restore's three optional selection lists on a single line.
func dash(s string) string {
	if s == "-" {
		return ""
	}
	return s
}

func parseIDs(csv string) ([]uint64, error) {
	parts := strings.Split(csv, ",")
	out := make([]uint64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed job id %q: %w", p, err)
		}
		out = append(out, id)
	}
	return out, nil
}

func (c *console) printHelp() {
	fmt.Fprintln(c.out, `commands:
  cd <path>                              change directory
  jobids <csv>                           set the session's job set
  pattern [prefix]                       set or clear the name-prefix filter
  limit <n>                              set the page size
  ls                                     list subdirectories of pwd
  lsmark                                 list files at pwd
  versions <pathId> <name> <clientName>  list every backed-up version of a file
  see-copies <true|false>                include copy jobs in versions listings
  update-cache <jobids-csv>              build PathHierarchy/PathVisibility for jobs
  clear-cache                            drop the hierarchy cache for every job
  restore <fileIds> <dirIds> <hardlinks> <token>   build a restore-list table ("-" for none)
  drop-restore <token>                   drop a restore-list table
  quit                                   exit`)
}

// listRows drains every page of a row-producing operation, rendering
// each browser.Row as it arrives either as a JSON object (--json) or a
// tab-separated line, applying --select as a JSONPath filter over the
// row's JSON projection when set.
func (c *console) listRows(op func() (bool, error)) error {
	var path jp.Expr
	if selectExpr != "" {
		expr, err := jp.ParseString(selectExpr)
		if err != nil {
			return fmt.Errorf("parse --select: %w", err)
		}
		path = expr
	}

	c.sess.SetHandler(func(r browser.Row) error {
		rec := rowToMap(r)
		if path != nil && len(path.Get(rec)) == 0 {
			return nil
		}
		if jsonOutput {
			s, err := oj.Marshal(rec)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, string(s))
			return nil
		}
		fmt.Fprintf(c.out, "%c\t%d\t%s\t%d\t%d\n", r.Type, r.PathId, r.Name, r.JobId, r.FileId)
		return nil
	})
	defer c.sess.SetHandler(nil)

	c.sess.SetOffset(0)
	for {
		full, err := op()
		if err != nil {
			return err
		}
		if !full {
			return nil
		}
		c.sess.NextPage()
	}
}

func rowToMap(r browser.Row) map[string]any {
	return map[string]any{
		"type":         string(r.Type),
		"pathId":       r.PathId,
		"name":         r.Name,
		"jobId":        r.JobId,
		"lstat":        r.LStat,
		"fileId":       r.FileId,
		"md5":          r.Md5,
		"volName":      r.VolName,
		"volInChanger": r.VolInChanger,
	}
}
