package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/archive"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/config"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/engine"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/fault"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/room"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/session"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/status"
)

func serveCmd(opts *globalOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Poll the remaining degree and record changes until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			useTUI, _ := cmd.Flags().GetBool("tui")
			mode := logServe
			if useTUI {
				mode = logServeQuiet
			}
			e, err := loadEnv(opts, mode, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.close()

			ctx, cancel := signalContext()
			defer cancel()
			registerQuitHandler(e.logger)
			return runServe(ctx, e, useTUI)
		},
	}
	cmd.Flags().Bool("tui", false, "show the terminal dashboard")
	return cmd
}

func statusCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the configured room, its latest record and the poller state",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(opts, logConsole, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.close()

			id, dir, err := e.room()
			if err != nil {
				return err
			}
			v := statusView{Room: id, RoomDir: dir, Now: time.Now()}
			samples, err := e.history()
			if err != nil {
				return err
			}
			v.Records = len(samples)
			if len(samples) > 0 {
				v.Last = &samples[len(samples)-1]
			}
			metas, err := archive.List(dir)
			if err != nil {
				return err
			}
			v.Archives = len(metas)
			if v.Credentials, err = session.Load(e.credentialsPath()); err != nil {
				return err
			}
			if v.Poller, err = status.Load(e.cfg.Storage.ConfigDir); err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatStatus(v))
			return nil
		},
	}
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented epu.toml and create the storage directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				wd, err := os.Getwd()
				if err != nil {
					return fmt.Errorf("get working directory: %w", err)
				}
				dir = wd
			}
			path, err := config.InitFile(dir)
			if err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirs(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created %s\n", path)
			fmt.Fprintf(out, "  data:   %s\n  config: %s\n  logs:   %s\n", cfg.Storage.DataDir, cfg.Storage.ConfigDir, cfg.Storage.LogDir)
			return nil
		},
	}
	cmd.Flags().String("dir", "", "directory to write epu.toml into (default: current directory)")
	return cmd
}

func historyCmd(opts *globalOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the records of the configured room",
		RunE: func(cmd *cobra.Command, args []string) error {
			after, _ := cmd.Flags().GetString("after")
			before, _ := cmd.Flags().GetString("before")
			limit, _ := cmd.Flags().GetInt("limit")
			span, err := spanFromFlags(after, before, time.Local)
			if err != nil {
				return err
			}

			e, err := loadEnv(opts, logConsole, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.close()

			samples, err := e.history()
			if err != nil {
				return err
			}
			inside, _ := span.Partition(samples)
			fmt.Fprint(cmd.OutOrStdout(), formatSamples(inside, limit))
			return nil
		},
	}
	cmd.Flags().String("after", "", "only records at or after this time")
	cmd.Flags().String("before", "", "only records at or before this time")
	cmd.Flags().Int("limit", 0, "show only the newest N records (0 = all)")
	return cmd
}

func degreeCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "degree",
		Short: "Query the remaining degree once without recording it",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(opts, logConsole, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.close()

			id, _, err := e.room()
			if err != nil {
				return err
			}
			if !id.Valid() {
				return fault.New(fault.RoomConfigMissing, "degree")
			}
			creds, err := session.Load(e.credentialsPath())
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			v, err := e.client().Degree(ctx, id, creds)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%.2f\n", v)
			return nil
		},
	}
}

func archiveCmd(opts *globalOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Create, list, show, export and delete archives of the configured room",
	}
	cmd.AddCommand(
		archiveCreateCmd(opts),
		archiveListCmd(opts),
		archiveShowCmd(opts),
		archiveExportCmd(opts),
		archiveDeleteCmd(opts),
	)
	return cmd
}

func archiveCreateCmd(opts *globalOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Move the records in a time span out of the log into a new archive",
		Long: "Move the records in a time span out of the log into a new archive.\n" +
			"Both bounds are inclusive; an omitted bound is open. Needs exclusive\n" +
			"access to the data directory, so stop `epu serve` first.",
		RunE: func(cmd *cobra.Command, args []string) error {
			after, _ := cmd.Flags().GetString("after")
			before, _ := cmd.Flags().GetString("before")
			name, _ := cmd.Flags().GetString("name")
			span, err := spanFromFlags(after, before, time.Local)
			if err != nil {
				return err
			}

			e, err := loadEnv(opts, logConsole, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.close()
			eng, err := e.openEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			ctx, cancel := signalContext()
			defer cancel()
			meta, err := eng.CreateArchive(ctx, span, name)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatMeta(meta))
			return nil
		},
	}
	cmd.Flags().String("after", "", "archive records at or after this time")
	cmd.Flags().String("before", "", "archive records at or before this time")
	cmd.Flags().String("name", "", "archive name (default: <start>-<end>-by-<now>)")
	return cmd
}

func archiveListCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List archives by start time",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(opts, logConsole, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.close()
			_, dir, err := e.room()
			if err != nil {
				return err
			}
			metas, err := archive.List(dir)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatArchives(metas))
			return nil
		},
	}
}

func archiveShowCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Print the records of an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(opts, logConsole, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.close()
			_, dir, err := e.room()
			if err != nil {
				return err
			}
			meta, err := archive.Stat(dir, args[0])
			if err != nil {
				return err
			}
			samples, err := archive.Read(dir, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, formatMeta(meta))
			fmt.Fprint(out, formatSamples(samples, 0))
			return nil
		},
	}
}

func archiveExportCmd(opts *globalOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <name>",
		Short: "Write an archive as CSV or as a mebo binary blob",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatName, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")
			format, err := archive.ParseFormat(formatName)
			if err != nil {
				return err
			}

			e, err := loadEnv(opts, logConsole, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.close()
			_, dir, err := e.room()
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("export: %w", err)
				}
				if err := archive.Export(dir, args[0], format, f); err != nil {
					f.Close()
					os.Remove(output)
					return err
				}
				return f.Close()
			}
			return archive.Export(dir, args[0], format, w)
		},
	}
	cmd.Flags().String("format", string(archive.FormatCSV), "csv or mebo")
	cmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	return cmd
}

func archiveDeleteCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Move an archive into the room's deleted directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(opts, logConsole, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.close()
			eng, err := e.openEngine()
			if err != nil {
				return err
			}
			defer eng.Close()
			if err := eng.DeleteArchive(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func roomCmd(opts *globalOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "room",
		Short: "Show or change the recorded room",
	}
	cmd.AddCommand(roomSetCmd(opts), roomShowCmd(opts), roomClearCmd(opts), roomInfoCmd(opts))
	return cmd
}

func roomSetCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "set <room_no> <elcarea> <elcbuis>",
		Short: "Select the room to record",
		Long: "Select the room to record. room_no has the form\n" +
			"<room>_<district>_<building>_<floor>. A running `epu serve` picks the\n" +
			"change up on its next tick.",
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			area, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("elcarea must be an integer: %w", err)
			}
			id := room.Identity{RoomNo: args[0], Area: area, Building: args[2]}
			if _, err := id.Parts(); err != nil {
				return err
			}
			return applyRoom(cmd, opts, id)
		},
	}
}

func roomClearCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Forget the room; records go to the unknown directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return applyRoom(cmd, opts, room.Identity{})
		},
	}
}

// applyRoom switches the engine to id, or only persists id when a running
// server owns the data directory and will switch itself.
func applyRoom(cmd *cobra.Command, opts *globalOpts, id room.Identity) error {
	e, err := loadEnv(opts, logConsole, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer e.close()

	out := cmd.OutOrStdout()
	eng, err := e.openEngine()
	switch {
	case errors.Is(err, engine.ErrLocked):
		if err := id.Validate(); err != nil {
			return err
		}
		if err := room.Save(e.roomConfigPath(), id); err != nil {
			return err
		}
		fmt.Fprintln(out, "Saved; the running server will switch on its next tick.")
	case err != nil:
		return err
	default:
		defer eng.Close()
		ctx, cancel := signalContext()
		defer cancel()
		if err := eng.SwitchRoom(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(out, "Recording into %s\n", eng.RoomDir())
	}
	fmt.Fprint(out, formatRoom(id))
	return nil
}

func roomShowCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the configured room",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(opts, logConsole, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.close()
			id, err := room.Load(e.roomConfigPath())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatRoom(id))
			return nil
		},
	}
}

func roomInfoCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Resolve the configured room's area, district, building and floor names",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(opts, logConsole, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.close()
			id, err := room.Load(e.roomConfigPath())
			if err != nil {
				return err
			}
			if id.Empty() {
				return fault.New(fault.RoomConfigMissing, "room info")
			}
			creds, err := session.Load(e.credentialsPath())
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			info, err := room.NewResolver(e.client(), 0).Resolve(ctx, id, creds)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatRoomInfo(info))
			return nil
		},
	}
}

func cookiesCmd(opts *globalOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cookies",
		Short: "Manage the payment site credentials",
	}
	cmd.AddCommand(cookiesSetCmd(opts), cookiesShowCmd(opts), cookiesClearCmd(opts))
	return cmd
}

func cookiesSetCmd(opts *globalOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store the session cookies and CSRF token copied from a logged-in browser",
		RunE: func(cmd *cobra.Command, args []string) error {
			var c session.Credentials
			c.JSessionID, _ = cmd.Flags().GetString("jsessionid")
			c.Cookie, _ = cmd.Flags().GetString("cookie")
			c.CSRFToken, _ = cmd.Flags().GetString("csrf")
			c = c.Sanitize()
			if c.Empty() {
				return errors.New("cookies: nothing to store; pass --jsessionid, --cookie and --csrf")
			}

			e, err := loadEnv(opts, logConsole, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.close()
			if err := session.Save(e.credentialsPath(), c); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s\n", c)
			return nil
		},
	}
	cmd.Flags().String("jsessionid", "", "JSESSIONID cookie")
	cmd.Flags().String("cookie", "", "the site's \"cookie\" cookie")
	cmd.Flags().String("csrf", "", "X-CSRF-TOKEN value")
	return cmd
}

func cookiesShowCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the stored credentials, redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(opts, logConsole, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.close()
			c, err := session.Load(e.credentialsPath())
			if err != nil {
				return err
			}
			if c.Empty() {
				fmt.Fprintln(cmd.OutOrStdout(), "No credentials stored.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), c.String())
			return nil
		},
	}
}

func cookiesClearCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Forget the stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(opts, logConsole, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.close()
			if err := session.Save(e.credentialsPath(), session.Credentials{}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Credentials cleared.")
			return nil
		},
	}
}
