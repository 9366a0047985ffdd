package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"voxkey/internal/httpapi"
	"voxkey/internal/manager"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// withRuntime opens a runtime for a one-shot command and closes it after fn.
func withRuntime(cmd *cobra.Command, opts *Options, fn func(rt *Runtime) error) (err error) {
	cfg, err := resolveConfig(opts)
	if err != nil {
		return err
	}
	rt, err := openRuntime(cfg, newLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr()), nil)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(rt)
}

func newModelsCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect and manage local models without the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("models requires a subcommand: list|status|download|select|delete")
		},
	}
	var asJSON bool
	list := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List catalog models with readiness",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(rt *Runtime) error {
				if asJSON {
					svc := &httpapi.ManagerService{M: rt.Manager, Events: rt.Events}
					return printJSON(cmd.OutOrStdout(), svc.ListModels())
				}
				return writeModelTable(cmd.OutOrStdout(), rt.Manager.Snapshot())
			})
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")

	status := &cobra.Command{
		Use:   "status",
		Short: "Print selection and per-model download state as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(rt *Runtime) error {
				return printJSON(cmd.OutOrStdout(), rt.Manager.Status())
			})
		},
	}

	dl := &cobra.Command{
		Use:     "download <id>",
		Short:   "Download a model in the foreground; Ctrl+C cancels",
		Example: "  voxkeyd models download parakeet-tdt-0.6b-v2",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return withRuntime(cmd, opts, func(rt *Runtime) error {
				return downloadForeground(ctx, rt, args[0], cmd.OutOrStdout())
			})
		},
	}

	sel := &cobra.Command{
		Use:   "select <id>",
		Short: "Select the model used for transcription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(rt *Runtime) error {
				if _, ok := rt.Manager.Model(args[0]); !ok {
					return manager.ErrModelNotFound(args[0])
				}
				changed, err := rt.Manager.Select(args[0])
				if err != nil {
					return err
				}
				if !changed && rt.Manager.SelectedID() != args[0] {
					return fmt.Errorf("model %s is not selectable (not downloaded or unsupported)", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "selected %s\n", rt.Manager.SelectedID())
				return nil
			})
		},
	}

	del := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a model's local files",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(rt *Runtime) error {
				if err := rt.Manager.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				if sel := rt.Manager.SelectedID(); sel != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "selected %s\n", sel)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(list, status, dl, sel, del)
	return cmd
}

func writeModelTable(w io.Writer, snap manager.Snapshot) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tSIZE\tREADY\tSTATE\tSELECTED")
	for _, ms := range snap.Models {
		mark := ""
		if ms.Selected {
			mark = "*"
		}
		state := string(ms.State.Phase)
		if ms.State.Phase == manager.PhaseDownloading {
			state = fmt.Sprintf("%s %.0f%%", state, ms.State.Progress*100)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%s\n", ms.Descriptor.ID, ms.Descriptor.Kind, ms.Descriptor.SizeLabel, ms.Ready, state, mark)
	}
	return tw.Flush()
}

// downloadForeground starts a download and reports its events until it
// reaches a terminal phase. Cancelling ctx cancels the download.
func downloadForeground(ctx context.Context, rt *Runtime, id string, out io.Writer) error {
	events, unsubscribe := rt.Events.Subscribe(256)
	defer unsubscribe()
	if err := rt.Manager.Download(id); err != nil {
		return err
	}
	if rt.Manager.IsReady(id) {
		if st, err := rt.Manager.State(id); err == nil && st.Phase != manager.PhaseDownloading {
			fmt.Fprintf(out, "%s already downloaded\n", id)
			return nil
		}
	}
	lastPct := -1
	for {
		select {
		case <-ctx.Done():
			if err := rt.Manager.Cancel(id); err != nil {
				return err
			}
			fmt.Fprintf(out, "%s cancelled\n", id)
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return finalPhase(rt, id, out)
			}
			if ev.ModelID != id {
				continue
			}
			switch ev.Name {
			case manager.EventDownloadProgress:
				p, _ := ev.Fields["progress"].(float64)
				if pct := int(p * 100); pct != lastPct {
					lastPct = pct
					fmt.Fprintf(out, "%s %d%%\n", id, pct)
				}
			case manager.EventDownloadSucceeded:
				fmt.Fprintf(out, "%s ready\n", id)
				return nil
			case manager.EventDownloadFailed:
				msg, _ := ev.Fields["error"].(string)
				return fmt.Errorf("download %s failed: %s", id, msg)
			case manager.EventDownloadCancelled:
				return fmt.Errorf("download %s cancelled", id)
			}
		}
	}
}

// finalPhase reports the outcome once the event stream has ended.
func finalPhase(rt *Runtime, id string, out io.Writer) error {
	st, err := rt.Manager.State(id)
	if err != nil {
		return err
	}
	switch st.Phase {
	case manager.PhaseSucceeded:
		fmt.Fprintf(out, "%s ready\n", id)
		return nil
	case manager.PhaseFailed:
		return fmt.Errorf("download %s failed: %s", id, st.Err)
	case manager.PhaseCancelled:
		return fmt.Errorf("download %s cancelled", id)
	}
	return manager.ErrClosed
}
