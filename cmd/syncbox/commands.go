package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/velmie/syncbox"
	"github.com/velmie/syncbox/httpremote"
	"github.com/velmie/syncbox/internal/device"
	"github.com/velmie/syncbox/mysql"
	"github.com/velmie/syncbox/remote"
)

const (
	defaultListLimit = 50
	shutdownTimeout  = 10 * time.Second
	previewMaxChars  = 900
)

type opFlags struct {
	entity  string
	op      string
	id      string
	payload string
}

func (f *opFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.entity, "entity", "", "entity kind, e.g. ITEM or PARTY")
	cmd.Flags().StringVar(&f.op, "op", "", "operation kind, e.g. UPSERT or CREATE_SALE")
	cmd.Flags().StringVar(&f.id, "id", "", "entity id")
	cmd.Flags().StringVar(&f.payload, "payload", "", "JSON object payload, @file to read a file or - for stdin")
	_ = cmd.MarkFlagRequired("entity")
	_ = cmd.MarkFlagRequired("op")
}

func (f *opFlags) operation(stdin io.Reader) (syncbox.PendingOperation, error) {
	entity, err := syncbox.ParseEntityKind(f.entity)
	if err != nil {
		return syncbox.PendingOperation{}, fmt.Errorf("%w: %v", errUsage, err)
	}
	op, err := syncbox.ParseOpKind(f.op)
	if err != nil {
		return syncbox.PendingOperation{}, fmt.Errorf("%w: %v", errUsage, err)
	}
	raw, err := readPayload(f.payload, stdin)
	if err != nil {
		return syncbox.PendingOperation{}, err
	}
	payload, err := syncbox.DecodePayload(raw)
	if err != nil {
		return syncbox.PendingOperation{}, fmt.Errorf("%w: %v", errUsage, err)
	}

	return syncbox.PendingOperation{
		EntityKind: entity,
		EntityID:   strings.TrimSpace(f.id),
		OpKind:     op,
		Payload:    payload,
	}, nil
}

func readPayload(arg string, stdin io.Reader) (json.RawMessage, error) {
	switch {
	case arg == "":
		return nil, nil
	case arg == "-":
		raw, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read payload: %w", err)
		}
		return raw, nil
	case strings.HasPrefix(arg, "@"):
		raw, err := os.ReadFile(strings.TrimPrefix(arg, "@"))
		if err != nil {
			return nil, fmt.Errorf("read payload: %w", err)
		}
		return raw, nil
	default:
		return json.RawMessage(arg), nil
	}
}

func newEnqueueCmd(a *app) *cobra.Command {
	var flags opFlags
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Record a pending operation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			op, err := flags.operation(cmd.InOrStdin())
			if err != nil {
				return err
			}
			b, err := a.openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()

			entry, err := b.store.Enqueue(cmd.Context(), op)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued id=%d op_id=%s\n", entry.ID, entry.OpID)

			return nil
		},
	}
	flags.bind(cmd)

	return cmd
}

func newDrainCmd(a *app) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Deliver pending operations to the remote",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			b, err := a.openBackend(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			relay, err := a.newRelay(b.store)
			if err != nil {
				return err
			}
			if watch {
				return relay.Run(ctx)
			}

			res, err := relay.DrainOnce(ctx)
			printDrain(cmd.OutOrStdout(), res)

			return err
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "keep draining every poll interval until interrupted")

	return cmd
}

func newRetryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id]",
		Short: "Reset failed operations and deliver them again",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := a.openBackend(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			relay, err := a.newRelay(b.store)
			if err != nil {
				return err
			}

			var res syncbox.DrainResult
			if len(args) == 1 {
				id, parseErr := strconv.ParseInt(args[0], 10, 64)
				if parseErr != nil {
					return fmt.Errorf("%w: invalid id %q", errUsage, args[0])
				}
				res, err = relay.RetryEntry(ctx, id)
			} else {
				res, err = relay.RetryFailed(ctx)
			}
			printDrain(cmd.OutOrStdout(), res)

			return err
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	var (
		failed bool
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending or failed operations, oldest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			b, err := a.openBackend(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			list := b.store.ListPending
			if failed {
				list = b.store.ListFailed
			}
			entries, err := list(ctx, limit)
			if err != nil {
				return err
			}

			return printEntries(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().BoolVar(&failed, "failed", false, "list failed operations instead of pending ones")
	cmd.Flags().IntVar(&limit, "limit", defaultListLimit, "maximum number of rows")

	return cmd
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show pending and failed counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			b, err := a.openBackend(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			pending, err := b.store.CountPending(ctx)
			if err != nil {
				return err
			}
			failed, err := b.store.CountFailed(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pending=%d failed=%d\n", pending, failed)

			return nil
		},
	}
}

func newClearDoneCmd(a *app) *cobra.Command {
	var (
		olderThan time.Duration
		every     time.Duration
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "clear-done",
		Short: "Delete delivered operations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if every > 0 && olderThan <= 0 {
				return fmt.Errorf("%w: --every requires --older-than", errUsage)
			}
			b, err := a.openBackend(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			if every > 0 {
				return a.runCleanup(ctx, b, olderThan, every, limit)
			}

			var n int64
			if olderThan > 0 {
				n, err = b.store.ClearDoneBefore(ctx, time.Now().Add(-olderThan), limit)
			} else {
				n, err = b.store.ClearDone(ctx)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared=%d\n", n)

			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "only delete rows last attempted before now minus this duration")
	cmd.Flags().DurationVar(&every, "every", 0, "repeat the cleanup at this interval until interrupted")
	cmd.Flags().IntVar(&limit, "limit", 0, "max rows deleted per run with --older-than (0 uses the default)")

	return cmd
}

// runCleanup repeats ClearDoneBefore. On MySQL the advisory-locked
// maintainer keeps concurrent instances from deleting at the same time.
func (a *app) runCleanup(ctx context.Context, b openedBackend, olderThan, every time.Duration, limit int) error {
	var err error
	if store, ok := b.store.(*mysql.Store); ok {
		var maintainer *mysql.CleanupMaintainer
		maintainer, err = mysql.NewCleanupMaintainer(b.db, mysql.CleanupMaintainerConfig{
			Table:      store.Table(),
			Retention:  olderThan,
			CheckEvery: every,
			Limit:      limit,
			Logger:     a.logger,
		})
		if err != nil {
			return err
		}
		err = maintainer.Run(ctx)
	} else {
		err = a.cleanupLoop(ctx, b.store, olderThan, every, limit)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

func (a *app) cleanupLoop(ctx context.Context, store backend, olderThan, every time.Duration, limit int) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		n, err := store.ClearDoneBefore(ctx, time.Now().Add(-olderThan), limit)
		if err != nil {
			a.logger.Warn("syncbox cleanup failed", "err", err)
		} else if n > 0 {
			a.logger.Info("syncbox cleanup removed rows", "count", n)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func newPreviewCmd(a *app) *cobra.Command {
	var (
		flags    opFlags
		envelope bool
	)
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show the remote request an operation maps to, without sending it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			op, err := flags.operation(cmd.InOrStdin())
			if err != nil {
				return err
			}
			if !syncbox.SupportedRoute(op.EntityKind, op.OpKind) {
				a.logger.Warn("syncbox operation has no dedicated route", "entity", op.EntityKind, "op", op.OpKind)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, syncbox.Preview(op).OneLine(previewMaxChars))
			if !envelope {
				return nil
			}

			deviceID, err := device.LoadOrCreate(a.cfg.DeviceIDFile)
			if err != nil {
				return err
			}
			entry := syncbox.Entry{OpID: "<assigned at enqueue>"}
			raw, err := json.MarshalIndent(syncbox.NewEnvelope(entry, op, deviceID, time.Now()), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(raw))

			return nil
		},
	}
	flags.bind(cmd)
	cmd.Flags().BoolVar(&envelope, "envelope", false, "also print the envelope JSON")

	return cmd
}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve an in-memory reference remote over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			ref := remote.NewReference(remote.WithLogger(a.logger))
			handler := httpremote.NewHandler(ref,
				httpremote.WithHandlerLogger(a.logger),
				httpremote.WithRequiredAPIKey(a.cfg.APIKey),
			)

			ln, err := net.Listen("tcp", a.cfg.ListenAddr)
			if err != nil {
				return err
			}
			a.logger.Info("syncbox reference remote listening", "addr", ln.Addr().String(), "path", httpremote.ApplyPath)

			return serve(ctx, ln, handler)
		},
	}
}

func serve(ctx context.Context, ln net.Listener, handler http.Handler) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func printDrain(w io.Writer, res syncbox.DrainResult) {
	fmt.Fprintf(w, "attempted=%d delivered=%d failed=%d halted=%t\n", res.Attempted, res.Delivered, res.Failed, res.Halted)
}

func printEntries(w io.Writer, entries []syncbox.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tOP_ID\tSTATUS\tENTITY\tENTITY_ID\tOP\tCREATED\tLAST_ATTEMPT\tERROR")
	for _, e := range entries {
		last := "-"
		if e.LastAttemptAt != nil {
			last = e.LastAttemptAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.OpID, e.Status, e.EntityKind, dash(e.EntityID), e.OpKind,
			e.CreatedAt.Format(time.RFC3339), last, dash(e.Error))
	}

	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}
