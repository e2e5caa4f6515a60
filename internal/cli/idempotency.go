package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dejobratic/opsapi/internal/idempotency"
)

func newIdempotencyCommand(rt *Runtime, opts *RootOptions) *cobra.Command {
	var subject string

	cmd := &cobra.Command{
		Use:     "idempotency",
		Aliases: []string{"idem"},
		Short:   "Inspect and maintain idempotency keys",
		Long: `Inspect and maintain idempotency keys.

The API never expires or reclaims keys by itself. A request that failed after
claiming its key leaves it pending, and every retry is rejected until an
operator releases it.

Keys are stored per caller. Pass --subject with the caller's identity to
address the key that caller sent.`,
	}

	cmd.PersistentFlags().StringVar(&subject, "subject", "", "caller identity the key belongs to")

	cmd.AddCommand(newSweepCommand(rt, opts))
	cmd.AddCommand(newReleaseCommand(rt, opts, &subject))
	cmd.AddCommand(newShowCommand(rt, opts, &subject))

	return cmd
}

func newSweepCommand(rt *Runtime, opts *RootOptions) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete completed keys past retention",
		Long: `Delete completed keys whose response was recorded before now minus
--older-than. Pending keys are never swept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return commandError(fmt.Sprintf("--older-than must be positive, got %s", olderThan), nil)
			}
			cutoff := rt.Now().Add(-olderThan)

			return withStore(cmd.Context(), rt, opts, func(ctx context.Context, store KeyAdmin) error {
				removed, err := store.Sweep(ctx, cutoff)
				if err != nil {
					return commandError("sweep", err)
				}
				return opts.output(rt).success(
					map[string]any{"removed": removed, "cutoff": cutoff.UTC()},
					fmt.Sprintf("removed %d completed key(s) older than %s", removed, olderThan),
				)
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", rt.Config.Idempotency.TTL, "retention window for completed keys")

	return cmd
}

func newReleaseCommand(rt *Runtime, opts *RootOptions, subject *string) *cobra.Command {
	return &cobra.Command{
		Use:   "release KEY",
		Short: "Delete a stranded pending key so clients can retry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := idempotency.StorageKey(*subject, args[0])
			return withStore(cmd.Context(), rt, opts, func(ctx context.Context, store KeyAdmin) error {
				released, err := store.Release(ctx, key)
				if err != nil {
					return commandError("release", err)
				}
				if !released {
					return failure(fmt.Sprintf("key %q is not pending", key))
				}
				return opts.output(rt).success(map[string]any{"key": key, "released": true}, "released "+key)
			})
		},
	}
}

type recordView struct {
	Key         string     `json:"key"`
	Status      string     `json:"status"`
	RequestHash string     `json:"request_hash,omitempty"`
	StatusCode  int        `json:"status_code,omitempty"`
	ETag        string     `json:"etag,omitempty"`
	BodyBytes   int        `json:"body_bytes"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func newShowCommand(rt *Runtime, opts *RootOptions, subject *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show KEY",
		Short: "Print the stored state of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := idempotency.StorageKey(*subject, args[0])
			return withStore(cmd.Context(), rt, opts, func(ctx context.Context, store KeyAdmin) error {
				rec, err := store.Lookup(ctx, key)
				if err != nil {
					return commandError("lookup", err)
				}
				if rec == nil {
					return failure(fmt.Sprintf("key %q not found", key))
				}
				view := newRecordView(rec)
				return opts.output(rt).success(view, describe(view))
			})
		},
	}
}

func newRecordView(rec *idempotency.Record) recordView {
	return recordView{
		Key:         rec.Key,
		Status:      string(rec.Status),
		RequestHash: rec.RequestHash,
		StatusCode:  rec.StatusCode,
		ETag:        rec.Fingerprint,
		BodyBytes:   len(rec.Body),
		CreatedAt:   rec.CreatedAt.UTC(),
		CompletedAt: rec.CompletedAt,
	}
}

func describe(v recordView) string {
	text := fmt.Sprintf("key:        %s\nstatus:     %s\ncreated_at: %s", v.Key, v.Status, v.CreatedAt.Format(time.RFC3339))
	if v.CompletedAt != nil {
		text += fmt.Sprintf("\ncompleted:  %s\nhttp:       %d\netag:       %s\nbody:       %d bytes",
			v.CompletedAt.UTC().Format(time.RFC3339), v.StatusCode, v.ETag, v.BodyBytes)
	}
	return text
}

func withStore(ctx context.Context, rt *Runtime, opts *RootOptions, fn func(context.Context, KeyAdmin) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	store, closeFn, err := rt.OpenStore(ctx, opts.DatabaseURL)
	if err != nil {
		return commandError("open idempotency store", err)
	}
	defer closeFn()
	return fn(ctx, store)
}
