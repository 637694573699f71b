package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/campus-noc/ipreg/internal/collector"
	"github.com/campus-noc/ipreg/internal/db"
	"github.com/campus-noc/ipreg/internal/domain"
)

type services struct {
	store     *db.Store
	logger    *slog.Logger
	ledger    domain.Ledger
	lifecycle domain.LifecycleService
	vlans     domain.VLANService

	close func()
}

// buildServices wires pool, repositories, and services from the
// environment. DB_CONN is required; IPREG_LIST_ORDER=text switches IP
// listings to dotted-quad string ordering.
func buildServices(ctx context.Context) (*services, error) {
	dsn := os.Getenv("DB_CONN")
	if dsn == "" {
		return nil, fmt.Errorf("missing required environment variable: DB_CONN")
	}

	var order db.ListOrder = db.NumericOrder{}
	if os.Getenv("IPREG_LIST_ORDER") == "text" {
		order = db.TextOrder{}
	}

	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	store := db.NewStore(pool, order)
	vlans := domain.NewVLANService(store, logger)
	lifecycle := domain.NewLoggingLifecycleService(logger,
		domain.NewLifecycleService(store, vlans, logger))
	ledger := domain.NewLedger(store, logger)

	return &services{
		store:     store,
		logger:    logger,
		ledger:    ledger,
		lifecycle: lifecycle,
		vlans:     vlans,
		close:     pool.Close,
	}, nil
}

var (
	collectInventory string
	collectTimeout   time.Duration
	collectInterval  time.Duration
)

var cmdCollect = &cobra.Command{
	Use:   "collect",
	Short: "Poll every configured source and reconcile the results",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svcs, err := buildServices(ctx)
		if err != nil {
			return err
		}
		defer svcs.close()

		inventory, err := collector.LoadInventory(collectInventory)
		if err != nil {
			return err
		}
		poller := collector.NewPoller(inventory.Sources(svcs.logger), svcs.lifecycle, collectTimeout, svcs.logger)

		if collectInterval > 0 {
			err := poller.RunForever(ctx, collectInterval)
			if err == context.Canceled {
				return nil
			}
			return err
		}

		summary := poller.Run(ctx)
		fmt.Printf("sources: %d (failed %d), created: %d, updated: %d, errors: %d\n",
			summary.Sources, summary.FailedSources, summary.Created, summary.Updated, summary.Errors)
		return nil
	},
}

var cleanupHours int

var cmdCleanup = &cobra.Command{
	Use:   "cleanup",
	Short: "Deactivate addresses unseen for longer than the threshold",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		svcs, err := buildServices(cmd.Context())
		if err != nil {
			return err
		}
		defer svcs.close()

		result, err := svcs.lifecycle.SweepInactive(cmd.Context(), time.Duration(cleanupHours)*time.Hour)
		if err != nil {
			return err
		}
		fmt.Printf("checked: %d, deactivated: %d, skipped: %d, errors: %d\n",
			result.Checked, result.Deactivated, result.Skipped, result.Errors)
		return nil
	},
}

var (
	releaseOldDays   int
	releaseOldDryRun bool
)

var cmdReleaseOld = &cobra.Command{
	Use:   "release-old",
	Short: "Release assignments whose address has been off the network too long",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		svcs, err := buildServices(cmd.Context())
		if err != nil {
			return err
		}
		defer svcs.close()

		result, err := svcs.lifecycle.SweepExpired(cmd.Context(), domain.SweepExpiredInput{
			ThresholdDays: releaseOldDays,
			DryRun:        releaseOldDryRun,
			Actor:         "ipregctl",
		})
		if err != nil {
			return err
		}
		fmt.Printf("checked: %d, released: %d, skipped: %d, errors: %d\n",
			result.Checked, result.Released, result.Skipped, result.Errors)
		return nil
	},
}

var reassignRecount bool

var cmdReassignVLANs = &cobra.Command{
	Use:   "reassign-vlans",
	Short: "Recompute the VLAN of every address from the subnet catalog",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		svcs, err := buildServices(cmd.Context())
		if err != nil {
			return err
		}
		defer svcs.close()

		result, err := svcs.vlans.ReassignAll(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("checked: %d, already correct: %d, newly assigned: %d, corrected: %d, no match: %d, errors: %d\n",
			result.Checked, result.AlreadyCorrect, result.NewlyAssigned, result.Corrected, result.NoMatch, result.Errors)

		if reassignRecount {
			updated, err := svcs.vlans.RecountMembers(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("member counts updated: %d\n", updated)
		}
		return nil
	},
}

var cmdBackfillHistory = &cobra.Command{
	Use:   "backfill-history",
	Short: "Synthesize initial history intervals for assignments that predate tracking",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svcs, err := buildServices(ctx)
		if err != nil {
			return err
		}
		defer svcs.close()

		records, err := svcs.store.IPs().List(ctx, domain.IPFilter{})
		if err != nil {
			return err
		}

		backfilled, failed := 0, 0
		for _, record := range records {
			entry, err := svcs.ledger.BackfillInitial(ctx, record.Address, "ipregctl")
			if err != nil {
				svcs.logger.Error("backfill failed", "ip", record.Address.String(), "err", err.Error())
				failed++
				continue
			}
			if entry != nil {
				backfilled++
			}
		}
		fmt.Printf("records: %d, backfilled: %d, failed: %d\n", len(records), backfilled, failed)
		return nil
	},
}

func init() {
	cmdCollect.Flags().StringVar(&collectInventory, "inventory", "inventory.json", "path to the JSON device inventory")
	cmdCollect.Flags().DurationVar(&collectTimeout, "timeout", 30*time.Second, "per-device collection timeout")
	cmdCollect.Flags().DurationVar(&collectInterval, "interval", 0, "poll repeatedly at this interval (0 = once)")

	cmdCleanup.Flags().IntVar(&cleanupHours, "hours", 24, "deactivate addresses unseen for this many hours")

	cmdReleaseOld.Flags().IntVar(&releaseOldDays, "days", 30, "release assignments unseen for this many days")
	cmdReleaseOld.Flags().BoolVar(&releaseOldDryRun, "dry-run", false, "report candidates without releasing them")

	cmdReassignVLANs.Flags().BoolVar(&reassignRecount, "recount", false, "also refresh cached VLAN member counts")
}
