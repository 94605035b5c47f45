package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/metroinfo/metrobot/reconciler"
	"github.com/metroinfo/metrobot/scraper"
	"github.com/metroinfo/metrobot/scraper/metroapi"
	"github.com/metroinfo/metrobot/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	statusSource *scraper.CachedSource
	runner       *reconciler.Runner
	publisher    *reconciler.Publisher
)

// instrumentedSource reports every upstream fetch to the stats sender
type instrumentedSource struct {
	scraper.Source
}

func (s instrumentedSource) FetchNetworkStatus(ctx context.Context) (types.Network, error) {
	start := time.Now()
	network, err := s.Source.FetchNetworkStatus(ctx)
	select {
	case fetchTelemetry <- fetchSample{Duration: time.Since(start), Err: err}:
	default:
	}
	return network, err
}

func newMetroClient() (*metroapi.Client, error) {
	var hours *metroapi.ServiceHours
	if cfg.Metro.ServiceHours {
		loc, err := cfg.Metro.Location()
		if err != nil {
			return nil, fmt.Errorf("loading time zone %q: %w", cfg.Metro.Timezone, err)
		}
		hours = metroapi.DefaultServiceHours(loc)
	}
	return metroapi.New(cfg.Metro.APIURL, cfg.Metro.Timeout(), hours, zap.L().Named("metroapi")), nil
}

// SetUpStatusSource builds the cached network status source shared by the
// reconciler, the bots and the web endpoints
func SetUpStatusSource() error {
	client, err := newMetroClient()
	if err != nil {
		return err
	}
	statusSource = scraper.NewCachedSource(instrumentedSource{client}, cfg.Metro.CacheTTL())
	return nil
}

// SetUpReconciler starts the periodic reconciliation of the published status
// messages against the network status
func SetUpReconciler(platform reconciler.Platform) {
	store := types.NewPublicationStore(rootSqalxNode)
	publisher = reconciler.NewPublisher(statusSource, store, platform, reconcilerLog)

	runner = reconciler.NewRunner(reconciler.New(statusSource, store, platform, reconcilerLog),
		cfg.Metro.PollPeriod(), reconcilerLog)
	runner.Timeout = cfg.Metro.PollPeriod()
	runner.ReportCallback = handleReconcileReport
	runner.Begin()
}

// TearDownReconciler stops the periodic reconciliation
func TearDownReconciler() {
	if runner != nil {
		runner.End()
	}
}

func handleReconcileReport(report *reconciler.Report) {
	for _, result := range report.Results {
		if result.Err != nil {
			reconcilerLog.Warn("record not reconciled",
				zap.String("guild", result.GuildID),
				zap.String("line", string(result.LineID)),
				zap.String("outcome", string(result.Outcome)),
				zap.Error(result.Err))
		}
	}
	select {
	case reportTelemetry <- report:
	default:
	}
}

// syncOnce runs a single sweep using the Discord REST API, without opening a
// gateway connection
func syncOnce(cmd *cobra.Command, args []string) error {
	if err := openDatabase(); err != nil {
		return err
	}
	defer rdb.Close()

	if err := SetUpStatusSource(); err != nil {
		return err
	}
	bot, err := SetUpDiscordBot()
	if err != nil {
		return err
	}

	store := types.NewPublicationStore(rootSqalxNode)
	r := reconciler.New(statusSource, store, bot.Platform(), reconcilerLog)

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Metro.PollPeriod())
	defer cancel()
	report, err := r.RunOnce(ctx)
	if err != nil {
		return err
	}

	counts := []string{}
	for _, outcome := range reconciler.Outcomes {
		if n := report.Count(outcome); n > 0 {
			counts = append(counts, fmt.Sprintf("%s=%d", outcome, n))
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d records in %s: %s\n",
		len(report.Results), report.Duration.Round(time.Millisecond), strings.Join(counts, " "))
	return nil
}

func printNetworkStatus(cmd *cobra.Command, args []string) error {
	client, err := newMetroClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Metro.Timeout())
	defer cancel()
	network, err := client.FetchNetworkStatus(ctx)
	if err != nil {
		return err
	}
	writeNetworkStatus(cmd.OutOrStdout(), network)
	return nil
}

func writeNetworkStatus(out io.Writer, network types.Network) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, line := range network {
		fmt.Fprintf(w, "%s\t%s\t%s\n", types.GetLine(line.ID).Name, line.StatusCode, line.Messages.Primary)
		for _, station := range line.Stations {
			if station.StatusCode == types.StatusOperating {
				continue
			}
			fmt.Fprintf(w, "\t%s %s\t%s\t%s\n", station.Code, station.Name, station.StatusCode, station.Messages.Primary)
		}
	}
	w.Flush()
}
