package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/campscout/event-logistics-api/internal/adapters/httpapi"
	"github.com/campscout/event-logistics-api/internal/domain/logistics"
)

// plan is the on-disk draft read by `eventctl summary`. JSON files parse too.
type plan struct {
	logistics.Extras `yaml:",inline"`
	Segments         []logistics.RawSegment `yaml:"segments"`
}

func summaryCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "summary [plan-file]",
		Short: "Compute totals, peak occupancy and accommodation for a segment plan",
		Long: `Reads a YAML or JSON plan with detached_leaders, guests and a list of
segments, and prints the computed logistics. Use "-" to read stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := readPlan(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			extras := p.Extras
			extras.DetachedLeaders = max(extras.DetachedLeaders, 0)
			extras.Guests = max(extras.Guests, 0)
			sum := logistics.Summarize(p.Segments, extras)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(httpapi.NewLogisticsSummary(sum))
			}
			return printSummary(cmd.OutOrStdout(), sum)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the API's JSON representation")
	return cmd
}

func readPlan(stdin io.Reader, path string) (plan, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return plan{}, fmt.Errorf("read plan: %w", err)
	}
	var p plan
	if err := yaml.Unmarshal(b, &p); err != nil {
		return plan{}, fmt.Errorf("parse plan %s: %w", path, err)
	}
	return p, nil
}

func printSummary(w io.Writer, s logistics.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "BRANCH\tYOUTH\tKAMBUSIERI")
	for _, b := range logistics.Branches {
		t := s.Totals.ByBranch[b]
		fmt.Fprintf(tw, "%s\t%d\t%d\n", b, t.Youth, t.Kambusieri)
	}
	fmt.Fprintln(tw)
	fmt.Fprintf(tw, "leaders\t%d\n", s.Totals.Leaders)
	fmt.Fprintf(tw, "detached leaders\t%d\n", s.Totals.DetachedLeaders)
	fmt.Fprintf(tw, "guests\t%d\n", s.Totals.Guests)
	fmt.Fprintf(tw, "total\t%d\n", s.Totals.Total)
	fmt.Fprintln(tw)

	if s.Peak.People > 0 {
		fmt.Fprintf(tw, "peak\t%d\t%s..%s\n", s.Peak.People, logistics.FormatDate(s.Peak.From), logistics.FormatDate(s.Peak.To))
	} else {
		fmt.Fprintf(tw, "peak\t0\n")
	}
	if s.Accommodation.NeedsIndoor {
		fmt.Fprintf(tw, "indoor beds\t%d\n", s.Accommodation.IndoorCapacity)
	}
	if s.Accommodation.NeedsTents {
		fmt.Fprintf(tw, "tent places\t%d\n", s.Accommodation.TentsCapacity)
	}
	return tw.Flush()
}
