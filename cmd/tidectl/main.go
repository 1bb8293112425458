// Command tidectl inspects and operates a running tidewater server.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/talgya/tidewater/internal/city"
	"github.com/talgya/tidewater/internal/harbor"
	"github.com/talgya/tidewater/internal/tide"
)

var (
	titleColor   = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgGreen, color.Bold)
	warnColor    = color.New(color.FgYellow, color.Bold)
	alertColor   = color.New(color.FgRed, color.Bold)
)

func main() {
	var (
		apiURL   string
		adminKey string
		timeout  time.Duration
	)

	rootCmd := &cobra.Command{
		Use:          "tidectl",
		Short:        "Operator console for a tidewater server",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", envOr("TIDEWATER_API_URL", "http://localhost:8080"), "server base URL")
	rootCmd.PersistentFlags().StringVar(&adminKey, "admin-key", os.Getenv("TIDEWATER_ADMIN_KEY"), "bearer key for admin commands")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", time.Minute, "request deadline")

	withCtx := func(fn func(ctx context.Context, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return fn(ctx, args)
		}
	}

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show server status and the last scheduled runs",
			RunE: withCtx(func(ctx context.Context, _ []string) error {
				return showStatus(ctx, harbor.NewObserver(apiURL))
			}),
		},
		&cobra.Command{
			Use:   "stations",
			Short: "List tide stations",
			RunE: withCtx(func(ctx context.Context, _ []string) error {
				return showStations(ctx, harbor.NewObserver(apiURL))
			}),
		},
		&cobra.Command{
			Use:   "city <id>",
			Short: "Show a city dashboard",
			Args:  cobra.ExactArgs(1),
			RunE: withCtx(func(ctx context.Context, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return showCity(ctx, harbor.NewObserver(apiURL), id)
			}),
		},
		&cobra.Command{
			Use:   "events <cityID>",
			Short: "Show a city's latest events",
			Args:  cobra.ExactArgs(1),
			RunE: withCtx(func(ctx context.Context, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return showEvents(ctx, harbor.NewObserver(apiURL), id)
			}),
		},
		&cobra.Command{
			Use:   "cycle",
			Short: "Run a resource tick and storm check now",
			RunE: withCtx(func(ctx context.Context, _ []string) error {
				run, err := harbor.NewActor(apiURL, adminKey).RunCycle(ctx)
				if err != nil {
					return err
				}
				successColor.Printf("✓ Cycle %s complete\n", run.Cycle)
				fmt.Printf("   Cities ticked: %d (%d failed)\n", run.Result.Ticked, run.Result.TickFailures)
				fmt.Printf("   Storms raised: %d (%d checks failed)\n", run.Result.StormsCreated, run.Result.StormFailures)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "resolve <stormID>",
			Short: "Resolve a storm early",
			Args:  cobra.ExactArgs(1),
			RunE: withCtx(func(ctx context.Context, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				ev, err := harbor.NewActor(apiURL, adminKey).ResolveStorm(ctx, id)
				if err != nil {
					return err
				}
				successColor.Printf("✓ Storm %d at station %s resolved\n", ev.ID, ev.StationID)
				return nil
			}),
		},
	)

	if err := rootCmd.Execute(); err != nil {
		alertColor.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func showStatus(ctx context.Context, o *harbor.Observer) error {
	s, err := o.Status(ctx)
	if err != nil {
		return err
	}
	titleColor.Printf("%s, up %s\n", s.Name, s.Uptime)
	fmt.Printf("   %d cities across %d stations\n\n", s.Cities, s.Stations)

	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Task", "Last Run", "Took", "Targets", "Failures", "Cycle"}),
	)
	for _, task := range []string{"tick", "storms", "bulletins", "predictions"} {
		run, ok := s.Tasks[task]
		if !ok {
			table.Append([]string{task, "never", "", "", "", ""})
			continue
		}
		table.Append([]string{
			task,
			run.At.Local().Format(time.DateTime),
			run.Duration.Round(time.Millisecond).String(),
			strconv.Itoa(run.Targets),
			strconv.Itoa(run.Failures),
			run.Cycle,
		})
	}
	return table.Render()
}

func showStations(ctx context.Context, o *harbor.Observer) error {
	stations, err := o.Stations(ctx)
	if err != nil {
		return err
	}
	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Station", "Name", "State", "Lat", "Lon", "UTC Offset"}),
	)
	for _, st := range stations {
		table.Append([]string{
			st.ID,
			st.Name,
			st.State,
			fmt.Sprintf("%.4f", st.Latitude),
			fmt.Sprintf("%.4f", st.Longitude),
			st.TimezoneOffset,
		})
	}
	return table.Render()
}

func showCity(ctx context.Context, o *harbor.Observer, id int64) error {
	r, err := o.City(ctx, id)
	if err != nil {
		if harbor.IsNotFound(err) {
			return fmt.Errorf("no city %d", id)
		}
		return err
	}

	titleColor.Printf("%s (#%d) at %s\n", r.City.Name, r.City.ID, r.Station.Name)
	fmt.Printf("   Resources:  fish %d, tourism %d, energy %d\n",
		r.City.Resources.Fish, r.City.Resources.Tourism, r.City.Resources.Energy)
	fmt.Printf("   Per tick:   fish %+d, tourism %+d, energy %+d\n",
		r.Production.Fish, r.Production.Tourism, r.Production.Energy)
	printTide(r.TideLevel, r.Impact, r.Station)

	for _, s := range r.Storms {
		alertColor.Printf("   ⚠ %s (severity %d, damage potential %d) until %s\n",
			s.Title, s.Severity, s.DamagePotential, s.EndTime.In(r.Station.Location()).Format(time.DateTime))
	}
	fmt.Println()

	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"ID", "Building", "Position", "Health"}),
	)
	for _, b := range r.Buildings {
		table.Append([]string{
			strconv.FormatInt(b.ID, 10),
			b.Type.Name,
			fmt.Sprintf("(%d,%d)", b.X, b.Y),
			strconv.Itoa(b.Health),
		})
	}
	return table.Render()
}

func printTide(level tide.Sample, impact tide.Impact, st tide.Station) {
	line := fmt.Sprintf("   Tide:       %.2f ft, %s (fishing %+d%%, tourism %+d%%)",
		level.Height, impact.Description, impact.FishingEffect, impact.TourismEffect)
	if !level.Time.IsZero() {
		line += " at " + level.Time.In(st.Location()).Format("15:04")
	}
	if impact.Extreme.IsExtreme {
		warnColor.Println(line)
		return
	}
	fmt.Println(line)
}

func showEvents(ctx context.Context, o *harbor.Observer, cityID int64) error {
	events, err := o.Events(ctx, cityID, 0)
	if err != nil {
		if harbor.IsNotFound(err) {
			return fmt.Errorf("no city %d", cityID)
		}
		return err
	}
	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"ID", "When", "Type", "Title", "Read"}),
	)
	for _, e := range events {
		read := ""
		if e.Read {
			read = "✓"
		}
		typ := string(e.Type)
		if e.Type == city.EventStormSurge {
			typ = alertColor.Sprint(typ)
		}
		table.Append([]string{
			strconv.FormatInt(e.ID, 10),
			e.CreatedAt.Local().Format(time.DateTime),
			typ,
			e.Title,
			read,
		})
	}
	return table.Render()
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
