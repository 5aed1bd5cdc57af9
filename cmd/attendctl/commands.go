package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"campusattend/internal/app"
	"campusattend/internal/attendance"
	"campusattend/internal/auth"
	"campusattend/internal/config"
	"campusattend/internal/location"
	"campusattend/internal/logging"
	"campusattend/internal/store"
)

// env holds the hooks the commands use to reach configuration and stores.
type env struct {
	load    func() (config.App, error)
	open    func(ctx context.Context, cfg config.App) (*app.App, error)
	migrate func(ctx context.Context, cfg config.App) error
}

func defaultEnv() env {
	return env{
		load: config.Load,
		open: func(ctx context.Context, cfg config.App) (*app.App, error) {
			log := logging.New("attendctl", cfg.LogLevel, cfg.LogFormat)
			return app.New(ctx, cfg, log, nil)
		},
		migrate: func(ctx context.Context, cfg config.App) error {
			db, err := store.NewDB(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()
			return store.Migrate(ctx, db.Client)
		},
	}
}

func newRootCmd(out io.Writer, e env) *cobra.Command {
	var output string
	root := &cobra.Command{
		Use:           "attendctl",
		Short:         "Administer the campus attendance service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&output, "output", "o", "text", "output format (text, json)")

	p := &printer{out: out, format: &output}
	root.AddCommand(
		migrateCmd(e),
		tokenCmd(e, p),
		locationCmd(e, p),
		attendanceCmd(e, p),
		credentialCmd(e, p),
	)
	return root
}

// withApp loads configuration, opens the stores and runs fn.
func withApp(cmd *cobra.Command, e env, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := e.load()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := e.open(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func migrateCmd(e env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := e.load()
			if err != nil {
				return err
			}
			if err := e.migrate(cmd.Context(), cfg); err != nil {
				return errors.Wrap(err, "migrate")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		},
	}
}

func tokenCmd(e env, p *printer) *cobra.Command {
	cmd := &cobra.Command{Use: "token", Short: "Mint bearer tokens"}

	var subject, role string
	issue := &cobra.Command{
		Use:   "issue --subject <id> --role <student|admin>",
		Short: "Issue an access and refresh token pair",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := e.load()
			if err != nil {
				return err
			}
			tokens, err := auth.Issue(subject, role, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
			if err != nil {
				return err
			}
			return p.print(map[string]any{
				"access_token":  tokens.AccessToken,
				"refresh_token": tokens.RefreshToken,
				"expires_at":    tokens.AccessExp.UTC().Format(time.RFC3339),
			}, func(w io.Writer) {
				fmt.Fprintln(w, tokens.AccessToken)
			})
		},
	}
	issue.Flags().StringVar(&subject, "subject", "", "token subject (student id for students)")
	issue.Flags().StringVar(&role, "role", auth.RoleStudent, "token role")
	_ = issue.MarkFlagRequired("subject")

	cmd.AddCommand(issue)
	return cmd
}

func locationCmd(e env, p *printer) *cobra.Command {
	cmd := &cobra.Command{Use: "location", Short: "Manage check-in locations"}

	var in location.Input
	add := &cobra.Command{
		Use:   "add --name <name> --lat <lat> --lng <lng> --radius <meters>",
		Short: "Register a check-in location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, e, func(ctx context.Context, a *app.App) error {
				loc, err := a.Locations.Create(ctx, in)
				if err != nil {
					return err
				}
				return p.locations([]location.Location{loc})
			})
		},
	}
	add.Flags().StringVar(&in.Name, "name", "", "display name")
	add.Flags().Float64Var(&in.Latitude, "lat", 0, "center latitude")
	add.Flags().Float64Var(&in.Longitude, "lng", 0, "center longitude")
	add.Flags().IntVar(&in.RadiusMeters, "radius", 0, "allowed radius in meters")
	for _, f := range []string{"name", "lat", "lng", "radius"} {
		_ = add.MarkFlagRequired(f)
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List check-in locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, e, func(ctx context.Context, a *app.App) error {
				locs, err := a.Locations.ListAll(ctx)
				if err != nil {
					return err
				}
				return p.locations(locs)
			})
		},
	}

	seed := &cobra.Command{
		Use:   "seed",
		Short: "Create the default campus labs that are not registered yet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, e, func(ctx context.Context, a *app.App) error {
				created, err := a.Locations.Seed(ctx, location.DefaultSites)
				if err != nil {
					return err
				}
				return p.locations(created)
			})
		},
	}

	cmd.AddCommand(add, list, seed)
	return cmd
}

func attendanceCmd(e env, p *printer) *cobra.Command {
	cmd := &cobra.Command{Use: "attendance", Short: "Inspect attendance records"}

	var lf summaryFlags
	var limit, offset int
	list := &cobra.Command{
		Use:   "list",
		Short: "List attendance entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := lf.filter()
			if err != nil {
				return err
			}
			f.Limit, f.Offset = limit, offset
			return withApp(cmd, e, func(ctx context.Context, a *app.App) error {
				entries, err := a.Ledger.List(ctx, f)
				if err != nil {
					return err
				}
				return p.entries(entries, a.Zone)
			})
		},
	}
	list.Flags().StringVar(&lf.student, "student", "", "student id")
	list.Flags().StringVar(&lf.location, "location", "", "location id")
	list.Flags().StringVar(&lf.from, "from", "", "first day, YYYY-MM-DD")
	list.Flags().StringVar(&lf.to, "to", "", "last day, YYYY-MM-DD")
	list.Flags().IntVar(&limit, "limit", attendance.DefaultLimit, "page size")
	list.Flags().IntVar(&offset, "offset", 0, "page offset")

	var sf summaryFlags
	summary := &cobra.Command{
		Use:   "summary",
		Short: "Count present entries per day and per location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := sf.filter()
			if err != nil {
				return err
			}
			return withApp(cmd, e, func(ctx context.Context, a *app.App) error {
				sum, err := a.Ledger.Summary(ctx, f)
				if err != nil {
					return err
				}
				return p.summary(sum)
			})
		},
	}
	summary.Flags().StringVar(&sf.student, "student", "", "student id")
	summary.Flags().StringVar(&sf.location, "location", "", "location id")
	summary.Flags().StringVar(&sf.from, "from", "", "first day, YYYY-MM-DD")
	summary.Flags().StringVar(&sf.to, "to", "", "last day, YYYY-MM-DD")

	cmd.AddCommand(list, summary)
	return cmd
}

// summaryFlags are the filter flags shared by list and summary.
type summaryFlags struct {
	student, location, from, to string
}

func (s summaryFlags) filter() (attendance.Filter, error) {
	f := attendance.Filter{StudentID: s.student, LocationID: s.location}
	var err error
	if s.from != "" {
		if f.From, err = attendance.ParseDay(s.from); err != nil {
			return f, errors.Wrap(err, "--from")
		}
	}
	if s.to != "" {
		if f.To, err = attendance.ParseDay(s.to); err != nil {
			return f, errors.Wrap(err, "--to")
		}
	}
	return f, nil
}

func credentialCmd(e env, p *printer) *cobra.Command {
	cmd := &cobra.Command{Use: "credential", Short: "Manage passkey credentials"}

	reset := &cobra.Command{
		Use:   "reset <student-id>",
		Short: "Remove a student's passkey so they can enroll again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, e, func(ctx context.Context, a *app.App) error {
				if err := a.Credentials.Reset(ctx, args[0]); err != nil {
					return err
				}
				return p.print(map[string]string{"student_id": args[0], "status": "reset"}, func(w io.Writer) {
					fmt.Fprintf(w, "credential for %s reset\n", args[0])
				})
			})
		},
	}

	cmd.AddCommand(reset)
	return cmd
}

type printer struct {
	out    io.Writer
	format *string
}

func (p *printer) print(v any, text func(w io.Writer)) error {
	if *p.format == "json" {
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(p.out)
	return nil
}

func (p *printer) locations(locs []location.Location) error {
	type row struct {
		ID           string  `json:"id"`
		Name         string  `json:"name"`
		Latitude     float64 `json:"latitude"`
		Longitude    float64 `json:"longitude"`
		RadiusMeters int     `json:"radius_m"`
	}
	rows := make([]row, 0, len(locs))
	for _, l := range locs {
		rows = append(rows, row{l.ID, l.Name, l.Center.Lat(), l.Center.Lng(), l.RadiusMeters})
	}
	return p.print(rows, func(w io.Writer) {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tLAT\tLNG\tRADIUS")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%.7f\t%.7f\t%d\n", r.ID, r.Name, r.Latitude, r.Longitude, r.RadiusMeters)
		}
		tw.Flush()
	})
}

func (p *printer) entries(entries []attendance.Entry, zone *time.Location) error {
	type row struct {
		StudentID  string `json:"student_id"`
		Day        string `json:"day"`
		LocationID string `json:"location_id"`
		CheckIn    string `json:"check_in_at"`
		CheckOut   string `json:"check_out_at,omitempty"`
	}
	rows := make([]row, 0, len(entries))
	for _, en := range entries {
		r := row{
			StudentID:  en.StudentID,
			Day:        attendance.FormatDay(en.Day),
			LocationID: en.LocationID,
			CheckIn:    en.CheckInAt.In(zone).Format(time.RFC3339),
		}
		if en.CheckOutAt != nil {
			r.CheckOut = en.CheckOutAt.In(zone).Format(time.RFC3339)
		}
		rows = append(rows, r)
	}
	return p.print(rows, func(w io.Writer) {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "STUDENT\tDAY\tLOCATION\tCHECK IN\tCHECK OUT")
		for _, r := range rows {
			out := r.CheckOut
			if out == "" {
				out = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.StudentID, r.Day, r.LocationID, r.CheckIn, out)
		}
		tw.Flush()
	})
}

func (p *printer) summary(s attendance.Summary) error {
	type day struct {
		Day        string `json:"day"`
		Present    int    `json:"present"`
		CheckedOut int    `json:"checked_out"`
	}
	type loc struct {
		LocationID string `json:"location_id"`
		Present    int    `json:"present"`
	}
	out := struct {
		Present    int   `json:"present"`
		CheckedOut int   `json:"checked_out"`
		ByDay      []day `json:"by_day"`
		ByLocation []loc `json:"by_location"`
	}{Present: s.Present, CheckedOut: s.CheckedOut, ByDay: []day{}, ByLocation: []loc{}}
	for _, d := range s.ByDay {
		out.ByDay = append(out.ByDay, day{attendance.FormatDay(d.Day), d.Present, d.CheckedOut})
	}
	for _, l := range s.ByLocation {
		out.ByLocation = append(out.ByLocation, loc{l.LocationID, l.Present})
	}
	return p.print(out, func(w io.Writer) {
		fmt.Fprintf(w, "present: %d, checked out: %d\n", out.Present, out.CheckedOut)
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "DAY\tPRESENT\tCHECKED OUT")
		for _, d := range out.ByDay {
			fmt.Fprintf(tw, "%s\t%d\t%d\n", d.Day, d.Present, d.CheckedOut)
		}
		fmt.Fprintln(tw, "LOCATION\tPRESENT\t")
		for _, l := range out.ByLocation {
			fmt.Fprintf(tw, "%s\t%d\t\n", l.LocationID, l.Present)
		}
		tw.Flush()
	})
}
