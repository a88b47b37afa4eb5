package main

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/agentuity/steam-mirror/steam"
	"github.com/agentuity/steam-mirror/tui"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

func parseAppID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Newf("invalid app id %q", arg)
	}
	return id, nil
}

func newAppsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apps",
		Short: "Download the list of every Steam application",
		Args:  cobra.NoArgs,
		RunE: withSession(func(cmd *cobra.Command, _ []string, s *session) error {
			search, _ := cmd.Flags().GetString("search")
			var apps []steam.ListedApp
			err := tui.ShowSpinner(cmd.Context(), "Fetching the app list", func() error {
				var err error
				apps, err = s.client.AllApps(cmd.Context())
				return err
			})
			if err != nil {
				return err
			}
			if search == "" {
				tui.ShowSuccess(cmd.OutOrStdout(), "%d apps", len(apps))
				return nil
			}
			needle := strings.ToLower(search)
			var rows [][]string
			for _, app := range apps {
				if strings.Contains(strings.ToLower(app.Name), needle) {
					rows = append(rows, []string{itoa(app.AppID), app.Name})
				}
			}
			tui.Table(cmd.OutOrStdout(), []string{"App", "Name"}, rows)
			return nil
		}),
	}
	cmd.Flags().String("search", "", "list the apps whose name contains this text")
	return cmd
}

func newAppCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "app <id|name>",
		Short: "Show the store data of an app",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(func(cmd *cobra.Command, args []string, s *session) error {
			appID, err := s.client.ResolveApp(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			app, found, err := s.client.AppInfo(cmd.Context(), appID)
			if err != nil {
				return err
			}
			if !found {
				return errors.Wrapf(steam.ErrNotFound, "app %d", appID)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", tui.Title(app.Name), tui.Muted(itoa(appID)))
			// Through JSON so the output uses the API field names.
			buf, err := json.Marshal(app)
			if err != nil {
				return err
			}
			var doc any
			if err := yaml.Unmarshal(buf, &doc); err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(doc)
		}),
	}
}

func newReviewsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reviews <id|name>",
		Short: "Download the reviews of an app",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(func(cmd *cobra.Command, args []string, s *session) error {
			appID, err := s.client.ResolveApp(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("print")
			out := cmd.OutOrStdout()
			count := 0
			for review, err := range s.client.Reviews(cmd.Context(), appID) {
				if err != nil {
					return err
				}
				count++
				if count <= limit {
					vote := "👍"
					if !review.VotedUp {
						vote = "👎"
					}
					fmt.Fprintf(out, "%s %s %s\n", vote, tui.Muted(itoa(review.ID)), tui.MaxWidth(strings.Join(strings.Fields(review.Review), " "), 100))
				}
				if count%progressEvery == 0 {
					s.log.Info("%d reviews", count)
				}
			}
			tui.ShowSuccess(out, "%d reviews of %d", count, appID)
			return nil
		}),
	}
	cmd.Flags().Int("print", 0, "print the first n reviews")
	return cmd
}

func newNameMapCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "name-map",
		Short: "Map the names of the owned games to their app ids",
		Args:  cobra.NoArgs,
		RunE: withSession(func(cmd *cobra.Command, _ []string, s *session) error {
			names, err := s.client.GameNameMap(cmd.Context())
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(names))
			for name := range names {
				keys = append(keys, name)
			}
			slices.Sort(keys)
			rows := make([][]string, 0, len(keys))
			for _, name := range keys {
				rows = append(rows, []string{name, itoa(names[name])})
			}
			tui.Table(cmd.OutOrStdout(), []string{"Name", "App"}, rows)
			return nil
		}),
	}
}

func newOwnedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "owned",
		Short: "List the owned games with their playtime",
		Args:  cobra.NoArgs,
		RunE: withSession(func(cmd *cobra.Command, _ []string, s *session) error {
			owned, _, err := s.client.OwnedGames(cmd.Context(), s.cfg.MyID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tui.Bold("Games owned by "+itoa(s.cfg.MyID)))
			rows := make([][]string, 0, len(owned.Games))
			for _, game := range owned.Games {
				rows = append(rows, []string{itoa(game.ID), game.Name, itoa(game.PlaytimeForever)})
			}
			tui.Table(cmd.OutOrStdout(), []string{"App", "Name", "Minutes"}, rows)
			tui.ShowSuccess(cmd.OutOrStdout(), "%d games", owned.GameCount)
			return nil
		}),
	}
}

func newForgetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "forget <app|reviews> <id>",
		Short:     "Remove a stored result so the next run fetches it again",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"app", "reviews"},
		RunE: withSession(func(cmd *cobra.Command, args []string, s *session) error {
			appID, err := parseAppID(args[1])
			if err != nil {
				return err
			}
			yes, _ := cmd.Flags().GetBool("yes")
			if !yes && !tui.Ask(s.log, fmt.Sprintf("Remove the stored %s of %d?", args[0], appID), true) {
				return nil
			}
			var removed bool
			switch args[0] {
			case "app":
				removed, err = s.client.ForgetAppInfo(cmd.Context(), appID)
			case "reviews":
				removed, err = s.client.ForgetReviews(cmd.Context(), appID)
			default:
				return errors.Newf("cannot forget %q, use app or reviews", args[0])
			}
			if err != nil {
				return err
			}
			if removed {
				tui.ShowSuccess(cmd.OutOrStdout(), "removed the %s of %d", args[0], appID)
			} else {
				tui.ShowSkipped(cmd.OutOrStdout(), "nothing stored for the %s of %d", args[0], appID)
			}
			return nil
		}),
	}
	cmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
	return cmd
}
