package main

import (
	"context"
	"io"
	"os"
	"slices"

	"github.com/agentuity/steam-mirror/logger"
	"github.com/agentuity/steam-mirror/steam"
	"github.com/agentuity/steam-mirror/tui"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

// progressEvery is how many reviews pass between progress lines.
const progressEvery = 10

func newDownloadReviewsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "download-reviews",
		Short: "Download the reviews of every owned game, least played first",
		Long: "Download the reviews of every owned game, least played first.\n\n" +
			"Games whose reviews are stored already are skipped. Create the stop\n" +
			"file (STEAM_MIRROR_STOP_FILE) to end the run after the current game.",
		Args: cobra.NoArgs,
		RunE: withSession(func(cmd *cobra.Command, _ []string, s *session) error {
			d := &downloader{
				client:   s.client,
				out:      cmd.OutOrStdout(),
				log:      s.log,
				stopFile: s.cfg.StopFile,
			}
			return d.run(cmd.Context(), s.cfg.MyID)
		}),
	}
}

type downloader struct {
	client   *steam.Client
	out      io.Writer
	log      logger.Logger
	stopFile string
}

// stopRequested reports whether the stop file exists, removing it so the
// next run is not stopped too.
func (d *downloader) stopRequested() bool {
	if d.stopFile == "" {
		return false
	}
	if _, err := os.Stat(d.stopFile); err != nil {
		return false
	}
	if err := os.Remove(d.stopFile); err != nil {
		d.log.Warn("cannot remove stop file %s: %v", d.stopFile, err)
	}
	return true
}

func (d *downloader) run(ctx context.Context, steamID int64) error {
	owned, _, err := d.client.OwnedGames(ctx, steamID)
	if err != nil {
		return errors.Wrap(err, "owned games")
	}
	games := slices.Clone(owned.Games)
	slices.SortStableFunc(games, func(a, b steam.OwnedGame) int {
		switch {
		case a.PlaytimeForever < b.PlaytimeForever:
			return -1
		case a.PlaytimeForever > b.PlaytimeForever:
			return 1
		}
		return 0
	})

	for i, game := range games {
		if d.stopRequested() {
			tui.ShowWarning(d.out, "stop file %s found, stopping", d.stopFile)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.game(ctx, i+1, len(games), game.ID); err != nil {
			return err
		}
	}
	tui.ShowSuccess(d.out, "reviews of %d games stored", len(games))
	return nil
}

func (d *downloader) game(ctx context.Context, n, total int, appID int64) error {
	label := tui.Muted(tui.PadLeft(itoa(int64(n)), len(itoa(int64(total))))+"/"+itoa(int64(total))) + " "
	app, found, err := d.client.AppInfo(ctx, appID)
	if errors.Is(err, steam.ErrNotFound) {
		tui.ShowWarning(d.out, "%s%d NOT FOUND", label, appID)
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "app %d", appID)
	}
	if !found {
		// Stored by an older run; fetch it again next time.
		if _, err := d.client.ForgetAppInfo(ctx, appID); err != nil {
			return err
		}
		tui.ShowWarning(d.out, "%s%d NOT FOUND, removed the empty entry", label, appID)
		return nil
	}

	cached, err := d.client.ReviewsCached(ctx, appID)
	if err != nil {
		return err
	}
	if cached {
		tui.ShowSkipped(d.out, "%s%s (%d) already stored", label, app.Name, appID)
		return nil
	}

	expected, err := d.client.TotalReviews(ctx, appID)
	if err != nil {
		return errors.Wrapf(err, "review summary of %d", appID)
	}
	count := int64(0)
	for _, err := range d.client.Reviews(ctx, appID) {
		if errors.Is(err, steam.ErrReviewCollision) {
			tui.ShowError(d.out, "%s%s (%d): %s", label, app.Name, appID, err)
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "reviews of %d", appID)
		}
		count++
		if count%progressEvery == 0 {
			d.log.Info("%s: %d/%d reviews", app.Name, count, expected)
		}
	}
	tui.ShowSuccess(d.out, "%s%s (%d): %d reviews", label, app.Name, appID, count)
	return nil
}
