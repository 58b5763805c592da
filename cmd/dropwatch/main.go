// dropwatch drives the client core against a running dropspotd: it watches a
// drop's phase live and performs waitlist/claim actions with the optimistic
// stores, printing what a UI would render.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/Developer-Emre/dropspotapp-sub000/pkg/dropclient"
	"github.com/Developer-Emre/dropspotapp-sub000/pkg/phase"
)

func main() {
	addr := flag.String("addr", "http://localhost:8080", "dropspotd base URL")
	dropID := flag.String("drop", "", "drop id")
	userID := flag.String("user", "", "user id")
	action := flag.String("action", "watch", "create | watch | join | leave | claim | complete | status")
	title := flag.String("title", "Demo Drop", "title for -action create")
	stock := flag.Int64("stock", 10, "total stock for -action create")
	waitFor := flag.Duration("wait-for", time.Minute, "waitlist window length for -action create")
	claimFor := flag.Duration("claim-for", 5*time.Minute, "claim window length for -action create")
	debug := flag.Bool("debug", false, "verbose logging")
	flag.Parse()

	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	zlog.Logger = zlog.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := dropclient.New(*addr, nil)

	if *action == "create" {
		start := time.Now()
		d, de, err := client.CreateDrop(ctx, dropclient.CreateDropParams{
			DropID:     *dropID, // optional; server generates one when empty
			Title:      *title,
			TotalStock: *stock,
			Start:      start,
			ClaimStart: start.Add(*waitFor),
			ClaimEnd:   start.Add(*waitFor + *claimFor),
		})
		if err != nil {
			zlog.Fatal().Err(err).Msg("create drop")
		}
		if de != nil {
			zlog.Fatal().Str("reason", de.Reason).Msg("create drop rejected")
		}
		zlog.Info().
			Str("drop", d.DropID).
			Int64("stock", d.TotalStock).
			Time("claim_start", d.ClaimStart).
			Time("claim_end", d.ClaimEnd).
			Msg("drop created")
		return
	}

	if *dropID == "" || *userID == "" {
		zlog.Fatal().Msg("-drop and -user are required")
	}

	waitlist := dropclient.NewWaitlistStore(client, *userID)
	claims := dropclient.NewClaimStore(client, *userID, func(c dropclient.Claim) {
		zlog.Warn().Str("claim_id", c.ClaimID).Msg("claim expired locally; server will confirm")
	})
	defer claims.Close()

	switch *action {
	case "watch":
		watch(ctx, client, claims, *dropID)
	case "join":
		if waitlist.Join(ctx, *dropID) {
			entry, _ := waitlist.Entry(*dropID)
			zlog.Info().Int("position", entry.Position).Float64("score", entry.PriorityScore).Msg("joined waitlist")
		} else {
			zlog.Error().Str("reason", waitlist.Err(*dropID)).Msg("join failed")
		}
	case "leave":
		if waitlist.Leave(ctx, *dropID) {
			zlog.Info().Msg("left waitlist")
		} else {
			zlog.Error().Str("reason", waitlist.Err(*dropID)).Msg("leave failed")
		}
	case "claim":
		if claims.ClaimDrop(ctx, *dropID) {
			c, _ := claims.Claim(*dropID)
			zlog.Info().Str("code", c.ClaimCode).Time("expires_at", c.ExpiresAt).Msg("claim pending")
		} else {
			zlog.Error().Str("reason", claims.Err(*dropID)).Msg("claim failed")
		}
	case "complete":
		if err := claims.Refresh(ctx, *dropID); err != nil {
			zlog.Fatal().Err(err).Msg("claim status")
		}
		if claims.CompleteClaim(ctx, *dropID) {
			c, _ := claims.Claim(*dropID)
			zlog.Info().Time("completed_at", c.CompletedAt).Msg("claim completed")
		} else {
			zlog.Error().Str("reason", claims.Err(*dropID)).Msg("complete failed")
		}
	case "status":
		st, err := client.WaitlistStatus(ctx, *dropID, *userID)
		if err != nil {
			zlog.Fatal().Err(err).Msg("waitlist status")
		}
		if st.InWaitlist {
			zlog.Info().Int("position", st.Position).Float64("score", st.Entry.PriorityScore).Msg("in waitlist")
		} else {
			zlog.Info().Msg("not in waitlist")
		}
	default:
		zlog.Fatal().Str("action", *action).Msg("unknown action")
	}
}

func watch(ctx context.Context, client *dropclient.Client, claims *dropclient.ClaimStore, dropID string) {
	d, found, err := client.GetDrop(ctx, dropID)
	if err != nil {
		zlog.Fatal().Err(err).Msg("get drop")
	}
	if !found {
		zlog.Fatal().Str("drop", dropID).Msg("drop not found")
	}

	zlog.Info().
		Str("title", d.Title).
		Int64("available", d.AvailableStock()).
		Msg("watching drop")

	_ = claims.Refresh(ctx, dropID)

	ticker := phase.NewTicker(time.Second)
	ticker.Run(ctx, d.Schedule(), func(st phase.Status) {
		line := fmt.Sprintf("phase=%s", st.Current)
		if st.Current != phase.Ended {
			line += fmt.Sprintf(" next=%s in %s", st.Next, phase.FormatRemaining(st.TimeRemaining))
		}
		fmt.Println(line)
	})
	zlog.Info().Msg("drop ended")
}
