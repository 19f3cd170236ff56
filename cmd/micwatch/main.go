// Command micwatch follows an open mic from the terminal.  With --host it
// also runs the lineup: a set timer bound to the current performer and
// single-letter commands on stdin.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"

	"github.com/iliyamo/open-mic/internal/micclient"
	"github.com/iliyamo/open-mic/internal/micstate"
	"github.com/iliyamo/open-mic/internal/model"
	"github.com/iliyamo/open-mic/internal/timer"
)

const help = `commands: s start  p pause  r resume  x reset  n complete set  k skip  a toggle auto-advance  q quit`

type options struct {
	server   string
	micID    uint64
	email    string
	password string
	host     bool
	auto     bool
	verbose  bool
}

func parseFlags() options {
	var o options
	flag.StringVarP(&o.server, "server", "s", envOr("OPENMIC_SERVER", "http://localhost:8080"), "open-mic server URL")
	flag.Uint64VarP(&o.micID, "mic", "m", 0, "mic id to follow (required)")
	flag.StringVar(&o.email, "email", os.Getenv("OPENMIC_EMAIL"), "account email, required with --host")
	flag.StringVar(&o.password, "password", os.Getenv("OPENMIC_PASSWORD"), "account password")
	flag.BoolVar(&o.host, "host", false, "run the lineup with a set timer")
	flag.BoolVar(&o.auto, "auto-advance", false, "complete the set when the timer runs out")
	flag.BoolVarP(&o.verbose, "verbose", "v", false, "debug logging")
	flag.Parse()
	return o
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func main() {
	o := parseFlags()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if o.verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if o.micID == 0 {
		fmt.Fprintln(os.Stderr, "micwatch: --mic is required")
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := micclient.New(o.server)
	if o.email != "" {
		if _, err := client.Login(ctx, o.email, o.password); err != nil {
			log.Fatal().Err(err).Str("module", "micwatch").Msg("login failed")
		}
	} else if o.host {
		log.Fatal().Str("module", "micwatch").Msg("--host needs --email and --password")
	}

	session := micclient.NewSession(client, o.micID, micclient.SessionOptions{})
	if err := session.Refresh(ctx); err != nil {
		log.Fatal().Err(err).Str("module", "micwatch").Uint64("mic_id", o.micID).Msg("cannot load mic")
	}

	var t *timer.Timer
	if o.host {
		m, _ := session.Mic()
		t = timer.New(time.Duration(m.SetLength)*time.Minute,
			timer.WithAutoAdvance(o.auto),
			timer.OnComplete(func(id uint64) {
				if err := session.CompleteSet(ctx, id); err != nil {
					log.Error().Err(err).Str("module", "micwatch").Uint64("performer_id", id).Msg("auto-advance failed")
				}
			}))
	}

	render := func(m model.Mic, r micstate.Roster) {
		if t != nil {
			if m.SetLength > 0 {
				t.SetLength(time.Duration(m.SetLength) * time.Minute)
			}
			if cur, ok := micstate.Current(r); ok {
				t.Track(cur.ID)
			} else {
				t.Untrack()
			}
		}
		printLineup(os.Stdout, m, r, t)
	}
	unsubscribe := session.OnSnapshot(render)
	defer unsubscribe()
	m, _ := session.Mic()
	render(m, session.Roster())

	done := make(chan error, 1)
	go func() { done <- session.Run(ctx) }()
	if t != nil {
		fmt.Println(help)
		go commands(ctx, cancel, session, t)
	}

	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Str("module", "micwatch").Msg("stopped")
		os.Exit(1)
	}
}

// commands reads host commands from stdin until EOF or q.
func commands(ctx context.Context, quit context.CancelFunc, s *micclient.Session, t *timer.Timer) {
	in := bufio.NewScanner(os.Stdin)
	for in.Scan() {
		cmd := strings.TrimSpace(in.Text())
		cur, hasCur := s.Current()
		var err error
		switch cmd {
		case "s":
			t.Start()
		case "p":
			t.Pause()
		case "r":
			t.Resume()
		case "x":
			t.Reset()
		case "a":
			t.SetAutoAdvance(!t.AutoAdvance())
			fmt.Printf("auto-advance %v\n", t.AutoAdvance())
		case "n", "k":
			if !hasCur {
				fmt.Println("nobody is up")
				continue
			}
			if cmd == "n" {
				err = s.CompleteSet(ctx, cur.ID)
			} else {
				err = s.Skip(ctx, cur.ID)
			}
		case "q":
			quit()
			return
		case "":
			continue
		default:
			fmt.Println(help)
			continue
		}
		if err != nil {
			fmt.Println(describe(err))
			continue
		}
		fmt.Printf("timer %s %s\n", t.State(), t.Remaining().Round(time.Second))
	}
}

// describe turns a client error into a line for the host.
func describe(err error) string {
	var ce *micclient.Error
	if !errors.As(err, &ce) {
		return err.Error()
	}
	switch ce.Kind {
	case micclient.KindBadRequest, micclient.KindValidation:
		return ce.Msg
	case micclient.KindUnauthorized:
		return "not allowed: " + ce.Msg
	case micclient.KindNetwork:
		return "server unreachable, try again"
	}
	return err.Error()
}

func printLineup(w io.Writer, m model.Mic, r micstate.Roster, t *timer.Timer) {
	fmt.Fprintf(w, "\n== %s  (%s, %d/%d", m.Name, micstate.ResolveSignupState(m), m.SlotsFilled, m.Slots)
	if m.WaitingList != nil {
		fmt.Fprintf(w, " +%d %s", m.WaitingList.Slots, m.WaitingList.Kind)
	}
	fmt.Fprintf(w, ", check-in %s)\n", onOff(m.CheckinOpen))

	cur, hasCur := micstate.Current(r)
	for i, p := range r {
		if i == m.Slots {
			fmt.Fprintln(w, "   -- waiting list --")
		}
		mark := "  "
		if hasCur && p.ID == cur.ID {
			mark = "▶ "
		}
		fmt.Fprintf(w, "%s%2d. %-24s %s\n", mark, p.Order+1, p.Name, status(p))
	}
	if t != nil {
		fmt.Fprintf(w, "timer %s %s of %s (auto-advance %v)\n", t.State(), t.Remaining().Round(time.Second), t.Length(), t.AutoAdvance())
	}
}

func status(p model.Performer) string {
	switch {
	case p.SetComplete && p.Skipped:
		return "missed"
	case p.SetComplete:
		return "done"
	case p.Skipped:
		return "skipped"
	case p.CheckedIn:
		return "checked in"
	}
	return ""
}

func onOff(b bool) string {
	if b {
		return "open"
	}
	return "closed"
}
