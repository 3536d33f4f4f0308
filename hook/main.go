// The termsync hook is the one-shot CLI behind shell pre-exec and
// post-exec hooks. A pre-exec invocation records the command start; the
// post-exec invocation, carrying the same UUID, completes it. The local
// archive stands in for the server's pending-entry index between the two
// invocations.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/termsync/termsync/archive"
	"github.com/termsync/termsync/config"
	"github.com/termsync/termsync/engine"
	"github.com/termsync/termsync/entry"
	"github.com/termsync/termsync/ghostwriter"
	"github.com/termsync/termsync/plugin"
)

type flags struct {
	comments    string
	description string
	gwID        int
	startTime   string
	endTime     string
	srcHost     string
	destHost    string
	operator    string
	output      string
	userContext string
	uuid        string
	command     string
}

func parseFlags() *flags {
	f := &flags{}
	pflag.StringVarP(&f.comments, "comment", "c", "", "additional information about the command")
	pflag.StringVarP(&f.description, "description", "d", "", "description of the command")
	pflag.IntVarP(&f.gwID, "id", "i", 0, "the Ghostwriter ID of a log entry to update")
	pflag.StringVarP(&f.startTime, "start-time", "s", "", "timestamp when the command was executed")
	pflag.StringVarP(&f.endTime, "end-time", "e", "", "timestamp when the command finished executing")
	pflag.StringVar(&f.srcHost, "src-host", "", "the host where the command execution originates")
	pflag.StringVar(&f.destHost, "dest-host", "", "the host the command targets")
	pflag.StringVar(&f.operator, "operator", "", "the operator who ran the command")
	pflag.StringVarP(&f.output, "output", "o", "", "the output of the command")
	pflag.StringVar(&f.userContext, "user-context", "", "the credentials the command ran under")
	pflag.StringVarP(&f.uuid, "uuid", "u", "", "a universally unique identifier for the command")
	pflag.Parse()

	if args := pflag.Args(); len(args) > 0 {
		f.command = args[0]
	}
	return f
}

func main() {
	log.SetFlags(0)

	f := parseFlags()
	if f.command == "" && f.gwID == 0 {
		return
	}

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}
	if !cfg.Enabled && f.gwID == 0 {
		// Manual updates stay available even with automatic logging off.
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.GwTimeoutSeconds+5)*time.Second)
	defer cancel()

	if err := run(ctx, cfg, f); err != nil {
		log.Fatalf("[!] %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, f *flags) error {
	var client engine.RemoteClient
	if cfg.RemoteEnabled() {
		gw, err := ghostwriter.New(ghostwriter.Options{
			URL:                cfg.GwURL,
			OplogID:            cfg.GwOplogID,
			GraphQLKey:         cfg.GwAPIKeyGraphQL,
			RESTKey:            cfg.GwAPIKeyREST,
			Timeout:            time.Duration(cfg.GwTimeoutSeconds) * time.Second,
			UserAgent:          "termsync/" + config.Version,
			InsecureSkipVerify: !cfg.GwSSLCheck,
		})
		if err != nil {
			return err
		}
		client = gw
	}

	var store archive.Store
	if cfg.ArchiveBackend == "postgres" {
		pg, err := archive.NewPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("postgres archive: %w", err)
		}
		defer pg.Close()
		store = pg
	} else {
		store = archive.NewDir(cfg.JSONLogDir)
	}

	chain, err := plugin.BuildChain(cfg.Plugins, cfg.DescToken, cfg.NologToken)
	if err != nil {
		return err
	}

	coordinator := engine.New(engine.Options{
		Client:       client,
		Archive:      store,
		Chain:        chain,
		SaveAllLocal: cfg.SaveAllLocal,
		MergePolicy:  entry.MergePolicy{ProtectOutput: cfg.MergeProtectOutput},
	})

	ev := f.event(cfg)

	var (
		e     *entry.Entry
		isNew bool
	)
	switch {
	case f.gwID != 0:
		// Manual out-of-band update: build the entry from CLI arguments
		// alone so defaults cannot clobber what is already recorded
		// remotely.
		e = ev.Entry()
		isNew = false
	default:
		pending, err := store.FindPending(ctx, ev.OplogID, ev.UUID)
		if err != nil {
			log.Printf("[-] pending lookup failed: %v", err)
		}
		if pending != nil {
			src := ev.Entry()
			if src.EndTime.IsZero() {
				src.EndTime = time.Now().UTC()
			}
			pending.Merge(src, entry.MergePolicy{ProtectOutput: cfg.MergeProtectOutput})
			e = pending
			isNew = false
			fmt.Printf("[+] Completed: %q at %s\n", e.Command, e.EndTime.Format(entry.TimeFormat))
		} else {
			e = ev.NewEntry(engine.Defaults{
				Operator:        cfg.Operator,
				OplogID:         cfg.GwOplogID,
				SourceHost:      cfg.GwSrcHost,
				DestinationHost: cfg.GwDestHost,
			})
			isNew = true
			fmt.Printf("[*] Executed: %q at %s\n", e.Command, e.StartTime.Format(entry.TimeFormat))
		}
	}

	processed, matched, vetoed := chain.Process(e)
	if vetoed {
		return nil
	}
	if !matched && isNew && f.gwID == 0 {
		// Nothing claimed the command; in the hook flow the chain is the
		// gate, so stay silent.
		return nil
	}

	out := coordinator.Deliver(ctx, processed, isNew)
	if out.Message != "" {
		fmt.Println(out.Message)
	}
	if out.RemoteErr != nil {
		log.Printf("[-] remote delivery failed: %v", out.RemoteErr)
	}
	if out.ArchiveErr != nil {
		if !out.Status.Logged() {
			return fmt.Errorf("local archive write failed, entry lost: %w", out.ArchiveErr)
		}
		log.Printf("[-] local archive write failed: %v", out.ArchiveErr)
	}
	return nil
}

// event converts the flags into an engine event. A new entry with no
// explicit UUID gets a generated one so its archive filename is unique and
// a later completion can still find it.
func (f *flags) event(cfg *config.Config) engine.Event {
	ev := engine.Event{
		Command:         f.command,
		Comments:        f.comments,
		Description:     f.description,
		Operator:        f.operator,
		Output:          f.output,
		SourceHost:      f.srcHost,
		DestinationHost: f.destHost,
		UserContext:     f.userContext,
		UUID:            f.uuid,
		OplogID:         cfg.GwOplogID,
	}
	if f.gwID != 0 {
		id := f.gwID
		ev.GwID = &id
	}
	if ev.UUID == "" && ev.GwID == nil {
		ev.UUID = uuid.NewString()
	}
	ev.StartTime = parseFlagTime(f.startTime)
	ev.EndTime = parseFlagTime(f.endTime)
	return ev
}

func parseFlagTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{entry.TimeFormat, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	log.Printf("[-] unparseable timestamp %q ignored", s)
	return time.Time{}
}
