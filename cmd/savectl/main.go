// Command savectl inspects and maintains save slots.
//
//	savectl [-dir path | -sqlite path | -redis addr] <command> [args]
//
// Commands:
//
//	list              list save slots, newest first
//	inspect <slot>    print a summary of a slot, or its JSON with -json
//	delete <slot>     delete a slot
//	verify <file>     decode a save blob from disk and report dropped sections
//	schema            print the JSON schema of save data
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/oriumgames/persist"
	"github.com/oriumgames/persist/simworld"
	"github.com/oriumgames/persist/store"
)

type options struct {
	dir    string
	sqlite string
	redis  string
	prefix string
	json   bool
	debug  bool
}

func main() {
	var opts options
	flag.StringVar(&opts.dir, "dir", "saves", "directory store root")
	flag.StringVar(&opts.sqlite, "sqlite", "", "use the SQLite database at this path")
	flag.StringVar(&opts.redis, "redis", "", "use the Redis server at this address")
	flag.StringVar(&opts.prefix, "prefix", store.DefaultRedisPrefix, "Redis key prefix")
	flag.BoolVar(&opts.json, "json", false, "print save data as JSON")
	flag.BoolVar(&opts.debug, "v", false, "verbose logging")
	flag.Usage = usage
	flag.Parse()

	level := slog.LevelWarn
	if opts.debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(context.Background(), opts, flag.Args(), os.Stdout, log); err != nil {
		fmt.Fprintln(os.Stderr, "savectl:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(flag.CommandLine.Output(), "usage: savectl [flags] list|inspect <slot>|delete <slot>|verify <file>|schema")
	flag.PrintDefaults()
}

var errUsage = errors.New("bad usage, see -h")

func run(ctx context.Context, opts options, args []string, out io.Writer, log *slog.Logger) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "schema":
		return printJSON(out, persist.Schema())
	case "verify":
		if len(args) != 2 {
			return errUsage
		}
		blob, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		return verify(out, blob, log)
	}

	s, closeStore, err := openStore(opts)
	if err != nil {
		return err
	}
	defer closeStore()

	m, err := persist.NewBuilder().
		World(simworld.New()).
		Store(s).
		Options(persist.WithLogger(log)).
		Init()
	if err != nil {
		return err
	}

	switch args[0] {
	case "list":
		return list(ctx, out, m)
	case "inspect":
		id, err := slotArg(args)
		if err != nil {
			return err
		}
		blob, err := m.ReadSlot(ctx, id)
		if err != nil {
			return err
		}
		data, err := persist.DecodeSaveData(blob, log)
		if err != nil {
			return err
		}
		if opts.json {
			return printJSON(out, data)
		}
		summarize(out, data)
		return nil
	case "delete":
		id, err := slotArg(args)
		if err != nil {
			return err
		}
		return m.DeleteSlot(ctx, id)
	}
	return fmt.Errorf("unknown command %q", args[0])
}

// openStore opens the store selected by the flags. The returned func
// releases it.
func openStore(opts options) (persist.Store, func(), error) {
	switch {
	case opts.sqlite != "":
		s, err := store.OpenSQLite(opts.sqlite)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case opts.redis != "":
		s := store.NewRedis(redis.NewClient(&redis.Options{Addr: opts.redis}), opts.prefix)
		return s, func() { _ = s.Close() }, nil
	default:
		s, err := store.NewDir(opts.dir)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	}
}

func slotArg(args []string) (ulid.ULID, error) {
	if len(args) != 2 {
		return ulid.ULID{}, errUsage
	}
	return ulid.ParseStrict(args[1])
}

func list(ctx context.Context, out io.Writer, m *persist.Manager) error {
	slots, err := m.Slots(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCREATED\tSAVED")
	for _, s := range slots {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, s.Name,
			s.Created().Format(time.DateTime), s.Timestamp.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func summarize(out io.Writer, d *persist.SaveData) {
	fmt.Fprintf(out, "slot      %s\n", d.Slot)
	fmt.Fprintf(out, "name      %s\n", d.Name)
	fmt.Fprintf(out, "saved     %s\n", d.Timestamp.Local().Format(time.DateTime))
	fmt.Fprintf(out, "version   %d\n", d.Version)
	if d.OpenSpace.IsMain() {
		fmt.Fprintln(out, "open      main")
	} else {
		fmt.Fprintf(out, "open      %s\n", d.OpenSpace)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\nSPACE\tDEFINITION\tBASELINE\tRECORDS")
	row := func(name string, s persist.SpaceSnapshot) {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", name, s.Definition, s.Baseline.Len(), len(s.Records))
	}
	row("main", d.Main)
	for _, s := range d.Spaces {
		row(s.ID.String(), s)
	}
	_ = w.Flush()
	fmt.Fprintf(out, "\n%d cross references\n", len(d.Tokens))
}

// verify decodes blob and reports every section the decoder dropped.
func verify(out io.Writer, blob []byte, log *slog.Logger) error {
	rec := &warnings{Handler: log.Handler()}
	data, err := persist.DecodeSaveData(blob, slog.New(rec))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %d spaces, %d cross references\n", data.Name, len(data.Spaces)+1, len(data.Tokens))
	if rec.n > 0 {
		return fmt.Errorf("%d problems found", rec.n)
	}
	fmt.Fprintln(out, "ok")
	return nil
}

// warnings counts warning records while forwarding them.
type warnings struct {
	slog.Handler
	n int
}

func (w *warnings) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn {
		w.n++
	}
	return w.Handler.Handle(ctx, r)
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
