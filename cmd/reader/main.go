package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loqalabs/loqa-reader/internal/config"
	"github.com/loqalabs/loqa-reader/internal/pipeline"
	"github.com/loqalabs/loqa-reader/internal/playback"
	"github.com/loqalabs/loqa-reader/internal/runtime"
	"github.com/loqalabs/loqa-reader/internal/synthesis"
)

var version = "0.1.0-dev"

const usage = "expected 'convert', 'list', 'delete', 'seek' or 'version'"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "convert":
		err = runConvert(ctx, os.Args[2:])
	case "list":
		err = runList(ctx, os.Args[2:])
	case "delete":
		err = runDelete(ctx, os.Args[2:])
	case "seek":
		err = runSeek(ctx, os.Args[2:])
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type common struct {
	configPath string
	verbose    bool
}

func (c *common) bind(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "Path to configuration file")
	fs.BoolVar(&c.verbose, "v", false, "Log pipeline progress to stderr")
}

func (c *common) open(ctx context.Context) (*runtime.Components, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	level := slog.LevelWarn
	if c.verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return runtime.OpenComponents(ctx, cfg, logger)
}

func runConvert(ctx context.Context, args []string) error {
	var (
		c     common
		title string
		voice string
		speed float64
		file  string
	)
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	c.bind(fs)
	fs.StringVar(&title, "title", "", "Title stored with the entry")
	fs.StringVar(&voice, "voice", "", "Voice to read with")
	fs.Float64Var(&speed, "speed", 0, "Speech speed (0.25-4.0, 0 for the configured default)")
	fs.StringVar(&file, "file", "-", "Text file to read, - for stdin")
	fs.Parse(args)

	text, err := readText(file)
	if err != nil {
		return err
	}
	req := pipeline.Request{Title: title, Text: text, Speed: speed}
	if voice != "" {
		if req.Voice, err = synthesis.ParseVoice(voice); err != nil {
			return err
		}
	}

	components, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer components.Close()

	conv, err := components.Converter.Convert(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("%s\t%s\t%d chunks\t%s\n", conv.ID, conv.Asset.Location, conv.Chunks, conv.Asset.TotalDuration)
	return nil
}

func runList(ctx context.Context, args []string) error {
	var (
		c     common
		limit int
	)
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	c.bind(fs)
	fs.IntVar(&limit, "limit", 20, "Maximum entries to show")
	fs.Parse(args)

	components, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer components.Close()

	entries, err := components.Manager.List(ctx, limit)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("%s\t%s\t%s\t%s\t%s\n", e.ID, e.CreatedAt.Local().Format(time.DateTime), e.Voice, e.TotalDuration, e.Title)
	}
	return nil
}

func runDelete(ctx context.Context, args []string) error {
	var (
		c  common
		id string
	)
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	c.bind(fs)
	fs.StringVar(&id, "id", "", "Entry id")
	fs.Parse(args)
	if id == "" {
		return fmt.Errorf("delete: -id is required")
	}

	components, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer components.Close()

	entry, err := components.Manager.Delete(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("deleted %s (%s)\n", entry.ID, entry.Title)
	return nil
}

// runSeek resolves a global time to the segment and offset a player would
// land on, without playing anything.
func runSeek(ctx context.Context, args []string) error {
	var (
		c  common
		id string
		at time.Duration
	)
	fs := flag.NewFlagSet("seek", flag.ExitOnError)
	c.bind(fs)
	fs.StringVar(&id, "id", "", "Entry id")
	fs.DurationVar(&at, "at", 0, "Global time to seek to, e.g. 1m5s")
	fs.Parse(args)
	if id == "" {
		return fmt.Errorf("seek: -id is required")
	}

	components, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer components.Close()

	entry, err := components.Manager.Get(ctx, id)
	if err != nil {
		return err
	}
	ctrl := playback.NewController(playback.NewVirtualPlayer(), nil, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := ctrl.Load(ctx, playback.JoinedMedia(entry.Title, entry.Location, entry.SegmentDurations)); err != nil {
		return err
	}
	elapsed := ctrl.Seek(ctx, at)
	segments := playback.NewTimeline(entry.SegmentDurations)
	pos := segments.Seek(elapsed)
	fmt.Printf("elapsed %s of %s\tsegment %d\toffset %s\n", elapsed, entry.TotalDuration, pos.Index, pos.Offset)
	return nil
}

func readText(file string) (string, error) {
	var (
		data []byte
		err  error
	)
	if file == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return "", fmt.Errorf("read text: %w", err)
	}
	return string(data), nil
}
