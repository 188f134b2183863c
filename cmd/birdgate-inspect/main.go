// Command birdgate-inspect opens a birdgate window log with the same
// constructor the daemon uses and, without logging any windows, prints
// recent windows, species summaries, and decision stats.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"birdgate/internal/config"
	"birdgate/internal/winlog"
)

func main() {
	if !run(os.Args[1:]) {
		fmt.Fprintln(os.Stderr, "Usage: birdgate-inspect [-config path] <recent|species|stats|detections> [flags]")
		os.Exit(1)
	}
}

func run(args []string) bool {
	if len(args) == 0 {
		return false
	}

	// -config is only recognized as the first argument, before the
	// subcommand name; subcommand flag sets do not define it.
	configPath := "birdgate.yaml"
	subcmd := args[0]
	rest := args[1:]
	if subcmd == "-config" || subcmd == "--config" {
		if len(args) < 3 {
			return false
		}
		configPath = args[1]
		subcmd = args[2]
		rest = args[3:]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	store, err := winlog.New(cfg.Storage)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening window log: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	switch subcmd {
	case "recent":
		return cmdRecent(store, rest)
	case "species":
		return cmdSpecies(store, rest)
	case "stats":
		return cmdStats(store, rest)
	case "detections":
		return cmdDetections(store, rest)
	default:
		return false
	}
}

func sinceHours(hours float64) time.Time {
	if hours <= 0 {
		return time.Time{}
	}
	return time.Now().Add(-time.Duration(hours * float64(time.Hour)))
}

func cmdRecent(store winlog.Store, args []string) bool {
	fs := flag.NewFlagSet("recent", flag.ExitOnError)
	stream := fs.String("stream", "", "filter by stream name")
	decision := fs.String("decision", "", "filter by decision (SILENCE|TRASH|SEND_TO_BIRDNET)")
	limit := fs.Int("limit", 20, "maximum rows to print")
	asJSON := fs.Bool("json", false, "print JSON instead of a table")
	fs.Parse(args)

	recs, err := store.GetRecentWindows(*stream, *decision, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		out, _ := json.MarshalIndent(recs, "", "  ")
		fmt.Println(string(out))
		return true
	}

	if len(recs) == 0 {
		fmt.Println("No windows found.")
		return true
	}
	for _, r := range recs {
		fmt.Printf("[%d] %s  %s  %s  rms=%.1fdB snr=%.1fdB  %s\n",
			r.ID, humanize.Time(r.Timestamp), r.StreamName, r.Decision,
			r.Features.RMSTotalDB, r.Features.SNRBirdDB, r.Reason)
		for _, d := range r.Detections {
			fmt.Printf("      %s (%.0f%% confidence)\n", d.Species, d.Confidence*100)
		}
	}
	return true
}

func cmdSpecies(store winlog.Store, args []string) bool {
	fs := flag.NewFlagSet("species", flag.ExitOnError)
	stream := fs.String("stream", "", "filter by stream name")
	hours := fs.Float64("hours", 0, "only count detections from the last N hours (0 = all time)")
	asJSON := fs.Bool("json", false, "print JSON instead of a table")
	fs.Parse(args)

	summary, err := store.GetSpeciesSummary(*stream, sinceHours(*hours))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		out, _ := json.MarshalIndent(summary, "", "  ")
		fmt.Println(string(out))
		return true
	}

	if len(summary) == 0 {
		fmt.Println("No detections found.")
		return true
	}
	for _, s := range summary {
		fmt.Printf("  %-24s %s detections  max confidence %.0f%%  avg confidence %.0f%%\n",
			s.Species, humanize.Comma(int64(s.DetectionCount)), s.MaxConfidence*100, s.AvgConfidence*100)
	}
	return true
}

func cmdStats(store winlog.Store, args []string) bool {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	stream := fs.String("stream", "", "filter by stream name")
	hours := fs.Float64("hours", 0, "only count windows from the last N hours (0 = all time)")
	asJSON := fs.Bool("json", false, "print JSON instead of a table")
	fs.Parse(args)

	stats, err := store.GetDecisionStats(*stream, sinceHours(*hours))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		out, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Println(string(out))
		return true
	}

	total := stats.Silence + stats.Trash + stats.SendToBirdNET
	fmt.Printf("Silence:        %s\n", humanize.Comma(int64(stats.Silence)))
	fmt.Printf("Trash:          %s\n", humanize.Comma(int64(stats.Trash)))
	fmt.Printf("Sent to BirdNET: %s\n", humanize.Comma(int64(stats.SendToBirdNET)))
	fmt.Printf("Total:          %s\n", humanize.Comma(int64(total)))
	return true
}

func cmdDetections(store winlog.Store, args []string) bool {
	fs := flag.NewFlagSet("detections", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "print JSON instead of a table")
	fs.Parse(args)

	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: birdgate-inspect detections <window-id>")
		os.Exit(1)
	}
	var windowID int64
	if _, err := fmt.Sscanf(fs.Arg(0), "%d", &windowID); err != nil {
		fmt.Fprintf(os.Stderr, "invalid window id %q\n", fs.Arg(0))
		os.Exit(1)
	}

	dets, err := store.GetDetectionsForWindow(windowID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		out, _ := json.MarshalIndent(dets, "", "  ")
		fmt.Println(string(out))
		return true
	}

	if len(dets) == 0 {
		fmt.Println("No detections for this window.")
		return true
	}
	for _, d := range dets {
		fmt.Printf("  %-24s %.0f%% confidence  %.1fs-%.1fs\n", d.Species, d.Confidence*100, d.StartTime, d.EndTime)
	}
	return true
}
