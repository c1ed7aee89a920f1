package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"mediarelay/internal/intake"
	"mediarelay/internal/pipeline"
	"mediarelay/internal/relay"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var username string
	var avatarURL string
	var sourcesFile string
	var enqueue bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "submit [url...]",
		Short: "Relay one batch of source links to every registered destination",
		Long: "Resolve each link through the conversion service, download the media, and post it to every\n" +
			"registered webhook. With --enqueue the batch is published to the Redis intake stream for the daemon instead.",
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, err := collectSources(cmd.InOrStdin(), args, sourcesFile, username, avatarURL)
			if err != nil {
				return err
			}
			if len(sources) == 0 {
				return errors.New("no sources given: pass URLs as arguments or use --file")
			}
			if enqueue {
				return enqueueSources(cmd, ctx, sources, jsonOutput)
			}
			return runBatch(cmd, ctx, sources, jsonOutput)
		},
	}

	cmd.Flags().StringVarP(&username, "user", "u", "", "Display name of the person who shared the links")
	cmd.Flags().StringVar(&avatarURL, "avatar", "", "Avatar URL of the person who shared the links")
	cmd.Flags().StringVarP(&sourcesFile, "file", "f", "", "JSON array of {url, username, avatar_url} objects (- for stdin)")
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "Publish to the Redis intake stream instead of running in-process")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

// collectSources merges positional URLs with entries from a sources file.
// File entries without a requester inherit the flag values.
func collectSources(stdin io.Reader, args []string, path, username, avatarURL string) ([]pipeline.SourceReference, error) {
	var sources []pipeline.SourceReference
	if path = strings.TrimSpace(path); path != "" {
		var (
			raw []byte
			err error
		)
		if path == "-" {
			raw, err = io.ReadAll(stdin)
		} else {
			raw, err = os.ReadFile(path)
		}
		if err != nil {
			return nil, fmt.Errorf("read sources file: %w", err)
		}
		if err := json.Unmarshal(raw, &sources); err != nil {
			return nil, fmt.Errorf("parse sources file: %w", err)
		}
	}
	for _, arg := range args {
		sources = append(sources, pipeline.SourceReference{URL: arg})
	}
	for i := range sources {
		if strings.TrimSpace(sources[i].Username) == "" {
			sources[i].Username = username
		}
		if strings.TrimSpace(sources[i].AvatarURL) == "" {
			sources[i].AvatarURL = avatarURL
		}
	}
	return sources, nil
}

func enqueueSources(cmd *cobra.Command, ctx *commandContext, sources []pipeline.SourceReference, jsonOutput bool) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	if !cfg.IntakeEnabled() {
		return errors.New("--enqueue requires intake.redis_addr to be configured")
	}
	client := intake.NewClient(cfg)
	defer client.Close()

	id, err := intake.NewPublisher(client, cfg.Intake.Stream, cfg.Intake.MaxLen).Publish(cmd.Context(), sources)
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(cmd, map[string]any{"id": id, "stream": cfg.Intake.Stream, "sources": len(sources)})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Enqueued %d source(s) on %s as %s\n", len(sources), cfg.Intake.Stream, id)
	return nil
}

func runBatch(cmd *cobra.Command, ctx *commandContext, sources []pipeline.SourceReference, jsonOutput bool) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.logger()
	if err != nil {
		return err
	}

	opts := relay.Options{}
	if !jsonOutput && shouldColorize(cmd.ErrOrStderr()) {
		opts.OnProgress = newProgressPrinter(cmd.ErrOrStderr()).print
	}
	r, err := relay.New(cfg, logger, opts)
	if err != nil {
		return err
	}
	defer r.Close()

	report, err := r.Session.SubmitSources(cmd.Context(), sources)
	if jsonOutput {
		if encErr := writeJSON(cmd, report); encErr != nil {
			return encErr
		}
	} else if len(report.Sources) > 0 {
		fmt.Fprint(cmd.OutOrStdout(), renderReport(report))
	}
	if err != nil {
		return err
	}

	distributed, failed, _ := report.Counts()
	if distributed == 0 && failed > 0 {
		return fmt.Errorf("batch %s: no source was distributed", report.BatchID)
	}
	return nil
}

func renderReport(report pipeline.Report) string {
	distributed, failed, duplicate := report.Counts()

	var b strings.Builder
	fmt.Fprintf(&b, "Batch %s finished in %s: %d distributed, %d failed, %d duplicate\n",
		report.BatchID, report.Duration().Round(10*time.Millisecond), distributed, failed, duplicate)

	rows := make([][]string, 0, len(report.Sources))
	for _, src := range report.Sources {
		rows = append(rows, []string{
			strconv.Itoa(src.Index),
			src.Source.URL,
			string(src.Status),
			strconv.Itoa(len(src.Artifacts)),
			src.Reason,
		})
	}
	b.WriteString(renderTable(
		[]string{"#", "Source", "Status", "Files", "Detail"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft},
	))
	b.WriteString("\n")

	var outcomeRows [][]string
	for _, src := range report.Sources {
		for _, out := range src.Outcomes {
			outcomeRows = append(outcomeRows, []string{
				strconv.Itoa(src.Index),
				out.Destination,
				string(out.Status),
				out.Reason,
			})
		}
	}
	if len(outcomeRows) > 0 {
		b.WriteString(renderTable(
			[]string{"#", "Destination", "Status", "Reason"},
			outcomeRows,
			[]columnAlignment{alignRight},
		))
		b.WriteString("\n")
	}
	return b.String()
}

// progressPrinter renders one line per progress report; reports arrive from
// concurrent transfers.
type progressPrinter struct {
	mu  sync.Mutex
	out io.Writer
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out}
}

func (p *progressPrinter) print(evt pipeline.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	name := filepath.Base(strings.SplitN(evt.AssetURL, "?", 2)[0])
	fmt.Fprintf(p.out, "  source #%d %s: %s\n", evt.SourceIndex, name, evt.Progress)
}
