package obscheck

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/tools/common"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/tools/ui"
)

type options struct {
	ci         bool
	grafanaURL string
	metric     string
	window     time.Duration
}

// NewRootCommand wires the observability smoke check: find a recent trace
// exemplar on an auth metric, then confirm the trace is queryable.
func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "obscheck",
		Short:         "Verify the metrics-to-traces pipeline end to end",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&opts.ci, "ci", false, "print machine-readable JSON instead of the terminal view")
	root.PersistentFlags().StringVar(&opts.grafanaURL, "grafana-url", "http://localhost:3001", "Grafana base URL")
	root.PersistentFlags().StringVar(&opts.metric, "metric", "auth_events_total", "metric to look up exemplars on")
	root.PersistentFlags().DurationVar(&opts.window, "window", 5*time.Minute, "how far back to accept exemplars")

	root.AddCommand(newRunCommand(opts))
	return root
}

func newRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline check once",
		RunE: func(cmd *cobra.Command, args []string) error {
			action := func(ctx context.Context) ([]string, error) {
				since := time.Now().Add(-opts.window)
				traceID, err := fetchTraceIDFromExemplar(ctx, *opts, since)
				if err != nil {
					return nil, err
				}
				if _, err := grafanaGET(ctx, *opts, "/api/traces/"+traceID); err != nil {
					return nil, fmt.Errorf("trace %s not queryable: %w", traceID, err)
				}
				return []string{"exemplar trace " + traceID + " found and queryable"}, nil
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if opts.ci {
				details, err := action(ctx)
				common.PrintCIResult(err == nil, "obscheck run", details, err)
				return err
			}
			_, err := ui.Run(ctx, "obscheck run", action)
			return err
		},
	}
}

func grafanaGET(ctx context.Context, opts options, path string) ([]byte, error) {
	base, err := url.Parse(opts.grafanaURL)
	if err != nil {
		return nil, fmt.Errorf("parse grafana url: %w", err)
	}
	endpoint := strings.TrimRight(base.String(), "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("grafana %s returned %d", path, resp.StatusCode)
	}
	return body, nil
}

type exemplarResponse struct {
	Data []struct {
		Exemplars []struct {
			Timestamp float64           `json:"timestamp"`
			Labels    map[string]string `json:"labels"`
		} `json:"exemplars"`
	} `json:"data"`
}

func fetchTraceIDFromExemplar(ctx context.Context, opts options, since time.Time) (string, error) {
	query := url.Values{}
	query.Set("query", opts.metric)
	query.Set("start", fmt.Sprintf("%d", since.Unix()))
	query.Set("end", fmt.Sprintf("%d", time.Now().Unix()))

	body, err := grafanaGET(ctx, opts, "/api/v1/query_exemplars?"+query.Encode())
	if err != nil {
		return "", err
	}

	var parsed exemplarResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode exemplar response: %w", err)
	}

	for _, series := range parsed.Data {
		for _, ex := range series.Exemplars {
			at := time.Unix(int64(ex.Timestamp), 0)
			if at.Before(since) {
				continue
			}
			if id := ex.Labels["trace_id"]; id != "" {
				return id, nil
			}
		}
	}
	return "", fmt.Errorf("no trace exemplar on %s within %s", opts.metric, opts.window)
}
