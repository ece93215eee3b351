package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/jsbridge/adapter"
	"github.com/pithecene-io/jsbridge/adapter/redis"
	"github.com/pithecene-io/jsbridge/adapter/webhook"
	"github.com/pithecene-io/jsbridge/cli/config"
	"github.com/pithecene-io/jsbridge/cli/render"
	"github.com/pithecene-io/jsbridge/iox"
	"github.com/pithecene-io/jsbridge/lode"
	"github.com/pithecene-io/jsbridge/log"
	"github.com/pithecene-io/jsbridge/session"
	"github.com/pithecene-io/jsbridge/transcript"
	"github.com/pithecene-io/jsbridge/types"
)

// Exit codes for `jsbridge run`.
const (
	exitSuccess    = 0
	exitUnanswered = 1
	exitFailure    = 2
)

// archiveTimeout bounds archive writes and adapter publishing after a session.
const archiveTimeout = 30 * time.Second

// transcriptFile is the sidecar name of the archived transcript.
const transcriptFile = "transcript.msgpack"

// RunCommand returns the run command.
// This is the only command that executes a page.
func RunCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "Path to config file (default: ./" + config.DefaultFile + " when present)",
		},
		// Session flags
		&cli.StringFlag{
			Name:  "page",
			Usage: "URL or file path of the page to load",
		},
		&cli.StringSliceFlag{
			Name:  "call",
			Usage: "Host call handler=data, issued before the page loads (repeatable)",
		},
		&cli.StringSliceFlag{
			Name:  "notify",
			Usage: "Host notification handler=data, sent without a callback (repeatable)",
		},
		&cli.StringSliceFlag{
			Name:  "header",
			Usage: "Request header Key=Value for the page and its scripts (repeatable)",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "How long to wait for readiness and replies",
			Value: session.DefaultTimeout,
		},
		&cli.StringFlag{
			Name:  "user-agent",
			Usage: "User-Agent for page requests",
		},
		&cli.DurationFlag{
			Name:  "script-timeout",
			Usage: "Per-evaluation script timeout (0 disables)",
		},
		&cli.DurationFlag{
			Name:  "callback-ttl",
			Usage: "Expire unanswered host callbacks after this long (0 disables)",
		},
		&cli.StringFlag{
			Name:  "session-id",
			Usage: "Session ID (default: generated)",
		},
		// Output flags
		&cli.StringFlag{
			Name:  "transcript",
			Usage: "Write the msgpack transcript to this path",
		},
		&cli.StringFlag{
			Name:  "report",
			Usage: "Write the JSON session report to this path (- for stderr)",
		},
		&cli.BoolFlag{
			Name:  "quiet",
			Usage: "Suppress report output on stdout",
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "Write session logs to stderr",
		},
		FormatFlag,
		NoColorFlag,
		// Adapter flags
		&cli.StringFlag{
			Name:  "adapter",
			Usage: "Completion event adapter: webhook or redis",
		},
		&cli.StringFlag{
			Name:  "adapter-url",
			Usage: "Adapter endpoint URL",
		},
		&cli.StringFlag{
			Name:  "adapter-channel",
			Usage: "Redis pub/sub channel",
		},
		&cli.StringSliceFlag{
			Name:  "adapter-header",
			Usage: "Webhook header Key=Value (repeatable)",
		},
		&cli.DurationFlag{
			Name:  "adapter-timeout",
			Usage: "Per-attempt adapter timeout",
		},
		&cli.IntFlag{
			Name:  "adapter-retries",
			Usage: "Adapter retry attempts",
			Value: 3,
		},
	}

	return &cli.Command{
		Name:   "run",
		Usage:  "Load a page, drive bridge calls and record the session",
		Flags:  append(flags, StorageFlags()...),
		Action: runAction,
	}
}

// storageChoice holds resolved archive configuration.
type storageChoice struct {
	dataset   string
	backend   string // "fs" or "s3"
	path      string // fs: directory, s3: bucket/prefix
	region    string
	endpoint  string
	pathStyle bool
}

func (s storageChoice) enabled() bool {
	return s.backend != "" || s.path != ""
}

func (s storageChoice) validate() error {
	if !s.enabled() {
		return nil
	}
	if s.backend == "" {
		return errors.New("--storage-backend is required when --storage-path is set")
	}
	if s.path == "" {
		return errors.New("--storage-path is required when --storage-backend is set")
	}
	switch s.backend {
	case "fs", "s3":
		return nil
	default:
		return fmt.Errorf("unknown storage-backend: %s (must be fs or s3)", s.backend)
	}
}

// adapterChoice holds resolved adapter configuration.
type adapterChoice struct {
	kind    string // "webhook" or "redis"
	url     string
	channel string
	headers map[string]string
	timeout time.Duration
	retries int
}

func runAction(c *cli.Context) error {
	cfg, err := loadRunConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}

	sessCfg, err := resolveSessionConfig(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	storage := resolveStorage(c, cfg)
	if err := storage.validate(); err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	adapterCfg, err := resolveAdapter(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if sessCfg.SessionID == "" {
		sessCfg.SessionID = uuid.NewString()
	}
	if c.Bool("verbose") {
		sessCfg.Logger = log.NewLogger(&log.SessionMeta{SessionID: sessCfg.SessionID})
	}
	logger := sessCfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	defer iox.DiscardErr(logger.Sync)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	result, err := session.Run(ctx, sessCfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid session config: %v", err), exitFailure)
	}

	code := outcomeToExitCode(result.Outcome)
	report := session.BuildReport(result, code)

	transcriptPath := c.String("transcript")
	if !c.IsSet("transcript") && cfg != nil {
		transcriptPath = cfg.Transcript
	}
	if transcriptPath != "" {
		if err := transcript.WriteFile(transcriptPath, result.Records); err != nil {
			return cli.Exit(fmt.Sprintf("failed to write transcript: %v", err), exitFailure)
		}
		report.TranscriptPath = transcriptPath
	}

	postCtx, postCancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer postCancel()

	if storage.enabled() {
		path, err := archiveSession(postCtx, storage, result)
		if err != nil {
			return cli.Exit(fmt.Sprintf("failed to archive session: %v", err), exitFailure)
		}
		report.StoragePath = path
	}

	if adapterCfg != nil {
		event := adapter.NewSessionCompletedEvent(result.SessionID, result.Page, result.Summary,
			result.Metrics, result.Err(), result.StartedAt, result.FinishedAt)
		if err := publishEvent(postCtx, adapterCfg, event); err != nil {
			// Publishing is best effort; the session outcome stands.
			logger.Warn("adapter publish failed", map[string]any{
				"adapter": adapterCfg.kind,
				"error":   err.Error(),
			})
			fmt.Fprintf(os.Stderr, "Warning: %s adapter publish failed: %v\n", adapterCfg.kind, err)
		}
	}

	if path := c.String("report"); path != "" {
		if err := session.WriteReport(report, path); err != nil {
			return cli.Exit(err.Error(), exitFailure)
		}
	}

	if !c.Bool("quiet") {
		if err := r.Render(report); err != nil {
			return err
		}
	}

	return cli.Exit("", code)
}

// loadRunConfig loads --config, or jsbridge.yaml from the working directory
// when present. A missing default file yields (nil, nil).
func loadRunConfig(c *cli.Context) (*config.Config, error) {
	if path := c.String("config"); path != "" {
		return config.Load(path)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, nil //nolint:nilerr // no working directory means no default config
	}
	return config.LoadDefault(wd)
}

// resolveSessionConfig merges flags over config file values.
func resolveSessionConfig(c *cli.Context, cfg *config.Config) (session.Config, error) {
	out := session.Config{
		SessionID:     c.String("session-id"),
		Page:          resolveString(c, "page", configVal(cfg, func(f *config.Config) string { return f.Page })),
		UserAgent:     resolveString(c, "user-agent", configVal(cfg, func(f *config.Config) string { return f.UserAgent })),
		Timeout:       resolveDuration(c, "timeout", configVal(cfg, func(f *config.Config) time.Duration { return f.Timeout.Duration })),
		ScriptTimeout: resolveDuration(c, "script-timeout", configVal(cfg, func(f *config.Config) time.Duration { return f.ScriptTimeout.Duration })),
		CallbackTTL:   resolveDuration(c, "callback-ttl", configVal(cfg, func(f *config.Config) time.Duration { return f.CallbackTTL.Duration })),
	}
	if out.Page == "" {
		return out, errors.New("--page is required (or set page in the config file)")
	}

	headers := map[string]string{}
	if cfg != nil {
		for k, v := range cfg.Headers {
			headers[k] = v
		}
	}
	flagHeaders, err := parseKeyValues(c.StringSlice("header"), "--header")
	if err != nil {
		return out, err
	}
	for k, v := range flagHeaders {
		headers[k] = v
	}
	if len(headers) > 0 {
		out.Headers = headers
	}

	// --call and --notify replace the config file's call list.
	if c.IsSet("call") || c.IsSet("notify") {
		for _, raw := range c.StringSlice("call") {
			call, err := parseCall(raw, "--call")
			if err != nil {
				return out, err
			}
			out.Calls = append(out.Calls, call)
		}
		for _, raw := range c.StringSlice("notify") {
			call, err := parseCall(raw, "--notify")
			if err != nil {
				return out, err
			}
			call.Notify = true
			out.Calls = append(out.Calls, call)
		}
	} else if cfg != nil {
		for _, cc := range cfg.Calls {
			out.Calls = append(out.Calls, session.Call{Handler: cc.Handler, Data: cc.Data, Notify: cc.Notify})
		}
	}

	return out, nil
}

func resolveStorage(c *cli.Context, cfg *config.Config) storageChoice {
	return storageChoice{
		dataset:   resolveString(c, "storage-dataset", configVal(cfg, func(f *config.Config) string { return f.Storage.Dataset })),
		backend:   resolveString(c, "storage-backend", configVal(cfg, func(f *config.Config) string { return f.Storage.Backend })),
		path:      resolveString(c, "storage-path", configVal(cfg, func(f *config.Config) string { return f.Storage.Path })),
		region:    resolveString(c, "storage-region", configVal(cfg, func(f *config.Config) string { return f.Storage.Region })),
		endpoint:  resolveString(c, "storage-endpoint", configVal(cfg, func(f *config.Config) string { return f.Storage.Endpoint })),
		pathStyle: resolveBool(c, "storage-s3-path-style", configVal(cfg, func(f *config.Config) bool { return f.Storage.S3PathStyle })),
	}
}

// resolveAdapter returns nil when no adapter is configured.
func resolveAdapter(c *cli.Context, cfg *config.Config) (*adapterChoice, error) {
	kind := resolveString(c, "adapter", configVal(cfg, func(f *config.Config) string { return f.Adapter.Type }))
	if kind == "" {
		return nil, nil
	}
	if kind != "webhook" && kind != "redis" {
		return nil, fmt.Errorf("unknown adapter: %s (must be webhook or redis)", kind)
	}

	out := &adapterChoice{
		kind:    kind,
		url:     resolveString(c, "adapter-url", configVal(cfg, func(f *config.Config) string { return f.Adapter.URL })),
		channel: resolveString(c, "adapter-channel", configVal(cfg, func(f *config.Config) string { return f.Adapter.Channel })),
		timeout: resolveDuration(c, "adapter-timeout", configVal(cfg, func(f *config.Config) time.Duration { return f.Adapter.Timeout.Duration })),
		retries: c.Int("adapter-retries"),
	}
	if !c.IsSet("adapter-retries") && cfg != nil && cfg.Adapter.Retries != nil {
		out.retries = *cfg.Adapter.Retries
	}
	if out.url == "" {
		return nil, errors.New("--adapter-url is required when --adapter is set")
	}

	headers := map[string]string{}
	if cfg != nil {
		for k, v := range cfg.Adapter.Headers {
			headers[k] = v
		}
	}
	flagHeaders, err := parseKeyValues(c.StringSlice("adapter-header"), "--adapter-header")
	if err != nil {
		return nil, err
	}
	for k, v := range flagHeaders {
		headers[k] = v
	}
	if len(headers) > 0 {
		out.headers = headers
	}
	return out, nil
}

// archiveSession writes the transcript, metrics and a transcript sidecar file
// and returns the sidecar's store path.
func archiveSession(ctx context.Context, storage storageChoice, result *session.Result) (string, error) {
	archive, err := openArchive(ctx, storage, lode.Config{
		Dataset:   storage.dataset,
		SessionID: result.SessionID,
		Day:       lode.DeriveDay(result.StartedAt),
	})
	if err != nil {
		return "", err
	}
	defer iox.DiscardClose(archive)

	if err := archive.WriteTranscript(ctx, result.Records); err != nil {
		return "", err
	}
	if err := archive.WriteMetrics(ctx, result.Metrics, result.FinishedAt); err != nil {
		return "", err
	}

	data, err := transcript.Encode(result.Records)
	if err != nil {
		return "", err
	}
	if err := archive.PutFile(ctx, transcriptFile, data); err != nil {
		return "", err
	}
	return archive.FilePath(transcriptFile), nil
}

func publishEvent(ctx context.Context, choice *adapterChoice, event *adapter.SessionCompletedEvent) error {
	var (
		a   adapter.Adapter
		err error
	)
	switch choice.kind {
	case "webhook":
		a, err = webhook.New(webhook.Config{
			URL:     choice.url,
			Headers: choice.headers,
			Timeout: choice.timeout,
			Retries: choice.retries,
		})
	case "redis":
		a, err = redis.New(redis.Config{
			URL:     choice.url,
			Channel: choice.channel,
			Timeout: choice.timeout,
			Retries: choice.retries,
		})
	default:
		return fmt.Errorf("unknown adapter: %s", choice.kind)
	}
	if err != nil {
		return err
	}
	defer iox.DiscardClose(a)
	return a.Publish(ctx, event)
}

func outcomeToExitCode(outcome string) int {
	switch outcome {
	case adapter.OutcomeSuccess:
		return exitSuccess
	case adapter.OutcomeUnanswered:
		return exitUnanswered
	default:
		return exitFailure
	}
}

// parseCall parses handler=data. The data part may be empty or absent.
func parseCall(raw, flag string) (session.Call, error) {
	handler, data, hasData := strings.Cut(raw, "=")
	handler = strings.TrimSpace(handler)
	if handler == "" {
		return session.Call{}, fmt.Errorf("%s %q: handler name is required", flag, raw)
	}
	call := session.Call{Handler: handler}
	if hasData {
		call.Data = types.Ptr(data)
	}
	return call, nil
}

// parseKeyValues parses Key=Value pairs.
func parseKeyValues(values []string, flag string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(values))
	for _, raw := range values {
		k, v, ok := strings.Cut(raw, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("%s %q: expected Key=Value", flag, raw)
		}
		out[k] = v
	}
	return out, nil
}

// configVal reads a field from an optional config file.
func configVal[T any](cfg *config.Config, get func(*config.Config) T) T {
	var zero T
	if cfg == nil {
		return zero
	}
	return get(cfg)
}

// resolveString returns the flag value when set on the command line, the
// config value when non-empty, and the flag default otherwise.
func resolveString(c *cli.Context, name, cfgVal string) string {
	if c.IsSet(name) || cfgVal == "" {
		return c.String(name)
	}
	return cfgVal
}

func resolveDuration(c *cli.Context, name string, cfgVal time.Duration) time.Duration {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Duration(name)
	}
	return cfgVal
}

func resolveBool(c *cli.Context, name string, cfgVal bool) bool {
	if c.IsSet(name) {
		return c.Bool(name)
	}
	return cfgVal || c.Bool(name)
}
