package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/tgnotion/tgnotion/internal/app"
	"github.com/tgnotion/tgnotion/internal/bus"
	"github.com/tgnotion/tgnotion/internal/config"
	"github.com/tgnotion/tgnotion/internal/ledger"
	"github.com/tgnotion/tgnotion/internal/logging"
	"github.com/tgnotion/tgnotion/internal/session"
	"github.com/tgnotion/tgnotion/internal/sink"
	"github.com/tgnotion/tgnotion/internal/source"
	intsync "github.com/tgnotion/tgnotion/internal/sync"
	"github.com/tgnotion/tgnotion/internal/telegram"
)

const dateLayout = "2006-01-02"

func main() {
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "init":
		cmdInit()
	case "extract":
		cmdExtract(args[1:], *jsonFlag)
	case "extract-all":
		cmdExtractAll(args[1:], *jsonFlag)
	case "topics":
		cmdTopics(args[1:], *jsonFlag)
	case "query":
		cmdQuery(args[1:], *jsonFlag)
	case "stats":
		cmdStats(*jsonFlag)
	case "init-db":
		cmdInitDB(args[1:])
	case "test":
		cmdTest()
	case "runs":
		cmdRuns(*jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: tgnotion [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  init                 Write a config template to ~/.tgnotion/config.toml")
	fmt.Fprintln(os.Stderr, "  extract <chat-id>    Extract one chat into the Notion database")
	fmt.Fprintln(os.Stderr, "  extract-all          Extract every visible chat")
	fmt.Fprintln(os.Stderr, "  topics <chat-id>     List forum topics of a chat")
	fmt.Fprintln(os.Stderr, "  query                Query stored messages")
	fmt.Fprintln(os.Stderr, "  stats                Show aggregate counts of the store")
	fmt.Fprintln(os.Stderr, "  init-db              Create a new Notion database under a parent page")
	fmt.Fprintln(os.Stderr, "  test                 Probe Telegram and Notion connectivity")
	fmt.Fprintln(os.Stderr, "  runs                 Show recent extraction runs")
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal(err)
	}
}

func loadConfig() *config.Config {
	cfg, err := config.Load(session.ConfigPath())
	if err != nil {
		fatal(fmt.Errorf("cannot read %s (run `tgnotion init` first): %w", session.ConfigPath(), err))
	}
	if err := cfg.Validate(); err != nil {
		fatal(err)
	}
	return cfg
}

func cmdInit() {
	path := session.ConfigPath()
	if _, err := os.Stat(path); err == nil {
		fatal(fmt.Errorf("%s already exists", path))
	}
	if err := config.Save(path, config.Default()); err != nil {
		fatal(err)
	}
	fmt.Printf("wrote config template to %s\n", path)
	fmt.Println("fill in telegram.api_id, telegram.api_hash, telegram.phone, notion.token and notion.database_id")
}

// pipeline holds the fx-populated components a command needs.
type pipeline struct {
	fxapp *fx.App
	coord *intsync.Coordinator
	src   *source.Client
	snk   *sink.Client
	tg    *telegram.Client
	bus   *bus.Bus
}

func startPipeline(ctx context.Context, cfg *config.Config) *pipeline {
	p := &pipeline{}
	p.fxapp = fx.New(
		app.Module(app.Params{
			Config:         cfg,
			CodePrompt:     promptFor("login code"),
			PasswordPrompt: promptFor("2FA password"),
		}),
		fx.Populate(&p.coord, &p.src, &p.snk, &p.tg, &p.bus),
		fx.NopLogger,
	)
	if err := p.fxapp.Start(ctx); err != nil {
		fatal(err)
	}
	return p
}

func (p *pipeline) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = p.fxapp.Stop(ctx)
}

func promptFor(what string) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		fmt.Printf("enter %s: ", what)
		r := bufio.NewReader(os.Stdin)
		line, err := r.ReadString('\n')
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
}

// watchProgress prints extraction events until the process exits.
func watchProgress(b *bus.Bus) func() {
	ch, unsub := b.Subscribe("extract.", 64)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case evt := <-ch:
				switch evt.Kind {
				case "extract.chat_done":
					if res, ok := evt.Payload.(intsync.Result); ok {
						fmt.Printf("  %s: %d messages\n", res.ChatTitle, res.Count)
					}
				case "extract.chat_failed":
					if m, ok := evt.Payload.(map[string]string); ok {
						fmt.Printf("  %s: FAILED (%s)\n", m["chat_id"], m["error"])
					}
				}
			case <-done:
				return
			}
		}
	}()
	return func() { unsub(); close(done) }
}

func extractOptions(fs *flag.FlagSet, cfg *config.Config) (*intsync.Options, *string, *string, *string) {
	opts := &intsync.Options{}
	fs.IntVar(&opts.MessageLimit, "limit", cfg.Extract.MessageLimit, "max messages to extract")
	fs.BoolVar(&opts.IncludeOutgoing, "include-outgoing", cfg.Extract.IncludeOutgoing, "include your own messages")
	fs.BoolVar(&opts.IncludeMedia, "include-media", cfg.Extract.IncludeMedia, "include messages with attachments")
	fs.BoolVar(&opts.SkipExported, "skip-exported", cfg.Extract.SkipExported, "skip messages already in the ledger")
	fs.IntVar(&opts.TopicID, "topic", 0, "restrict to one forum topic")
	topics := fs.String("topics", "", "comma-separated forum topic IDs to merge")
	from := fs.String("from", "", "only messages on or after this date (YYYY-MM-DD)")
	to := fs.String("to", "", "only messages on or before this date (YYYY-MM-DD)")
	return opts, topics, from, to
}

func finishOptions(opts *intsync.Options, topics, from, to string) {
	if topics != "" {
		for _, part := range strings.Split(topics, ",") {
			id, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				fatal(fmt.Errorf("invalid topic id %q", part))
			}
			opts.TopicIDs = append(opts.TopicIDs, id)
		}
	}
	if from != "" || to != "" {
		dr := &intsync.DateRange{}
		if from != "" {
			t, err := time.Parse(dateLayout, from)
			if err != nil {
				fatal(fmt.Errorf("invalid -from date: %w", err))
			}
			dr.From = &t
		}
		if to != "" {
			t, err := time.Parse(dateLayout, to)
			if err != nil {
				fatal(fmt.Errorf("invalid -to date: %w", err))
			}
			// Inclusive day bound.
			t = t.Add(24*time.Hour - time.Second)
			dr.To = &t
		}
		opts.DateFilter = dr
	}
}

func cmdExtract(args []string, jsonOut bool) {
	cfg := loadConfig()
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	opts, topics, from, to := extractOptions(fs, cfg)
	_ = fs.Parse(args)
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: tgnotion extract [flags] <chat-id>")
		os.Exit(1)
	}
	finishOptions(opts, *topics, *from, *to)
	chatID := fs.Arg(0)

	ctx := context.Background()
	p := startPipeline(ctx, cfg)
	defer p.stop()

	res, err := p.coord.ExtractChat(ctx, chatID, *opts)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(res)
		return
	}
	fmt.Printf("%s: %d messages extracted\n", res.ChatTitle, res.Count)
}

func cmdExtractAll(args []string, jsonOut bool) {
	cfg := loadConfig()
	fs := flag.NewFlagSet("extract-all", flag.ExitOnError)
	opts, topics, from, to := extractOptions(fs, cfg)
	users := fs.Bool("users", true, "include direct chats")
	groups := fs.Bool("groups", true, "include group chats")
	channels := fs.Bool("channels", true, "include broadcast channels")
	_ = fs.Parse(args)
	finishOptions(opts, *topics, *from, *to)
	opts.ChatTypes = &intsync.ChatTypeFilter{Users: *users, Groups: *groups, Channels: *channels}

	ctx := context.Background()
	p := startPipeline(ctx, cfg)
	defer p.stop()

	stopWatch := watchProgress(p.bus)
	results, err := p.coord.ExtractAllChats(ctx, *opts)
	stopWatch()
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(results)
		return
	}
	total := 0
	for _, r := range results {
		total += r.Count
	}
	fmt.Printf("%d chats extracted, %d messages total\n", len(results), total)
}

func cmdTopics(args []string, jsonOut bool) {
	cfg := loadConfig()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: tgnotion topics <chat-id>")
		os.Exit(1)
	}
	chatID := args[0]

	ctx := context.Background()
	p := startPipeline(ctx, cfg)
	defer p.stop()

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := p.src.Connect(connectCtx); err != nil {
		fatal(err)
	}

	topics, err := p.src.ListTopics(ctx, chatID)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(topics)
		return
	}
	if len(topics) == 0 {
		fmt.Println("no topics found")
		return
	}
	for _, t := range topics {
		count := strconv.Itoa(t.ApproxMessageCount)
		if t.CountIsApproximate {
			count = "~" + count
		}
		last := "unknown"
		if t.LastActivityAt != nil {
			last = t.LastActivityAt.Format(time.RFC3339)
		}
		fmt.Printf("%-8d %-40s %8s msgs  last %s\n", t.ID, t.Title, count, last)
	}
}

// sinkOnly builds a sink client without the full pipeline; read-path commands
// need no Telegram connection and no process lock.
func sinkOnly(cfg *config.Config) *sink.Client {
	logger := zap.NewNop()
	if err := session.EnsureDirs(); err == nil {
		if l, err := logging.New(session.LogPath(), "cli"); err == nil {
			logger = l
		}
	}
	return sink.New(sink.Config{
		Token:        cfg.Notion.Token,
		DatabaseID:   cfg.Notion.DatabaseID,
		ParentPageID: cfg.Notion.ParentPageID,
	}, logger)
}

func cmdQuery(args []string, jsonOut bool) {
	cfg := loadConfig()
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	chat := fs.String("chat", "", "filter by chat name (contains)")
	sender := fs.String("sender", "", "filter by sender (contains)")
	direction := fs.String("direction", "", "filter by direction (Incoming|Outgoing)")
	from := fs.String("from", "", "only messages on or after this date (YYYY-MM-DD)")
	to := fs.String("to", "", "only messages on or before this date (YYYY-MM-DD)")
	limit := fs.Int("limit", 25, "max results")
	_ = fs.Parse(args)

	f := sink.Filter{
		ChatName: *chat,
		Sender:   *sender,
		Limit:    *limit,
	}
	switch *direction {
	case "":
	case string(sink.Incoming), string(sink.Outgoing):
		f.Direction = sink.Direction(*direction)
	default:
		fatal(fmt.Errorf("invalid -direction %q", *direction))
	}
	if *from != "" {
		t, err := time.Parse(dateLayout, *from)
		if err != nil {
			fatal(err)
		}
		f.Start = &t
	}
	if *to != "" {
		t, err := time.Parse(dateLayout, *to)
		if err != nil {
			fatal(err)
		}
		f.End = &t
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	records, err := sinkOnly(cfg).Query(ctx, f)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(records)
		return
	}
	for _, r := range records {
		fmt.Printf("[%s] %s / %s: %s\n",
			r.Timestamp.Format("2006-01-02 15:04"), r.Chat, r.Sender, r.Text)
	}
	fmt.Printf("%d records\n", len(records))
}

func cmdStats(jsonOut bool) {
	cfg := loadConfig()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	stats, err := sinkOnly(cfg).GetStatistics(ctx)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(stats)
		return
	}
	fmt.Printf("Total: %d\n", stats.TotalCount)
	fmt.Println("Per chat:")
	for name, n := range stats.PerChat {
		fmt.Printf("  %-30s %d\n", name, n)
	}
	fmt.Println("Per direction:")
	for dir, n := range stats.PerDirection {
		fmt.Printf("  %-30s %d\n", dir, n)
	}
	if stats.Truncated {
		fmt.Println("note: counts cover the first page only")
	}
}

func cmdInitDB(args []string) {
	cfgPath := session.ConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fatal(err)
	}
	fs := flag.NewFlagSet("init-db", flag.ExitOnError)
	title := fs.String("title", "Telegram Messages", "title for the new database")
	parent := fs.String("parent", cfg.Notion.ParentPageID, "parent page ID")
	_ = fs.Parse(args)

	if cfg.Notion.Token == "" {
		fatal(fmt.Errorf("notion.token missing in %s", cfgPath))
	}
	if *parent == "" {
		fatal(fmt.Errorf("no parent page: set notion.parent_page_id or pass -parent"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	id, err := sinkOnly(cfg).CreateDatabase(ctx, *parent, *title)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("created database %s\n", id)

	cfg.Notion.DatabaseID = id
	if err := config.Save(cfgPath, cfg); err != nil {
		fatal(fmt.Errorf("database created but config not updated: %w", err))
	}
	fmt.Printf("notion.database_id written to %s\n", cfgPath)
}

func cmdTest() {
	cfg := loadConfig()
	ctx := context.Background()
	p := startPipeline(ctx, cfg)
	defer p.stop()

	probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	if p.snk.TestConnection(probeCtx) {
		fmt.Println("notion: ok")
	} else {
		fmt.Println("notion: FAILED")
	}
	cancel()

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := p.tg.Connect(connectCtx); err != nil {
		fmt.Printf("telegram: FAILED (%v)\n", err)
		os.Exit(1)
	}
	me, err := p.tg.Me(connectCtx)
	if err != nil {
		fmt.Printf("telegram: connected, but identity lookup failed (%v)\n", err)
		os.Exit(1)
	}
	fmt.Printf("telegram: ok (logged in as %s %s)\n", me.FirstName, me.LastName)
}

func cmdRuns(jsonOut bool) {
	db, err := ledger.Open(session.LedgerPath())
	if err != nil {
		fatal(err)
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Migrate(); err != nil {
		fatal(err)
	}

	runs, err := db.RecentRuns(20)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(runs)
		return
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return
	}
	for _, r := range runs {
		started := time.UnixMilli(r.StartedAt).Format("2006-01-02 15:04:05")
		fmt.Printf("%s  %-30s %5d messages\n", started, r.ChatTitle, r.Count)
	}
}
