package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/alecthomas/kingpin/v2"
	"github.com/davecgh/go-spew/spew"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/flagext"
	json "github.com/json-iterator/go"
	oklogrun "github.com/oklog/run"

	"github.com/grafana/ppl/pkg/cfg"
	"github.com/grafana/ppl/pkg/ppl/syntax"
	"github.com/grafana/ppl/pkg/pplanalyzer"
	"github.com/grafana/ppl/pkg/pplclient"
	"github.com/grafana/ppl/pkg/pplmodel"
)

// parseCommand prints the canonical text of a query.
type parseCommand struct {
	*app
	query   *string
	asJSON  *bool
	verbose *bool
	dump    *bool
}

func (cmd *parseCommand) run(_ *kingpin.ParseContext) error {
	q, err := cmd.parse(*cmd.query)
	if err != nil {
		return err
	}
	if *cmd.dump {
		spew.Fdump(cmd.stdout, q)
		return nil
	}
	if *cmd.asJSON {
		if err := syntax.EncodeJSON(q, cmd.stdout); err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.stdout)
		return err
	}
	fmt.Fprintln(cmd.stdout, cmd.manager.Serialize(q))
	if *cmd.verbose {
		bold := color.New(color.Bold)
		for i, c := range q.Commands {
			bold.Fprintf(cmd.stdout, "%d. %s\n", i+1, c.Type())
			fmt.Fprintf(cmd.stdout, "\t%s\n", c.String())
		}
	}
	return nil
}

func addParseCommand(ka *kingpin.Application, a *app) {
	cmd := &parseCommand{app: a}
	c := ka.Command("parse", "Parse a query and print its canonical text.").Action(cmd.run)
	cmd.query = c.Arg("query", "The query, or - to read it from stdin.").Required().String()
	cmd.asJSON = c.Flag("json", "Print the query and its tokens as JSON.").Bool()
	cmd.verbose = c.Flag("verbose", "Also print every command of the query.").Short('v').Bool()
	cmd.dump = c.Flag("dump", "Dump the syntax tree of the query.").Bool()
}

// tokensCommand prints the token mapping of a query.
type tokensCommand struct {
	*app
	query    *string
	commands flagext.StringSliceCSV
}

func (cmd *tokensCommand) run(_ *kingpin.ParseContext) error {
	q, err := cmd.parse(*cmd.query)
	if err != nil {
		return err
	}

	tokens := cmd.manager.ExtractTokens(q)
	if len(cmd.commands) > 0 {
		keep := map[string]struct{}{}
		for _, c := range cmd.commands {
			keep[strings.TrimSpace(c)] = struct{}{}
		}
		filtered := []syntax.Tokens{}
		for _, c := range tokens[syntax.KeyCommands].([]syntax.Tokens) {
			if _, ok := keep[c[syntax.KeyCommand].(string)]; ok {
				filtered = append(filtered, c)
			}
		}
		tokens = syntax.Tokens{syntax.KeyCommands: filtered}
	}

	out, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.stdout, string(out))
	return err
}

func addTokensCommand(ka *kingpin.Application, a *app) {
	cmd := &tokensCommand{app: a}
	c := ka.Command("tokens", "Print the tokens of a query as JSON.").Action(cmd.run)
	cmd.query = c.Arg("query", "The query, or - to read it from stdin.").Required().String()
	c.Flag("commands", "Comma separated command types to keep, e.g. stats,where.").SetValue(&cmd.commands)
}

// fmtCommand pretty prints a query.
type fmtCommand struct {
	*app
	query *string
}

func (cmd *fmtCommand) run(_ *kingpin.ParseContext) error {
	q, err := cmd.parse(*cmd.query)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.stdout, cmd.manager.Format(q))
	return err
}

func addFmtCommand(ka *kingpin.Application, a *app) {
	cmd := &fmtCommand{app: a}
	c := ka.Command("fmt", "Format a query, one command per line when it is long.").Action(cmd.run)
	cmd.query = c.Arg("query", "The query, or - to read it from stdin.").Required().String()
}

// queryCommand runs a query against the configured server.
type queryCommand struct {
	*app
	query *string
	limit *int
}

func (cmd *queryCommand) run(_ *kingpin.ParseContext) error {
	q, err := cmd.parse(*cmd.query)
	if err != nil {
		return err
	}

	client, err := pplclient.New(cmd.cfg.Client, cmd.logger, cmd.registry)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	start := time.Now()
	res, err := pplclient.NewSearcher(client).Search(ctx, q)
	if err != nil {
		return err
	}
	printResult(cmd.stdout, res, *cmd.limit)
	fmt.Fprintf(cmd.stdout, "\n%s rows of %s in %s\n",
		humanize.Comma(res.Lines()),
		humanize.Comma(res.Total),
		time.Since(start).Round(time.Millisecond),
	)
	return nil
}

func addQueryCommand(ka *kingpin.Application, a *app) {
	cmd := &queryCommand{app: a}
	c := ka.Command("query", "Run a query and print its result as a table.").Action(cmd.run)
	cmd.query = c.Arg("query", "The query, or - to read it from stdin.").Required().String()
	cmd.limit = c.Flag("limit", "Maximum number of rows to print. 0 prints all of them.").Default("100").Int()
}

func printResult(w io.Writer, res *pplmodel.Result, limit int) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := color.New(color.Bold, color.FgBlue)
	for i, col := range res.Columns() {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		header.Fprint(tw, col)
	}
	fmt.Fprintln(tw)

	for i, row := range res.DataRows {
		if limit > 0 && i >= limit {
			break
		}
		cells := make([]string, 0, len(row))
		for _, v := range row {
			cells = append(cells, formatValue(v))
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	_ = tw.Flush()
}

func formatValue(v interface{}) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case float64:
		if v == float64(int64(v)) {
			return humanize.Comma(int64(v))
		}
		return humanize.Commaf(v)
	default:
		return fmt.Sprint(v)
	}
}

// serveCommand starts the analyzer HTTP server.
type serveCommand struct {
	*app
}

func (cmd *serveCommand) run(_ *kingpin.ParseContext) error {
	router := pplanalyzer.NewRouter(cmd.manager, cmd.logger, &cmd.cfg.LogLevel, cmd.registry)
	srv := &http.Server{
		Addr:              cmd.cfg.Server.ListenAddress,
		Handler:           gziphandler.GzipHandler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var g oklogrun.Group
	g.Add(oklogrun.SignalHandler(context.Background(), os.Interrupt, syscall.SIGTERM))
	g.Add(func() error {
		level.Info(cmd.logger).Log("msg", "starting analyzer server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}, func(error) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			level.Warn(cmd.logger).Log("msg", "failed to shut down analyzer server", "err", err)
		}
	})

	if cmd.configPath != "" {
		ctx, cancel := context.WithCancel(context.Background())
		g.Add(func() error {
			if err := cfg.Watch(ctx, cmd.configPath, cmd.reloadLogLevel); err != nil {
				level.Warn(cmd.logger).Log("msg", "stopped watching config file", "err", err)
			}
			<-ctx.Done()
			return nil
		}, func(error) {
			cancel()
		})
	}

	err := g.Run()
	var sig oklogrun.SignalError
	if errors.As(err, &sig) {
		level.Info(cmd.logger).Log("msg", "analyzer server stopped", "signal", sig.Signal)
		return nil
	}
	return err
}

func addServeCommand(ka *kingpin.Application, a *app) {
	cmd := &serveCommand{app: a}
	ka.Command("serve", "Serve the query analyzer over HTTP.").Action(cmd.run)
}

func (a *app) parse(arg string) (*syntax.Query, error) {
	text, err := a.readQuery(arg)
	if err != nil {
		return nil, err
	}
	q, err := a.manager.Parse(text)
	if err != nil {
		var perr *pplmodel.ParseError
		if errors.As(err, &perr) && perr.Pos.Line > 0 {
			return nil, fmt.Errorf("%w\n%s", err, caret(text, perr.Pos))
		}
		return nil, err
	}
	return q, nil
}

// caret shows the line of text holding pos with a marker under the column.
func caret(text string, pos pplmodel.Position) string {
	if pos.Column < 1 {
		return ""
	}
	lines := strings.Split(text, "\n")
	if pos.Line > len(lines) {
		return ""
	}
	line := lines[pos.Line-1]
	return fmt.Sprintf("  %s\n  %s^", line, strings.Repeat(" ", pos.Column-1))
}
