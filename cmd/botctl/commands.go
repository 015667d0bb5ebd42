package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"gridBot/config"
	"gridBot/internal/adapters/vault"
	"gridBot/internal/analytics"
	"gridBot/internal/domain"
	"gridBot/internal/ports"
	"gridBot/internal/utils"
)

// store is the slice of the repository used by the commands.
type store interface {
	ListBots(ctx context.Context) ([]*domain.Bot, error)
	GetBot(ctx context.Context, id string) (*domain.Bot, error)
	CreateBot(ctx context.Context, bot *domain.Bot) error
	SetBotActive(ctx context.Context, id string, active bool) error
	UpdateBot(ctx context.Context, id string, upd ports.BotUpdate) error
	RequestPositionClose(ctx context.Context, botID, positionID string) error
	DeleteBot(ctx context.Context, id string) error
	ListTrades(ctx context.Context, botID string, limit int) ([]*domain.Trade, error)
	ListLogs(ctx context.Context, botID string, limit int) ([]*domain.LogEntry, error)
	ListAlerts(ctx context.Context, botID string, limit int) ([]*domain.Alert, error)
}

var now = time.Now

func runList(ctx context.Context, repo store, out io.Writer) error {
	bots, err := repo.ListBots(ctx)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Name", "Symbol", "Mode", "Status", "Active", "Capital", "Buys", "Sells", "Win %", "Profit", "Runtime"})
	for _, bot := range bots {
		trades, err := repo.ListTrades(ctx, bot.ID, 0)
		if err != nil {
			return err
		}
		stats := analytics.Compute(bot, trades, now())
		t.AppendRow(table.Row{
			bot.ID, bot.Name, bot.Symbol, bot.Mode, bot.Status, bot.Active,
			fmt.Sprintf("%.2f", bot.Capital), bot.TotalBuys, bot.TotalSells,
			fmt.Sprintf("%.1f", stats.WinRate), fmt.Sprintf("%.2f", bot.TotalProfit), stats.RunningTime,
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", "", "", "", "", "Bots", len(bots)})
	t.Render()
	return nil
}

func runShow(ctx context.Context, repo store, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	botID := fs.String("bot", "", "bot id")
	limit := fs.Int("n", 10, "number of recent logs and alerts")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *botID == "" {
		return errors.New("-bot is required")
	}

	bot, err := repo.GetBot(ctx, *botID)
	if err != nil {
		return err
	}
	trades, err := repo.ListTrades(ctx, bot.ID, 0)
	if err != nil {
		return err
	}
	stats := analytics.Compute(bot, trades, now())

	summary := table.NewWriter()
	summary.SetOutputMirror(out)
	summary.SetTitle("%s (%s %s)", bot.Name, bot.Symbol, bot.Mode)
	summary.AppendRows([]table.Row{
		{"Status", bot.Status},
		{"Trades", stats.TotalTrades},
		{"Win rate", fmt.Sprintf("%.1f%%", stats.WinRate)},
		{"Total profit", fmt.Sprintf("%.2f", stats.TotalProfit)},
		{"Average profit", fmt.Sprintf("%.2f", stats.AverageProfit)},
		{"Best / worst", fmt.Sprintf("%.2f / %.2f", stats.BestTrade, stats.WorstTrade)},
		{"Max drawdown", fmt.Sprintf("%.2f%%", stats.MaxDrawdown*100)},
		{"Running time", stats.RunningTime},
	})
	for _, m := range stats.SortedMonthlyProfits() {
		summary.AppendRow(table.Row{m.Month.Format("Jan 2006"), fmt.Sprintf("%.2f", m.Profit)})
	}
	summary.Render()

	logs, err := repo.ListLogs(ctx, bot.ID, *limit)
	if err != nil {
		return err
	}
	logTable := table.NewWriter()
	logTable.SetOutputMirror(out)
	logTable.SetTitle("Recent logs")
	logTable.AppendHeader(table.Row{"Time", "Level", "Message"})
	for _, l := range logs {
		logTable.AppendRow(table.Row{l.Timestamp.Format(time.DateTime), l.Level, l.Message})
	}
	logTable.Render()

	alerts, err := repo.ListAlerts(ctx, bot.ID, *limit)
	if err != nil {
		return err
	}
	alertTable := table.NewWriter()
	alertTable.SetOutputMirror(out)
	alertTable.SetTitle("Recent alerts")
	alertTable.AppendHeader(table.Row{"Time", "Type", "Message"})
	for _, a := range alerts {
		alertTable.AppendRow(table.Row{a.Timestamp.Format(time.DateTime), a.Type, a.Message})
	}
	alertTable.Render()
	return nil
}

func runCreate(ctx context.Context, cfg *config.Config, repo store, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	bot := &domain.Bot{Active: true}
	var mode, apiKey, apiSecret string
	var start bool
	fs.StringVar(&bot.Name, "name", "", "display name")
	fs.StringVar(&bot.Symbol, "symbol", "BTC/USDT", "trading pair, BASE/QUOTE")
	fs.StringVar(&mode, "mode", string(domain.ModeDemo), "DEMO or REAL")
	fs.Float64Var(&bot.Capital, "capital", 1000, "allocated quote amount")
	fs.Float64Var(&bot.BuyPercentage, "buy-pct", 10, "capital percent spent per buy")
	fs.Float64Var(&bot.BuyDropPercent, "drop-pct", 5, "price drop from the last entry that triggers a buy")
	fs.Float64Var(&bot.SellProfitPercent, "profit-pct", 3, "gain over entry that triggers a sell")
	fs.Float64Var(&bot.StopLossPercent, "stop-loss", 0, "stop loss percent, 0 disables")
	fs.Float64Var(&bot.TakeProfitPercent, "take-profit", 0, "take profit percent, 0 disables")
	fs.Float64Var(&bot.TrailingStopPercent, "trailing-stop", 0, "trailing stop percent, 0 disables")
	fs.IntVar(&bot.MaxPositions, "max-positions", 0, "open position limit, 0 disables")
	fs.Float64Var(&bot.MaxDailyLoss, "max-daily-loss", 0, "daily realized loss limit, 0 disables")
	fs.StringVar(&apiKey, "key", "", "exchange API key")
	fs.StringVar(&apiSecret, "secret", "", "exchange API secret")
	fs.BoolVar(&start, "start", false, "create the bot RUNNING so the server starts it")
	if err := fs.Parse(args); err != nil {
		return err
	}

	bot.Mode = domain.BotMode(strings.ToUpper(mode))
	var errs []string
	if bot.Mode != domain.ModeDemo && bot.Mode != domain.ModeReal {
		errs = append(errs, "mode must be DEMO or REAL")
	}
	if !strings.Contains(bot.Symbol, "/") {
		errs = append(errs, "symbol must look like BASE/QUOTE")
	}
	if bot.Capital <= 0 || bot.BuyPercentage <= 0 || bot.BuyPercentage > 100 {
		errs = append(errs, "capital must be positive and buy-pct within (0, 100]")
	}
	if bot.BuyDropPercent <= 0 || bot.SellProfitPercent <= 0 {
		errs = append(errs, "drop-pct and profit-pct must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid bot: %s", strings.Join(errs, "; "))
	}

	if apiKey != "" || apiSecret != "" {
		blob, err := seal(cfg, apiKey, apiSecret)
		if err != nil {
			return err
		}
		bot.Credentials = blob
	}
	if start {
		bot.Status = domain.BotRunning
	}

	if err := repo.CreateBot(ctx, bot); err != nil {
		return err
	}
	fmt.Fprintln(out, bot.ID)
	return nil
}

func runSetActive(ctx context.Context, repo store, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("set-active", flag.ContinueOnError)
	botID := fs.String("bot", "", "bot id")
	active := fs.Bool("active", true, "activation switch")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *botID == "" {
		return errors.New("-bot is required")
	}
	if err := repo.SetBotActive(ctx, *botID, *active); err != nil {
		return err
	}
	fmt.Fprintf(out, "bot %s active=%t\n", *botID, *active)
	return nil
}

// runSetStatus persists the desired status; the server applies it on its next
// reconcile pass.
func runSetStatus(ctx context.Context, repo store, command string, status domain.BotStatus, args []string, out io.Writer) error {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	botID := fs.String("bot", "", "bot id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *botID == "" {
		return errors.New("-bot is required")
	}
	if err := repo.UpdateBot(ctx, *botID, ports.BotUpdate{Status: &status}); err != nil {
		return err
	}
	fmt.Fprintf(out, "bot %s marked %s\n", *botID, status)
	return nil
}

func runClose(ctx context.Context, repo store, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("close", flag.ContinueOnError)
	botID := fs.String("bot", "", "bot id")
	positionID := fs.String("position", "", "open position id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *botID == "" || *positionID == "" {
		return errors.New("-bot and -position are required")
	}
	if err := repo.RequestPositionClose(ctx, *botID, *positionID); err != nil {
		return err
	}
	fmt.Fprintf(out, "close of position %s requested\n", *positionID)
	return nil
}

func runDelete(ctx context.Context, repo store, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	botID := fs.String("bot", "", "bot id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *botID == "" {
		return errors.New("-bot is required")
	}
	if err := repo.DeleteBot(ctx, *botID); err != nil {
		return err
	}
	fmt.Fprintf(out, "bot %s deleted\n", *botID)
	return nil
}

func runExport(ctx context.Context, repo store, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	botID := fs.String("bot", "", "bot id")
	path := fs.String("out", "", "output CSV file, stdout when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *botID == "" {
		return errors.New("-bot is required")
	}

	trades, err := repo.ListTrades(ctx, *botID, 0)
	if err != nil {
		return err
	}
	if *path == "" {
		return utils.WriteTrades(out, trades)
	}
	if err := utils.WriteTradesToCSV(trades, *path); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d trades written to %s\n", len(trades), *path)
	return nil
}

func runSeal(cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("seal", flag.ContinueOnError)
	apiKey := fs.String("key", "", "exchange API key")
	apiSecret := fs.String("secret", "", "exchange API secret")
	if err := fs.Parse(args); err != nil {
		return err
	}
	blob, err := seal(cfg, *apiKey, *apiSecret)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, blob)
	return nil
}

func seal(cfg *config.Config, apiKey, apiSecret string) (string, error) {
	v, err := vault.New(cfg.CredentialsKey)
	if err != nil {
		return "", err
	}
	return v.Seal(vault.Credentials{APIKey: apiKey, APISecret: apiSecret})
}
