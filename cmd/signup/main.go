package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"signup_engine/internal/browser"
	"signup_engine/internal/config"
	"signup_engine/internal/engine"
	"signup_engine/internal/lifecycle"
	"signup_engine/internal/linkcheck"
	"signup_engine/internal/logbus"
	"signup_engine/internal/model"
	"signup_engine/internal/monitor"
	"signup_engine/internal/notify"
	"signup_engine/internal/report"
	"signup_engine/internal/site"
	"signup_engine/internal/store/filestore"
	"signup_engine/internal/store/sqlite"
	"signup_engine/internal/workflow"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to config.yaml")
	total := flag.Int("total", 0, "number of accounts to register (0 = ask)")
	workers := flag.Int("workers", 0, "concurrent workers (overrides config)")
	noParallel := flag.Bool("no-parallel", false, "run accounts one by one")
	inviteLink := flag.String("invite-link", "", "invite link (overrides cache and config)")
	inboxURL := flag.String("inbox-url", "", "inbox provider URL (overrides config)")
	authDomain := flag.String("auth-domain", "", "verification link domain (overrides config)")
	accountsFile := flag.String("accounts-file", "", "credentials file path (overrides config)")
	monitorAddr := flag.String("monitor-addr", "", "listen address for the monitor endpoint, empty disables it")
	verbose := flag.Bool("verbose", false, "show debug log lines")
	logFile := flag.String("log-file", "", "also append log lines to this file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *total > 0 {
		cfg.Run.Total = *total
	}
	if *workers > 0 {
		cfg.Run.Workers = *workers
	}
	if *inviteLink != "" {
		cfg.Run.InviteLink = *inviteLink
	}
	if *inboxURL != "" {
		cfg.Site.InboxURL = *inboxURL
	}
	if *authDomain != "" {
		cfg.Site.AuthDomain = *authDomain
	}
	if *accountsFile != "" {
		cfg.Storage.AccountsFile = *accountsFile
	}
	if *monitorAddr != "" {
		cfg.Monitor.Addr = *monitorAddr
	}

	bus := logbus.New(200)
	defer bus.Close()

	sink, err := logbus.NewConsoleSink(bus, *verbose, *logFile)
	if err != nil {
		log.Fatalf("console sink: %v", err)
	}
	defer sink.Close()

	if err := run(cfg, bus, *total == 0, *inviteLink == "", *noParallel); err != nil {
		bus.Log("error", "运行失败", map[string]any{"error": err.Error()})
		sink.Close()
		os.Exit(1)
	}
}

func run(cfg config.Config, bus *logbus.Bus, askTotal, askLink, noParallel bool) error {
	rt := lifecycle.New(bus)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt.InstallSignalHandlers(cancel)

	files, err := filestore.New(cfg.Storage.AccountsFile, cfg.Storage.LinkFile)
	if err != nil {
		return err
	}

	contract := site.Default()
	link := cfg.Run.InviteLink
	if link == "" {
		link = files.LoadLink(contract.TargetURL)
	}

	reader := bufio.NewReader(os.Stdin)
	if askTotal {
		cfg.Run.Total = promptInt(reader, "注册数量", cfg.Run.Total)
	}
	if askLink {
		link = promptString(reader, "邀请链接", link)
	}
	contract = contract.WithOverrides(link, cfg.Site.InboxURL, cfg.Site.AuthDomain)
	cfg.Run.InviteLink = link
	if err := files.SaveLink(link); err != nil {
		bus.Log("warn", "邀请链接缓存失败", map[string]any{"error": err.Error()})
	}

	if existing, err := files.CountAccounts(); err == nil && existing > 0 {
		bus.Log("info", fmt.Sprintf("凭据清册已有 %d 条记录", existing), map[string]any{
			"file": cfg.Storage.AccountsFile,
		})
	}
	bus.Log("info", "本次配置", map[string]any{
		"total":      cfg.Run.Total,
		"workers":    cfg.Run.Workers,
		"maxRetries": cfg.Run.RetryBudget(),
		"headless":   cfg.Browser.HeadlessMode(),
		"invite":     link,
	})

	checker := linkcheck.New(cfg.LinkCheck, bus)
	if err := checker.Check(ctx, link); err != nil {
		return err
	}

	var store *sqlite.Store
	if cfg.Storage.SQLitePath != "" {
		store, err = sqlite.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			bus.Log("warn", "历史库打开失败，本次不记历史", map[string]any{"error": err.Error()})
			store = nil
		} else {
			defer store.Close()
		}
	}

	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.Notify.Enabled {
		n, err := notify.NewEmailNotifier(cfg.Notify, bus)
		if err != nil {
			bus.Log("warn", "通知配置无效，本次不发通知", map[string]any{"error": err.Error()})
		} else {
			notifier = n
			defer n.Close(context.Background())
		}
	}

	provider := browser.NewProvider(rt, bus, cfg.Browser.HeadlessMode())
	runner := workflow.New(workflow.Options{
		Provider: provider,
		Contract: contract,
		Timeouts: cfg.Timeouts,
		Browser:  cfg.Browser,
		Bus:      bus,
		Runtime:  rt,
	})

	eng := engine.New(engine.Options{
		Runner:   runner,
		Run:      cfg.Run,
		Limits:   cfg.Limits,
		Parallel: !noParallel,
		Bus:      bus,
		Runtime:  rt,
		Files:    files,
		Store:    store,
		Notifier: notifier,
	})

	if cfg.Monitor.Addr != "" {
		mon := monitor.New(monitor.Options{
			Bus:   bus,
			Store: store,
			State: func() any { return eng.Snapshot() },
		})
		go func() {
			if err := mon.Serve(ctx, cfg.Monitor.Addr); err != nil {
				bus.Log("warn", "观察口退出", map[string]any{"error": err.Error()})
			}
		}()
		bus.Log("info", "观察口已启动", map[string]any{"addr": cfg.Monitor.Addr})
	}

	summary, err := eng.Run(ctx)
	if err != nil {
		return err
	}

	// 收尾前确保没有残留的浏览器会话。
	rt.CloseAll()

	fmt.Println(report.Render(summary))

	return finishError(summary, rt.ShutdownRequested())
}

// finishError 决定退出状态：被动停机一律非零，哪怕停机前已有成功；
// 正常收尾时至少一个成功才算本次运行成功。
func finishError(summary model.Summary, shutdown bool) error {
	if shutdown {
		return fmt.Errorf("run aborted by shutdown request (%d of %d succeeded)", summary.Successful, summary.Total)
	}
	if summary.Successful == 0 {
		return fmt.Errorf("no account was registered")
	}
	return nil
}

func promptInt(reader *bufio.Reader, label string, def int) int {
	fmt.Printf("%s [%d]: ", label, def)
	line, err := reader.ReadString('\n')
	if err != nil {
		return def
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	n, err := strconv.Atoi(line)
	if err != nil || n <= 0 {
		fmt.Printf("输入无效，使用默认值 %d\n", def)
		return def
	}
	return n
}

func promptString(reader *bufio.Reader, label, def string) string {
	fmt.Printf("%s [%s]: ", label, def)
	line, err := reader.ReadString('\n')
	if err != nil {
		return def
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	return line
}
