package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cdpjobstats/internal/config"
	"cdpjobstats/internal/delivery"
	"cdpjobstats/internal/logger"
	"cdpjobstats/internal/mount"
	"cdpjobstats/pkg/api"
	"cdpjobstats/pkg/model"
)

// main 命令行入口：附加到浏览器页面，在职位详情旁显示申请人数与浏览量
func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	devtools := flag.String("devtools", "", "DevTools 地址，覆盖配置")
	target := flag.String("target", "", "页面目标ID，为空时附加第一个页面")
	mode := flag.String("mode", "", "采集模式 fetch|network，覆盖配置")
	level := flag.String("log-level", "", "日志级别，覆盖配置")
	list := flag.Bool("list", false, "列出可附加的页面后退出")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "加载配置失败:", err)
		os.Exit(2)
	}
	if *devtools != "" {
		cfg.DevTools.URL = *devtools
	}
	if *target != "" {
		cfg.DevTools.Target = *target
	}
	if *mode != "" {
		cfg.Capture.Mode = *mode
	}
	if *level != "" {
		cfg.Log.Level = *level
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "配置无效:", err)
		os.Exit(2)
	}

	l := logger.New(logger.Options{Level: cfg.Log.Level, Writer: cfg.Log.Writer, FilePath: cfg.Log.FilePath, MaxSize: 10, MaxAge: 7})
	if err := run(cfg, *list, l); err != nil {
		l.Err(err, "运行失败")
		os.Exit(1)
	}
}

func run(cfg *config.Config, list bool, l logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defaults := model.SessionConfig{
		DevToolsURL:       cfg.DevTools.URL,
		Target:            model.TargetID(cfg.DevTools.Target),
		Mode:              model.CaptureMode(cfg.Capture.Mode),
		APIPath:           cfg.Capture.APIPath,
		QueryParam:        cfg.Capture.QueryParam,
		Concurrency:       cfg.Capture.Concurrency,
		BodySizeThreshold: cfg.Capture.BodySizeThreshold,
		PendingCapacity:   cfg.Capture.PendingCapacity,
		ProcessTimeoutMS:  cfg.Capture.ProcessTimeoutMS,
	}
	svc := api.NewService(api.Options{
		Defaults: defaults,
		Badge: mount.Options{
			Selectors:     cfg.Badge.Selectors,
			AnchorTimeout: cfg.Badge.AnchorTimeout,
			FrameInterval: cfg.Badge.FrameInterval,
		},
		SqliteDSN:    cfg.Sqlite.Dsn,
		SqlitePrefix: cfg.Sqlite.Prefix,
	}, l)
	defer func() {
		if err := svc.Close(); err != nil {
			l.Err(err, "关闭服务失败")
		}
	}()

	if list {
		targets, err := svc.ListTargets(ctx, cfg.DevTools.URL)
		if err != nil {
			return err
		}
		for _, t := range targets {
			fmt.Printf("%s\t%s\t%s\n", t.ID, t.Title, t.URL)
		}
		return nil
	}

	attachCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	id, err := svc.StartSession(attachCtx, model.SessionConfig{})
	cancel()
	if err != nil {
		return err
	}

	responses, unsubscribe, err := svc.SubscribeResponses(id, 32)
	if err != nil {
		return err
	}
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			l.Info("收到退出信号，正在停止")
			return nil
		case r, ok := <-responses:
			if !ok {
				return nil
			}
			s := delivery.Extract(r.Data)
			fmt.Printf("%s\tjob=%s\tapplies=%s\tviews=%s\t%s\n",
				r.CapturedAt.Format(time.TimeOnly), r.EntityID, s.Applies, s.Views, r.Source)
		case ev := <-svc.SubscribeEvents():
			if ev.Type == "degraded" {
				l.Warn("采集降级", "url", ev.URL)
			}
		}
	}
}
