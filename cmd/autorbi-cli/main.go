package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"autorbi/internal/auth"
	"autorbi/internal/config"
	"autorbi/internal/models"
	"autorbi/pkg/autorbiclient"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	app := &cli.App{
		Name:  "autorbi-cli",
		Usage: "AutoRBI 运维命令行",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "server", Value: "http://localhost:8000", EnvVars: []string{"AUTORBI_SERVER"}, Usage: "API 地址"},
			&cli.StringFlag{Name: "token", EnvVars: []string{"AUTORBI_TOKEN"}, Usage: "访问令牌"},
			&cli.BoolFlag{Name: "verbose", Usage: "输出调试日志"},
		},
		Commands: []*cli.Command{
			watchCommand(),
			tokenCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "跟踪一个或多个提取任务，输出汇总进度",
		Flags: []cli.Flag{
			&cli.IntSliceFlag{Name: "id", Required: true, Usage: "提取任务 ID，可重复"},
			&cli.DurationFlag{Name: "interval", Value: 3 * time.Second, Usage: "轮询间隔"},
		},
		Action: func(c *cli.Context) error {
			var ids []uint
			for _, id := range c.IntSlice("id") {
				if id <= 0 {
					return cli.Exit(fmt.Sprintf("无效的任务 ID: %d", id), 2)
				}
				ids = append(ids, uint(id))
			}

			log := zap.NewNop()
			if c.Bool("verbose") {
				dev, err := zap.NewDevelopment()
				if err != nil {
					return err
				}
				log = dev
			}
			defer log.Sync()

			client := autorbiclient.NewClient(c.String("server"),
				autorbiclient.WithToken(c.String("token")),
				autorbiclient.WithRetries(2),
			)
			tracker := autorbiclient.NewTracker(client, log)

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			snap, err := tracker.Watch(ctx, ids, c.Duration("interval"), func(s autorbiclient.Snapshot) {
				fmt.Fprintf(c.App.Writer, "\r%5.1f%%  %d/%d 页", s.Percent, s.ProcessedPages, s.TotalPages)
			})
			fmt.Fprintln(c.App.Writer)
			if err != nil {
				return err
			}

			failed := 0
			for _, id := range ids {
				s := snap.Statuses[id]
				fmt.Fprintf(c.App.Writer, "#%d %-10s %s\n", id, s.Status, s.ErrorMessage)
				if s.Status == string(models.ExtractionFailed) {
					failed++
				}
			}
			if failed > 0 {
				return cli.Exit(fmt.Sprintf("%d 个任务失败", failed), 1)
			}
			return nil
		},
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "使用配置中的密钥签发开发用访问令牌",
		Flags: []cli.Flag{
			&cli.UintFlag{Name: "user-id", Required: true, Usage: "用户 ID"},
			&cli.StringFlag{Name: "role", Value: string(models.UserRoleEngineer), Usage: "Engineer 或 Admin"},
			&cli.StringFlag{Name: "env", Value: "dev", EnvVars: []string{"APP_ENV"}, Usage: "配置环境 dev/prod/test"},
			&cli.StringFlag{Name: "config", EnvVars: []string{"APP_CONFIG"}, Usage: "配置文件路径"},
		},
		Action: func(c *cli.Context) error {
			role := models.UserRole(c.String("role"))
			if role != models.UserRoleEngineer && role != models.UserRoleAdmin {
				return cli.Exit(fmt.Sprintf("无效的角色: %s", role), 2)
			}

			cfg, err := config.Load(c.String("env"), c.String("config"))
			if err != nil {
				return err
			}
			secret, _ := cfg.SigningSecret()
			ttl := time.Duration(cfg.Auth.TokenTTL) * time.Second
			token, err := auth.NewJWTService(secret, cfg.Auth.Issuer, ttl).Issue(c.Uint("user-id"), role)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, token)
			return nil
		},
	}
}
