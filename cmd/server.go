package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"songcatalog/core/auth"
	"songcatalog/core/catalog"
	"songcatalog/core/feed"
	"songcatalog/core/library"
	"songcatalog/core/media"
	"songcatalog/core/player"
	"songcatalog/core/release"
	"songcatalog/logger"
	"songcatalog/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动目录服务",
	Long:  `启动歌曲目录的 HTTP 服务，提供公共播放接口和后台可用性管理接口`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := bootstrap(ctx, true, true)
		if err != nil {
			return err
		}
		defer a.Close()
		cfg := a.cfg

		hub := feed.NewHub()
		go hub.Run()
		defer hub.Stop()

		metrics := server.NewMetrics(hub.ClientCount)
		catalogSvc := catalog.NewService(a.repo, hub, metrics)
		if cfg.ReleaseAPIURL != "" {
			catalogSvc.SetReleaseDates(release.NewClient(cfg.ReleaseAPIURL))
			logger.Info("[Server] 发行日期补全已启用", logger.String("url", cfg.ReleaseAPIURL))
		}

		processor := media.NewFFmpegProcessor(cfg.FFmpegPath)
		lib := library.NewService(a.repo, a.store, processor,
			media.NewHLSPipeline(processor, a.store, cfg.HLSWorkers),
			library.Options{SegmentTime: cfg.HLSSegmentTime})

		handler := server.NewAPIHandler(server.Deps{
			Catalog:         catalogSvc,
			Library:         lib,
			Player:          player.NewService(a.repo, a.store),
			Tokens:          auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL),
			Feed:            hub,
			Metrics:         metrics,
			Admins:          cfg.AdminUsers,
			LoginRatePerMin: cfg.LoginRatePerMin,
			MaxUploadMB:     cfg.MaxUploadMB,
		})
		if len(cfg.AdminUsers) == 0 {
			logger.Warn("[Server] 未配置 ADMIN_USERS，后台接口无法登录")
		}
		return server.Serve(ctx, cfg.ServerAddr, handler.Router())
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
