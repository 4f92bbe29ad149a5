package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fachebot/meeting-brief/internal/config"
	"github.com/fachebot/meeting-brief/internal/logger"
	"github.com/fachebot/meeting-brief/internal/scheduler"
	"github.com/fachebot/meeting-brief/internal/svc"
	"github.com/fachebot/meeting-brief/internal/web"
)

var configFile = flag.String("f", "etc/config.yaml", "the config file")

func main() {
	flag.Parse()

	// 读取配置文件
	c, err := config.LoadFromFile(*configFile)
	if err != nil {
		logger.Fatalf("读取配置文件失败, %s", err)
	}

	// 初始化日志
	if err := logger.Setup(c.Log); err != nil {
		logger.Fatalf("初始化日志失败, %s", err)
	}

	// 创建服务上下文
	svcCtx := svc.NewServiceContext(c)

	// 创建并启动调度器
	schedulerInstance := scheduler.NewScheduler(svcCtx.BriefModel, svcCtx.UsageModel, &c.Retention)
	if err := schedulerInstance.Start(); err != nil {
		logger.Fatalf("[Scheduler] 启动调度器失败: %s", err)
	}

	// 启动HTTP服务
	server := &http.Server{
		Addr:              c.Server.ListenAddr(),
		Handler:           web.NewServer(svcCtx).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// 生成简报可能需要数分钟
		WriteTimeout: time.Duration(c.LLM.TimeoutSeconds+60) * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		logger.Infof("[Web] 服务已启动, 监听 %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("[Web] 服务异常退出: %s", err)
		}
	}()

	// 等待程序退出
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	// 优雅关闭
	logger.Infof("正在关闭服务...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("[Web] 关闭失败, %v", err)
	}
	schedulerInstance.Stop()
	svcCtx.Close()
	logger.Infof("服务已停止")
}
