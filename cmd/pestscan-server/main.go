// @title PestScan 服务端 API 文档
// @version 1.0
// @description 椰子害虫图像分类服务
// @host localhost:8000
// @BasePath /api
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"pestscan-server/internal/bootstrap"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config.yaml (defaults to $PESTSCAN_CONFIG or ./config.yaml)")
	flag.Parse()

	fmt.Printf("[%s] [INFO] [引导] 开始启动 pestscan-server %s...\n", time.Now().Format("2006-01-02 15:04:05.000"), version)
	if err := bootstrap.Run(context.Background(), bootstrap.Options{ConfigPath: *configPath, Version: version}); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "pestscan-server failed: %v\n", err)
		os.Exit(1)
	}
}
