// token 为管理接口签发 JWT
//
//	go run ./cmd/token -subject ops
package main

import (
	"flag"
	"fmt"
	"os"

	"shorturl-service/internal/config"
	auth "shorturl-service/pkg/jwt"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	subject := flag.String("subject", "admin", "令牌 subject")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "配置加载失败:", err)
		os.Exit(1)
	}
	if cfg.Auth.Secret == "" {
		fmt.Fprintln(os.Stderr, "未配置 AUTH_SECRET，管理接口未启用鉴权")
		os.Exit(1)
	}

	manager := auth.NewManager(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.ExpirationHours)
	token, err := manager.GenerateToken(*subject, auth.RoleAdmin)
	if err != nil {
		fmt.Fprintln(os.Stderr, "签发失败:", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
