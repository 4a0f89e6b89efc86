package main

import (
	"Tradelink/internal/api/config"
	"Tradelink/internal/model"
	"Tradelink/internal/pkg/redis"
	"Tradelink/internal/pkg/security"
	"context"
	"flag"
	"fmt"
	"os"
)

// 联调用的 Token 工具：签发或注销，正式环境的 Token 由官网登录服务签发
func main() {
	id := flag.String("id", "", "user id")
	name := flag.String("name", "", "display name")
	email := flag.String("email", "", "email")
	role := flag.String("role", string(model.RoleCustomer), "customer | admin")
	revoke := flag.String("revoke", "", "token to revoke")
	flag.Parse()

	if err := config.LoadConfig(); err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	if *revoke != "" {
		if err := redis.InitRedis(config.Cfg.Redis); err != nil {
			fmt.Fprintln(os.Stderr, "connect redis:", err)
			os.Exit(1)
		}
		if err := security.Revoke(context.Background(), *revoke); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println("revoked")
		return
	}

	token, err := security.GenerateToken(&model.Identity{
		ID:          *id,
		DisplayName: *name,
		Email:       *email,
		Role:        model.Role(*role),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(token)
}
