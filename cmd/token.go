package cmd

import (
	"fmt"
	"time"

	"songcatalog/config"
	"songcatalog/core/auth"

	"github.com/spf13/cobra"
)

var (
	tokenUser string
	tokenTTL  time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "签发管理员令牌",
	Long:  `使用 JWT_SECRET 为管理员签发访问令牌，用于脚本调用后台接口。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if cfg.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET 未配置")
		}
		if tokenUser == "" {
			return fmt.Errorf("--user 不能为空")
		}
		if _, ok := cfg.AdminUsers[tokenUser]; !ok {
			fmt.Fprintf(cmd.ErrOrStderr(), "警告: %s 不在 ADMIN_USERS 中，后台接口会拒绝该令牌\n", tokenUser)
		}

		ttl := tokenTTL
		if ttl <= 0 {
			ttl = cfg.JWTTTL
		}
		token, expiresAt, err := auth.NewTokenIssuer(cfg.JWTSecret, ttl).GenerateToken(tokenUser)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format(time.RFC3339))
		return nil
	},
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password <password>",
	Short: "生成 ADMIN_USERS 使用的 bcrypt 哈希",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := auth.HashPassword(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVarP(&tokenUser, "user", "u", defaultActor(), "管理员用户名")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "有效期，默认使用 JWT_TTL")
	rootCmd.AddCommand(tokenCmd, hashPasswordCmd)
}
