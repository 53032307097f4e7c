package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootCmd 代表基础命令，没有子命令时直接调用
var rootCmd = &cobra.Command{
	Use:   "tipbot-cli",
	Short: "tipbot 运维命令行工具",
	Long: `管理 tipbot 运营钱包 (托管钱包 + gas 储备钱包) 的命令行工具。
支持生成运营方助记词 Keystore、查看派生地址以及跟踪 Redis Streams 上的业务事件。`,
}

// Execute 将所有子命令添加到根命令并设置标志
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("keystore", "k", "operator.keystore.json", "运营方助记词 Keystore 文件")
	rootCmd.PersistentFlags().String("password", "", "Keystore 密码，为空时从终端读取")
}
