package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"tipbot-core/pkg/keystore"
)

var addressesCmd = &cobra.Command{
	Use:   "addresses",
	Short: "显示 Keystore 派生的运营钱包地址",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("keystore")
		keyJSON, err := keystore.LoadFromFile(path)
		if err != nil {
			return fmt.Errorf("加载 Keystore 失败: %w", err)
		}
		password, err := readPassword(cmd, "请输入 Keystore 密码: ")
		if err != nil {
			return err
		}
		mnemonic, err := keystore.DecryptMnemonic(keyJSON, password)
		if err != nil {
			return fmt.Errorf("解密失败 (密码错误?): %w", err)
		}
		return printAddresses(mnemonic)
	},
}

func init() {
	rootCmd.AddCommand(addressesCmd)
}
