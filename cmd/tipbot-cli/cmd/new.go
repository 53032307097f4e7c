package cmd

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"tipbot-core/internal/service/wallet"
	"tipbot-core/pkg/bip39"
	"tipbot-core/pkg/keystore"
)

// newCmd 代表 new 命令
var newCmd = &cobra.Command{
	Use:   "new",
	Short: "生成运营方助记词 Keystore",
	Long: `生成一个新的随机 BIP-39 助记词，用 scrypt 加密写入 Keystore 文件，
并显示派生出的托管钱包 (m/44'/60'/0'/0/0) 和 gas 储备钱包 (m/44'/60'/0'/0/1) 地址。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("keystore")
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s 已存在，使用 --force 覆盖", path)
		}

		// 1. 生成助记词
		mnemonic, err := bip39.NewMnemonicService().GenerateMnemonic(256) // 24 words
		if err != nil {
			return fmt.Errorf("生成助记词失败: %w", err)
		}

		// 2. 加密保存
		password, err := readPassword(cmd, "请输入 Keystore 密码: ")
		if err != nil {
			return err
		}
		if pw, _ := cmd.Flags().GetString("password"); pw == "" {
			confirm, err := readPassword(cmd, "请再次输入密码: ")
			if err != nil {
				return err
			}
			if confirm != password {
				return fmt.Errorf("两次输入的密码不一致")
			}
		}
		keyJSON, err := keystore.EncryptMnemonic(mnemonic, password)
		if err != nil {
			return fmt.Errorf("加密失败: %w", err)
		}
		if err := keyJSON.SaveToFile(path); err != nil {
			return fmt.Errorf("写入 Keystore 失败: %w", err)
		}

		fmt.Println("---------------------------------------------------")
		fmt.Printf("助记词 (Mnemonic): \n%s\n", mnemonic)
		fmt.Println("---------------------------------------------------")
		if err := printAddresses(mnemonic); err != nil {
			return err
		}
		fmt.Printf("Keystore 已写入 %s\n", path)
		fmt.Println("请离线备份助记词！拥有助记词的人可以控制托管钱包中所有未结算的红包资金。")
		return nil
	},
}

func printAddresses(mnemonic string) error {
	keys, err := wallet.DeriveOperatorKeys(mnemonic)
	if err != nil {
		return fmt.Errorf("派生运营钱包失败: %w", err)
	}
	defer keys.Wipe()

	fmt.Printf("托管钱包 (Escrow)  [%d]: %s\n", wallet.EscrowIndex, crypto.PubkeyToAddress(keys.Escrow.PublicKey).Hex())
	fmt.Printf("储备钱包 (Reserve) [%d]: %s\n", wallet.ReserveIndex, crypto.PubkeyToAddress(keys.Reserve.PublicKey).Hex())
	fmt.Println("---------------------------------------------------")
	return nil
}

func init() {
	newCmd.Flags().Bool("force", false, "覆盖已存在的 Keystore")
	rootCmd.AddCommand(newCmd)
}
