package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"tipbot-core/internal/event"
	"tipbot-core/internal/service/mq"
	"tipbot-core/pkg/config"
	"tipbot-core/pkg/database"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "跟踪 Redis Streams 上的业务事件",
	Long:  `以消费者组的方式订阅 tipbot 事件流并逐条打印，用于排查 relay 投递。需要 redis.mq_type=redis。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(".", "./config")
		if err != nil {
			return err
		}
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("未配置 redis.addr")
		}
		group, _ := cmd.Flags().GetString("group")
		topics, _ := cmd.Flags().GetStringSlice("topic")

		rdb, err := database.ConnectRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		host, _ := os.Hostname()
		consumer := mq.NewRedisConsumer(rdb, group, "cli-"+host)
		defer consumer.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		g, ctx := errgroup.WithContext(ctx)
		for _, topic := range topics {
			g.Go(func() error {
				return consumer.Subscribe(ctx, topic, func(msg *mq.Message) error {
					fmt.Printf("[%s] %s key=%s %s\n", msg.ID, msg.Topic, msg.Key, msg.Payload)
					return nil
				})
			})
		}
		return g.Wait()
	},
}

func init() {
	eventsCmd.Flags().String("group", "tipbot_cli", "消费者组")
	eventsCmd.Flags().StringSlice("topic", []string{
		event.TopicDroptipCreated,
		event.TopicDroptipClaimed,
		event.TopicDroptipSettled,
		event.TopicTipCreated,
	}, "订阅的主题")
	rootCmd.AddCommand(eventsCmd)
}
