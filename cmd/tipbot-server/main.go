package main

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tipbot-core/internal/event"
	"tipbot-core/internal/handler"
	"tipbot-core/internal/ledger"
	"tipbot-core/internal/model"
	"tipbot-core/internal/server"
	"tipbot-core/internal/service"
	"tipbot-core/internal/service/droptip"
	"tipbot-core/internal/service/gas"
	"tipbot-core/internal/service/mq"
	"tipbot-core/internal/service/tipping"
	"tipbot-core/internal/service/wallet"
	"tipbot-core/internal/store"
	"tipbot-core/internal/worker"
	"tipbot-core/internal/worker/tasks"
	"tipbot-core/pkg/amount"
	"tipbot-core/pkg/cache"
	"tipbot-core/pkg/config"
	"tipbot-core/pkg/database"
	"tipbot-core/pkg/keystore"
	"tipbot-core/pkg/logger"
	"tipbot-core/pkg/monitor"
	"tipbot-core/pkg/utils/lock"
	"tipbot-core/pkg/vault"

	_ "tipbot-core/docs/swagger"
)

// 模拟模式下给储备钱包的原生币，足够本地跑几千笔转账
const simulatedReserveNative = "1"

// stopFunc 让普通函数可以注册到 server.App 的关闭流程
type stopFunc func()

func (f stopFunc) Stop() { f() }

// @title Tipbot Core API
// @version 1.0
// @description Custodial tipping and droptip escrow API

// @host localhost:8080
// @BasePath /
func main() {
	// 0. 初始化 Config
	config.Init()
	cfg := config.Global

	// 1. 初始化 Logger 和监控指标
	logger.Init(cfg.App.Env)
	defer logger.Sync()
	monitor.Init()
	metrics := monitor.Business

	ctx := context.Background()

	// 2. 连接 Redis (可选)
	var rdb *redis.Client
	var locker lock.DistributedLock
	if cfg.Redis.Addr != "" {
		var err error
		rdb, err = database.ConnectRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Redis 连接失败", zap.Error(err))
		}
		defer rdb.Close()
		locker = lock.NewRedisLock(rdb)
	} else {
		logger.Info("未配置 Redis: 单实例模式，不使用分布式锁")
	}

	// 3. 消息队列
	producer := newProducer(cfg, rdb)

	// 4. 存储和事件发布
	var (
		st        store.Store
		db        *gorm.DB
		publisher event.Publisher = event.Nop{}
	)
	if cfg.DB.Driver == "memory" {
		logger.Warn("使用内存存储: 重启后数据丢失，仅用于开发")
		st = store.NewMemory()
		if producer != nil {
			publisher = service.NewDirectPublisher(producer)
		}
	} else {
		var err error
		db, err = database.Open(cfg.DB, cfg.App.Env)
		if err != nil {
			logger.Fatal("数据库连接失败", zap.Error(err))
		}
		defer database.Close(db)

		if cfg.App.Env == "development" {
			logger.Info("开发环境: 尝试自动迁移 Schema (GORM AutoMigrate)...")
			if err := db.AutoMigrate(model.AllModels()...); err != nil {
				logger.Fatal("数据库自动迁移失败", zap.Error(err))
			}
		} else {
			logger.Info("生产环境: 跳过 AutoMigrate，请使用 migrate 工具管理 Schema")
		}

		gs := store.NewGormStore(db)
		st = gs
		if producer != nil {
			publisher = gs // 写 outbox，由 relay 投递
		}
	}

	// 5. 密钥保管库和身份缓存
	v, err := openVault(cfg.Wallet)
	if err != nil {
		logger.Fatal("Vault 打开失败", zap.Error(err))
	}
	defer v.Close()

	var identityCache cache.Cache = cache.NewMemoryCache(cfg.Wallet.CacheTTL, 10*time.Minute)
	if rdb != nil {
		identityCache = cache.NewMultiLevelCache(identityCache, cache.NewRedisCache(rdb, "tipbot:"))
	}

	// 6. 托管钱包
	wallets, err := wallet.NewManager(wallet.Options{
		Store:          st,
		Vault:          v,
		Cache:          identityCache,
		CacheTTL:       cfg.Wallet.CacheTTL,
		OperatorSecret: []byte(cfg.Wallet.OperatorSecret),
		KDF:            keystore.Params{N: cfg.Wallet.ScryptN, R: 8, P: 1},
		Metrics:        metrics,
	})
	if err != nil {
		logger.Fatal("钱包管理器初始化失败", zap.Error(err))
	}
	if err := loadOperator(ctx, cfg.Wallet, wallets); err != nil {
		logger.Fatal("运营钱包加载失败", zap.Error(err))
	}

	// 7. 链
	chain, err := openLedger(ctx, cfg.Chain, wallets, locker)
	if err != nil {
		logger.Fatal("链连接失败", zap.Error(err))
	}

	journal := store.NewJournal(st)
	guard := gas.NewGuard(chain, wallets, journal, metrics)

	// 8. 到期调度
	var (
		scheduler    droptip.Scheduler = droptip.NewTimerScheduler()
		workerServer *worker.Server
	)
	if cfg.Droptip.Scheduler == "asynq" {
		if rdb == nil {
			logger.Fatal("droptip.scheduler=asynq 需要配置 redis.addr")
		}
		client := worker.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer client.Close()
		asynqScheduler := worker.NewAsynqScheduler(client)
		scheduler = asynqScheduler

		workerServer = worker.NewServer(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Worker.Concurrency)
		workerServer.Handle(tasks.TypeDroptipSettle, asynqScheduler.Handler())
	}

	// 9. 红包引擎和入口服务
	engine, err := droptip.NewEngine(droptip.Options{
		Store:            st,
		Ledger:           chain,
		Wallets:          wallets,
		Gas:              guard,
		Scheduler:        scheduler,
		Publisher:        publisher,
		Locker:           locker,
		Metrics:          metrics,
		FeeBps:           &cfg.Droptip.FeeBps,
		AllowedDurations: cfg.Droptip.AllowedDurations,
		SettleTimeout:    cfg.Droptip.SettleTimeout,
	})
	if err != nil {
		logger.Fatal("红包引擎配置错误", zap.Error(err))
	}
	svc, err := tipping.NewService(tipping.Options{
		Engine:    engine,
		Wallets:   wallets,
		Ledger:    chain,
		Gas:       guard,
		Journal:   journal,
		Publisher: publisher,
		Metrics:   metrics,
		TipFeeBps: &cfg.Droptip.TipFeeBps,
		Decimals:  cfg.Chain.TokenDecimals,
		Symbol:    cfg.Chain.TokenSymbol,
	})
	if err != nil {
		logger.Fatal("打赏服务配置错误", zap.Error(err))
	}

	// 10. 重启恢复: 先结算已经到期的红包，再开始接受请求
	if err := engine.Start(ctx); err != nil {
		logger.Fatal("红包引擎启动失败", zap.Error(err))
	}
	stoppers := []server.Stopper{engine}

	if workerServer != nil {
		if err := workerServer.Start(); err != nil {
			logger.Fatal("Worker 启动失败", zap.Error(err))
		}
		stoppers = append(stoppers, workerServer)
	}

	// 11. 消息中继 (只有 SQL 存储才有 outbox)
	if db != nil && producer != nil {
		relayCtx, cancelRelay := context.WithCancel(ctx)
		go service.NewRelayService(db, producer).Start(relayCtx)
		stoppers = append([]server.Stopper{stopFunc(cancelRelay)}, stoppers...)
	}

	// 12. 定时任务: 过期兜底扫描 + 储备余额
	cron := service.NewCronService(cfg.Droptip.SweepSchedule, engine, guard, locker, metrics)
	if err := cron.Start(); err != nil {
		logger.Fatal("定时任务启动失败", zap.Error(err))
	}
	stoppers = append(stoppers, cron)

	// 13. HTTP
	r := server.NewHTTPRouter(handler.NewTippingHandler(svc))
	app := server.New(server.Config{HttpPort: cfg.App.HttpPort}, r, stoppers...)

	// 运行 (阻塞)
	app.Run()

	if closer, ok := producer.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	logger.Info("系统已退出")
}

func newProducer(cfg config.Config, rdb *redis.Client) mq.Producer {
	switch cfg.Redis.MQType {
	case "kafka":
		logger.Info("使用 Kafka 作为消息队列...", zap.Strings("brokers", cfg.Kafka.Brokers))
		return mq.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	case "redis":
		if rdb == nil {
			logger.Fatal("redis.mq_type=redis 需要配置 redis.addr")
		}
		logger.Info("使用 Redis Streams 作为消息队列...")
		return mq.NewRedisProducer(rdb)
	default:
		logger.Info("未启用消息队列，事件不对外发布")
		return nil
	}
}

func openVault(cfg config.WalletConfig) (vault.Vault, error) {
	if cfg.VaultDriver == "file" {
		return vault.OpenFile(cfg.VaultPath)
	}
	return vault.OpenBolt(cfg.VaultPath)
}

// loadOperator 从 keystore 导入运营钱包；没有配置时托管和储备地址在第一次使用时随机生成
func loadOperator(ctx context.Context, cfg config.WalletConfig, wallets *wallet.Manager) error {
	if cfg.KeystorePath == "" {
		logger.Warn("未配置 wallet.keystore_path，运营钱包将随机生成，请勿在生产环境使用")
		return nil
	}
	keyJSON, err := keystore.LoadFromFile(cfg.KeystorePath)
	if err != nil {
		return err
	}
	mnemonic, err := keystore.DecryptMnemonic(keyJSON, cfg.Password)
	if err != nil {
		return err
	}
	return wallets.ImportOperator(ctx, mnemonic)
}

func openLedger(ctx context.Context, cfg config.ChainConfig, wallets *wallet.Manager, locker lock.DistributedLock) (ledger.Ledger, error) {
	if cfg.RpcUrl != "" {
		return ledger.DialEth(ctx, cfg.RpcUrl, ledger.EthConfig{
			TokenAddress:   common.HexToAddress(cfg.TokenAddress),
			ChainID:        big.NewInt(cfg.ChainID),
			ConfirmTimeout: cfg.ConfirmTimeout,
			PollInterval:   cfg.PollInterval,
			Locker:         locker,
		})
	}

	logger.Warn("未配置 chain.rpc_url: 运行在模拟模式，余额只存在于内存")
	sim := ledger.NewSimulated()
	reserve, err := wallets.Address(ctx, wallet.ReserveUserID)
	if err != nil {
		return nil, err
	}
	native, err := amount.Parse(simulatedReserveNative, 18)
	if err != nil {
		return nil, err
	}
	sim.MintNative(reserve, native)
	return sim, nil
}
