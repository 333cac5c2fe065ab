package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"

	"github.com/html-librarian/mig-catalog/internal/bucketing"
	"github.com/html-librarian/mig-catalog/internal/client"
	"github.com/html-librarian/mig-catalog/internal/config"
	"github.com/html-librarian/mig-catalog/internal/encryption"
	"github.com/html-librarian/mig-catalog/internal/hashing"
	"github.com/html-librarian/mig-catalog/internal/ratelimit"
	redisrepo "github.com/html-librarian/mig-catalog/internal/repository/redis"
	"github.com/html-librarian/mig-catalog/internal/repository/scylla"
	"github.com/html-librarian/mig-catalog/internal/security"
	"github.com/html-librarian/mig-catalog/internal/service"
	"github.com/html-librarian/mig-catalog/internal/token"
	"github.com/html-librarian/mig-catalog/internal/util"
)

// Factory wires every application dependency and owns their lifecycle.
// In development a missing backing service degrades with a warning; in
// production any failed client is fatal.
type Factory struct {
	config *config.Config

	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	hasher            *hashing.Hasher
	encryptionManager *encryption.Manager
	bucketingManager  *bucketing.Manager
	tokenService      *token.Service
	securityManager   *security.Manager
	rateLimiter       *ratelimit.Limiter

	cache          *redisrepo.Cache
	userRepo       *scylla.UserRepository
	itemRepo       *scylla.ItemRepository
	orderRepo      *scylla.OrderRepository
	articleRepo    *scylla.ArticleRepository
	auditService   *service.AuditService
	authService    *service.AuthService
	userService    *service.UserService
	itemService    *service.ItemService
	orderService   *service.OrderService
	articleService *service.ArticleService

	closeOnce sync.Once
}

// New builds the full dependency graph from configuration.
func New(cfg *config.Config) (*Factory, error) {
	f := &Factory{config: cfg}

	if err := f.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	if err := f.initializeManagers(); err != nil {
		return nil, fmt.Errorf("failed to initialize managers: %w", err)
	}

	f.initializeServices()

	util.Info("factory initialized",
		util.String("environment", cfg.Environment),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
		util.Bool("cache_enabled", cfg.Cache.Enabled),
	)

	return f, nil
}

func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	if redisClient, err := client.NewRedisClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
	} else {
		f.redisClient = redisClient
		util.Info("Redis client initialized")
	}

	if scyllaClient, err := scylla.NewScyllaClient(f.config); err != nil {
		initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
	} else {
		f.scyllaClient = scyllaClient
		if err := f.scyllaClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla health check: %w", err))
		}
	}

	// Kafka is best effort everywhere: orders still work without events.
	if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
		util.Warn("Kafka producer initialization failed, continuing without events", util.ErrorField(err))
	} else {
		f.kafkaProducer = producer
		util.Info("Kafka producer initialized")
	}

	if esClient, err := client.NewElasticsearchClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
	} else {
		f.esClient = esClient
		util.Info("Elasticsearch client initialized")
	}

	if chClient, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
	} else {
		f.clickhouseClient = chClient
		util.Info("ClickHouse client initialized")
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("client initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("client initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

func (f *Factory) initializeManagers() error {
	f.hasher = hashing.NewHasher(hashing.DefaultParams)
	f.bucketingManager = bucketing.NewManager(f.config.Bucketing)

	var kmsClient *kms.Client
	if f.config.KMS.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(f.config.KMS.Region))
		if err != nil {
			return fmt.Errorf("failed to load AWS config: %w", err)
		}
		kmsClient = kms.NewFromConfig(awsCfg)
	}
	f.encryptionManager = encryption.NewManager(f.config.KMS, kmsClient, util.Get())

	tokenService, err := token.NewService(f.config.Auth, util.Get())
	if err != nil {
		return err
	}
	f.tokenService = tokenService

	f.auditService = service.NewAuditService(f.clickhouseClient, f.bucketingManager, util.Get())
	f.securityManager = security.NewManager(f.config.Security, util.Get(), f.auditService)

	var store ratelimit.Store
	if f.redisClient != nil {
		store = f.redisClient
	}
	f.rateLimiter = ratelimit.NewLimiter(f.config.RateLimit, store, util.Get())

	return nil
}

func (f *Factory) initializeServices() {
	f.cache = redisrepo.NewCache(f.redisClient, f.config.Cache, util.Get())

	f.userRepo = scylla.NewUserRepository(f.scyllaClient)
	f.itemRepo = scylla.NewItemRepository(f.scyllaClient)
	f.orderRepo = scylla.NewOrderRepository(f.scyllaClient)
	f.articleRepo = scylla.NewArticleRepository(f.scyllaClient)

	f.authService = service.NewAuthService(
		f.userRepo, f.hasher, f.encryptionManager, f.bucketingManager,
		f.tokenService, f.securityManager, f.config.Auth.AccessTokenTTL, util.Get())

	f.userService = service.NewUserService(
		f.userRepo, f.encryptionManager, f.bucketingManager, util.Get())

	f.itemService = service.NewItemService(
		f.itemRepo, f.cache, f.esClient, f.config.Elasticsearch.ItemIndex, util.Get())

	f.orderService = service.NewOrderService(
		f.orderRepo, f.itemRepo, f.kafkaProducer, f.config.Kafka.OrderTopic, util.Get())

	f.articleService = service.NewArticleService(f.articleRepo, f.cache, util.Get())
}

// HealthChecks returns one probe per backing service for the detailed
// health endpoint.
func (f *Factory) HealthChecks() map[string]func(context.Context) error {
	checks := make(map[string]func(context.Context) error)

	checks["redis"] = func(ctx context.Context) error {
		if f.redisClient == nil {
			return fmt.Errorf("redis client not initialized")
		}
		return f.redisClient.HealthCheck(ctx)
	}
	checks["scylla"] = func(ctx context.Context) error {
		if f.scyllaClient == nil {
			return fmt.Errorf("scylla client not initialized")
		}
		return f.scyllaClient.HealthCheck(ctx)
	}
	checks["elasticsearch"] = func(ctx context.Context) error {
		if f.esClient == nil {
			return fmt.Errorf("elasticsearch client not initialized")
		}
		return f.esClient.HealthCheck()
	}
	checks["clickhouse"] = func(ctx context.Context) error {
		if f.clickhouseClient == nil {
			return fmt.Errorf("clickhouse client not initialized")
		}
		return f.clickhouseClient.HealthCheck(ctx)
	}
	checks["kafka"] = func(ctx context.Context) error {
		if f.kafkaProducer == nil {
			return fmt.Errorf("kafka producer not initialized")
		}
		return f.kafkaProducer.HealthCheck(ctx)
	}

	return checks
}

// Close shuts every client down in reverse dependency order.
func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		util.Info("shutting down factory")

		if f.auditService != nil {
			f.auditService.Close()
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("failed to close Kafka producer", util.ErrorField(err))
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
		}

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("failed to close ClickHouse client", util.ErrorField(err))
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("failed to close Redis client", util.ErrorField(err))
			}
		}

		if f.encryptionManager != nil {
			f.encryptionManager.ClearCache()
		}

		util.Info("factory shutdown completed")
	})

	return nil
}

func (f *Factory) Config() *config.Config { return f.config }

func (f *Factory) TokenService() *token.Service { return f.tokenService }

func (f *Factory) SecurityManager() *security.Manager { return f.securityManager }

func (f *Factory) RateLimiter() *ratelimit.Limiter { return f.rateLimiter }

func (f *Factory) AuditService() *service.AuditService { return f.auditService }

func (f *Factory) AuthService() *service.AuthService { return f.authService }

func (f *Factory) UserService() *service.UserService { return f.userService }

func (f *Factory) ItemService() *service.ItemService { return f.itemService }

func (f *Factory) OrderService() *service.OrderService { return f.orderService }

func (f *Factory) ArticleService() *service.ArticleService { return f.articleService }
