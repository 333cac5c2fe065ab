package scylla

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"

	"github.com/html-librarian/mig-catalog/internal/config"
	"github.com/html-librarian/mig-catalog/internal/util"
)

// PreparedStatements holds the statements used by the repositories. They are
// prepared once at startup so the hot paths never pay parse cost.
type PreparedStatements struct {
	CreateUser          *gocql.Query
	CreateEmailToUser   *gocql.Query
	GetUserByID         *gocql.Query
	GetUserByEmailHash  *gocql.Query
	ListUsers           *gocql.Query
	UpdateUser          *gocql.Query
	UpdateUserLastLogin *gocql.Query
	DeleteUser          *gocql.Query
	DeleteEmailToUser   *gocql.Query

	CreateItem *gocql.Query
	GetItem    *gocql.Query
	ListItems  *gocql.Query
	UpdateItem *gocql.Query
	DeleteItem *gocql.Query

	CreateOrder            *gocql.Query
	CreateOrderByUser      *gocql.Query
	CreateOrderItem        *gocql.Query
	GetOrder               *gocql.Query
	GetOrderItems          *gocql.Query
	ListOrdersByUser       *gocql.Query
	UpdateOrderState       *gocql.Query
	UpdateOrderStateByUser *gocql.Query

	CreateArticle *gocql.Query
	GetArticle    *gocql.Query
	ListArticles  *gocql.Query
	UpdateArticle *gocql.Query
	DeleteArticle *gocql.Query
}

type ScyllaClient struct {
	Session      *gocql.Session
	cfg          config.ScyllaConfig
	Prepared     *PreparedStatements
	prepareMutex sync.Mutex
	isPrepared   bool
}

func NewScyllaClient(cfg *config.Config) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		cfg:     scyllaConfig,
	}

	if err := client.prepareStatements(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	util.Info("ScyllaDB client initialized",
		util.Any("nodes", scyllaConfig.Nodes),
		util.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) prepareStatements() error {
	s.prepareMutex.Lock()
	defer s.prepareMutex.Unlock()

	if s.isPrepared {
		return nil
	}

	prepared := &PreparedStatements{}

	prepared.CreateUser = s.Session.Query(`
        INSERT INTO users (
            user_bucket, user_id, email_hash, email_encrypted, email_key_id,
            username, password_hash, is_active, created_at, updated_at, last_login
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.CreateEmailToUser = s.Session.Query(`
        INSERT INTO email_to_user (email_hash, user_bucket, user_id, created_at)
        VALUES (?, ?, ?, ?)`)

	prepared.GetUserByID = s.Session.Query(`
        SELECT user_bucket, user_id, email_hash, email_encrypted, email_key_id,
            username, password_hash, is_active, created_at, updated_at, last_login
        FROM users WHERE user_bucket = ? AND user_id = ?`)

	prepared.GetUserByEmailHash = s.Session.Query(`
        SELECT user_bucket, user_id FROM email_to_user WHERE email_hash = ?`)

	prepared.ListUsers = s.Session.Query(`
        SELECT user_bucket, user_id, email_hash, email_encrypted, email_key_id,
            username, password_hash, is_active, created_at, updated_at, last_login
        FROM users`)

	prepared.UpdateUser = s.Session.Query(`
        UPDATE users SET username = ?, is_active = ?, updated_at = ?
        WHERE user_bucket = ? AND user_id = ?`)

	prepared.UpdateUserLastLogin = s.Session.Query(`
        UPDATE users SET last_login = ? WHERE user_bucket = ? AND user_id = ?`)

	prepared.DeleteUser = s.Session.Query(`
        DELETE FROM users WHERE user_bucket = ? AND user_id = ?`)

	prepared.DeleteEmailToUser = s.Session.Query(`
        DELETE FROM email_to_user WHERE email_hash = ?`)

	prepared.CreateItem = s.Session.Query(`
        INSERT INTO items (item_id, name, description, price, category, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`)

	prepared.GetItem = s.Session.Query(`
        SELECT item_id, name, description, price, category, created_at, updated_at
        FROM items WHERE item_id = ?`)

	prepared.ListItems = s.Session.Query(`
        SELECT item_id, name, description, price, category, created_at, updated_at
        FROM items`)

	prepared.UpdateItem = s.Session.Query(`
        UPDATE items SET name = ?, description = ?, price = ?, category = ?, updated_at = ?
        WHERE item_id = ?`)

	prepared.DeleteItem = s.Session.Query(`
        DELETE FROM items WHERE item_id = ?`)

	prepared.CreateOrder = s.Session.Query(`
        INSERT INTO orders (order_id, user_id, total_amount, status, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?)`)

	prepared.CreateOrderByUser = s.Session.Query(`
        INSERT INTO orders_by_user (user_id, order_id, total_amount, status, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?)`)

	prepared.CreateOrderItem = s.Session.Query(`
        INSERT INTO order_items (order_id, order_item_id, item_id, quantity, price, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`)

	prepared.GetOrder = s.Session.Query(`
        SELECT order_id, user_id, total_amount, status, created_at, updated_at
        FROM orders WHERE order_id = ?`)

	prepared.GetOrderItems = s.Session.Query(`
        SELECT order_id, order_item_id, item_id, quantity, price, created_at
        FROM order_items WHERE order_id = ?`)

	prepared.ListOrdersByUser = s.Session.Query(`
        SELECT order_id, user_id, total_amount, status, created_at, updated_at
        FROM orders_by_user WHERE user_id = ?`)

	prepared.UpdateOrderState = s.Session.Query(`
        UPDATE orders SET status = ?, updated_at = ? WHERE order_id = ?`)

	prepared.UpdateOrderStateByUser = s.Session.Query(`
        UPDATE orders_by_user SET status = ?, updated_at = ?
        WHERE user_id = ? AND order_id = ?`)

	prepared.CreateArticle = s.Session.Query(`
        INSERT INTO articles (article_id, title, content, author, is_published, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`)

	prepared.GetArticle = s.Session.Query(`
        SELECT article_id, title, content, author, is_published, created_at, updated_at
        FROM articles WHERE article_id = ?`)

	prepared.ListArticles = s.Session.Query(`
        SELECT article_id, title, content, author, is_published, created_at, updated_at
        FROM articles`)

	prepared.UpdateArticle = s.Session.Query(`
        UPDATE articles SET title = ?, content = ?, is_published = ?, updated_at = ?
        WHERE article_id = ?`)

	prepared.DeleteArticle = s.Session.Query(`
        DELETE FROM articles WHERE article_id = ?`)

	s.Prepared = prepared
	s.isPrepared = true

	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Batch(typ gocql.BatchType) *gocql.Batch {
	return s.Session.NewBatch(typ)
}

func (s *ScyllaClient) ExecuteBatch(batch *gocql.Batch) error {
	return s.Session.ExecuteBatch(batch)
}

func (s *ScyllaClient) HealthCheck(ctx context.Context) error {
	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}
	return nil
}

// ScanWithRetry retries transient read failures with a short backoff.
func (s *ScyllaClient) ScanWithRetry(query *gocql.Query, dest ...interface{}) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		if err := query.Scan(dest...); err != nil {
			if err == gocql.ErrNotFound {
				return err
			}
			lastErr = err
			if i < 2 {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}
