package scylla

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"insurego-auth/internal/config"
	"insurego-auth/internal/util"
)

// PreparedStatements holds the prepared statements the repositories bind.
type PreparedStatements struct {
	CreateCredential *gocql.Query
	GetCredential    *gocql.Query
	UpdateLastLogin  *gocql.Query

	CreateChallenge  *gocql.Query
	GetChallenges    *gocql.Query
	ConsumeChallenge *gocql.Query
}

type ScyllaClient struct {
	Session      *gocql.Session
	config       *config.ScyllaConfig
	Prepared     *PreparedStatements
	prepareMutex sync.RWMutex
	isPrepared   bool
}

func NewScyllaClient(cfg *config.Config) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.SerialConsistency = gocql.LocalSerial
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.MaxPreparedStmts = 1000
	cluster.MaxRoutingKeyInfo = 1000
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if !cfg.IsDevelopment() {
		cluster.SslOpts = &gocql.SslOptions{
			CaPath:                 util.GetEnv("SCYLLA_CA_FILE", "/root/certs/ca.pem"),
			CertPath:               util.GetEnv("SCYLLA_CERT_FILE", "/root/certs/server.pem"),
			KeyPath:                util.GetEnv("SCYLLA_KEY_FILE", "/root/certs/server.key"),
			EnableHostVerification: true,
		}
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
		config:  &scyllaConfig,
	}

	if err := client.prepareStatements(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	util.Info("ScyllaDB client initialized with prepared statements",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) prepareStatements() error {
	s.prepareMutex.Lock()
	defer s.prepareMutex.Unlock()

	if s.isPrepared {
		return nil
	}

	prepared := &PreparedStatements{}

	// IF NOT EXISTS makes registration race-safe: concurrent inserts for the
	// same identifier resolve to exactly one applied write.
	prepared.CreateCredential = s.Session.Query(`
        INSERT INTO credentials (
            identifier_hash, identifier_encrypted, identifier_key_id, identifier_dek,
            password_hash, role, created_at, last_login
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?) IF NOT EXISTS`)

	prepared.GetCredential = s.Session.Query(`
        SELECT identifier_hash, identifier_encrypted, identifier_key_id, identifier_dek,
            password_hash, role, created_at, last_login
        FROM credentials WHERE identifier_hash = ?`)

	prepared.UpdateLastLogin = s.Session.Query(`
        UPDATE credentials SET last_login = ? WHERE identifier_hash = ?`)

	prepared.CreateChallenge = s.Session.Query(`
        INSERT INTO otp_challenges (
            identifier_hash, channel, expires_at, challenge_id, code,
            contact_encrypted, contact_key_id, contact_dek, consumed, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	// Rows cluster by expires_at DESC, so the first unconsumed row is the
	// only challenge eligible for verification.
	prepared.GetChallenges = s.Session.Query(`
        SELECT identifier_hash, channel, expires_at, challenge_id, code,
            contact_encrypted, contact_key_id, contact_dek, consumed, created_at
        FROM otp_challenges WHERE identifier_hash = ? AND channel = ? LIMIT 10`)

	// Conditional update: the applied flag tells the caller whether this
	// request was the one that consumed the code.
	prepared.ConsumeChallenge = s.Session.Query(`
        UPDATE otp_challenges SET consumed = true
        WHERE identifier_hash = ? AND channel = ? AND expires_at = ? AND challenge_id = ?
        IF consumed = false`)

	s.Prepared = prepared
	s.isPrepared = true

	util.Info("ScyllaDB prepared statements created successfully")
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Query(stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...)
}

func (s *ScyllaClient) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", zap.String("cluster_name", clusterName))
	return nil
}

func (s *ScyllaClient) ExecuteWithRetry(query *gocql.Query, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if err := query.Exec(); err != nil {
			lastErr = err
			if i < maxRetries {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}

func (s *ScyllaClient) ScanWithRetry(query *gocql.Query, dest ...interface{}) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		if err := query.Scan(dest...); err != nil {
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
