package main

import (
	"context"
	"database/sql"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/vango-dev/slicestore/internal/config"
	"github.com/vango-dev/slicestore/internal/errors"
	"github.com/vango-dev/slicestore/pkg/persist"
)

// sqlDrivers maps storage drivers to registered database/sql driver names.
var sqlDrivers = map[string]string{
	config.DriverSQLite:   "sqlite",
	config.DriverPostgres: "pgx",
	config.DriverMySQL:    "mysql",
}

// dbStorage owns its database handle.
type dbStorage struct {
	*persist.SQLStorage
	db *sql.DB
}

func (s *dbStorage) Close() error {
	_ = s.SQLStorage.Close()
	return s.db.Close()
}

// openStorage opens the configured snapshot backend.
func openStorage(ctx context.Context, cfg *config.Config) (persist.Storage, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		return persist.NewMemoryStorage(), nil
	case config.DriverS3:
		client, err := newS3Client(ctx, cfg.Storage)
		if err != nil {
			return nil, errors.New("E200").WithDetail("Could not load the AWS configuration").Wrap(err)
		}
		return persist.NewS3Storage(client, cfg.Storage.Bucket, cfg.Storage.Prefix), nil
	}

	driver, ok := sqlDrivers[cfg.Storage.Driver]
	if !ok {
		return nil, errors.New("E104").WithDetail("storage.driver is " + cfg.Storage.Driver)
	}
	dialect, err := persist.ParseDialect(cfg.Storage.Driver)
	if err != nil {
		return nil, errors.New("E104").Wrap(err)
	}

	db, err := sql.Open(driver, cfg.StorageDSN())
	if err != nil {
		return nil, errors.New("E200").Wrap(err)
	}
	if dialect == persist.DialectSQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.New("E200").
			WithDetail("Could not connect to the " + cfg.Storage.Driver + " database").
			Wrap(err)
	}

	opts := []persist.SQLStorageOption{persist.WithSQLDialect(dialect)}
	if cfg.Storage.Table != "" {
		opts = append(opts, persist.WithSQLTableName(cfg.Storage.Table))
	}
	storage := persist.NewSQLStorage(db, opts...)
	if err := storage.CreateTable(ctx); err != nil {
		db.Close()
		return nil, errors.New("E200").WithDetail("Could not create the snapshot table").Wrap(err)
	}
	return &dbStorage{SQLStorage: storage, db: db}, nil
}

// newS3Client builds an S3 client from the default AWS configuration chain.
// Credentials in slicestore.json take precedence over the chain.
func newS3Client(ctx context.Context, sc config.StorageConfig) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if sc.Region != "" {
		opts = append(opts, awsconfig.WithRegion(sc.Region))
	}
	if sc.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(sc.AccessKeyID, sc.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if sc.Endpoint != "" {
			o.BaseEndpoint = aws.String(sc.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}
