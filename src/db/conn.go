package db

import (
	"context"
	"regexp"
	"time"

	"github.com/AldoManuel/juchifood/src/config"
	"github.com/AldoManuel/juchifood/src/logging"
	"github.com/AldoManuel/juchifood/src/oops"
	"github.com/AldoManuel/juchifood/src/perf"
	"github.com/AldoManuel/juchifood/src/utils"
	zerologadapter "github.com/jackc/pgx-zerolog"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/jpillora/backoff"
)

// This interface should match both a direct pgx connection or a pgx transaction.
type ConnOrTx interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)

	// Both raw database connections and transactions in pgx can begin/commit
	// transactions. For database connections it does the obvious thing; for
	// transactions it creates a "pseudo-nested transaction" but conceptually
	// works the same. See the documentation of pgx.Tx.Begin.
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Creates a new connection to the database. Not safe for concurrent use.
func NewConn(ctx context.Context) (*pgx.Conn, error) {
	return NewConnWithConfig(ctx, config.PostgresConfig{})
}

func NewConnWithConfig(ctx context.Context, cfg config.PostgresConfig) (*pgx.Conn, error) {
	cfg = overrideDefaultConfig(cfg)

	pgcfg, err := pgx.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, oops.New(err, "invalid database config")
	}
	pgcfg.Tracer = newTracer(cfg)

	var conn *pgx.Conn
	err = retryConnect(ctx, cfg.ConnectTimeout, func() error {
		conn, err = pgx.ConnectConfig(ctx, pgcfg)
		return err
	})
	if err != nil {
		return nil, oops.New(err, "failed to connect to database")
	}

	return conn, nil
}

// Creates a connection pool for the database. The pool is safe for concurrent
// use. Waits for the database to come up, which matters when it is started
// alongside us by docker compose.
func NewConnPool(ctx context.Context) (*pgxpool.Pool, error) {
	return NewConnPoolWithConfig(ctx, config.PostgresConfig{})
}

func NewConnPoolWithConfig(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	cfg = overrideDefaultConfig(cfg)

	pgcfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, oops.New(err, "invalid database config")
	}
	pgcfg.MinConns = cfg.MinConn
	pgcfg.MaxConns = cfg.MaxConn
	pgcfg.ConnConfig.Tracer = newTracer(cfg)

	pool, err := pgxpool.NewWithConfig(ctx, pgcfg)
	if err != nil {
		return nil, oops.New(err, "failed to create database connection pool")
	}

	err = retryConnect(ctx, cfg.ConnectTimeout, func() error {
		return pool.Ping(ctx)
	})
	if err != nil {
		pool.Close()
		return nil, oops.New(err, "database never became reachable")
	}

	return pool, nil
}

func retryConnect(ctx context.Context, timeout time.Duration, attempt func() error) error {
	b := &backoff.Backoff{
		Min:    250 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 2,
		Jitter: true,
	}
	deadline := time.Now().Add(timeout)

	for {
		err := attempt()
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return err
		}

		wait := b.Duration()
		logging.ExtractLogger(ctx).Warn().Err(err).Dur("retry in", wait).Msg("database not ready")
		if sleepErr := utils.SleepContext(ctx, wait); sleepErr != nil {
			return err
		}
	}
}

func overrideDefaultConfig(cfg config.PostgresConfig) config.PostgresConfig {
	return config.PostgresConfig{
		User:           utils.OrDefault(cfg.User, config.Config.Postgres.User),
		Password:       utils.OrDefault(cfg.Password, config.Config.Postgres.Password),
		Hostname:       utils.OrDefault(cfg.Hostname, config.Config.Postgres.Hostname),
		Port:           utils.OrDefault(cfg.Port, config.Config.Postgres.Port),
		DbName:         utils.OrDefault(cfg.DbName, config.Config.Postgres.DbName),
		LogLevel:       utils.OrDefault(cfg.LogLevel, config.Config.Postgres.LogLevel),
		MinConn:        utils.OrDefault(cfg.MinConn, config.Config.Postgres.MinConn),
		MaxConn:        utils.OrDefault(cfg.MaxConn, config.Config.Postgres.MaxConn),
		ConnectTimeout: utils.OrDefault(cfg.ConnectTimeout, config.Config.Postgres.ConnectTimeout),
	}
}

func newTracer(cfg config.PostgresConfig) pgx.QueryTracer {
	return multiTracer{
		&tracelog.TraceLog{
			Logger:   zerologadapter.NewLogger(*logging.GlobalLogger()),
			LogLevel: cfg.LogLevel,
		},
		requestPerfTracer{},
	}
}

type multiTracer []pgx.QueryTracer

var _ pgx.QueryTracer = multiTracer{}

func (mt multiTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	for _, t := range mt {
		ctx = t.TraceQueryStart(ctx, conn, data)
	}
	return ctx
}

func (mt multiTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	for _, t := range mt {
		t.TraceQueryEnd(ctx, conn, data)
	}
}

var reQueryName = regexp.MustCompile("---- (.*)\n")

// Queries may be named with a leading "---- Name" comment line, which shows up
// in request perf output.
func GetQueryName(sql string) (string, bool) {
	m := reQueryName.FindStringSubmatch(sql)
	if m != nil {
		return m[1], true
	}
	return "", false
}

type perfBlockContextKey struct{}

type requestPerfTracer struct{}

var _ pgx.QueryTracer = requestPerfTracer{}

func (pt requestPerfTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	p := perf.ExtractPerf(ctx)

	name := "Unknown query"
	if n, ok := GetQueryName(data.SQL); ok {
		name = n
	}
	b := p.StartBlock("SQL", name)
	return context.WithValue(ctx, perfBlockContextKey{}, b)
}

func (pt requestPerfTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	if b, ok := ctx.Value(perfBlockContextKey{}).(*perf.BlockHandle); ok {
		b.End()
	}
}
