package sdk

import (
	"context"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"

	"github.com/celerix-dev/celerix-market/internal/engine"
)

// Env holds the environment that decides between remote and embedded mode.
// Variables carry the CELERIX_ prefix, e.g. CELERIX_STORE_ADDR.
type Env struct {
	StoreAddr  string `envconfig:"STORE_ADDR"`
	DisableTLS bool   `envconfig:"DISABLE_TLS" default:"false"`
	DataDir    string `envconfig:"DATA_DIR" default:"./data"`
}

// LoadEnv reads the discovery environment.
func LoadEnv() (Env, error) {
	var e Env
	return e, envconfig.Process("CELERIX", &e)
}

// New returns a Ledger chosen from the environment: a remote client when
// CELERIX_STORE_ADDR is set and reachable, otherwise an embedded ledger
// journaling to CELERIX_DATA_DIR.
func New(ctx context.Context, log zerolog.Logger) (Ledger, error) {
	env, err := LoadEnv()
	if err != nil {
		return nil, err
	}
	return NewFromEnv(ctx, env, log)
}

// NewFromEnv is New with an explicit environment.
func NewFromEnv(ctx context.Context, env Env, log zerolog.Logger) (Ledger, error) {
	if env.StoreAddr != "" {
		opts := []ClientOption{WithClientLogger(log)}
		if env.DisableTLS {
			opts = append(opts, WithoutTLS())
		}
		client, err := Connect(ctx, env.StoreAddr, opts...)
		if err == nil {
			return client, nil
		}
		log.Warn().Err(err).Str("addr", env.StoreAddr).Msg("remote ledger unreachable, falling back to embedded mode")
	}

	j, err := engine.NewFileJournal(env.DataDir, log)
	if err != nil {
		return nil, err
	}
	l, err := engine.Open(ctx, j, engine.WithLogger(log))
	if err != nil {
		j.Close()
		return nil, err
	}
	return l, nil
}

var (
	_ Ledger = (*Client)(nil)
	_ Ledger = (*engine.MemLedger)(nil)
)
