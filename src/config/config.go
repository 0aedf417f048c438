package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"placestore/src/db"
)

const EnvPrefix = "PLACES"

// RegisterFlags adds the store flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Configuration file. Flags and PLACES_* environment variables override it.")
	fs.String("db", "./places.db", "Directory of the place database.")
	fs.Bool("in_memory", false, "Keep the database in memory only.")
	fs.String("prefix", db.DefaultPrefix, "Key prefix of all records.")
	fs.Int("limit", db.DefaultLimit, "Page size of list and result cap of nearest.")
	fs.Int("max_rating", db.DefaultMaxRating, "Highest accepted rating score.")
	fs.StringSlice("meta", nil, "Recognised meta keys, defaulted to false when unset.")
	fs.String("proximity", db.ProximityCells, "Nearest neighbor strategy: cells, scan or elastic.")
	fs.String("elastic_url", "http://localhost:9200", "Elasticsearch URL for the elastic strategy.")
	fs.String("elastic_index", db.DefaultElasticIndex, "Elasticsearch index for the elastic strategy.")
	fs.Duration("elastic_timeout", 0, "Timeout of each Elasticsearch request.")
	fs.Int64("cache_size", 0, "Record cache size in bytes, 0 disables it.")
	fs.String("log_level", "info", "Log level: debug, info, warn or error.")
}

// New returns a viper bound to fs and PLACES_* environment variables. The
// config file named by --config, if any, is read as well.
func New(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, errors.Wrap(err, "binding flags")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfg := v.GetString("config"); cfg != "" {
		v.SetConfigFile(cfg)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading config %s", cfg)
		}
	}
	return v, nil
}

// Options builds store options from v.
func Options(v *viper.Viper, log *zap.Logger) (db.Options, error) {
	meta, err := metaSchema(v.Get("meta"))
	if err != nil {
		return db.Options{}, err
	}
	return db.Options{
		Path:           v.GetString("db"),
		InMemory:       v.GetBool("in_memory"),
		Prefix:         v.GetString("prefix"),
		Limit:          v.GetInt("limit"),
		MaxRating:      v.GetInt("max_rating"),
		Meta:           meta,
		Proximity:      v.GetString("proximity"),
		ElasticURL:     v.GetString("elastic_url"),
		ElasticIndex:   v.GetString("elastic_index"),
		ElasticTimeout: v.GetDuration("elastic_timeout"),
		CacheSize:      v.GetInt64("cache_size"),
		Logger:         log,
	}, nil
}

// metaSchema accepts the keys as a list (flags, env) or as a map (config
// files). Only the keys are used.
func metaSchema(raw any) (map[string]any, error) {
	if raw == nil {
		return map[string]any{}, nil
	}
	if m, err := cast.ToStringMapE(raw); err == nil {
		return m, nil
	}
	keys, err := cast.ToStringSliceE(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "meta schema %v", raw)
	}
	m := make(map[string]any, len(keys))
	for _, k := range keys {
		for _, part := range strings.Split(k, ",") {
			if part = strings.TrimSpace(part); part != "" {
				m[part] = nil
			}
		}
	}
	return m, nil
}

// Logger builds a zap logger for the given level name.
func Logger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "log level %q", level)
	}
	cfg := zap.NewProductionConfig()
	if lvl.Level() == zap.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = lvl
	return cfg.Build()
}
