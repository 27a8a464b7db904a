package main

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/meridian-data/crossmatch/internal/config"
	"github.com/meridian-data/crossmatch/internal/model"
	"github.com/meridian-data/crossmatch/internal/oracle"
	"github.com/meridian-data/crossmatch/internal/storage"
)

// openStorage opens (and lazily creates) the configured database.
func openStorage() (*storage.SQLiteStorage, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = "~/.local/share/crossmatch/crossmatch.db"
	}
	dbPath = config.ExpandPath(dbPath)

	db, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// thresholdsFromConfig reads the matching thresholds, with stock defaults for
// anything unset. Values are passed through unvalidated on purpose.
func thresholdsFromConfig() model.Thresholds {
	th := model.DefaultThresholds()

	if viper.IsSet("matching.vendor_min") {
		th.VendorMin = viper.GetInt("matching.vendor_min")
	}
	if viper.IsSet("matching.product_min") {
		th.ProductMin = viper.GetInt("matching.product_min")
	}
	if viper.IsSet("matching.overall_accept") {
		th.OverallAccept = viper.GetInt("matching.overall_accept")
	}
	if viper.IsSet("matching.weight_vendor") {
		th.WeightVendor = viper.GetFloat64("matching.weight_vendor")
	}
	if viper.IsSet("matching.weight_product") {
		th.WeightProduct = viper.GetFloat64("matching.weight_product")
	}
	if viper.IsSet("matching.sku_exact_boost") {
		th.SKUExactBoost = viper.GetInt("matching.sku_exact_boost")
	}
	if viper.IsSet("matching.numeric_mismatch_penalty") {
		th.NumericMismatchPenalty = viper.GetInt("matching.numeric_mismatch_penalty")
	}

	return th
}

// mappingHints reads configured column-name hints for one dataset side
// ("query" or "candidate").
func mappingHints(side string) map[model.FieldRole]string {
	hints := make(map[model.FieldRole]string)
	for _, role := range []model.FieldRole{
		model.RoleVendor, model.RoleProduct, model.RoleSKU,
		model.RoleMarket, model.RoleLanguage,
	} {
		if col := viper.GetString(fmt.Sprintf("datasets.%s.columns.%s", side, role)); col != "" {
			hints[role] = col
		}
	}
	return hints
}

// oracleConfigFromViper assembles the ranker configuration.
func oracleConfigFromViper() oracle.Config {
	return oracle.Config{
		Provider:    viper.GetString("oracle.provider"),
		APIKeys:     viper.GetStringSlice("oracle.api_keys"),
		Model:       viper.GetString("oracle.model"),
		MaxRetries:  viper.GetInt("oracle.max_retries"),
		RetryDelay:  viper.GetDuration("oracle.retry_delay"),
		CacheTTL:    viper.GetDuration("oracle.cache_ttl"),
		RateLimit:   viper.GetInt("oracle.rate_limit"),
		Temperature: viper.GetFloat64("oracle.temperature"),
		MaxTokens:   viper.GetInt("oracle.max_tokens"),
		SampleSize:  viper.GetInt("oracle.sample_size"),
	}
}

// formatDuration renders a duration for human display.
func formatDuration(d time.Duration) string {
	return d.Round(10 * time.Millisecond).String()
}
