package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// scannerYAML mirrors the structure of scanner.yaml. Every field is a
// pointer or zero-valued so that a partially-specified file only
// overrides the keys it actually sets, leaving env-derived defaults in
// place for the rest.
type scannerYAML struct {
	Scanner struct {
		ProbThreshold *float64 `yaml:"prob_threshold"`
		Metrics       struct {
			VSR           *float64 `yaml:"vsr"`
			PM            *float64 `yaml:"pm"`
			OBI           *float64 `yaml:"obi"`
			Spread        *float64 `yaml:"spread"`
			ListingAgeMin *float64 `yaml:"listing_age_min"`
		} `yaml:"metrics"`
	} `yaml:"scanner"`

	Subscriptions struct {
		TopN             *int     `yaml:"top_n"`
		LRUTTLSec        *float64 `yaml:"lru_ttl_sec"`
		PollInterval     *float64 `yaml:"poll_interval"`
		RequoteCooldown  *float64 `yaml:"requote_cooldown_sec"`
	} `yaml:"subscriptions"`

	Scout struct {
		MinQuoteVolUSD *float64 `yaml:"min_quote_vol_usd"`
		TopN           *int     `yaml:"top_n"`
		QuoteSuffix    *string  `yaml:"quote_suffix"`
	} `yaml:"scout"`

	WS struct {
		MaxStreamsPerConn *int `yaml:"max_streams_per_conn"`
		MaxMsgPerSec      *int `yaml:"max_msg_per_sec"`
	} `yaml:"ws"`
}

// ApplyYAML overlays the file at path onto cfg, replacing only the keys
// the file sets. A missing file is not an error — the env-derived
// defaults already populated on cfg stand as-is, matching the teacher's
// "sensible defaults when config file not found" behavior.
func ApplyYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var y scannerYAML
	if err := yaml.Unmarshal(data, &y); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	if y.Scanner.ProbThreshold != nil {
		cfg.Scanner.ProbThreshold = *y.Scanner.ProbThreshold
	}
	if y.Scanner.Metrics.VSR != nil {
		cfg.Scanner.Metrics.VSR = *y.Scanner.Metrics.VSR
	}
	if y.Scanner.Metrics.PM != nil {
		cfg.Scanner.Metrics.PM = *y.Scanner.Metrics.PM
	}
	if y.Scanner.Metrics.OBI != nil {
		cfg.Scanner.Metrics.OBI = *y.Scanner.Metrics.OBI
	}
	if y.Scanner.Metrics.Spread != nil {
		cfg.Scanner.Metrics.Spread = *y.Scanner.Metrics.Spread
	}
	if y.Scanner.Metrics.ListingAgeMin != nil {
		cfg.Scanner.Metrics.ListingAgeMin = *y.Scanner.Metrics.ListingAgeMin
	}

	if y.Subscriptions.TopN != nil {
		cfg.Subscriptions.TopN = *y.Subscriptions.TopN
	}
	if y.Subscriptions.LRUTTLSec != nil {
		cfg.Subscriptions.LRUTTLSec = *y.Subscriptions.LRUTTLSec
	}
	if y.Subscriptions.PollInterval != nil {
		cfg.Subscriptions.PollInterval = *y.Subscriptions.PollInterval
	}
	if y.Subscriptions.RequoteCooldown != nil {
		cfg.Subscriptions.RequoteCooldownSec = *y.Subscriptions.RequoteCooldown
	}

	if y.Scout.MinQuoteVolUSD != nil {
		cfg.Scout.MinQuoteVolUSD = *y.Scout.MinQuoteVolUSD
	}
	if y.Scout.TopN != nil {
		cfg.Scout.TopN = *y.Scout.TopN
	}
	if y.Scout.QuoteSuffix != nil {
		cfg.Scout.QuoteSuffix = *y.Scout.QuoteSuffix
	}

	if y.WS.MaxStreamsPerConn != nil {
		cfg.WS.MaxStreamsPerConn = *y.WS.MaxStreamsPerConn
	}
	if y.WS.MaxMsgPerSec != nil {
		cfg.WS.MaxMsgPerSec = *y.WS.MaxMsgPerSec
	}

	return nil
}
