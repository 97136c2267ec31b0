// Package config centralises runtime configuration for the strategy engine.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/coachpo/prosperity/internal/numeric"
	"github.com/coachpo/prosperity/internal/schema"
)

// Environment identifies the runtime environment.
type Environment string

const (
	// EnvDev marks local development runs.
	EnvDev Environment = "dev"
	// EnvBacktest marks offline replays.
	EnvBacktest Environment = "backtest"
	// EnvProd marks runs inside the host simulation.
	EnvProd Environment = "prod"
)

// LogSettings configures the structured logger.
type LogSettings struct {
	Level string `yaml:"level"`
}

// TelemetrySettings configures the OTLP metric exporter used by replays.
type TelemetrySettings struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlpEndpoint"`
	ServiceName  string `yaml:"serviceName"`
}

// RiskSettings configures the session risk filter.
type RiskSettings struct {
	EnforcePositionLimits bool    `yaml:"enforcePositionLimits"`
	OrderThrottle         float64 `yaml:"orderThrottle"`
	OrderBurst            int     `yaml:"orderBurst"`
}

// ProductSettings describes one instrument.
type ProductSettings struct {
	MaxPosition    int              `yaml:"maxPosition"`
	ReferencePrice decimal.Decimal  `yaml:"referencePrice"`
	Rounding       numeric.Rounding `yaml:"rounding"`
}

// FairValueSettings binds a fair-value strategy to a product.
type FairValueSettings struct {
	Product schema.Symbol `yaml:"product"`
	Price   int           `yaml:"price"`
}

// MovingAverageSettings binds a moving-average crossover strategy to a product.
type MovingAverageSettings struct {
	Product     schema.Symbol   `yaml:"product"`
	LongWindow  int             `yaml:"longWindow"`
	ShortWindow int             `yaml:"shortWindow"`
	UnitSize    int             `yaml:"unitSize"`
	Seed        decimal.Decimal `yaml:"seed"`
}

// LegSettings declares one leg of a relative-value group.
type LegSettings struct {
	Product schema.Symbol `yaml:"product"`
	Trade   bool          `yaml:"trade"`
}

// RelativeValueSettings declares a relative-value group.
type RelativeValueSettings struct {
	Name        string        `yaml:"name"`
	Target      LegSettings   `yaml:"target"`
	Basket      []LegSettings `yaml:"basket"`
	Aggregation string        `yaml:"aggregation"`
	TradeFactor string        `yaml:"tradeFactor"`
}

// TimePhasedSettings binds a time-phased strategy to a product.
type TimePhasedSettings struct {
	Product   schema.Symbol `yaml:"product"`
	TotalTime int           `yaml:"totalTime"`
}

// Settings contains the configuration tree loaded from defaults and overrides.
type Settings struct {
	Environment   Environment                       `yaml:"environment"`
	Log           LogSettings                       `yaml:"log"`
	Telemetry     TelemetrySettings                 `yaml:"telemetry"`
	Risk          RiskSettings                      `yaml:"risk"`
	Products      map[schema.Symbol]ProductSettings `yaml:"products"`
	FairValue     []FairValueSettings               `yaml:"fairValue"`
	MovingAverage []MovingAverageSettings           `yaml:"movingAverage"`
	RelativeValue []RelativeValueSettings           `yaml:"relativeValue"`
	TimePhased    []TimePhasedSettings              `yaml:"timePhased"`
}

func product(maxPosition int, referencePrice int64) ProductSettings {
	return ProductSettings{
		MaxPosition:    maxPosition,
		ReferencePrice: decimal.NewFromInt(referencePrice),
		Rounding:       numeric.RoundFloor,
	}
}

// Default returns the round-four trader configuration.
func Default() Settings {
	return Settings{
		Environment: EnvProd,
		Log:         LogSettings{Level: "info"},
		Telemetry: TelemetrySettings{
			Enabled:      false,
			OTLPEndpoint: "",
			ServiceName:  "prosperity",
		},
		Risk: RiskSettings{EnforcePositionLimits: false, OrderThrottle: 0, OrderBurst: 1},
		Products: map[schema.Symbol]ProductSettings{
			schema.Pearls:           product(20, 10000),
			schema.Bananas:          product(20, 5000),
			schema.Coconuts:         product(600, 8000),
			schema.PinaColadas:      product(300, 15000),
			schema.DivingGear:       product(50, 100000),
			schema.DolphinSightings: product(0, 3000),
			schema.Berries:          product(250, 0),
			schema.Baguette:         product(150, 12000),
			schema.Dip:              product(300, 7000),
			schema.Ukulele:          product(70, 20000),
			schema.PicnicBasket:     product(70, 74000),
		},
		FairValue: []FairValueSettings{
			{Product: schema.Pearls, Price: 10000},
		},
		MovingAverage: []MovingAverageSettings{
			{Product: schema.Bananas, LongWindow: 200, ShortWindow: 50, UnitSize: 1, Seed: decimal.Zero},
		},
		RelativeValue: []RelativeValueSettings{
			{
				Name:        "pina_coconut",
				Target:      LegSettings{Product: schema.PinaColadas, Trade: true},
				Basket:      []LegSettings{{Product: schema.Coconuts, Trade: true}},
				Aggregation: "identity",
				TradeFactor: "1/30",
			},
			{
				Name:        "diving_dolphin",
				Target:      LegSettings{Product: schema.DivingGear, Trade: true},
				Basket:      []LegSettings{{Product: schema.DolphinSightings, Trade: false}},
				Aggregation: "identity",
				TradeFactor: "1/30",
			},
			{
				Name:   "picnic",
				Target: LegSettings{Product: schema.PicnicBasket, Trade: true},
				Basket: []LegSettings{
					{Product: schema.Baguette, Trade: false},
					{Product: schema.Dip, Trade: false},
					{Product: schema.Ukulele, Trade: false},
				},
				Aggregation: "mean",
				TradeFactor: "1/30",
			},
		},
		TimePhased: []TimePhasedSettings{
			{Product: schema.Berries, TotalTime: 1000},
		},
	}
}

// FromEnv loads configuration values from environment variables, overriding defaults.
// A .env file in the working directory is read first when present.
func FromEnv() Settings {
	_ = godotenv.Load() // best-effort
	return Apply(Default(), envOverrides()...)
}

func envOverrides() []Option {
	var opts []Option
	if env := strings.TrimSpace(os.Getenv("PROSPERITY_ENV")); env != "" {
		opts = append(opts, WithEnvironment(Environment(strings.ToLower(env))))
	}
	if v := strings.TrimSpace(os.Getenv("PROSPERITY_LOG_LEVEL")); v != "" {
		opts = append(opts, WithLogLevel(v))
	}
	if v := strings.TrimSpace(os.Getenv("PROSPERITY_ENFORCE_POSITION_LIMITS")); v != "" {
		if enforce, err := strconv.ParseBool(v); err == nil {
			opts = append(opts, WithPositionLimits(enforce))
		}
	}
	if v := strings.TrimSpace(os.Getenv("PROSPERITY_ORDER_THROTTLE")); v != "" {
		if throttle, err := strconv.ParseFloat(v, 64); err == nil {
			opts = append(opts, WithOrderThrottle(throttle, 0))
		}
	}
	if v := strings.TrimSpace(os.Getenv("PROSPERITY_OTLP_ENDPOINT")); v != "" {
		opts = append(opts, WithTelemetry(true, v))
	}
	return opts
}

// Option mutates Settings when applied via Apply.
type Option func(*Settings)

// Apply applies the provided Option set to a copy of the base Settings.
func Apply(base Settings, opts ...Option) Settings {
	cfg := base.clone()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithEnvironment configures the top-level environment.
func WithEnvironment(env Environment) Option {
	return func(s *Settings) {
		if env != "" {
			s.Environment = env
		}
	}
}

// WithLogLevel sets the log level.
func WithLogLevel(level string) Option {
	level = strings.ToLower(strings.TrimSpace(level))
	return func(s *Settings) {
		if level != "" {
			s.Log.Level = level
		}
	}
}

// WithPositionLimits toggles clamping of orders to each product's max position.
func WithPositionLimits(enforce bool) Option {
	return func(s *Settings) {
		s.Risk.EnforcePositionLimits = enforce
	}
}

// WithOrderThrottle sets the per-product order rate. A burst below 1 keeps the current burst.
func WithOrderThrottle(perSecond float64, burst int) Option {
	return func(s *Settings) {
		if perSecond >= 0 {
			s.Risk.OrderThrottle = perSecond
		}
		if burst >= 1 {
			s.Risk.OrderBurst = burst
		}
	}
}

// WithTelemetry enables or disables the OTLP exporter.
func WithTelemetry(enabled bool, endpoint string) Option {
	endpoint = strings.TrimSpace(endpoint)
	return func(s *Settings) {
		s.Telemetry.Enabled = enabled
		if endpoint != "" {
			s.Telemetry.OTLPEndpoint = endpoint
		}
	}
}

// WithProduct replaces the settings of one product.
func WithProduct(symbol schema.Symbol, product ProductSettings) Option {
	symbol = schema.NormalizeSymbol(string(symbol))
	return func(s *Settings) {
		if symbol == "" {
			return
		}
		if s.Products == nil {
			s.Products = make(map[schema.Symbol]ProductSettings)
		}
		s.Products[symbol] = product
	}
}

// WithMaxPosition overrides the max position of one product.
func WithMaxPosition(symbol schema.Symbol, maxPosition int) Option {
	return mutateProductOption(symbol, func(p *ProductSettings) {
		p.MaxPosition = maxPosition
	})
}

// WithRounding overrides how a product's fractional order sizes are rounded.
func WithRounding(symbol schema.Symbol, rounding numeric.Rounding) Option {
	return mutateProductOption(symbol, func(p *ProductSettings) {
		if rounding != "" {
			p.Rounding = rounding
		}
	})
}

// WithTradeFactor overrides the trade factor of every relative-value group.
func WithTradeFactor(factor string) Option {
	factor = strings.TrimSpace(factor)
	return func(s *Settings) {
		if factor == "" {
			return
		}
		for i := range s.RelativeValue {
			s.RelativeValue[i].TradeFactor = factor
		}
	}
}

// WithMovingAverageWindows overrides the windows of every moving-average binding.
func WithMovingAverageWindows(long, short int) Option {
	return func(s *Settings) {
		for i := range s.MovingAverage {
			if long > 0 {
				s.MovingAverage[i].LongWindow = long
			}
			if short > 0 {
				s.MovingAverage[i].ShortWindow = short
			}
		}
	}
}

func mutateProductOption(symbol schema.Symbol, fn func(*ProductSettings)) Option {
	key := schema.NormalizeSymbol(string(symbol))
	if key == "" || fn == nil {
		return func(*Settings) {}
	}
	return func(s *Settings) {
		if s.Products == nil {
			s.Products = make(map[schema.Symbol]ProductSettings)
		}
		cfg := s.Products[key]
		fn(&cfg)
		s.Products[key] = cfg
	}
}

// Product returns the settings for one product.
func (s Settings) Product(symbol schema.Symbol) (ProductSettings, bool) {
	cfg, ok := s.Products[schema.NormalizeSymbol(string(symbol))]
	return cfg, ok
}

func (s Settings) clone() Settings {
	clone := s
	clone.Products = make(map[schema.Symbol]ProductSettings, len(s.Products))
	for k, v := range s.Products {
		clone.Products[k] = v
	}
	clone.FairValue = append([]FairValueSettings(nil), s.FairValue...)
	clone.MovingAverage = append([]MovingAverageSettings(nil), s.MovingAverage...)
	clone.TimePhased = append([]TimePhasedSettings(nil), s.TimePhased...)
	clone.RelativeValue = make([]RelativeValueSettings, len(s.RelativeValue))
	for i, group := range s.RelativeValue {
		group.Basket = append([]LegSettings(nil), group.Basket...)
		clone.RelativeValue[i] = group
	}
	return clone
}
